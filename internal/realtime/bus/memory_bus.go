package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/curriculum-engine/internal/realtime"
)

// memoryBus delivers events synchronously to in-process forwarders, in publish order.
type memoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(realtime.ProgressEvent)
	closed bool
}

func NewMemoryBus() Bus {
	return &memoryBus{subs: map[int]func(realtime.ProgressEvent){}}
}

func (b *memoryBus) Publish(ctx context.Context, ev realtime.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("memory bus closed")
	}
	for _, id := range sortedIDs(b.subs) {
		b.subs[id](ev)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.ProgressEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory bus closed")
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = onEvent
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]func(realtime.ProgressEvent){}
	return nil
}

func sortedIDs(m map[int]func(realtime.ProgressEvent)) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
