package bus

import (
	"context"

	"github.com/yungbote/curriculum-engine/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.ProgressEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.ProgressEvent)) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, realtime.ProgressEvent) error { return nil }
func (Nop) StartForwarder(context.Context, func(realtime.ProgressEvent)) error {
	return nil
}
func (Nop) Close() error { return nil }
