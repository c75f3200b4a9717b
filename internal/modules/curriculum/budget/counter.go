package budget

import (
	"context"
	"sync"
)

// Counter holds the authoritative spend total for a run, including amounts
// held by open reservations. Reserve checks and adds in one atomic step and
// latches once it refuses: every later Reserve is refused too.
type Counter interface {
	Reserve(ctx context.Context, amount, limit float64) (ok bool, spent float64, err error)
	Adjust(ctx context.Context, delta float64) (spent float64, err error)
	Spent(ctx context.Context) (float64, error)
}

type memoryCounter struct {
	mu      sync.Mutex
	spent   float64
	latched bool
}

func NewMemoryCounter() Counter {
	return &memoryCounter{}
}

func (c *memoryCounter) Reserve(ctx context.Context, amount, limit float64) (bool, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latched {
		return false, c.spent, nil
	}
	if limit > 0 && c.spent+amount > limit {
		c.latched = true
		return false, c.spent, nil
	}
	c.spent += amount
	return true, c.spent, nil
}

func (c *memoryCounter) Adjust(ctx context.Context, delta float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spent += delta
	if c.spent < 0 {
		c.spent = 0
	}
	return c.spent, nil
}

func (c *memoryCounter) Spent(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent, nil
}
