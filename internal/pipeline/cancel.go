package pipeline

import (
	"context"
	"sync"
)

// CancelRegistry tracks the running pipelines of each caller so one caller
// can stop its own runs without touching anyone else's.
type CancelRegistry struct {
	mu   sync.Mutex
	next uint64
	runs map[string]map[uint64]context.CancelFunc
}

// NewCancelRegistry returns an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{runs: make(map[string]map[uint64]context.CancelFunc)}
}

// Start derives a cancellable context for a run owned by key. release must
// be called when the run ends.
func (c *CancelRegistry) Start(parent context.Context, key string) (ctx context.Context, release func()) {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	c.next++
	id := c.next
	if c.runs[key] == nil {
		c.runs[key] = make(map[uint64]context.CancelFunc)
	}
	c.runs[key][id] = cancel
	c.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.runs[key], id)
			if len(c.runs[key]) == 0 {
				delete(c.runs, key)
			}
			c.mu.Unlock()
			cancel()
		})
	}
}

// Cancel stops every run owned by key and returns how many there were.
func (c *CancelRegistry) Cancel(key string) int {
	c.mu.Lock()
	runs := c.runs[key]
	delete(c.runs, key)
	c.mu.Unlock()

	for _, cancel := range runs {
		cancel()
	}
	return len(runs)
}

// Active returns the number of running pipelines owned by key.
func (c *CancelRegistry) Active(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs[key])
}
