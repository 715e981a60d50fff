package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the booking engine.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// NewRealClock returns a clock reading wall time in UTC.
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock only moves when told to. Safe for concurrent use.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{current: t.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t.UTC()
	c.mu.Unlock()
}

func (c *ManualClock) Add(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}
