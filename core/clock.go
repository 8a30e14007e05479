package core

import (
	"context"
	"sync"
	"time"
)

// Clock supplies the current unix time in seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

type SystemClock struct{}

func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

// MonotonicClock never reports a time earlier than one it already reported.
type MonotonicClock struct {
	mu     sync.Mutex
	source Clock
	last   uint64
}

func NewMonotonicClock(source Clock) *MonotonicClock {
	return &MonotonicClock{source: source}
}

func (c *MonotonicClock) Now(ctx context.Context) (uint64, error) {
	now, err := c.source.Now(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last, nil
	}
	c.last = now
	return now, nil
}
