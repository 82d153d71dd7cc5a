package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/orderdesk/internal/clock"
)

// DefaultSlotTTL is how long an aggregate stays fresh between recomputes.
const DefaultSlotTTL = 30 * time.Second

// Slot memoizes a single computed value for a fixed TTL.
//
// A value is served while now - cachedAt < ttl. Compute errors are returned
// to the caller and leave the slot untouched. Concurrent misses may both
// compute; the last writer wins.
type Slot[T any] struct {
	mu       sync.RWMutex
	clock    clock.Clock
	ttl      time.Duration
	value    T
	cachedAt time.Time
	filled   bool
}

func NewSlot[T any](c clock.Clock, ttl time.Duration) *Slot[T] {
	if c == nil {
		c = clock.SystemClock{}
	}
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	return &Slot[T]{clock: c, ttl: ttl}
}

// Get returns the cached value or runs compute and stores its result.
func (s *Slot[T]) Get(ctx context.Context, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := s.Peek(); ok {
		return v, nil
	}

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	s.mu.Lock()
	s.value = v
	s.cachedAt = s.clock.Now()
	s.filled = true
	s.mu.Unlock()
	return v, nil
}

// Peek returns the cached value without computing.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.filled && s.clock.Now().Sub(s.cachedAt) < s.ttl {
		return s.value, true
	}
	var zero T
	return zero, false
}

func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	var zero T
	s.value = zero
	s.filled = false
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

// SetTTL applies to subsequent reads.
func (s *Slot[T]) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *Slot[T]) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}
