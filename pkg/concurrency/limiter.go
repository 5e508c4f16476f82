package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Acquire while the breaker rejects work.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Stats is a snapshot of limiter activity.
type Stats struct {
	Acquired int64
	Released int64
	Failed   int64
	Peak     int64
	WaitTime time.Duration
}

// Limiter bounds concurrent operations, such as segment writes, and trips a
// circuit breaker after repeated failures.
type Limiter struct {
	sem     chan struct{}
	active  atomic.Int64
	breaker *CircuitBreaker

	acquired atomic.Int64
	released atomic.Int64
	failed   atomic.Int64
	peak     atomic.Int64
	waitNs   atomic.Int64
}

// NewLimiter creates a limiter allowing maxConcurrent operations. Ten
// consecutive failures open the breaker for thirty seconds.
func NewLimiter(maxConcurrent int) *Limiter {
	return NewLimiterWithCircuitBreaker(maxConcurrent, NewCircuitBreaker(10, 30*time.Second))
}

// NewLimiterWithCircuitBreaker creates a limiter with custom circuit breaker settings
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if cb == nil {
		cb = NewCircuitBreaker(0, 0)
	}
	return &Limiter{
		sem:     make(chan struct{}, maxConcurrent),
		breaker: cb,
	}
}

// Acquire waits for a slot. It fails fast with ErrCircuitOpen while the
// breaker is open.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.breaker.IsOpen() {
		return ErrCircuitOpen
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.waitNs.Add(time.Since(start).Nanoseconds())
		l.acquired.Add(1)
		l.updatePeak(l.active.Add(1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.released.Add(1)
	default:
	}
}

// Do runs fn within a slot and feeds its outcome to the breaker.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	if err := fn(); err != nil {
		l.failed.Add(1)
		l.breaker.RecordFailure()
		return err
	}

	l.breaker.RecordSuccess()
	return nil
}

// Active returns the number of operations holding a slot.
func (l *Limiter) Active() int64 {
	return l.active.Load()
}

// Stats returns a snapshot of the counters.
func (l *Limiter) Stats() Stats {
	return Stats{
		Acquired: l.acquired.Load(),
		Released: l.released.Load(),
		Failed:   l.failed.Load(),
		Peak:     l.peak.Load(),
		WaitTime: time.Duration(l.waitNs.Load()),
	}
}

// BreakerState returns the current state of the circuit breaker.
func (l *Limiter) BreakerState() CircuitBreakerState {
	return l.breaker.GetState()
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
