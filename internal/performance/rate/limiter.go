// Package rate caps how fast requests leave the load generator.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter is a leaky bucket: it hands out start times spaced 1/rps apart
// and never lets idle time build up into a burst larger than maxBurst.
//
// A caller that is behind schedule starts at once; one that is ahead waits.
// Limiter is safe for concurrent use by any number of VUs.
type Limiter struct {
	mu          sync.Mutex
	rps         float64
	maxBurst    float64
	accumulated float64
	lastDrip    time.Time
	now         func() time.Time

	granted atomic.Int64
	waited  atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBurst lets up to burst requests go out back to back after an idle
// period. Values below 1 mean no burst.
func WithBurst(burst float64) Option {
	return func(l *Limiter) {
		if burst >= 1 {
			l.maxBurst = burst
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter returns a limiter admitting rps requests per second. A rate
// of zero or less returns nil, and a nil *Limiter never blocks.
func NewLimiter(rps float64, options ...Option) *Limiter {
	if rps <= 0 {
		return nil
	}
	l := &Limiter{rps: rps, maxBurst: 1, now: time.Now}
	for _, opt := range options {
		opt(l)
	}
	l.lastDrip = l.now()
	// a fresh limiter admits its first request immediately
	l.accumulated = 1
	return l
}

// Reserve books the next slot and returns when it starts. The time may be
// in the past.
func (l *Limiter) Reserve() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if elapsed := now.Sub(l.lastDrip).Seconds(); elapsed > 0 {
		l.accumulated += elapsed * l.rps
	}
	if l.accumulated > l.maxBurst {
		l.accumulated = l.maxBurst
	}
	l.granted.Add(1)

	if l.accumulated >= 1 {
		l.accumulated--
		if now.After(l.lastDrip) {
			l.lastDrip = now
		}
		return now
	}

	// lastDrip moves to the booked slot so waking up there does not count
	// the wait twice
	wait := time.Duration((1 - l.accumulated) / l.rps * float64(time.Second))
	l.accumulated = 0
	base := now
	if l.lastDrip.After(now) {
		base = l.lastDrip
	}
	next := base.Add(wait)
	l.lastDrip = next
	l.waited.Add(int64(next.Sub(now)))
	return next
}

// Wait blocks until the caller may send. It returns ctx.Err() if ctx ends
// first.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	d := l.Reserve().Sub(l.now())
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the configured requests per second.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rps
}

// SetRate changes the rate. Credit built up at the old rate is dropped so a
// rate change never causes a burst.
func (l *Limiter) SetRate(rps float64) {
	if l == nil || rps <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	l.accumulated = 0
	l.lastDrip = l.now()
}

// Stats describes what the limiter has done so far.
type Stats struct {
	Rate      float64       `json:"rate"`
	Granted   int64         `json:"granted"`
	TotalWait time.Duration `json:"totalWait"`
}

// Stats returns counters since creation.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	return Stats{
		Rate:      l.Rate(),
		Granted:   l.granted.Load(),
		TotalWait: time.Duration(l.waited.Load()),
	}
}
