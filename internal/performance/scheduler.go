package performance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pvzload/internal/http"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/internal/performance/rate"
)

// VUScheduler manages the lifecycle of Virtual Users.
//
// It provides:
//   - spawning VUs up to a target, each in its own goroutine
//   - cooperative retirement of the most recently spawned VUs, forced once
//     the grace period expires
//   - waiting for every VU goroutine to exit
//
// Executors decide the target; the scheduler only converges on it.
type VUScheduler struct {
	scenario *Scenario
	opts     VUOptions
	logger   *zap.Logger

	mu       sync.Mutex
	active   []*vuHandle // spawn order, so the tail holds the newest VUs
	retiring map[int]*vuHandle
	nextID   int

	wg sync.WaitGroup
}

type vuHandle struct {
	vu     *VirtualUser
	cancel context.CancelFunc
	timer  *time.Timer
}

// SchedulerOption configures a VUScheduler.
type SchedulerOption func(*VUScheduler)

// WithLogger sets the logger used by the scheduler and its VUs.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(s *VUScheduler) {
		if logger != nil {
			s.logger = logger
			s.opts.Logger = logger
		}
	}
}

// WithClock sets the clock VUs use for date templates.
func WithClock(clock Clock) SchedulerOption {
	return func(s *VUScheduler) { s.opts.Clock = clock }
}

// WithSeed makes VU random choices reproducible.
func WithSeed(seed uint64) SchedulerOption {
	return func(s *VUScheduler) { s.opts.Seed = seed }
}

// WithLimiter paces the requests of all VUs through limiter.
func WithLimiter(limiter *rate.Limiter) SchedulerOption {
	return func(s *VUScheduler) { s.opts.Limiter = limiter }
}

// NewVUScheduler creates a scheduler for scenario. All VUs share client and
// report into metricsEngine.
func NewVUScheduler(scenario *Scenario, client *http.Client, metricsEngine *metrics.Engine, options ...SchedulerOption) *VUScheduler {
	s := &VUScheduler{
		scenario: scenario,
		opts: VUOptions{
			Client:  client,
			Metrics: metricsEngine,
		},
		logger:   zap.NewNop(),
		retiring: make(map[int]*vuHandle),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Scale converges the number of non-retiring VUs on target.
//
// Missing VUs are spawned with contexts derived from ctx. Excess VUs, newest
// first, are asked to stop after their current iteration; if one is still
// running after grace its context is cancelled. A grace of zero cancels at
// once. Returns the number of non-retiring VUs.
func (s *VUScheduler) Scale(ctx context.Context, target int, grace time.Duration) int {
	if target < 0 {
		target = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() == nil {
		for len(s.active) < target {
			s.spawnLocked(ctx)
		}
	}
	for len(s.active) > target {
		h := s.active[len(s.active)-1]
		s.active = s.active[:len(s.active)-1]
		s.retireLocked(h, grace)
	}

	s.updateMetricsLocked()
	return len(s.active)
}

// RetireAll retires every VU with the given grace period.
func (s *VUScheduler) RetireAll(grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.active) - 1; i >= 0; i-- {
		s.retireLocked(s.active[i], grace)
	}
	s.active = nil
	s.updateMetricsLocked()
}

// Wait blocks until every spawned VU goroutine has exited.
func (s *VUScheduler) Wait() {
	s.wg.Wait()
}

// WaitContext is Wait bounded by ctx. It returns ctx.Err() if ctx ends first.
func (s *VUScheduler) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveVUs returns the number of VUs that are not retiring.
func (s *VUScheduler) ActiveVUs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// RetiringVUs returns the number of VUs finishing their last iteration.
func (s *VUScheduler) RetiringVUs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retiring)
}

// RunningVUs returns active plus retiring VUs.
func (s *VUScheduler) RunningVUs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + len(s.retiring)
}

// Spawned returns the total number of VUs ever spawned.
func (s *VUScheduler) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

func (s *VUScheduler) spawnLocked(ctx context.Context) {
	s.nextID++
	vu := NewVirtualUser(s.nextID, s.scenario, s.opts)

	vuCtx, cancel := context.WithCancel(ctx)
	h := &vuHandle{vu: vu, cancel: cancel}
	s.active = append(s.active, h)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		vu.Run(vuCtx)
		s.finish(h)
	}()
}

func (s *VUScheduler) retireLocked(h *vuHandle, grace time.Duration) {
	id := h.vu.ID
	if _, ok := s.retiring[id]; ok {
		return
	}
	s.retiring[id] = h
	h.vu.RequestStop()

	if grace <= 0 {
		h.cancel()
		return
	}
	h.timer = time.AfterFunc(grace, func() {
		s.logger.Debug("Grace period expired, interrupting VU", zap.Int("vu", id), zap.Duration("grace", grace))
		h.cancel()
	})
}

// finish runs on the VU goroutine after Run returns.
func (s *VUScheduler) finish(h *vuHandle) {
	h.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	delete(s.retiring, h.vu.ID)
	for i, a := range s.active {
		if a == h {
			s.active = append(s.active[:i], s.active[i+1:]...)
			break
		}
	}
	s.updateMetricsLocked()
}

func (s *VUScheduler) updateMetricsLocked() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetActiveVUs(len(s.active) + len(s.retiring))
	}
}
