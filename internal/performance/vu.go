// Package performance runs scenarios on virtual users.
//
// A VUScheduler owns the set of running VUs. Each VU is one goroutine that
// runs scenario iterations back to back; within an iteration steps run
// strictly in order and share values only through the Iteration's slots.
package performance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/wesleyorama2/pvzload/internal/http"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/internal/performance/rate"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU will exit after its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated client running the scenario repeatedly.
//
// Each VU has its own:
//   - random source, seeded per VU when the run has a seed
//   - iteration counter
//   - stop signal, which lets the current iteration finish
type VirtualUser struct {
	ID int

	scenario *Scenario
	client   *http.Client
	limiter  *rate.Limiter
	metrics  *metrics.Engine
	logger   *zap.Logger
	clock    Clock
	rng      *gofakeit.Faker

	state     atomic.Int32
	stopping  atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneCh    chan struct{}
	doneOnce  sync.Once
	iteration atomic.Int64
}

// VUOptions carries the collaborators shared by all VUs of a scheduler.
// Metrics is required.
type VUOptions struct {
	Client  *http.Client
	Metrics *metrics.Engine
	Logger  *zap.Logger
	Clock   Clock
	// Limiter, when set, paces every request across all VUs sharing it.
	Limiter *rate.Limiter
	// Seed makes the VU's random choices reproducible. Zero picks a random seed.
	Seed uint64
}

// NewVirtualUser creates a VU. It does nothing until Run or RunIteration.
func NewVirtualUser(id int, scenario *Scenario, opts VUOptions) *VirtualUser {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Client == nil {
		opts.Client = http.NewClient()
	}

	var seed uint64
	if opts.Seed != 0 {
		seed = opts.Seed + uint64(id)
	}

	return &VirtualUser{
		ID:       id,
		scenario: scenario,
		client:   opts.Client,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(zap.Int("vu", id)),
		clock:    opts.Clock,
		rng:      gofakeit.New(seed),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration runs every step of the scenario once and records the outcome.
//
// Cancelling ctx abandons the iteration at its next suspension point and the
// outcome is OutcomeCancelled.
func (vu *VirtualUser) RunIteration(ctx context.Context) IterationOutcome {
	if !vu.stopping.Load() {
		vu.state.Store(int32(VUStateRunning))
	}
	it := newIteration(vu, vu.iteration.Add(1))

	switch runSteps(ctx, it, vu.scenario.Steps) {
	case FlowCancelled:
		it.cancelled = true
	case FlowAbort:
		it.failed = true
	}
	if ctx.Err() != nil && it.Outcome() != OutcomeComplete {
		it.cancelled = true
	}

	outcome := it.Outcome()
	vu.metrics.RecordIteration(outcome, time.Since(it.Start))
	if outcome == OutcomeCancelled {
		vu.logger.Debug("Iteration interrupted", zap.Int64("iteration", it.Number), zap.Error(ErrRunCancelled))
	}

	if !vu.stopping.Load() {
		vu.state.Store(int32(VUStateIdle))
	}
	return outcome
}

// Run runs iterations until a stop is requested or ctx is done.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.markStopped()

	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-vu.stopCh:
			return
		default:
		}

		vu.RunIteration(ctx)
	}
}

// RequestStop asks the VU to exit after its current iteration.
func (vu *VirtualUser) RequestStop() {
	vu.stopOnce.Do(func() {
		vu.stopping.Store(true)
		if vu.GetState() != VUStateStopped {
			vu.state.Store(int32(VUStateStopping))
		}
		close(vu.stopCh)
	})
}

// Done is closed when Run returns.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

func (vu *VirtualUser) markStopped() {
	vu.state.Store(int32(VUStateStopped))
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}
