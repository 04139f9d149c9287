package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

var errNotInitialized = errors.New("executor not initialized: call Init before Run")

// timeline is the state shared by VU-based executors: when the run started,
// what target was last requested, and how to end the timeline early.
type timeline struct {
	config *Config

	mu        sync.RWMutex
	scheduler *performance.VUScheduler
	startTime time.Time
	endTime   time.Time
	cancel    context.CancelFunc
	stopped   bool

	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
}

func (t *timeline) init(config *Config, want Type) error {
	if config.Type != want {
		return &ValidationError{Field: "type", Message: "expected " + string(want) + ", got " + string(config.Type)}
	}
	if err := config.Validate(); err != nil {
		return err
	}
	t.config = config
	return nil
}

// begin records the start of the run and returns the context that ends
// the timeline loop. VUs are never bound to it.
func (t *timeline) begin(ctx context.Context, scheduler *performance.VUScheduler) (context.Context, error) {
	if t.config == nil {
		return nil, errNotInitialized
	}
	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.scheduler = scheduler
	t.startTime = time.Now()
	t.cancel = cancel
	if t.stopped {
		cancel()
	}
	t.mu.Unlock()

	t.running.Store(true)
	return loopCtx, nil
}

// finish retires every VU within the graceful stop period and waits for
// all of them to exit.
func (t *timeline) finish(scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) {
	metricsEngine.SetPhase(metrics.PhaseGracefulStop)
	scheduler.RetireAll(t.config.GracefulStop)
	scheduler.Wait()
	metricsEngine.SetPhase(metrics.PhaseDone)

	t.mu.Lock()
	t.endTime = time.Now()
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()
	t.running.Store(false)
}

func (t *timeline) elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch {
	case t.startTime.IsZero():
		return 0
	case !t.endTime.IsZero():
		return t.endTime.Sub(t.startTime)
	default:
		return time.Since(t.startTime)
	}
}

// Progress is the elapsed share of the timeline, 1 once it has ended.
func (t *timeline) Progress() float64 {
	if !t.running.Load() {
		if t.elapsed() == 0 {
			return 0
		}
		return 1
	}

	total := t.config.TotalDuration()
	if total == 0 {
		return 1
	}
	progress := float64(t.elapsed()) / float64(total)
	if progress > 1 {
		progress = 1
	}
	return progress
}

// ActiveVUs returns the number of VUs currently running, including
// those finishing their last iteration.
func (t *timeline) ActiveVUs() int {
	t.mu.RLock()
	s := t.scheduler
	t.mu.RUnlock()
	if s == nil {
		return 0
	}
	return s.RunningVUs()
}

// Stats reads the scheduler and the timeline position.
func (t *timeline) Stats() *Stats {
	t.mu.RLock()
	s := t.scheduler
	start := t.startTime
	t.mu.RUnlock()

	stats := &Stats{
		StartTime:    start,
		CurrentTime:  time.Now(),
		Elapsed:      t.elapsed(),
		TargetVUs:    int(t.targetVUs.Load()),
		CurrentStage: int(t.currentStage.Load()),
	}
	if t.config != nil {
		stats.TotalDuration = t.config.TotalDuration()
		stats.TotalStages = len(t.config.Stages)
		if stats.CurrentStage < len(t.config.Stages) {
			stats.CurrentStageName = t.config.Stages[stats.CurrentStage].Name
		}
	}
	if s != nil {
		stats.ActiveVUs = s.ActiveVUs()
		stats.RetiringVUs = s.RetiringVUs()
		stats.SpawnedVUs = s.Spawned()
	}
	return stats
}

// Stop ends the timeline loop. Run then performs its graceful stop.
// A Stop before Run makes Run end its timeline immediately.
func (t *timeline) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
