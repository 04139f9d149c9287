package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

// RampingVUs ramps VU count up and down according to stages.
//
// The target is interpolated linearly within each stage and re-applied on
// every tick, so the VU count follows a smooth line rather than steps.
// VUs above the target are retired newest first and get gracefulRampDown to
// finish the iteration they are in.
//
// Example stages:
//
//	startVUs: 50
//	stages:
//	  - duration: 30s
//	    target: 1000   # 50 -> 1000 VUs over 30s
//	  - duration: 1m
//	    target: 1000   # hold
//	  - duration: 10s
//	    target: 0      # ramp down
type RampingVUs struct {
	timeline
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	return e.init(config, TypeRampingVUs)
}

// Run ticks through the stages, then performs the graceful stop.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	loopCtx, err := e.begin(ctx, scheduler)
	if err != nil {
		return err
	}

	total := e.config.TotalDuration()
	e.tick(ctx, scheduler, metricsEngine)

	ticker := time.NewTicker(e.config.tickInterval())
	defer ticker.Stop()

loop:
	for e.elapsed() < total {
		select {
		case <-loopCtx.Done():
			break loop
		case <-ticker.C:
			e.tick(ctx, scheduler, metricsEngine)
		}
	}

	e.finish(scheduler, metricsEngine)
	return nil
}

// tick converges the scheduler on the target for the current elapsed time.
// VUs are spawned under ctx, never under the timeline's own context.
func (e *RampingVUs) tick(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) {
	target, stage := TargetVUs(e.config.StartVUs, e.config.Stages, e.elapsed())
	e.targetVUs.Store(int32(target))
	e.currentStage.Store(int32(stage))

	scheduler.Scale(ctx, target, e.config.GracefulRampDown)
	if stage < len(e.config.Stages) {
		metricsEngine.SetPhase(stagePhase(e.config.StartVUs, e.config.Stages, stage))
	}
}
