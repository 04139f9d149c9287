package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

// ConstantVUs holds Config.VUs virtual users for Config.Duration. Every VU
// loops its iteration back to back, so throughput follows the target's
// response times.
type ConstantVUs struct {
	timeline
}

func NewConstantVUs() *ConstantVUs { return &ConstantVUs{} }

func (e *ConstantVUs) Type() Type { return TypeConstantVUs }

func (e *ConstantVUs) Init(_ context.Context, cfg *Config) error {
	return e.init(cfg, TypeConstantVUs)
}

// Run spawns every VU up front and waits out the duration, or Stop, before
// the graceful stop.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	loopCtx, err := e.begin(ctx, scheduler)
	if err != nil {
		return err
	}

	n := e.config.VUs
	e.targetVUs.Store(int32(n))
	scheduler.Scale(ctx, n, 0)
	metricsEngine.SetPhase(metrics.PhaseSteady)

	select {
	case <-loopCtx.Done():
	case <-time.After(e.config.Duration):
	}

	e.finish(scheduler, metricsEngine)
	return nil
}
