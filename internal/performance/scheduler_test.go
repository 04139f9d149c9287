package performance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

func sleepScenario(d time.Duration) *Scenario {
	return &Scenario{Name: "sleep", Steps: []Step{&SleepStep{Min: d}}}
}

func newTestScheduler(t *testing.T, scenario *Scenario) (*VUScheduler, *metrics.Engine) {
	t.Helper()
	engine := metrics.NewEngine()
	t.Cleanup(engine.Stop)
	return NewVUScheduler(scenario, nil, engine, WithLogger(zaptest.NewLogger(t)), WithSeed(7)), engine
}

func TestVUScheduler_ScaleUpAndDown(t *testing.T) {
	scheduler, engine := newTestScheduler(t, sleepScenario(10*time.Millisecond))
	ctx := context.Background()

	assert.Equal(t, 0, scheduler.ActiveVUs())

	assert.Equal(t, 10, scheduler.Scale(ctx, 10, time.Second))
	assert.Equal(t, 10, scheduler.Spawned())
	assert.Equal(t, 10, engine.GetActiveVUs())

	assert.Equal(t, 4, scheduler.Scale(ctx, 4, time.Second))
	assert.Equal(t, 10, scheduler.Spawned(), "scaling down never spawns")

	assert.Equal(t, 6, scheduler.Scale(ctx, 6, time.Second))
	assert.Equal(t, 12, scheduler.Spawned())

	scheduler.RetireAll(time.Second)
	scheduler.Wait()

	assert.Equal(t, 0, scheduler.RunningVUs())
	assert.Equal(t, 0, engine.GetActiveVUs())
	assert.Equal(t, int64(0), engine.GetSnapshot().Iterations.Cancelled)
}

func TestVUScheduler_RetiresNewestFirst(t *testing.T) {
	var running [6]atomic.Bool
	scenario := &Scenario{Steps: []Step{StepFunc{StepName: "mark", Fn: func(ctx context.Context, it *Iteration) Flow {
		running[it.VU].Store(true)
		select {
		case <-ctx.Done():
			return FlowCancelled
		case <-time.After(5 * time.Millisecond):
			return FlowContinue
		}
	}}}}
	scheduler, _ := newTestScheduler(t, scenario)
	ctx := context.Background()

	scheduler.Scale(ctx, 5, time.Second)
	scheduler.Scale(ctx, 2, time.Second)

	scheduler.mu.Lock()
	ids := []int{}
	for _, h := range scheduler.active {
		ids = append(ids, h.vu.ID)
	}
	scheduler.mu.Unlock()
	assert.Equal(t, []int{1, 2}, ids)

	scheduler.RetireAll(time.Second)
	scheduler.Wait()
}

func TestVUScheduler_GracefulRampDownLetsIterationFinish(t *testing.T) {
	scheduler, engine := newTestScheduler(t, sleepScenario(150*time.Millisecond))
	ctx := context.Background()

	scheduler.Scale(ctx, 3, time.Second)
	time.Sleep(20 * time.Millisecond)

	scheduler.Scale(ctx, 0, time.Second)
	assert.Equal(t, 0, scheduler.ActiveVUs())
	assert.Equal(t, 3, scheduler.RetiringVUs())

	scheduler.Wait()

	it := engine.GetSnapshot().Iterations
	assert.Equal(t, int64(3), it.Complete)
	assert.Equal(t, int64(0), it.Cancelled)
	assert.Equal(t, 0, scheduler.RunningVUs())
}

func TestVUScheduler_GraceExpiryCancelsIteration(t *testing.T) {
	scheduler, engine := newTestScheduler(t, sleepScenario(time.Minute))
	ctx := context.Background()

	scheduler.Scale(ctx, 2, 0)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	scheduler.Scale(ctx, 1, 50*time.Millisecond)
	scheduler.Scale(ctx, 0, 0)

	require.NoError(t, waitWithTimeout(scheduler, 2*time.Second))
	assert.Less(t, time.Since(start), time.Second)

	it := engine.GetSnapshot().Iterations
	assert.Equal(t, int64(2), it.Cancelled)
	assert.Equal(t, int64(0), it.Complete)
}

func TestVUScheduler_ParentCancellationStopsEveryVU(t *testing.T) {
	scheduler, engine := newTestScheduler(t, sleepScenario(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())

	scheduler.Scale(ctx, 5, time.Minute)
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, waitWithTimeout(scheduler, 2*time.Second))
	assert.Equal(t, 0, scheduler.RunningVUs())
	assert.Equal(t, int64(5), engine.GetSnapshot().Iterations.Cancelled)

	assert.Equal(t, 0, scheduler.Scale(ctx, 3, 0), "no spawning after cancellation")
}

func TestVirtualUser_RequestStop(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	vu := NewVirtualUser(1, sleepScenario(5*time.Millisecond), VUOptions{Metrics: engine})
	assert.Equal(t, VUStateIdle, vu.GetState())

	go vu.Run(context.Background())
	time.Sleep(20 * time.Millisecond)

	vu.RequestStop()
	vu.RequestStop()
	assert.True(t, vu.WaitForStop(time.Second))
	assert.Equal(t, VUStateStopped, vu.GetState())
	assert.Positive(t, vu.GetIteration())
	assert.Equal(t, int64(0), engine.GetSnapshot().Iterations.Cancelled)
}

func waitWithTimeout(s *VUScheduler, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.WaitContext(ctx)
}
