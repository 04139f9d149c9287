package executor_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/executor"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

func sleepScenario(d time.Duration) *performance.Scenario {
	return &performance.Scenario{
		Name:  "sleep",
		Steps: []performance.Step{&performance.SleepStep{Min: d}},
	}
}

func newRun(t *testing.T, scenario *performance.Scenario) (*performance.VUScheduler, *metrics.Engine) {
	t.Helper()
	engine := metrics.NewEngine()
	t.Cleanup(engine.Stop)
	scheduler := performance.NewVUScheduler(scenario, nil, engine, performance.WithLogger(zaptest.NewLogger(t)))
	return scheduler, engine
}

func runAsync(ctx context.Context, exec executor.Executor, s *performance.VUScheduler, m *metrics.Engine) <-chan error {
	done := make(chan error, 1)
	go func() { done <- exec.Run(ctx, s, m) }()
	return done
}

func waitRun(t *testing.T, done <-chan error, timeout time.Duration) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(timeout):
		t.Fatalf("Run() did not return within %s", timeout)
	}
}

func TestRampingVUs_FollowsStages(t *testing.T) {
	scheduler, engine := newRun(t, sleepScenario(10*time.Millisecond))

	e := executor.NewRampingVUs()
	err := e.Init(context.Background(), &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 100 * time.Millisecond, Target: 4},
			{Duration: 300 * time.Millisecond, Target: 4},
			{Duration: 100 * time.Millisecond, Target: 0},
		},
		GracefulRampDown: time.Second,
		GracefulStop:     time.Second,
		TickInterval:     5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	done := runAsync(context.Background(), e, scheduler, engine)

	time.Sleep(250 * time.Millisecond)
	if got := scheduler.ActiveVUs(); got != 4 {
		t.Errorf("ActiveVUs() during steady stage = %d, want 4", got)
	}
	if got := engine.GetPhase(); got != metrics.PhaseSteady {
		t.Errorf("GetPhase() during steady stage = %s, want %s", got, metrics.PhaseSteady)
	}
	if p := e.Progress(); p <= 0 || p >= 1 {
		t.Errorf("Progress() mid-run = %f, want between 0 and 1", p)
	}

	waitRun(t, done, 5*time.Second)

	if got := scheduler.RunningVUs(); got != 0 {
		t.Errorf("RunningVUs() after Run = %d, want 0", got)
	}
	if got := engine.GetPhase(); got != metrics.PhaseDone {
		t.Errorf("GetPhase() after Run = %s, want %s", got, metrics.PhaseDone)
	}
	if p := e.Progress(); p != 1 {
		t.Errorf("Progress() after Run = %f, want 1", p)
	}

	it := engine.GetSnapshot().Iterations
	if it.Cancelled != 0 {
		t.Errorf("cancelled iterations = %d, want 0 with generous grace", it.Cancelled)
	}
	if it.Complete == 0 {
		t.Error("expected completed iterations")
	}

	var phases []metrics.Phase
	for _, pc := range engine.GetPhaseHistory() {
		phases = append(phases, pc.Phase)
	}
	want := []metrics.Phase{metrics.PhaseRampUp, metrics.PhaseSteady, metrics.PhaseRampDown, metrics.PhaseGracefulStop, metrics.PhaseDone}
	for _, p := range want {
		if !containsPhase(phases, p) {
			t.Errorf("phase history %v is missing %s", phases, p)
		}
	}

	stats := e.Stats()
	if stats.SpawnedVUs < 4 {
		t.Errorf("SpawnedVUs = %d, want at least 4", stats.SpawnedVUs)
	}
	if stats.TotalStages != 3 {
		t.Errorf("TotalStages = %d, want 3", stats.TotalStages)
	}
}

func TestRampingVUs_StartVUs(t *testing.T) {
	scheduler, engine := newRun(t, sleepScenario(5*time.Millisecond))

	e := executor.NewRampingVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:         executor.TypeRampingVUs,
		StartVUs:     3,
		Stages:       []executor.Stage{{Duration: 200 * time.Millisecond, Target: 3}},
		GracefulStop: time.Second,
		TickInterval: 5 * time.Millisecond,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	done := runAsync(context.Background(), e, scheduler, engine)
	time.Sleep(20 * time.Millisecond)
	if got := scheduler.ActiveVUs(); got != 3 {
		t.Errorf("ActiveVUs() right after start = %d, want startVUs 3", got)
	}
	waitRun(t, done, 5*time.Second)
}

func TestRampingVUs_GracefulStopInterruptsLongIterations(t *testing.T) {
	scheduler, engine := newRun(t, sleepScenario(time.Minute))

	e := executor.NewRampingVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:         executor.TypeRampingVUs,
		StartVUs:     2,
		Stages:       []executor.Stage{{Duration: 50 * time.Millisecond, Target: 2}},
		GracefulStop: 50 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	start := time.Now()
	waitRun(t, runAsync(context.Background(), e, scheduler, engine), 5*time.Second)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %s, graceful stop was not enforced", elapsed)
	}
	if got := engine.GetSnapshot().Iterations.Cancelled; got != 2 {
		t.Errorf("cancelled iterations = %d, want 2", got)
	}
}

func TestRampingVUs_ContextCancellation(t *testing.T) {
	scheduler, engine := newRun(t, sleepScenario(time.Minute))

	e := executor.NewRampingVUs()
	if err := e.Init(context.Background(), &executor.Config{
		Type:         executor.TypeRampingVUs,
		StartVUs:     3,
		Stages:       []executor.Stage{{Duration: time.Minute, Target: 3}},
		GracefulStop: time.Minute,
		TickInterval: 5 * time.Millisecond,
	}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, e, scheduler, engine)
	time.Sleep(30 * time.Millisecond)
	cancel()

	waitRun(t, done, 5*time.Second)
	if got := engine.GetSnapshot().Iterations.Cancelled; got != 3 {
		t.Errorf("cancelled iterations = %d, want 3", got)
	}
}

func TestRampingVUs_RunWithoutInit(t *testing.T) {
	scheduler, engine := newRun(t, sleepScenario(time.Millisecond))
	if err := executor.NewRampingVUs().Run(context.Background(), scheduler, engine); err == nil {
		t.Error("Run() without Init should fail")
	}
}

func containsPhase(phases []metrics.Phase, p metrics.Phase) bool {
	for _, x := range phases {
		if x == p {
			return true
		}
	}
	return false
}
