// Package engine orchestrates a load test run.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/pvzload/internal/http"
	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/config"
	"github.com/wesleyorama2/pvzload/internal/performance/executor"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/internal/performance/rate"
	"github.com/wesleyorama2/pvzload/internal/performance/threshold"
)

// Engine is the main orchestrator for a load test.
//
// It coordinates:
//   - Configuration defaults and validation
//   - Scenario execution with their respective executors
//   - Metrics collection and aggregation
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	engine, _ := NewEngine(cfg)
//	result, _ := engine.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config     *config.TestConfig
	thresholds []threshold.Threshold
	client     *http.Client
	logger     *zap.Logger
	clock      performance.Clock
	seed       uint64

	mu            sync.RWMutex
	metricsEngine *metrics.Engine
	scenarios     map[string]*ScenarioRunner
	startTime     time.Time
	running       bool
	stopped       atomic.Bool
	runID         string
}

// ScenarioRunner manages the execution of a single scenario.
type ScenarioRunner struct {
	Name      string
	Config    *config.ScenarioConfig
	Scenario  *performance.Scenario
	Executor  executor.Executor
	Scheduler *performance.VUScheduler
	Result    *ScenarioResult
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine, schedulers and VUs.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the clock used by date templates.
func WithClock(clock performance.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithSeed overrides settings.seed.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithClient replaces the HTTP client built from settings.
func WithClient(client *http.Client) Option {
	return func(e *Engine) { e.client = client }
}

// NewEngine applies defaults to cfg, validates it and compiles every
// scenario, so a broken file fails here rather than mid-run.
func NewEngine(cfg *config.TestConfig, options ...Option) (*Engine, error) {
	config.ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	thresholds, err := threshold.ParseAll(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		config:     cfg,
		thresholds: thresholds,
		logger:     zap.NewNop(),
		clock:      performance.SystemClock,
		seed:       cfg.Settings.Seed,
		scenarios:  make(map[string]*ScenarioRunner),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.client == nil {
		e.client = newClient(&cfg.Settings)
	}

	for _, name := range scenarioNames(cfg) {
		sc := cfg.Scenarios[name]
		scenario, err := BuildScenario(name, sc, cfg.Variables)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		e.scenarios[name] = &ScenarioRunner{Name: name, Config: sc, Scenario: scenario}
	}

	return e, nil
}

func newClient(s *config.GlobalSettings) *http.Client {
	transport := http.DefaultTransportConfig()
	if s.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	transport.MaxConnsPerHost = s.MaxConnectionsPerHost
	transport.InsecureSkipVerify = s.InsecureSkipVerify

	opts := []http.ClientOption{
		http.WithBaseURL(s.BaseURL),
		http.WithTimeout(time.Duration(s.Timeout)),
		http.WithHTTPClient(http.NewHTTPClient(transport)),
	}
	if s.UserAgent != "" {
		opts = append(opts, http.WithHeader("User-Agent", s.UserAgent))
	}
	for k, v := range s.Headers {
		opts = append(opts, http.WithHeader(k, v))
	}
	return http.NewClient(opts...)
}

func scenarioNames(cfg *config.TestConfig) []string {
	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes all scenarios concurrently and returns the test results.
//
// Cancelling ctx interrupts every VU at once; the result is still built
// from whatever was recorded and marked Interrupted, as it is after Stop.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.stopped.Store(false)
	e.startTime = time.Now()
	e.runID = uuid.NewString()
	e.metricsEngine = metrics.NewEngine()
	metricsEngine := e.metricsEngine
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	metricsEngine.SetPhase(metrics.PhaseInit)
	logger := e.logger.With(zap.String("run_id", e.runID))

	if err := e.initializeScenarios(ctx, logger, metricsEngine); err != nil {
		metricsEngine.Stop()
		return nil, fmt.Errorf("failed to initialize scenarios: %w", err)
	}

	logger.Info("Starting load test",
		zap.String("name", e.config.Name),
		zap.Int("scenarios", len(e.scenarios)),
		zap.String("base_url", e.client.BaseURL()))

	runErr := e.runScenarios(ctx, logger, metricsEngine)

	metricsEngine.Stop()
	summary := metricsEngine.Summary()
	thresholdResults := threshold.Evaluate(e.thresholds, summary)

	result := &TestResult{
		ID:          e.runID,
		Name:        e.config.Name,
		Description: e.config.Description,
		StartTime:   e.startTime,
		EndTime:     time.Now(),
		Scenarios:   make(map[string]*ScenarioResult, len(e.scenarios)),
		Metrics:     summary.Snapshot,
		Summary:     summary,
		TimeSeries:  metricsEngine.GetTimeSeries(),
		Thresholds:  thresholdResults,
		Passed:      threshold.AllPassed(thresholdResults),
		Interrupted: ctx.Err() != nil || e.stopped.Load(),
	}
	result.Duration = result.EndTime.Sub(result.StartTime)
	for name, runner := range e.scenarios {
		result.Scenarios[name] = runner.Result
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	for _, tr := range thresholdResults {
		if !tr.Passed {
			logger.Warn("Threshold failed", zap.String("metric", tr.Metric), zap.String("expression", tr.Expression), zap.String("value", tr.Value))
		}
	}
	logger.Info("Load test finished",
		zap.Bool("passed", result.Passed),
		zap.Bool("interrupted", result.Interrupted),
		zap.Duration("duration", result.Duration),
		zap.Int64("requests", summary.Snapshot.TotalRequests))

	return result, runErr
}

// initializeScenarios creates executors and schedulers for all scenarios.
func (e *Engine) initializeScenarios(ctx context.Context, logger *zap.Logger, metricsEngine *metrics.Engine) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// one bucket for the whole run, so settings.rps is a global cap
	limiter := rate.NewLimiter(e.config.Settings.RPS)
	if limiter != nil {
		logger.Info("Request rate capped", zap.Float64("rps", limiter.Rate()))
	}

	for name, runner := range e.scenarios {
		exec, _, err := executor.FromScenario(ctx, name, runner.Config)
		if err != nil {
			return err
		}

		if e.stopped.Load() {
			_ = exec.Stop(ctx)
		}
		runner.Executor = exec
		runner.Scheduler = performance.NewVUScheduler(runner.Scenario, e.client, metricsEngine,
			performance.WithLogger(logger.With(zap.String("scenario", name))),
			performance.WithClock(e.clock),
			performance.WithSeed(e.seed),
			performance.WithLimiter(limiter),
		)
		runner.Result = nil
	}
	return nil
}

// runScenarios runs every scenario in its own goroutine and waits for all.
func (e *Engine) runScenarios(ctx context.Context, logger *zap.Logger, metricsEngine *metrics.Engine) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, runner := range e.scenarios {
		g.Go(func() error {
			logger.Debug("Scenario started", zap.String("scenario", runner.Name), zap.String("executor", string(runner.Executor.Type())))

			start := time.Now()
			err := runner.Executor.Run(gctx, runner.Scheduler, metricsEngine)
			stats := runner.Executor.Stats()

			runner.Result = &ScenarioResult{
				Name:       runner.Name,
				Executor:   string(runner.Executor.Type()),
				Duration:   time.Since(start),
				SpawnedVUs: stats.SpawnedVUs,
			}
			if err != nil {
				runner.Result.Error = err.Error()
				return fmt.Errorf("scenario %s failed: %w", runner.Name, err)
			}

			logger.Debug("Scenario finished", zap.String("scenario", runner.Name), zap.Duration("duration", runner.Result.Duration))
			return nil
		})
	}

	return g.Wait()
}

// GetConfig returns the test configuration.
func (e *Engine) GetConfig() *config.TestConfig {
	return e.config
}

// RunID returns the id of the current or last run.
func (e *Engine) RunID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runID
}

// GetMetrics returns the current metrics snapshot, or nil before Run.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	m := e.metricsEngine
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.GetSnapshot()
}

// GetTimeSeries returns the time series data.
func (e *Engine) GetTimeSeries() []*metrics.TimeBucket {
	e.mu.RLock()
	m := e.metricsEngine
	e.mu.RUnlock()
	if m == nil {
		return nil
	}
	return m.GetTimeSeries()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends every scenario's timeline early. VUs still get their graceful
// stop period.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.running {
		return nil
	}
	e.stopped.Store(true)

	var lastErr error
	for _, runner := range e.scenarios {
		if runner.Executor == nil {
			continue
		}
		if err := runner.Executor.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// GetProgress returns the overall test progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total float64
	var n int
	for _, runner := range e.scenarios {
		if runner.Executor == nil {
			continue
		}
		total += runner.Executor.Progress()
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// GetScenarioStats returns current stats for all scenarios.
func (e *Engine) GetScenarioStats() map[string]*executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[string]*executor.Stats)
	for name, runner := range e.scenarios {
		if runner.Executor != nil {
			stats[name] = runner.Executor.Stats()
		}
	}
	return stats
}

// EstimatedDuration returns the longest scenario timeline, excluding
// graceful stop.
func (e *Engine) EstimatedDuration() time.Duration {
	var longest time.Duration
	for _, sc := range e.config.Scenarios {
		if d, err := config.ParseScenarioDuration(sc); err == nil && d > longest {
			longest = d
		}
	}
	return longest
}
