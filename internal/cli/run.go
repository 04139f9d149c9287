package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/pvzload/internal/performance/config"
	"github.com/wesleyorama2/pvzload/internal/performance/engine"
	"github.com/wesleyorama2/pvzload/internal/performance/output"
	"github.com/wesleyorama2/pvzload/internal/performance/report"
)

func (a *app) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test from a configuration file, or the built-in PVZ workload
when --config is not given.

The built-in workload ramps from 50 to 1000 virtual users over 30s, holds
for 1m and ramps down over 10s. Every iteration logs in as a moderator,
creates a PVZ, logs in as an employee, opens a reception, adds five
products and reads the PVZ list filtered by the last week.

Quick overrides:
  pvzload run --vus 20 --duration 1m
  pvzload run --stages "30s:100,1m:100,10s:0" --graceful-ramp-down 5s

The process exits with 99 when a threshold fails and 1 on any other error.
Press Ctrl+C once to stop ramping and let VUs finish, twice to abort.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLoadTest(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "Test file (YAML or JSON); the built-in PVZ workload when empty")
	f.String("base-url", "", "Target base URL (env PVZLOAD_BASE_URL or BASE_URL)")
	f.Int("vus", 0, "Virtual users: constant-vus with --duration, start VUs with --stages")
	f.String("duration", "", "Test duration for constant-vus (e.g. 30s, 5m)")
	f.String("stages", "", "Ramp stages as 'duration:target,...' (e.g. '30s:1000,1m:1000,10s:0')")
	f.String("graceful-ramp-down", "", "Time ramped-down VUs get to finish their iteration")
	f.String("graceful-stop", "", "Time VUs get to finish after the last stage")
	f.Uint64("seed", 0, "Seed for random template values and sleeps (0 is random)")
	f.Float64("rps", 0, "Cap on requests per second across all VUs (0 is unlimited)")
	f.BoolP("quiet", "q", false, "Disable live progress output, show only the verdict")
	f.StringP("out", "o", "", "Write the result as JSON to this file")
	f.String("html", "", "Write an HTML report to this file")
	f.Duration("refresh", time.Second, "Live progress refresh interval")

	a.bindFlags("", f)
	return cmd
}

func (a *app) runLoadTest(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := a.logger()
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadTestConfig(a.v.GetString("config"))
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("loading config: %w", err)}
	}
	if err := overridesFrom(a.v).apply(cfg); err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}

	eng, err := engine.NewEngine(cfg, engine.WithLogger(logger))
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}

	quiet := a.v.GetBool("quiet")
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:     cfg.Name,
		ScenarioInfo: scenarioInfo(cfg),
		Writer:       a.out,
		Quiet:        quiet,
	})
	console.PrintHeader(cfg.Settings.BaseURL)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go handleInterrupts(runCtx, sigCh, eng, cancel, logger)

	monitorCtx, stopMonitor := context.WithCancel(runCtx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		output.Monitor(monitorCtx, eng, console, a.v.GetDuration("refresh"))
	}()

	result, runErr := eng.Run(runCtx)
	stopMonitor()
	<-monitorDone

	if result == nil {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("running test: %w", runErr)}
	}
	if runErr != nil {
		logger.Error("Run finished with error", zap.Error(runErr))
	}

	console.PrintSummary(result)

	if path := a.v.GetString("out"); path != "" {
		if err := output.WriteJSONFile(path, result); err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
		logger.Info("Result written", zap.String("path", path))
	}
	if path := a.v.GetString("html"); path != "" {
		if err := report.WriteFile(path, result); err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
		logger.Info("HTML report written", zap.String("path", path))
	}

	switch {
	case runErr != nil:
		return &ExitCodeError{Code: ExitError, Err: runErr}
	case !result.Passed:
		return &ExitCodeError{Code: ExitThresholdsFailed, Err: errThresholdsFailed}
	}
	return nil
}

// stopper is the part of the engine interrupts act on.
type stopper interface {
	Stop(ctx context.Context) error
}

// handleInterrupts stops the timeline on the first signal, so VUs get their
// graceful stop, and cancels the run on the second.
func handleInterrupts(ctx context.Context, sigCh <-chan os.Signal, eng stopper, cancel context.CancelFunc, logger *zap.Logger) {
	select {
	case <-ctx.Done():
		return
	case sig := <-sigCh:
		logger.Warn("Stopping, waiting for VUs to finish (interrupt again to abort)", zap.String("signal", sig.String()))
		if err := eng.Stop(ctx); err != nil {
			logger.Error("Failed to stop scenarios", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Warn("Aborting run", zap.String("signal", sig.String()))
		cancel()
	}
}

// scenarioInfo describes the scenarios for the header, e.g.
// "contacts [ramping-vus]".
func scenarioInfo(cfg *config.TestConfig) string {
	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s [%s]", name, cfg.Scenarios[name].Executor))
	}
	return strings.Join(parts, ", ")
}
