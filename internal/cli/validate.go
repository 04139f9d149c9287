package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/pvzload/internal/performance/engine"
	"github.com/wesleyorama2/pvzload/internal/performance/executor"
)

func (a *app) newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a test file without running it",
		Long: `Parse and validate a test file (or the built-in PVZ workload), compile
its request templates and thresholds, and print the resulting plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validate()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Test file (YAML or JSON); the built-in PVZ workload when empty")
	a.bindFlags("validate.", cmd.Flags())
	return cmd
}

func (a *app) validate() error {
	cfg, err := loadTestConfig(a.v.GetString("validate.config"))
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("loading config: %w", err)}
	}

	eng, err := engine.NewEngine(cfg)
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	cfg = eng.GetConfig()

	fmt.Fprintf(a.out, "%s: OK\n", cfg.Name)
	if cfg.Settings.BaseURL != "" {
		fmt.Fprintf(a.out, "  target: %s\n", cfg.Settings.BaseURL)
	}

	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sc := cfg.Scenarios[name]
		execCfg, err := executor.ConfigFromScenario(name, sc)
		if err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
		fmt.Fprintf(a.out, "  scenario %s: %s, up to %d VUs for %s (graceful stop %s), %d steps\n",
			name, execCfg.Type, execCfg.MaxVUs(), execCfg.TotalDuration(), execCfg.GracefulStop, len(sc.Steps))
	}

	thresholds := make([]string, 0, len(cfg.Thresholds))
	for metric, exprs := range cfg.Thresholds {
		for _, expr := range exprs {
			thresholds = append(thresholds, metric+": "+expr)
		}
	}
	sort.Strings(thresholds)
	for _, t := range thresholds {
		fmt.Fprintf(a.out, "  threshold %s\n", t)
	}
	return nil
}
