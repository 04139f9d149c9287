package cli

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/wesleyorama2/pvzload/internal/performance/config"
	"github.com/wesleyorama2/pvzload/internal/pvz"
)

// Defaults for --vus/--duration when only one of them is given.
const (
	defaultVUs      = 10
	defaultDuration = "30s"
)

// overrides are the command line tweaks applied on top of a test file.
type overrides struct {
	BaseURL          string
	VUs              int
	Duration         string
	Stages           string
	GracefulRampDown string
	GracefulStop     string
	Seed             uint64
	RPS              float64
}

func overridesFrom(v *viper.Viper) overrides {
	return overrides{
		BaseURL:          v.GetString("base-url"),
		VUs:              v.GetInt("vus"),
		Duration:         v.GetString("duration"),
		Stages:           v.GetString("stages"),
		GracefulRampDown: v.GetString("graceful-ramp-down"),
		GracefulStop:     v.GetString("graceful-stop"),
		Seed:             v.GetUint64("seed"),
		RPS:              v.GetFloat64("rps"),
	}
}

// loadTestConfig reads path, or the built-in PVZ workload when path is empty.
func loadTestConfig(path string) (*config.TestConfig, error) {
	if path == "" {
		return pvz.Load()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply rewrites cfg in place. --vus/--duration turn every scenario into a
// constant-vus one; --stages turns it into ramping-vus starting from
// --vus (or its current startVUs).
func (o overrides) apply(cfg *config.TestConfig) error {
	if o.BaseURL != "" {
		cfg.Settings.BaseURL = o.BaseURL
	}
	if o.Seed != 0 {
		cfg.Settings.Seed = o.Seed
	}
	if o.RPS < 0 {
		return fmt.Errorf("--rps must not be negative, got %v", o.RPS)
	}
	if o.RPS > 0 {
		cfg.Settings.RPS = o.RPS
	}
	if o.Stages != "" && o.Duration != "" {
		return fmt.Errorf("--stages and --duration cannot be combined")
	}

	var stages []config.StageConfig
	if o.Stages != "" {
		var err error
		if stages, err = config.ParseStages(o.Stages); err != nil {
			return fmt.Errorf("invalid --stages: %w", err)
		}
	}
	if o.Duration != "" {
		if _, err := config.ParseDurationString(o.Duration); err != nil {
			return fmt.Errorf("invalid --duration: %w", err)
		}
	}

	for _, sc := range cfg.Scenarios {
		switch {
		case stages != nil:
			sc.Executor = "ramping-vus"
			sc.Stages = append([]config.StageConfig(nil), stages...)
			if o.VUs > 0 {
				sc.StartVUs = o.VUs
			}
			sc.VUs = 0
			sc.Duration = ""
		case o.VUs > 0 || o.Duration != "":
			sc.Executor = "constant-vus"
			sc.VUs = o.VUs
			if sc.VUs == 0 {
				sc.VUs = defaultVUs
			}
			sc.Duration = o.Duration
			if sc.Duration == "" {
				sc.Duration = defaultDuration
			}
			sc.StartVUs = 0
			sc.Stages = nil
			sc.GracefulRampDown = ""
		}

		if o.GracefulRampDown != "" {
			sc.GracefulRampDown = o.GracefulRampDown
		}
		if o.GracefulStop != "" {
			sc.GracefulStop = o.GracefulStop
		}
	}
	return nil
}
