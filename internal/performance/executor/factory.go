package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance/config"
)

var constructors = map[Type]func() Executor{
	TypeConstantVUs: func() Executor { return NewConstantVUs() },
	TypeRampingVUs:  func() Executor { return NewRampingVUs() },
}

// NewExecutor returns an uninitialized executor of type t.
func NewExecutor(t Type) (Executor, error) {
	build, ok := constructors[t]
	if !ok {
		return nil, fmt.Errorf("unknown executor type: %s", t)
	}
	return build(), nil
}

// Types lists the supported executor types in name order.
func Types() []Type {
	types := make([]Type, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Supported reports whether name is an executor type NewExecutor knows.
func Supported(name string) bool {
	_, ok := constructors[Type(name)]
	return ok
}

// New builds the executor cfg names and initializes it.
func New(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	return exec, nil
}

// FromScenario builds and initializes the executor for one scenario of a
// test file, returning the Config it was initialized with.
func FromScenario(ctx context.Context, name string, sc *config.ScenarioConfig) (Executor, *Config, error) {
	cfg, err := ConfigFromScenario(name, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	exec, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	return exec, cfg, nil
}

// ConfigFromScenario converts the file form of a scenario. Durations are
// parsed as written; filling defaults is config.ApplyDefaults' job.
func ConfigFromScenario(name string, sc *config.ScenarioConfig) (*Config, error) {
	cfg := &Config{
		Name:     name,
		Type:     Type(sc.Executor),
		VUs:      sc.VUs,
		StartVUs: sc.StartVUs,
		Stages:   make([]Stage, 0, len(sc.Stages)),
	}

	for _, f := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"duration", sc.Duration, &cfg.Duration},
		{"gracefulStop", sc.GracefulStop, &cfg.GracefulStop},
		{"gracefulRampDown", sc.GracefulRampDown, &cfg.GracefulRampDown},
	} {
		d, err := config.ParseDurationString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		*f.dst = d
	}

	for i, st := range sc.Stages {
		d, err := config.ParseDurationString(st.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid stages[%d].duration: %w", i, err)
		}
		cfg.Stages = append(cfg.Stages, Stage{Duration: d, Target: st.Target, Name: st.Name})
	}
	return cfg, nil
}
