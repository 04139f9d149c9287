package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/pvzload/internal/performance/config"
	"github.com/wesleyorama2/pvzload/internal/performance/executor"
)

func pvzStages() []executor.Stage {
	return []executor.Stage{
		{Duration: 30 * time.Second, Target: 1000},
		{Duration: time.Minute, Target: 1000},
		{Duration: 10 * time.Second, Target: 0},
	}
}

func TestTargetVUs(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   time.Duration
		wantVUs   int
		wantStage int
	}{
		{"start", 0, 50, 0},
		{"mid ramp-up", 15 * time.Second, 525, 0},
		{"end of ramp-up", 30 * time.Second, 1000, 1},
		{"steady", time.Minute, 1000, 1},
		{"start of ramp-down", 90 * time.Second, 1000, 2},
		{"mid ramp-down", 95 * time.Second, 500, 2},
		{"all stages elapsed", 100 * time.Second, 0, 3},
		{"long after", time.Hour, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vus, stage := executor.TargetVUs(50, pvzStages(), tt.elapsed)
			if vus != tt.wantVUs {
				t.Errorf("TargetVUs() vus = %d, want %d", vus, tt.wantVUs)
			}
			if stage != tt.wantStage {
				t.Errorf("TargetVUs() stage = %d, want %d", stage, tt.wantStage)
			}
		})
	}
}

func TestTargetVUs_RampIsMonotonicAndBounded(t *testing.T) {
	prev := 0
	for elapsed := time.Duration(0); elapsed <= 30*time.Second; elapsed += 100 * time.Millisecond {
		vus, _ := executor.TargetVUs(50, pvzStages(), elapsed)
		require.GreaterOrEqual(t, vus, prev, "at %s", elapsed)
		require.GreaterOrEqual(t, vus, 50)
		require.LessOrEqual(t, vus, 1000)
		prev = vus
	}
	assert.Equal(t, 1000, prev)
}

func TestTargetVUs_ZeroDurationStageJumps(t *testing.T) {
	stages := []executor.Stage{
		{Duration: 0, Target: 10},
		{Duration: 10 * time.Second, Target: 20},
	}

	vus, stage := executor.TargetVUs(0, stages, 0)
	assert.Equal(t, 10, vus)
	assert.Equal(t, 1, stage)

	vus, _ = executor.TargetVUs(0, stages, 5*time.Second)
	assert.Equal(t, 15, vus)
}

func TestTargetVUs_NoStages(t *testing.T) {
	vus, stage := executor.TargetVUs(7, nil, time.Second)
	assert.Equal(t, 7, vus)
	assert.Equal(t, 0, stage)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    executor.Config
		wantField string
	}{
		{
			name:   "valid ramping",
			config: executor.Config{Type: executor.TypeRampingVUs, StartVUs: 50, Stages: pvzStages()},
		},
		{
			name:   "valid constant",
			config: executor.Config{Type: executor.TypeConstantVUs, VUs: 5, Duration: time.Minute},
		},
		{
			name:      "missing type",
			config:    executor.Config{},
			wantField: "type",
		},
		{
			name:      "unknown type",
			config:    executor.Config{Type: "constant-arrival-rate"},
			wantField: "type",
		},
		{
			name:      "constant without vus",
			config:    executor.Config{Type: executor.TypeConstantVUs, Duration: time.Minute},
			wantField: "vus",
		},
		{
			name:      "constant without duration",
			config:    executor.Config{Type: executor.TypeConstantVUs, VUs: 1},
			wantField: "duration",
		},
		{
			name:      "ramping without stages",
			config:    executor.Config{Type: executor.TypeRampingVUs},
			wantField: "stages",
		},
		{
			name: "negative target",
			config: executor.Config{Type: executor.TypeRampingVUs, Stages: []executor.Stage{
				{Duration: time.Second, Target: -1},
			}},
			wantField: "stages[0].target",
		},
		{
			name: "negative graceful stop",
			config: executor.Config{Type: executor.TypeConstantVUs, VUs: 1, Duration: time.Second,
				GracefulStop: -time.Second},
			wantField: "gracefulStop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *executor.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestConfig_TotalDurationAndMaxVUs(t *testing.T) {
	ramping := executor.Config{Type: executor.TypeRampingVUs, StartVUs: 50, Stages: pvzStages()}
	assert.Equal(t, 100*time.Second, ramping.TotalDuration())
	assert.Equal(t, 1000, ramping.MaxVUs())

	constant := executor.Config{Type: executor.TypeConstantVUs, VUs: 3, Duration: time.Minute}
	assert.Equal(t, time.Minute, constant.TotalDuration())
	assert.Equal(t, 3, constant.MaxVUs())
}

func TestNewExecutor(t *testing.T) {
	assert.Equal(t, []executor.Type{executor.TypeConstantVUs, executor.TypeRampingVUs}, executor.Types())
	for _, typ := range executor.Types() {
		exec, err := executor.NewExecutor(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, exec.Type())
		assert.True(t, executor.Supported(string(typ)))
	}

	_, err := executor.NewExecutor("shared-iterations")
	assert.Error(t, err)
	assert.False(t, executor.Supported("shared-iterations"))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := executor.New(context.Background(), &executor.Config{Type: executor.TypeRampingVUs})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stages")
}

func TestInit_TypeMismatch(t *testing.T) {
	err := executor.NewRampingVUs().Init(context.Background(), &executor.Config{
		Type: executor.TypeConstantVUs, VUs: 1, Duration: time.Second,
	})
	assert.Error(t, err)
}

func TestConfigFromScenario(t *testing.T) {
	sc := &config.ScenarioConfig{
		Executor: "ramping-vus",
		StartVUs: 50,
		Stages: []config.StageConfig{
			{Duration: "30s", Target: 1000},
			{Duration: "1m", Target: 1000, Name: "hold"},
			{Duration: "10", Target: 0},
		},
		GracefulRampDown: "30s",
		GracefulStop:     "0s",
	}

	exec, cfg, err := executor.FromScenario(context.Background(), "contacts", sc)
	require.NoError(t, err)
	assert.Equal(t, executor.TypeRampingVUs, exec.Type())

	assert.Equal(t, "contacts", cfg.Name)
	assert.Equal(t, 50, cfg.StartVUs)
	assert.Equal(t, 30*time.Second, cfg.GracefulRampDown)
	assert.Equal(t, time.Duration(0), cfg.GracefulStop)
	require.Len(t, cfg.Stages, 3)
	assert.Equal(t, "hold", cfg.Stages[1].Name)
	assert.Equal(t, 10*time.Second, cfg.Stages[2].Duration)
	assert.Equal(t, 100*time.Second, cfg.TotalDuration())
}

func TestConfigFromScenario_BadDuration(t *testing.T) {
	_, err := executor.ConfigFromScenario("s", &config.ScenarioConfig{
		Executor: "ramping-vus",
		Stages:   []config.StageConfig{{Duration: "soon", Target: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stages[0]")
}
