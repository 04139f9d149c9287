package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/pvzload/internal/performance/check"
)

func validConfig() *TestConfig {
	return &TestConfig{
		Name:     "Test",
		Settings: GlobalSettings{BaseURL: "http://localhost:8080"},
		Scenarios: map[string]*ScenarioConfig{
			"default": {
				Executor: "constant-vus",
				VUs:      1,
				Duration: "10s",
				Steps:    []StepConfig{{Method: "GET", URL: "/pvz"}},
			},
		},
	}
}

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected *ValidationErrors, got %T: %v", err, err)
	return verrs.Fields()
}

func TestValidate_MinimalValid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_NoScenarios(t *testing.T) {
	cfg := validConfig()
	cfg.Scenarios = nil

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "scenarios")
}

func TestValidate_StructTags(t *testing.T) {
	cfg := validConfig()
	cfg.Name = ""
	cfg.Settings.BaseURL = "not a url"
	cfg.Settings.RPS = -1
	cfg.Scenarios["default"].Executor = "per-vu-iterations"
	cfg.Scenarios["default"].Steps[0].Extract = []ExtractConfig{{Name: "id", Source: "cookie"}}

	err := cfg.Validate()
	fields := validationFields(t, err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "settings.baseUrl")
	assert.Contains(t, fields, "settings.rps")
	assert.Contains(t, fields, "scenarios.default.executor")
	assert.Contains(t, fields, "scenarios.default.steps[0].extract[0].source")
	assert.Contains(t, err.Error(), "must be one of: constant-vus, ramping-vus")
}

func TestValidate_ConstantVUs(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(sc *ScenarioConfig)
		wantField string
	}{
		{"zero vus", func(sc *ScenarioConfig) { sc.VUs = 0 }, "scenarios.default.vus"},
		{"missing duration", func(sc *ScenarioConfig) { sc.Duration = "" }, "scenarios.default.duration"},
		{"bad duration", func(sc *ScenarioConfig) { sc.Duration = "forever" }, "scenarios.default.duration"},
		{"bad graceful stop", func(sc *ScenarioConfig) { sc.GracefulStop = "x" }, "scenarios.default.gracefulStop"},
		{"negative graceful stop", func(sc *ScenarioConfig) { sc.GracefulStop = "-1s" }, "scenarios.default.gracefulStop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg.Scenarios["default"])
			assert.Contains(t, validationFields(t, cfg.Validate()), tt.wantField)
		})
	}
}

func TestValidate_RampingVUs(t *testing.T) {
	cfg := validConfig()
	sc := cfg.Scenarios["default"]
	sc.Executor = "ramping-vus"
	sc.Duration = ""
	sc.StartVUs = 50
	sc.Stages = []StageConfig{{Duration: "30s", Target: 1000}, {Duration: "10s", Target: 0}}
	sc.GracefulRampDown = "30s"
	require.NoError(t, cfg.Validate())

	sc.Stages = nil
	assert.Contains(t, validationFields(t, cfg.Validate()), "scenarios.default.stages")

	sc.Stages = []StageConfig{{Duration: "", Target: -1}, {Duration: "soon", Target: 1}}
	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "scenarios.default.stages[0].duration")
	assert.Contains(t, fields, "scenarios.default.stages[0].target")
	assert.Contains(t, fields, "scenarios.default.stages[1].duration")
}

func TestValidate_Steps(t *testing.T) {
	cfg := validConfig()
	cfg.Scenarios["default"].Steps = []StepConfig{
		{Method: "FETCH", URL: "/pvz", Timeout: "x", RequireStatus: 42},
		{Type: StepRequest},
		{Duration: "1s", Max: "500ms"},
		{Type: StepGroup},
		{Type: StepRepeat, Steps: []StepConfig{{URL: "/products"}}},
		{Type: "loop"},
		{},
		{Name: "nested", Steps: []StepConfig{{Type: StepSleep}}},
	}

	fields := validationFields(t, cfg.Validate())
	for _, want := range []string{
		"scenarios.default.steps[0].method",
		"scenarios.default.steps[0].timeout",
		"scenarios.default.steps[0].requireStatus",
		"scenarios.default.steps[1].url",
		"scenarios.default.steps[2].max",
		"scenarios.default.steps[3].name",
		"scenarios.default.steps[3].steps",
		"scenarios.default.steps[4].count",
		"scenarios.default.steps[5].type",
		"scenarios.default.steps[6]",
		"scenarios.default.steps[7].steps[0].duration",
	} {
		assert.Contains(t, fields, want)
	}
}

func TestValidate_RequestWithoutURL(t *testing.T) {
	steps := []StepConfig{
		{Name: "login", Method: "POST", Body: map[string]interface{}{"role": "moderator"}},
		{Name: "checked", Checks: []check.Config{{Type: "status", Value: 200}}},
		{Name: "extract", Extract: []ExtractConfig{{Name: "jwt", Source: "body", Path: "jwt"}}},
		{Name: "required", RequireStatus: 201},
	}
	for i := range steps {
		assert.Equal(t, StepRequest, steps[i].Kind(), steps[i].Name)
	}

	cfg := validConfig()
	cfg.Scenarios["default"].Steps = steps
	fields := validationFields(t, cfg.Validate())
	for i := range steps {
		assert.Contains(t, fields, fmt.Sprintf("scenarios.default.steps[%d].url", i))
		assert.NotContains(t, fields, fmt.Sprintf("scenarios.default.steps[%d]", i))
	}
}

func TestValidate_Checks(t *testing.T) {
	cfg := validConfig()
	cfg.Scenarios["default"].Steps[0].Checks = []check.Config{
		{Type: "status", Value: 200},
		{Type: "body", Condition: "matches", Value: "("},
		{Type: "teapot"},
	}

	fields := validationFields(t, cfg.Validate())
	assert.NotContains(t, fields, "scenarios.default.steps[0].checks[0]")
	assert.Contains(t, fields, "scenarios.default.steps[0].checks[1]")
	assert.Contains(t, fields, "scenarios.default.steps[0].checks[2]")
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Thresholds = map[string][]string{
		"http_req_duration": {"p(95)<100"},
		"checks":            {"rate>0.9999"},
	}
	require.NoError(t, cfg.Validate())

	cfg.Thresholds["vus_max"] = []string{"value<10"}
	err := cfg.Validate()
	assert.Contains(t, validationFields(t, err), "thresholds")
	assert.Contains(t, err.Error(), "vus_max")
}

func TestValidate_ReportsEverythingAtOnce(t *testing.T) {
	cfg := validConfig()
	cfg.Name = ""
	cfg.Scenarios["default"].VUs = 0
	cfg.Scenarios["default"].Steps[0].URL = ""

	err := cfg.Validate()
	assert.GreaterOrEqual(t, len(validationFields(t, err)), 3)
	assert.True(t, strings.HasPrefix(err.Error(), "3 validation errors"), err.Error())
}

func TestValidationError_Single(t *testing.T) {
	errs := &ValidationErrors{}
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("name", "is required")
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "validation error on field 'name': is required", errs.Error())
}
