package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
name: pvz
settings:
  baseUrl: http://localhost:8080
  timeout: 5s
variables:
  role: moderator
scenarios:
  contacts:
    executor: ramping-vus
    startVUs: 50
    stages:
      - duration: 30s
        target: 1000
      - duration: 1m
        target: 1000
    steps:
      - name: login
        method: post
        url: /dummyLogin
        body:
          role: '{{.Get "role"}}'
        extract:
          - name: token
            source: body
            path: jwt
        checks:
          - type: status
            value: 200
      - duration: 1s
        max: 2s
      - name: receptions
        steps:
          - url: /pvz
      - count: 5
        steps:
          - url: /products
thresholds:
  http_req_duration: ["p(95)<100"]
`

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"30", 30 * time.Second, false},
		{" 10s ", 10 * time.Second, false},
		{"", 0, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "pvz", cfg.Name)
	assert.Equal(t, "http://localhost:8080", cfg.Settings.BaseURL)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Settings.Timeout))
	assert.Equal(t, "moderator", cfg.Variables["role"])

	sc := cfg.Scenarios["contacts"]
	require.NotNil(t, sc)
	assert.Equal(t, 50, sc.StartVUs)
	require.Len(t, sc.Stages, 2)
	require.Len(t, sc.Steps, 4)

	login := sc.Steps[0]
	assert.Equal(t, StepRequest, login.Kind())
	assert.Equal(t, map[string]interface{}{"role": `{{.Get "role"}}`}, login.Body)
	require.Len(t, login.Checks, 1)
	assert.Equal(t, "status", login.Checks[0].Type)

	assert.Equal(t, StepSleep, sc.Steps[1].Kind())
	assert.Equal(t, StepGroup, sc.Steps[2].Kind())
	assert.Equal(t, StepRepeat, sc.Steps[3].Kind())

	assert.Equal(t, []string{"p(95)<100"}, cfg.Thresholds["http_req_duration"])
}

func TestParseConfig_JSON(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), &doc))
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	fromJSON, err := ParseConfig(data, "test.json")
	require.NoError(t, err)
	fromYAML, err := ParseConfig([]byte(sampleYAML), "test.yml")
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Settings.Timeout, fromJSON.Settings.Timeout)
	assert.Equal(t, len(fromYAML.Scenarios["contacts"].Steps), len(fromJSON.Scenarios["contacts"].Steps))
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("name: [unterminated"), "bad.yaml")
	assert.Error(t, err)

	_, err = ParseConfig([]byte("{"), "bad.json")
	assert.Error(t, err)
}

func TestParseConfig_UnknownField(t *testing.T) {
	_, err := ParseConfig([]byte("name: pvz\nsettings:\n  baseURL: http://x\n"), "typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseURL")

	_, err = ParseConfig([]byte(`{"name":"pvz","scenario":{}}`), "typo.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario")
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil, "empty.yaml")
	require.NoError(t, err)
	assert.Empty(t, cfg.Scenarios)

	_, err = ParseConfig([]byte(`{"name":"a"} {"name":"b"}`), "two.json")
	assert.Error(t, err)
}

func TestDuration_YAML(t *testing.T) {
	var s struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 45"), &s))
	assert.Equal(t, 45*time.Second, time.Duration(s.Timeout))

	var unset struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: ~"), &unset))
	assert.Zero(t, unset.Timeout)

	assert.Error(t, yaml.Unmarshal([]byte("timeout: [1s]"), &s))
	assert.Error(t, yaml.Unmarshal([]byte("timeout: whenever"), &s))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pvz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "pvz", cfg.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("30s:10, 1m:10,10s:0")
	require.NoError(t, err)
	assert.Equal(t, []StageConfig{
		{Duration: "30s", Target: 10},
		{Duration: "1m", Target: 10},
		{Duration: "10s", Target: 0},
	}, stages)

	for _, bad := range []string{"", "30s", "30s:x", "later:5", "10s:-1"} {
		_, err := ParseStages(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseScenarioDuration(t *testing.T) {
	d, err := ParseScenarioDuration(&ScenarioConfig{Stages: []StageConfig{
		{Duration: "30s"}, {Duration: "1m"}, {Duration: "10s"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 100*time.Second, d)

	d, err = ParseScenarioDuration(&ScenarioConfig{Duration: "2m"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	_, err = ParseScenarioDuration(&ScenarioConfig{})
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &TestConfig{
		Scenarios: map[string]*ScenarioConfig{
			"ramp": {
				Stages: []StageConfig{{Duration: "1s", Target: 1}},
				Steps:  []StepConfig{{URL: "/pvz", Method: "post"}},
			},
			"flat": {
				Duration: "1s",
				Steps:    []StepConfig{{Name: "g", Steps: []StepConfig{{URL: "/pvz"}}}},
			},
		},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultTimeout, time.Duration(cfg.Settings.Timeout))
	assert.Equal(t, DefaultMaxIdleConnsPerHost, cfg.Settings.MaxIdleConnsPerHost)
	assert.Equal(t, DefaultUserAgent, cfg.Settings.UserAgent)

	ramp := cfg.Scenarios["ramp"]
	assert.Equal(t, "ramping-vus", ramp.Executor)
	assert.Equal(t, "30s", ramp.GracefulRampDown)
	assert.Equal(t, "30s", ramp.GracefulStop)
	assert.Equal(t, "POST", ramp.Steps[0].Method)

	flat := cfg.Scenarios["flat"]
	assert.Equal(t, "constant-vus", flat.Executor)
	assert.Equal(t, 1, flat.VUs)
	assert.Equal(t, "GET", flat.Steps[0].Steps[0].Method)
}

func TestMergeVariables(t *testing.T) {
	got := MergeVariables(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "3"}, nil)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, got)
}

func TestDuration_JSON(t *testing.T) {
	var s struct {
		Timeout Duration `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"1m"}`), &s))
	assert.Equal(t, time.Minute, time.Duration(s.Timeout))

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"1m0s"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"timeout":"never"}`), &s))
	assert.Equal(t, 5*time.Second, Duration(0).GetDuration(5*time.Second))
}
