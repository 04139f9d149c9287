package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxIdleConnsPerHost = 1000
	DefaultUserAgent           = "pvzload/1.0"
	DefaultGracefulStop        = "30s"
	DefaultGracefulRampDown    = "30s"
)

// decodeFunc fills cfg from a whole document. Unknown keys are errors so a
// misspelled field does not silently fall back to its default.
type decodeFunc func(data []byte, cfg *TestConfig) error

func decodeYAML(data []byte, cfg *TestConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(data []byte, cfg *TestConfig) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after document")
	}
	return nil
}

// decoderFor picks the format by extension. Anything but .json is read as
// YAML, which also accepts most JSON.
func decoderFor(path string) (string, decodeFunc) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "JSON", decodeJSON
	}
	return "YAML", decodeYAML
}

// LoadConfig reads and parses the test file at path.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses a test document; path only selects the format.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	format, decode := decoderFor(path)
	cfg := new(TestConfig)
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", format, err)
	}
	return cfg, nil
}

// ParseDurationString accepts Go durations ("1m30s", "500ms") and bare
// integers, which count seconds. Blank input is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}
	return d, nil
}

// ParseStages parses the compact stage form "30s:10,1m:10,10s:0".
func ParseStages(s string) ([]StageConfig, error) {
	var stages []StageConfig
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dur, target, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("stage %d: expected duration:target, got %q", i+1, part)
		}
		if _, err := ParseDurationString(dur); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(target))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("stage %d: invalid target %q", i+1, target)
		}
		stages = append(stages, StageConfig{Duration: strings.TrimSpace(dur), Target: n})
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("no stages in %q", s)
	}
	return stages, nil
}

// ParseScenarioDuration returns the length of the scenario's timeline: the
// sum of its stages, or its duration. Graceful stop is not included.
func ParseScenarioDuration(sc *ScenarioConfig) (time.Duration, error) {
	if len(sc.Stages) == 0 {
		if sc.Duration == "" {
			return 0, errors.New("no duration specified and no stages defined")
		}
		return ParseDurationString(sc.Duration)
	}

	var total time.Duration
	for i, stage := range sc.Stages {
		d, err := ParseDurationString(stage.Duration)
		if err != nil {
			return 0, fmt.Errorf("stage %d: %w", i+1, err)
		}
		total += d
	}
	return total, nil
}

// MergeVariables layers variable maps; later maps win.
func MergeVariables(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

// ApplyDefaults fills unset settings, executors, graceful periods and
// request methods in place.
func ApplyDefaults(cfg *TestConfig) {
	s := &cfg.Settings
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.MaxIdleConnsPerHost == 0 {
		s.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}

	for _, sc := range cfg.Scenarios {
		if sc == nil {
			continue
		}
		defaultScenario(sc)
		defaultSteps(sc.Steps)
	}
}

func defaultScenario(sc *ScenarioConfig) {
	if sc.Executor == "" {
		sc.Executor = "constant-vus"
		if len(sc.Stages) > 0 {
			sc.Executor = "ramping-vus"
		}
	}
	if sc.Executor == "constant-vus" && sc.VUs == 0 {
		sc.VUs = 1
	}
	if sc.Executor == "ramping-vus" && sc.GracefulRampDown == "" {
		sc.GracefulRampDown = DefaultGracefulRampDown
	}
	if sc.GracefulStop == "" {
		sc.GracefulStop = DefaultGracefulStop
	}
}

func defaultSteps(steps []StepConfig) {
	for i := range steps {
		step := &steps[i]
		if step.Method == "" && step.Kind() == StepRequest {
			step.Method = "get"
		}
		step.Method = strings.ToUpper(step.Method)
		defaultSteps(step.Steps)
	}
}
