// Package config defines the load test file format.
//
// A test file is YAML or JSON:
//
//	name: pvz
//	settings:
//	  baseUrl: http://localhost:8080
//	scenarios:
//	  contacts:
//	    executor: ramping-vus
//	    startVUs: 50
//	    stages:
//	      - {duration: 30s, target: 1000}
//	    steps:
//	      - name: login
//	        method: POST
//	        url: /dummyLogin
//	        body: {role: moderator}
//	        extract:
//	          - {name: token, source: body, path: jwt}
//	thresholds:
//	  http_req_duration: ["p(95)<100"]
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/pvzload/internal/performance/check"
)

// TestConfig is the root of a load test file.
type TestConfig struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables seed every iteration's slots, so templates read them with
	// {{.Get "name"}}.
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios" validate:"required,min=1,dive"`

	// Thresholds maps a metric key, optionally tagged as
	// "http_req_duration{name:create pvz}", to pass criteria.
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// GlobalSettings apply to every scenario.
type GlobalSettings struct {
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty" validate:"omitempty,url"`

	// Timeout is the default per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty" validate:"gte=0"`
	MaxIdleConnsPerHost   int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty" validate:"gte=0"`

	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Seed makes random template values and sleeps reproducible. Zero is random.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// RPS caps requests per second across all scenarios. Zero is unlimited.
	RPS float64 `json:"rps,omitempty" yaml:"rps,omitempty" validate:"gte=0"`
}

// ScenarioConfig describes one scenario: who runs it (executor) and what
// each iteration does (steps).
type ScenarioConfig struct {
	Executor string `json:"executor" yaml:"executor" validate:"required,oneof=constant-vus ramping-vus"`

	// constant-vus
	VUs      int    `json:"vus,omitempty" yaml:"vus,omitempty" validate:"gte=0"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus
	StartVUs         int           `json:"startVUs,omitempty" yaml:"startVUs,omitempty" validate:"gte=0"`
	Stages           []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty" validate:"dive"`
	GracefulRampDown string        `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	Steps []StepConfig `json:"steps" yaml:"steps" validate:"required,min=1,dive"`

	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// StageConfig is one stage of a ramping scenario.
type StageConfig struct {
	Duration string `json:"duration" yaml:"duration" validate:"required"`
	Target   int    `json:"target" yaml:"target" validate:"gte=0"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Step types.
const (
	StepRequest = "request"
	StepSleep   = "sleep"
	StepGroup   = "group"
	StepRepeat  = "repeat"
)

// StepConfig is one step of an iteration. Type may be omitted: a step with
// a url or any request field is a request, one with steps is a group (a repeat when count is
// set), and one with only a duration is a sleep.
type StepConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// request
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Body is sent as is when it is a string and JSON-encoded otherwise.
	// Either way the result is a template.
	Body    interface{} `json:"body,omitempty" yaml:"body,omitempty"`
	Timeout string      `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Needs lists slots that must be set before the request is built.
	Needs []string `json:"needs,omitempty" yaml:"needs,omitempty"`
	// RequireStatus skips the rest of the enclosing block on any other status.
	RequireStatus int `json:"requireStatus,omitempty" yaml:"requireStatus,omitempty"`

	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty" validate:"dive"`
	Checks  []check.Config  `json:"checks,omitempty" yaml:"checks,omitempty"`

	// sleep: Duration, or a random pause in [Duration, Max]
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Max      string `json:"max,omitempty" yaml:"max,omitempty"`

	// group and repeat
	Count int          `json:"count,omitempty" yaml:"count,omitempty" validate:"gte=0"`
	Steps []StepConfig `json:"steps,omitempty" yaml:"steps,omitempty" validate:"dive"`
}

// Kind returns the step type, inferring it when Type is empty. Any
// request-only field makes a request, so a step missing its url is
// reported as such.
func (s *StepConfig) Kind() string {
	switch {
	case s.Type != "":
		return s.Type
	case s.URL != "" || s.hasRequestFields():
		return StepRequest
	case len(s.Steps) > 0 && s.Count > 0:
		return StepRepeat
	case len(s.Steps) > 0:
		return StepGroup
	case s.Duration != "":
		return StepSleep
	default:
		return ""
	}
}

func (s *StepConfig) hasRequestFields() bool {
	return s.Method != "" || s.Body != nil || len(s.Headers) > 0 || s.Timeout != "" ||
		len(s.Needs) > 0 || s.RequireStatus != 0 || len(s.Extract) > 0 || len(s.Checks) > 0
}

// ExtractConfig stores part of a response in a slot.
type ExtractConfig struct {
	// Name of the slot
	Name string `json:"name" yaml:"name" validate:"required"`
	// Source is body (JSON path), header or status
	Source string `json:"source" yaml:"source" validate:"required,oneof=body header status"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	// OnStatus restricts the extraction to one status code
	OnStatus int `json:"onStatus,omitempty" yaml:"onStatus,omitempty"`
}

// Duration is a time.Duration that reads and writes as a string like "30s".
type Duration time.Duration

// GetDuration returns the duration or defaultValue if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	dur, err := ParseDurationString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
