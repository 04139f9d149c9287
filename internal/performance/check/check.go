// Package check compiles named response assertions into pure predicates.
//
// A check never aborts an iteration. Callers record every Result and decide
// separately whether the scenario should continue.
package check

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/pvzload/internal/http"
	"github.com/wesleyorama2/pvzload/pkg/jsonpath"
	"github.com/wesleyorama2/pvzload/pkg/jsonschema"
)

// Check types.
const (
	TypeStatus   = "status"
	TypeBody     = "body"
	TypeHeader   = "header"
	TypeDuration = "duration"
	TypeSchema   = "schema"
)

// Conditions.
const (
	CondEq       = "eq"
	CondNe       = "ne"
	CondLt       = "lt"
	CondLte      = "lte"
	CondGt       = "gt"
	CondGte      = "gte"
	CondIn       = "in"
	CondContains = "contains"
	CondMatches  = "matches"
	CondExists   = "exists"
)

// Config is the declarative form of a check as it appears in a test file.
type Config struct {
	Name      string      `yaml:"name" json:"name"`
	Type      string      `yaml:"type" json:"type"`
	Path      string      `yaml:"path,omitempty" json:"path,omitempty"`
	Condition string      `yaml:"condition,omitempty" json:"condition,omitempty"`
	Value     interface{} `yaml:"value,omitempty" json:"value,omitempty"`

	// Schema is a JSON Schema, either as a JSON string or as a YAML mapping.
	Schema interface{} `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// Result is the outcome of one check against one response.
type Result struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

type predicate func(resp *http.Response) (bool, string)

// Check is a compiled, named predicate. It holds no mutable state, so the
// same Check may be evaluated from any number of goroutines.
type Check struct {
	Name string
	Type string

	eval predicate
}

// Evaluate runs the check against resp. A nil response fails.
func (c Check) Evaluate(resp *http.Response) Result {
	if resp == nil {
		return Result{Name: c.Name, Passed: false, Message: "no response"}
	}
	passed, msg := c.eval(resp)
	return Result{Name: c.Name, Passed: passed, Message: msg}
}

// Evaluate runs every check against resp independently.
func Evaluate(resp *http.Response, checks []Check) []Result {
	if resp == nil {
		return FailAll(checks)
	}
	results := make([]Result, len(checks))
	for i, c := range checks {
		results[i] = c.Evaluate(resp)
	}
	return results
}

// FailAll returns a failed result for each check. It is recorded when a
// transport error left nothing to evaluate.
func FailAll(checks []Check) []Result {
	results := make([]Result, len(checks))
	for i, c := range checks {
		results[i] = Result{Name: c.Name, Passed: false, Message: "request failed"}
	}
	return results
}

// Compile validates cfg and builds its predicate.
func Compile(cfg Config) (Check, error) {
	cond := strings.ToLower(strings.TrimSpace(cfg.Condition))
	if cond == "" {
		cond = defaultCondition(cfg)
	}

	var (
		eval predicate
		err  error
	)
	switch strings.ToLower(cfg.Type) {
	case TypeStatus:
		eval, err = compileStatus(cond, cfg.Value)
	case TypeBody:
		eval, err = compileBody(cfg.Path, cond, cfg.Value)
	case TypeHeader:
		eval, err = compileHeader(cfg.Path, cond, cfg.Value)
	case TypeDuration:
		eval, err = compileDuration(cond, cfg.Value)
	case TypeSchema:
		eval, err = compileSchema(cfg.Schema)
	case "":
		return Check{}, fmt.Errorf("check %q: type is required", cfg.Name)
	default:
		return Check{}, fmt.Errorf("check %q: unknown type %q", cfg.Name, cfg.Type)
	}
	if err != nil {
		return Check{}, fmt.Errorf("check %q: %w", cfg.Name, err)
	}

	name := cfg.Name
	if name == "" {
		name = defaultName(cfg, cond)
	}
	return Check{Name: name, Type: strings.ToLower(cfg.Type), eval: eval}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(cfg Config) Check {
	c, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// CompileAll compiles cfgs in order, stopping at the first error.
func CompileAll(cfgs []Config) ([]Check, error) {
	checks := make([]Check, 0, len(cfgs))
	for _, cfg := range cfgs {
		c, err := Compile(cfg)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func defaultCondition(cfg Config) string {
	switch strings.ToLower(cfg.Type) {
	case TypeDuration:
		return CondLt
	case TypeBody, TypeHeader:
		if cfg.Value == nil {
			return CondExists
		}
	}
	return CondEq
}

func defaultName(cfg Config, cond string) string {
	parts := []string{strings.ToLower(cfg.Type)}
	if cfg.Path != "" {
		parts = append(parts, cfg.Path)
	}
	if cfg.Type != TypeSchema {
		parts = append(parts, cond)
		if cfg.Value != nil {
			parts = append(parts, fmt.Sprint(cfg.Value))
		}
	}
	return strings.Join(parts, " ")
}

func compileStatus(cond string, value interface{}) (predicate, error) {
	if cond == CondIn {
		list, ok := value.([]interface{})
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("status in: value must be a non-empty list")
		}
		codes := make(map[int]bool, len(list))
		for _, v := range list {
			code, err := toInt(v)
			if err != nil {
				return nil, err
			}
			codes[code] = true
		}
		return func(resp *http.Response) (bool, string) {
			if codes[resp.StatusCode] {
				return true, fmt.Sprintf("Status code is %d", resp.StatusCode)
			}
			return false, fmt.Sprintf("Status code %d not in %v", resp.StatusCode, list)
		}, nil
	}

	want, err := toInt(value)
	if err != nil {
		return nil, err
	}
	if !isNumericCondition(cond) {
		return nil, fmt.Errorf("unsupported status condition %q", cond)
	}
	return func(resp *http.Response) (bool, string) {
		if compareFloat(cond, float64(resp.StatusCode), float64(want)) {
			return true, fmt.Sprintf("Status code is %d", resp.StatusCode)
		}
		return false, fmt.Sprintf("Status code is %d, expected %s %d", resp.StatusCode, cond, want)
	}, nil
}

func compileBody(path, cond string, value interface{}) (predicate, error) {
	if path == "" {
		path = "$"
	}

	switch cond {
	case CondExists:
		want := true
		if value != nil {
			b, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("body exists: value must be a boolean")
			}
			want = b
		}
		return func(resp *http.Response) (bool, string) {
			got := jsonpath.Exists(resp.Body, path)
			return got == want, fmt.Sprintf("Path %s exists: %v", path, got)
		}, nil

	case CondMatches:
		re, err := compileRegexp(value)
		if err != nil {
			return nil, err
		}
		return func(resp *http.Response) (bool, string) {
			r, ok := jsonpath.Lookup(resp.Body, path)
			if !ok {
				return false, fmt.Sprintf("Path %s not found", path)
			}
			return re.MatchString(r.String()), fmt.Sprintf("Path %s is %q", path, r.String())
		}, nil

	case CondContains:
		needle := fmt.Sprint(value)
		return func(resp *http.Response) (bool, string) {
			r, ok := jsonpath.Lookup(resp.Body, path)
			if !ok {
				return false, fmt.Sprintf("Path %s not found", path)
			}
			if r.IsArray() {
				for _, item := range r.Array() {
					if item.String() == needle {
						return true, fmt.Sprintf("Path %s contains %q", path, needle)
					}
				}
				return false, fmt.Sprintf("Path %s does not contain %q", path, needle)
			}
			return strings.Contains(r.String(), needle), fmt.Sprintf("Path %s is %q", path, r.String())
		}, nil

	case CondEq, CondNe, CondLt, CondLte, CondGt, CondGte:
		if value == nil {
			return nil, fmt.Errorf("body %s: value is required", cond)
		}
		return func(resp *http.Response) (bool, string) {
			r, ok := jsonpath.Lookup(resp.Body, path)
			if !ok {
				return cond == CondNe, fmt.Sprintf("Path %s not found", path)
			}
			return compareJSON(cond, r, value), fmt.Sprintf("Path %s is %s", path, r.Raw)
		}, nil
	}
	return nil, fmt.Errorf("unsupported body condition %q", cond)
}

func compileHeader(name, cond string, value interface{}) (predicate, error) {
	if name == "" {
		return nil, fmt.Errorf("header: path (header name) is required")
	}

	var re *regexp.Regexp
	if cond == CondMatches {
		var err error
		if re, err = compileRegexp(value); err != nil {
			return nil, err
		}
	}
	want := fmt.Sprint(value)

	switch cond {
	case CondExists:
	case CondEq, CondNe, CondContains, CondMatches:
		if value == nil {
			return nil, fmt.Errorf("header %s: value is required", cond)
		}
	default:
		return nil, fmt.Errorf("unsupported header condition %q", cond)
	}

	return func(resp *http.Response) (bool, string) {
		values := resp.Headers.Values(name)
		got := resp.GetHeader(name)
		switch cond {
		case CondExists:
			return len(values) > 0, fmt.Sprintf("Header %s exists: %v", name, len(values) > 0)
		case CondEq:
			return len(values) > 0 && got == want, fmt.Sprintf("Header %s value is %q", name, got)
		case CondNe:
			return got != want, fmt.Sprintf("Header %s value is %q", name, got)
		case CondContains:
			return len(values) > 0 && strings.Contains(got, want), fmt.Sprintf("Header %s value is %q", name, got)
		default:
			return len(values) > 0 && re.MatchString(got), fmt.Sprintf("Header %s value is %q", name, got)
		}
	}, nil
}

func compileDuration(cond string, value interface{}) (predicate, error) {
	limit, err := toDuration(value)
	if err != nil {
		return nil, err
	}
	if !isNumericCondition(cond) || cond == CondEq || cond == CondNe {
		return nil, fmt.Errorf("unsupported duration condition %q", cond)
	}
	return func(resp *http.Response) (bool, string) {
		ok := compareFloat(cond, float64(resp.Duration), float64(limit))
		return ok, fmt.Sprintf("Response time %s %s %s", resp.Duration.Round(time.Microsecond), cond, limit)
	}, nil
}

func compileSchema(raw interface{}) (predicate, error) {
	var text string
	switch s := raw.(type) {
	case nil:
		return nil, fmt.Errorf("schema: schema is required")
	case string:
		text = s
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		text = string(b)
	}

	schema, err := jsonschema.Compile(text)
	if err != nil {
		return nil, err
	}
	return func(resp *http.Response) (bool, string) {
		if err := schema.Validate(resp.Body); err != nil {
			return false, err.Error()
		}
		return true, "Response matches schema"
	}, nil
}

func compareJSON(cond string, r gjson.Result, value interface{}) bool {
	if want, err := toFloat(value); err == nil && r.Type == gjson.Number {
		return compareFloat(cond, r.Float(), want)
	}
	if b, ok := value.(bool); ok && (r.Type == gjson.True || r.Type == gjson.False) {
		switch cond {
		case CondEq:
			return r.Bool() == b
		case CondNe:
			return r.Bool() != b
		}
		return false
	}
	return compareString(cond, r.String(), fmt.Sprint(value))
}

func isNumericCondition(cond string) bool {
	switch cond {
	case CondEq, CondNe, CondLt, CondLte, CondGt, CondGte:
		return true
	}
	return false
}

func compareFloat(cond string, got, want float64) bool {
	switch cond {
	case CondEq:
		return got == want
	case CondNe:
		return got != want
	case CondLt:
		return got < want
	case CondLte:
		return got <= want
	case CondGt:
		return got > want
	case CondGte:
		return got >= want
	}
	return false
}

func compareString(cond, got, want string) bool {
	switch cond {
	case CondEq:
		return got == want
	case CondNe:
		return got != want
	case CondLt:
		return got < want
	case CondLte:
		return got <= want
	case CondGt:
		return got > want
	case CondGte:
		return got >= want
	}
	return false
}

func compileRegexp(value interface{}) (*regexp.Regexp, error) {
	pattern, ok := value.(string)
	if !ok || pattern == "" {
		return nil, fmt.Errorf("matches: value must be a non-empty pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

func toInt(v interface{}) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("value is required")
	}
	return 0, fmt.Errorf("invalid number %v", v)
}

// toDuration accepts Go duration strings or a bare number of milliseconds.
func toDuration(v interface{}) (time.Duration, error) {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, nil
		}
	}
	ms, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %v", v)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
