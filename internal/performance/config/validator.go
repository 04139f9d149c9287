package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wesleyorama2/pvzload/internal/performance/check"
	"github.com/wesleyorama2/pvzload/internal/performance/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field of every error, in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

var validate = newStructValidator()

// newStructValidator reports fields by their YAML names so errors point at
// the file, not at Go identifiers.
func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing every problem
// found, so a broken file is reported in one pass.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs.Add(fieldPath(fe), fieldMessage(fe))
		}
	}

	for name, sc := range c.Scenarios {
		if sc == nil {
			errs.Add("scenarios."+name, "scenario is empty")
			continue
		}
		validateScenario("scenarios."+name, sc, errs)
	}

	if _, err := threshold.ParseAll(c.Thresholds); err != nil {
		errs.Add("thresholds", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// fieldPath turns "TestConfig.scenarios[contacts].steps[0].url" into
// "scenarios.contacts.steps[0].url".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	if strings.HasPrefix(ns, "scenarios[") {
		if end := strings.Index(ns, "]"); end > 0 {
			ns = "scenarios." + ns[len("scenarios["):end] + ns[end+1:]
		}
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// validateScenario covers what struct tags cannot express: executor-specific
// fields, duration strings and the step tree.
func validateScenario(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	switch sc.Executor {
	case "constant-vus":
		if sc.VUs <= 0 {
			errs.Add(prefix+".vus", "vus must be greater than 0")
		}
		if sc.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant-vus executor")
		} else {
			validateDuration(prefix+".duration", sc.Duration, errs)
		}
	case "ramping-vus":
		if len(sc.Stages) == 0 {
			errs.Add(prefix+".stages", "at least one stage is required for ramping-vus executor")
		}
		validateDuration(prefix+".gracefulRampDown", sc.GracefulRampDown, errs)
	}
	validateDuration(prefix+".gracefulStop", sc.GracefulStop, errs)

	for i, stage := range sc.Stages {
		validateDuration(fmt.Sprintf("%s.stages[%d].duration", prefix, i), stage.Duration, errs)
	}

	validateSteps(prefix+".steps", sc.Steps, errs)
}

func validateDuration(field, value string, errs *ValidationErrors) {
	if value == "" {
		return
	}
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, err.Error())
		return
	}
	if d < 0 {
		errs.Add(field, "cannot be negative")
	}
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

func validateSteps(prefix string, steps []StepConfig, errs *ValidationErrors) {
	for i := range steps {
		step := &steps[i]
		p := fmt.Sprintf("%s[%d]", prefix, i)

		switch step.Kind() {
		case StepRequest:
			validateRequest(p, step, errs)
		case StepSleep:
			validateSleep(p, step, errs)
		case StepGroup:
			if step.Name == "" {
				errs.Add(p+".name", "group name is required")
			}
			if len(step.Steps) == 0 {
				errs.Add(p+".steps", "group needs at least one step")
			}
		case StepRepeat:
			if step.Count <= 0 {
				errs.Add(p+".count", "count must be greater than 0")
			}
			if len(step.Steps) == 0 {
				errs.Add(p+".steps", "repeat needs at least one step")
			}
		case "":
			errs.Add(p, "cannot tell the step type: set type, url, steps or duration")
		default:
			errs.Add(p+".type", fmt.Sprintf("unknown step type: %s", step.Type))
		}

		validateSteps(p+".steps", step.Steps, errs)
	}
}

func validateRequest(prefix string, step *StepConfig, errs *ValidationErrors) {
	method := strings.ToUpper(step.Method)
	if method != "" && !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", step.Method))
	}
	if step.URL == "" {
		errs.Add(prefix+".url", "url is required")
	}
	validateDuration(prefix+".timeout", step.Timeout, errs)

	if step.RequireStatus != 0 && (step.RequireStatus < 100 || step.RequireStatus > 599) {
		errs.Add(prefix+".requireStatus", fmt.Sprintf("invalid status code: %d", step.RequireStatus))
	}

	for i, cfg := range step.Checks {
		if _, err := check.Compile(cfg); err != nil {
			errs.Add(fmt.Sprintf("%s.checks[%d]", prefix, i), err.Error())
		}
	}
}

func validateSleep(prefix string, step *StepConfig, errs *ValidationErrors) {
	if step.Duration == "" {
		errs.Add(prefix+".duration", "duration is required for sleep")
		return
	}
	validateDuration(prefix+".duration", step.Duration, errs)
	validateDuration(prefix+".max", step.Max, errs)

	if step.Max != "" {
		minDur, err1 := ParseDurationString(step.Duration)
		maxDur, err2 := ParseDurationString(step.Max)
		if err1 == nil && err2 == nil && maxDur < minDur {
			errs.Add(prefix+".max", "max must be greater than or equal to duration")
		}
	}
}
