package engine

import (
	"fmt"

	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/check"
	"github.com/wesleyorama2/pvzload/internal/performance/config"
)

// BuildScenario compiles the steps of a scenario config into a runnable
// Scenario. Template and check errors are reported with the step path.
func BuildScenario(name string, sc *config.ScenarioConfig, variables map[string]string) (*performance.Scenario, error) {
	steps, err := buildSteps(fmt.Sprintf("scenarios.%s.steps", name), sc.Steps)
	if err != nil {
		return nil, err
	}
	return &performance.Scenario{
		Name:      name,
		Steps:     steps,
		Variables: config.MergeVariables(variables),
	}, nil
}

func buildSteps(prefix string, cfgs []config.StepConfig) ([]performance.Step, error) {
	steps := make([]performance.Step, 0, len(cfgs))
	for i := range cfgs {
		step, err := buildStep(fmt.Sprintf("%s[%d]", prefix, i), &cfgs[i])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildStep(path string, sc *config.StepConfig) (performance.Step, error) {
	switch kind := sc.Kind(); kind {
	case config.StepRequest:
		return buildRequest(path, sc)

	case config.StepSleep:
		minDur, err := config.ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("%s.duration: %w", path, err)
		}
		maxDur, err := config.ParseDurationString(sc.Max)
		if err != nil {
			return nil, fmt.Errorf("%s.max: %w", path, err)
		}
		return &performance.SleepStep{StepName: sc.Name, Min: minDur, Max: maxDur}, nil

	case config.StepGroup:
		children, err := buildSteps(path+".steps", sc.Steps)
		if err != nil {
			return nil, err
		}
		return &performance.GroupStep{GroupName: sc.Name, Steps: children}, nil

	case config.StepRepeat:
		children, err := buildSteps(path+".steps", sc.Steps)
		if err != nil {
			return nil, err
		}
		return &performance.RepeatStep{StepName: sc.Name, Count: sc.Count, Steps: children}, nil

	default:
		return nil, fmt.Errorf("%s: unknown step type %q", path, kind)
	}
}

func buildRequest(path string, sc *config.StepConfig) (performance.Step, error) {
	timeout, err := config.ParseDurationString(sc.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%s.timeout: %w", path, err)
	}

	checks, err := check.CompileAll(sc.Checks)
	if err != nil {
		return nil, fmt.Errorf("%s.checks: %w", path, err)
	}

	spec := performance.RequestSpec{
		Name:          sc.Name,
		Method:        sc.Method,
		URL:           sc.URL,
		Headers:       sc.Headers,
		Timeout:       timeout,
		Needs:         sc.Needs,
		RequireStatus: sc.RequireStatus,
		Checks:        checks,
	}
	switch body := sc.Body.(type) {
	case nil:
	case string:
		spec.Body = body
	default:
		spec.JSON = body
	}

	for _, e := range sc.Extract {
		spec.Extract = append(spec.Extract, performance.Extraction{
			Slot:     e.Name,
			Source:   e.Source,
			Path:     e.Path,
			OnStatus: e.OnStatus,
		})
	}

	step, err := performance.NewRequestStep(spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return step, nil
}
