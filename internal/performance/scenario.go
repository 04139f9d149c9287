package performance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wesleyorama2/pvzload/internal/http"
	"github.com/wesleyorama2/pvzload/internal/performance/check"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/pkg/jsonpath"
)

// IterationOutcome is re-exported so scenario code need not import metrics.
type IterationOutcome = metrics.IterationOutcome

const (
	OutcomeComplete   = metrics.IterationComplete
	OutcomeIncomplete = metrics.IterationIncomplete
	OutcomeFailed     = metrics.IterationFailed
	OutcomeCancelled  = metrics.IterationCancelled
)

// Flow tells the enclosing block what to do after a step.
type Flow int

const (
	// FlowContinue runs the next step.
	FlowContinue Flow = iota
	// FlowHalt skips the rest of the enclosing group, or of the iteration
	// at top level, and marks the iteration incomplete.
	FlowHalt
	// FlowAbort abandons the iteration after a transport error.
	FlowAbort
	// FlowCancelled abandons the iteration after hard cancellation.
	FlowCancelled
)

func (f Flow) String() string {
	switch f {
	case FlowContinue:
		return "continue"
	case FlowHalt:
		return "halt"
	case FlowAbort:
		return "abort"
	case FlowCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Step is one action of a scenario iteration.
type Step interface {
	Name() string
	Run(ctx context.Context, it *Iteration) Flow
}

// Scenario is the ordered list of steps each VU runs per iteration.
type Scenario struct {
	Name  string
	Steps []Step
	// Variables are copied into the slots of every iteration.
	Variables map[string]string
}

// runSteps runs steps in order. A halt ends the block here and marks the
// iteration incomplete; abort and cancellation propagate to the caller.
func runSteps(ctx context.Context, it *Iteration, steps []Step) Flow {
	for _, step := range steps {
		if ctx.Err() != nil {
			return FlowCancelled
		}
		switch flow := step.Run(ctx, it); flow {
		case FlowContinue:
		case FlowHalt:
			it.incomplete = true
			return FlowHalt
		default:
			return flow
		}
	}
	return FlowContinue
}

// Extraction copies part of a response into a slot.
type Extraction struct {
	Slot string
	// Source is "body" (JSON path), "header" or "status".
	Source string
	Path   string
	// OnStatus restricts the extraction to one status code when non-zero.
	OnStatus int
}

// RequestSpec is the uncompiled form of a RequestStep.
type RequestSpec struct {
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	// JSON is a structured body sent as application/json. Its string
	// leaves are templates. Ignored when Body is set.
	JSON    interface{}
	Timeout time.Duration

	Needs         []string
	RequireStatus int
	Extract       []Extraction
	Checks        []check.Check
}

// RequestStep issues one HTTP request built from templates.
type RequestStep struct {
	name    string
	method  string
	url     *template.Template
	headers []headerTemplate
	body    *template.Template
	json    *jsonTemplate
	timeout time.Duration

	needs         []string
	requireStatus int
	extract       []Extraction
	checks        []check.Check
}

type headerTemplate struct {
	key   string
	value *template.Template
}

// NewRequestStep parses the templates of spec.
func NewRequestStep(spec RequestSpec) (*RequestStep, error) {
	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = "GET"
	}
	name := spec.Name
	if name == "" {
		name = method + " " + spec.URL
	}

	s := &RequestStep{
		name:          name,
		method:        method,
		timeout:       spec.Timeout,
		needs:         spec.Needs,
		requireStatus: spec.RequireStatus,
		extract:       spec.Extract,
		checks:        spec.Checks,
	}
	var err error
	if s.url, err = parseTemplate(name+".url", spec.URL); err != nil {
		return nil, fmt.Errorf("step %q: url: %w", name, err)
	}
	switch {
	case spec.Body != "":
		if s.body, err = parseTemplate(name+".body", spec.Body); err != nil {
			return nil, fmt.Errorf("step %q: body: %w", name, err)
		}
	case spec.JSON != nil:
		if s.json, err = compileJSONTemplate(name+".body", spec.JSON); err != nil {
			return nil, fmt.Errorf("step %q: body: %w", name, err)
		}
	}

	keys := make([]string, 0, len(spec.Headers))
	for k := range spec.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t, err := parseTemplate(name+".header."+k, spec.Headers[k])
		if err != nil {
			return nil, fmt.Errorf("step %q: header %s: %w", name, k, err)
		}
		s.headers = append(s.headers, headerTemplate{key: k, value: t})
	}

	for _, e := range spec.Extract {
		switch e.Source {
		case "body", "header", "status":
		default:
			return nil, fmt.Errorf("step %q: extract %q: unknown source %q", name, e.Slot, e.Source)
		}
	}
	return s, nil
}

// Name implements Step.
func (s *RequestStep) Name() string { return s.name }

// Run implements Step.
func (s *RequestStep) Run(ctx context.Context, it *Iteration) Flow {
	vu := it.vu

	for _, slot := range s.needs {
		if _, ok := it.slots[slot]; !ok {
			return s.skip(it, slot)
		}
	}

	req, missing, err := s.build(it)
	if missing != "" {
		return s.skip(it, missing)
	}
	if err != nil {
		vu.logger.Error("Failed to render request",
			zap.String("step", s.name), zap.Int("vu", vu.ID), zap.Error(err))
		it.failed = true
		vu.metrics.RecordRequest(metrics.RequestSample{Name: s.name, Group: it.group, TransportError: true})
		s.recordChecks(it, check.FailAll(s.checks))
		return FlowAbort
	}

	if err := vu.limiter.Wait(ctx); err != nil {
		return FlowCancelled
	}

	start := time.Now()
	resp, err := vu.client.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return FlowCancelled
		}
		terr := &TransportError{Step: s.name, Err: err}
		vu.logger.Debug("Request failed", zap.Int("vu", vu.ID), zap.Error(terr))
		it.failed = true
		vu.metrics.RecordRequest(metrics.RequestSample{
			Name:           s.name,
			Group:          it.group,
			Duration:       time.Since(start),
			TransportError: true,
		})
		s.recordChecks(it, check.FailAll(s.checks))
		return FlowAbort
	}

	vu.metrics.RecordRequest(metrics.RequestSample{
		Name:     s.name,
		Group:    it.group,
		Duration: resp.Duration,
		Status:   resp.StatusCode,
		Bytes:    resp.Size(),
	})
	s.recordChecks(it, check.Evaluate(resp, s.checks))
	s.extractSlots(it, resp)

	if s.requireStatus != 0 && resp.StatusCode != s.requireStatus {
		vu.logger.Debug("Unexpected status, leaving block",
			zap.String("step", s.name), zap.Int("vu", vu.ID),
			zap.Int("status", resp.StatusCode), zap.Int("required", s.requireStatus))
		return FlowHalt
	}
	return FlowContinue
}

func (s *RequestStep) build(it *Iteration) (*http.Request, string, error) {
	data := &templateData{it: it}

	url, err := render(s.url, data)
	if data.missing != "" {
		return nil, data.missing, nil
	}
	if err != nil {
		return nil, "", err
	}
	req := http.NewRequest(s.method, url).WithTimeout(s.timeout)

	for _, h := range s.headers {
		v, err := render(h.value, data)
		if data.missing != "" {
			return nil, data.missing, nil
		}
		if err != nil {
			return nil, "", err
		}
		req.WithHeader(h.key, v)
	}

	if s.body != nil {
		body, err := render(s.body, data)
		if data.missing != "" {
			return nil, data.missing, nil
		}
		if err != nil {
			return nil, "", err
		}
		req.WithBody(body)
	}

	if s.json != nil {
		body, err := s.json.render(data)
		if data.missing != "" {
			return nil, data.missing, nil
		}
		if err != nil {
			return nil, "", err
		}
		req.WithJSON(body)
	}
	return req, "", nil
}

func (s *RequestStep) skip(it *Iteration, slot string) Flow {
	err := &DependencyError{Step: s.name, Slot: slot}
	it.vu.logger.Debug("Skipping step", zap.Int("vu", it.VU), zap.Error(err))
	it.vu.metrics.RecordSkip(s.name)
	return FlowHalt
}

func (s *RequestStep) recordChecks(it *Iteration, results []check.Result) {
	for _, r := range results {
		it.vu.metrics.RecordCheck(it.group, r.Name, r.Passed)
	}
}

func (s *RequestStep) extractSlots(it *Iteration, resp *http.Response) {
	for _, e := range s.extract {
		if e.OnStatus != 0 && resp.StatusCode != e.OnStatus {
			continue
		}
		switch e.Source {
		case "body":
			r, ok := jsonpath.Lookup(resp.Body, e.Path)
			if !ok || r.Type == gjson.Null {
				continue
			}
			it.slots[e.Slot] = r.String()
		case "header":
			if v := resp.GetHeader(e.Path); v != "" {
				it.slots[e.Slot] = v
			}
		case "status":
			it.slots[e.Slot] = strconv.Itoa(resp.StatusCode)
		}
	}
}

// SleepStep pauses the VU. Only hard cancellation interrupts it; a VU being
// retired gracefully still sleeps out its iteration.
type SleepStep struct {
	StepName string
	Min      time.Duration
	// Max, when above Min, makes the pause uniformly random in [Min, Max].
	Max time.Duration
}

// Name implements Step.
func (s *SleepStep) Name() string {
	if s.StepName != "" {
		return s.StepName
	}
	return "sleep " + s.Min.String()
}

// Run implements Step.
func (s *SleepStep) Run(ctx context.Context, it *Iteration) Flow {
	d := s.Min
	if s.Max > s.Min {
		d += time.Duration(it.vu.rng.Float64Range(0, float64(s.Max-s.Min)))
	}
	if d <= 0 {
		return FlowContinue
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return FlowCancelled
	case <-timer.C:
		return FlowContinue
	}
}

// GroupStep labels the metrics of its steps with a nested group path. A halt
// inside the group ends only the group.
type GroupStep struct {
	GroupName string
	Steps     []Step
}

// Name implements Step.
func (g *GroupStep) Name() string { return g.GroupName }

// Run implements Step.
func (g *GroupStep) Run(ctx context.Context, it *Iteration) Flow {
	parent := it.group
	it.group = parent + "::" + g.GroupName
	defer func() { it.group = parent }()

	if flow := runSteps(ctx, it, g.Steps); flow != FlowHalt {
		return flow
	}
	return FlowContinue
}

// RepeatStep runs its steps Count times. It is a loop, not a block, so a
// halt propagates to the enclosing group.
type RepeatStep struct {
	StepName string
	Count    int
	Steps    []Step
}

// Name implements Step.
func (r *RepeatStep) Name() string {
	if r.StepName != "" {
		return r.StepName
	}
	return "repeat " + strconv.Itoa(r.Count)
}

// Run implements Step.
func (r *RepeatStep) Run(ctx context.Context, it *Iteration) Flow {
	for i := 0; i < r.Count; i++ {
		if flow := runSteps(ctx, it, r.Steps); flow != FlowContinue {
			return flow
		}
	}
	return FlowContinue
}

// StepFunc adapts a function to Step.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, it *Iteration) Flow
}

// Name implements Step.
func (f StepFunc) Name() string { return f.StepName }

// Run implements Step.
func (f StepFunc) Run(ctx context.Context, it *Iteration) Flow { return f.Fn(ctx, it) }

// IsDependencyMissing reports whether err is a DependencyError.
func IsDependencyMissing(err error) bool {
	return errors.Is(err, ErrDependencyMissing)
}
