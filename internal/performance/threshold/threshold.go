// Package threshold parses pass/fail criteria and evaluates them against the
// aggregated metrics of a finished run.
//
// Two expression forms are accepted:
//
//	p(95)<100      rate>0.9999      count>=1000     (k6 style)
//	p95 < 500ms    avg < 1s         rate < 0.01     (short form)
//
// A bare number on a duration metric is read as milliseconds.
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

// Metric names.
const (
	HTTPReqDuration = "http_req_duration"
	HTTPReqFailed   = "http_req_failed"
	HTTPReqs        = "http_reqs"
	Checks          = "checks"
	Iterations      = "iterations"
)

// Aggregations.
const (
	AggPercentile = "p"
	AggAvg        = "avg"
	AggMin        = "min"
	AggMax        = "max"
	AggMed        = "med"
	AggRate       = "rate"
	AggCount      = "count"
)

var supported = map[string][]string{
	HTTPReqDuration: {AggPercentile, AggAvg, AggMin, AggMax, AggMed},
	HTTPReqFailed:   {AggRate, AggCount},
	HTTPReqs:        {AggCount, AggRate},
	Checks:          {AggRate, AggCount},
	Iterations:      {AggCount, AggRate},
}

var (
	exprRe = regexp.MustCompile(`^([a-z]+)(?:\(\s*([0-9]+(?:\.[0-9]+)?)\s*\)|([0-9]+(?:\.[0-9]+)?))?\s*(<=|>=|==|!=|<|>|=)\s*(\S.*)$`)
	keyRe  = regexp.MustCompile(`^([a-z_]+)(?:\{(.*)\})?$`)
)

// Threshold is one parsed criterion on one (optionally tagged) metric.
type Threshold struct {
	// Key is the metric key as written, tags included.
	Key        string
	Expression string

	Metric string
	Tags   map[string]string

	Aggregation string
	// Percentile is set when Aggregation is AggPercentile.
	Percentile float64

	Op string
	// Value is in nanoseconds for duration metrics.
	Value float64
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Parse parses expr for the metric key, e.g.
// Parse("http_req_duration{name:/pvz (create)}", "p(95)<100").
func Parse(metricKey, expr string) (Threshold, error) {
	t := Threshold{Key: metricKey, Expression: expr}

	metric, tags, err := parseKey(metricKey)
	if err != nil {
		return t, err
	}
	t.Metric, t.Tags = metric, tags

	m := exprRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if m == nil {
		return t, fmt.Errorf("invalid threshold expression %q", expr)
	}

	agg, pct := m[1], m[2]
	if pct == "" {
		pct = m[3]
	}
	if pct != "" {
		if agg != AggPercentile {
			return t, fmt.Errorf("invalid aggregation %q in %q", agg+pct, expr)
		}
		t.Percentile, _ = strconv.ParseFloat(pct, 64)
		if t.Percentile <= 0 || t.Percentile > 100 {
			return t, fmt.Errorf("percentile must be in (0, 100], got %s", pct)
		}
	} else if agg == AggPercentile {
		return t, fmt.Errorf("percentile missing in %q", expr)
	}
	if agg == "mean" {
		agg = AggAvg
	}
	if !isSupported(metric, agg) {
		return t, fmt.Errorf("%s does not support %q (supported: %s)", metric, agg, strings.Join(supported[metric], ", "))
	}
	t.Aggregation = agg

	t.Op = m[4]
	if t.Op == "=" {
		t.Op = "=="
	}

	if t.Value, err = parseValue(metric, agg, m[5]); err != nil {
		return t, fmt.Errorf("invalid threshold value in %q: %w", expr, err)
	}
	return t, nil
}

// ParseAll parses a metric key to expressions mapping. Keys are processed in
// sorted order so results are stable.
func ParseAll(config map[string][]string) ([]Threshold, error) {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var thresholds []Threshold
	for _, key := range keys {
		for _, expr := range config[key] {
			t, err := Parse(key, expr)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s: %w", key, err)
			}
			thresholds = append(thresholds, t)
		}
	}
	return thresholds, nil
}

// Evaluate checks every threshold independently against summary.
func Evaluate(thresholds []Threshold, summary *metrics.Summary) []Result {
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, t.Evaluate(summary))
	}
	return results
}

// AllPassed reports whether every result passed. An empty set passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Evaluate checks t against summary. A metric with no samples fails.
func (t Threshold) Evaluate(summary *metrics.Summary) Result {
	result := Result{Metric: t.Key, Expression: t.Expression}

	actual, samples := t.observe(summary)
	if samples == 0 {
		result.Value = "n/a"
		result.Message = fmt.Sprintf("%s has no samples", t.Key)
		return result
	}

	result.Value = t.format(actual)
	result.Passed = compareValues(actual, t.Op, t.Value)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", t.aggregationLabel(), result.Value, t.Op, t.format(t.Value))
	}
	return result
}

// observe returns the aggregated value and the number of samples behind it.
func (t Threshold) observe(s *metrics.Summary) (float64, int64) {
	if s == nil || s.Snapshot == nil {
		return 0, 0
	}

	switch t.Metric {
	case HTTPReqDuration:
		series, ok := t.series(s)
		if !ok || series.Requests == 0 {
			return 0, 0
		}
		switch t.Aggregation {
		case AggPercentile:
			return float64(series.Percentile(t.Percentile)), series.Requests
		case AggAvg:
			return float64(series.Latency.Mean), series.Requests
		case AggMin:
			return float64(series.Latency.Min), series.Requests
		case AggMax:
			return float64(series.Latency.Max), series.Requests
		case AggMed:
			return float64(series.Percentile(50)), series.Requests
		}

	case HTTPReqFailed:
		series, ok := t.series(s)
		if !ok {
			return 0, 0
		}
		if t.Aggregation == AggCount {
			return float64(series.Failed), series.Requests
		}
		return series.FailRate, series.Requests

	case HTTPReqs:
		series, ok := t.series(s)
		if !ok {
			return 0, 0
		}
		if t.Aggregation == AggCount {
			return float64(series.Requests), series.Requests
		}
		return perSecond(series.Requests, s.Snapshot.Elapsed), series.Requests

	case Checks:
		var passes, total int64
		for _, c := range s.Checks {
			if !t.matchesCheck(c) {
				continue
			}
			passes += c.Passes
			total += c.Passes + c.Fails
		}
		if t.Aggregation == AggCount {
			return float64(passes), total
		}
		if total == 0 {
			return 0, 0
		}
		return float64(passes) / float64(total), total

	case Iterations:
		it := s.Snapshot.Iterations
		if t.Aggregation == AggCount {
			return float64(it.Total), it.Total
		}
		return perSecond(it.Total, s.Snapshot.Elapsed), it.Total
	}
	return 0, 0
}

func (t Threshold) series(s *metrics.Summary) (metrics.SeriesStats, bool) {
	if name, ok := t.Tags["name"]; ok {
		series, found := s.Requests[name]
		return series, found
	}
	if group, ok := t.Tags["group"]; ok {
		series, found := s.Groups[group]
		return series, found
	}
	return s.Overall, true
}

func (t Threshold) matchesCheck(c metrics.CheckStats) bool {
	if name, ok := t.Tags["name"]; ok && c.Name != name {
		return false
	}
	if group, ok := t.Tags["group"]; ok {
		return c.Group == group || strings.HasPrefix(c.Group, group+"::")
	}
	return true
}

func (t Threshold) isDuration() bool {
	return t.Metric == HTTPReqDuration
}

func (t Threshold) aggregationLabel() string {
	if t.Aggregation == AggPercentile {
		return "p(" + strconv.FormatFloat(t.Percentile, 'f', -1, 64) + ")"
	}
	return t.Aggregation
}

func (t Threshold) format(v float64) string {
	switch {
	case t.isDuration():
		return time.Duration(v).Round(time.Microsecond).String()
	case t.Aggregation == AggCount:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case t.Metric == HTTPReqs || t.Metric == Iterations:
		return strconv.FormatFloat(v, 'f', 2, 64) + "/s"
	default:
		return strconv.FormatFloat(v, 'f', 4, 64)
	}
}

func parseKey(key string) (string, map[string]string, error) {
	key = strings.TrimSpace(key)
	m := keyRe.FindStringSubmatch(key)
	if m == nil {
		return "", nil, fmt.Errorf("invalid metric key %q", key)
	}
	metric := m[1]
	if _, ok := supported[metric]; !ok {
		return "", nil, fmt.Errorf("unknown metric %q", metric)
	}
	if m[2] == "" {
		return metric, nil, nil
	}

	name, value, ok := strings.Cut(m[2], ":")
	name = strings.TrimSpace(name)
	if !ok || value == "" {
		return "", nil, fmt.Errorf("invalid tag filter %q in %q", m[2], key)
	}
	if name != "name" && name != "group" {
		return "", nil, fmt.Errorf("unsupported tag %q in %q (supported: name, group)", name, key)
	}
	if metric == Iterations {
		return "", nil, fmt.Errorf("%s does not support tag filters", metric)
	}
	return metric, map[string]string{name: value}, nil
}

func parseValue(metric, agg, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if metric == HTTPReqDuration {
		if ms, err := strconv.ParseFloat(raw, 64); err == nil {
			return ms * float64(time.Millisecond), nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, err
		}
		return float64(d), nil
	}
	if agg == AggRate && strings.HasSuffix(raw, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		return v / 100, err
	}
	return strconv.ParseFloat(raw, 64)
}

func isSupported(metric, agg string) bool {
	for _, a := range supported[metric] {
		if a == agg {
			return true
		}
	}
	return false
}

func perSecond(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
