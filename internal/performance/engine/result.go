package engine

import (
	"sort"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/internal/performance/threshold"
)

// TestResult contains the complete test results. It is built once, after
// every VU has stopped.
type TestResult struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	Scenarios map[string]*ScenarioResult `json:"scenarios"`

	// Aggregated metrics across all scenarios
	Metrics    *metrics.Snapshot     `json:"metrics"`
	Summary    *metrics.Summary      `json:"-"`
	TimeSeries []*metrics.TimeBucket `json:"timeSeries,omitempty"`

	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`

	// Interrupted is set when the run was cancelled before its timeline ended.
	Interrupted bool   `json:"interrupted,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ScenarioResult contains the results of a single scenario.
type ScenarioResult struct {
	Name       string        `json:"name"`
	Executor   string        `json:"executor"`
	Duration   time.Duration `json:"duration"`
	SpawnedVUs int           `json:"spawnedVUs"`
	Error      string        `json:"error,omitempty"`
}

// EndpointStats is the latency and failure breakdown of one request name
// or group.
type EndpointStats struct {
	Name     string               `json:"name"`
	Requests int64                `json:"requests"`
	Failed   int64                `json:"failed"`
	FailRate float64              `json:"failRate"`
	Latency  metrics.LatencyStats `json:"latency"`
}

// Endpoints returns the per-request-name breakdown sorted by name.
func (r *TestResult) Endpoints() []EndpointStats {
	if r.Summary == nil {
		return nil
	}
	return sortedStats(r.Summary.Requests)
}

// Groups returns the per-group breakdown sorted by group path.
func (r *TestResult) Groups() []EndpointStats {
	if r.Summary == nil {
		return nil
	}
	return sortedStats(r.Summary.Groups)
}

// Checks returns the per-check tallies.
func (r *TestResult) Checks() []metrics.CheckStats {
	if r.Summary == nil {
		return nil
	}
	return r.Summary.Checks
}

// FailedThresholds returns the thresholds that did not pass.
func (r *TestResult) FailedThresholds() []threshold.Result {
	var failed []threshold.Result
	for _, t := range r.Thresholds {
		if !t.Passed {
			failed = append(failed, t)
		}
	}
	return failed
}

func sortedStats(m map[string]metrics.SeriesStats) []EndpointStats {
	out := make([]EndpointStats, 0, len(m))
	for name, s := range m {
		out = append(out, EndpointStats{
			Name:     name,
			Requests: s.Requests,
			Failed:   s.Failed,
			FailRate: s.FailRate,
			Latency:  s.Latency,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
