package metrics

import (
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SeriesStats describes one tagged request series (a request name or a group).
type SeriesStats struct {
	Requests int64        `json:"requests"`
	Failed   int64        `json:"failed"`
	FailRate float64      `json:"failRate"`
	Latency  LatencyStats `json:"latency"`

	hist *hdrhistogram.Histogram
}

// Percentile returns the latency at percentile p (0-100). Zero when the
// series has no samples.
func (s SeriesStats) Percentile(p float64) time.Duration {
	if s.hist == nil || s.hist.TotalCount() == 0 {
		return 0
	}
	return micros(s.hist.ValueAtQuantile(p))
}

// Summary is the end-of-run view used for threshold evaluation and reporting.
type Summary struct {
	Snapshot *Snapshot
	Overall  SeriesStats
	Requests map[string]SeriesStats
	Groups   map[string]SeriesStats
	Checks   []CheckStats
	Skips    map[string]int64
}

// Summary captures the current aggregates. Histograms are copied so the
// result stays stable while VUs keep recording.
func (e *Engine) Summary() *Summary {
	snap := e.GetSnapshot()

	e.latencyHistMu.Lock()
	overall := SeriesStats{
		Requests: snap.TotalRequests,
		Failed:   snap.FailedRequests,
		FailRate: snap.ErrorRate,
		Latency:  statsOf(e.latencyHist),
		hist:     copyHistogram(e.latencyHist),
	}
	e.latencyHistMu.Unlock()

	return &Summary{
		Snapshot: snap,
		Overall:  overall,
		Requests: e.GetRequestStats(),
		Groups:   e.GetGroupStats(),
		Checks:   e.GetCheckStats(),
		Skips:    e.GetSkips(),
	}
}

// CheckRate returns the pass rate of checks recorded in group (including
// nested groups). An empty group means every check.
func (s *Summary) CheckRate(group string) (rate float64, total int64) {
	var passes int64
	for _, c := range s.Checks {
		if group != "" && c.Group != group && !hasGroupPrefix(c.Group, group) {
			continue
		}
		passes += c.Passes
		total += c.Passes + c.Fails
	}
	return ratio(passes, total), total
}

func hasGroupPrefix(group, prefix string) bool {
	return strings.HasPrefix(group, prefix+"::")
}

// seriesStatsOf must be called with seriesMu held.
func seriesStatsOf(m map[string]*series) map[string]SeriesStats {
	result := make(map[string]SeriesStats, len(m))
	for key, s := range m {
		result[key] = SeriesStats{
			Requests: s.total,
			Failed:   s.failed,
			FailRate: ratio(s.failed, s.total),
			Latency:  statsOf(s.hist),
			hist:     copyHistogram(s.hist),
		}
	}
	return result
}

func copyHistogram(h *hdrhistogram.Histogram) *hdrhistogram.Histogram {
	return hdrhistogram.Import(h.Export())
}
