// Package report renders a finished run as a standalone HTML page.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance/engine"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/internal/performance/units"
)

// reportData is what the page template sees.
type reportData struct {
	*engine.TestResult
	Endpoints      []engine.EndpointStats
	Groups         []engine.EndpointStats
	Skips          []skipRow
	TimeSeriesJSON template.JS
}

type skipRow struct {
	Step  string
	Count int64
}

// chartPoint is one time bucket as the page's charts read it. Latencies are
// in milliseconds.
type chartPoint struct {
	T         string  `json:"t"`
	RPS       float64 `json:"rps"`
	ErrorRate float64 `json:"errorRate"`
	CheckRate float64 `json:"checkRate"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
	VUs       int     `json:"vus"`
	Phase     string  `json:"phase"`
}

var pageTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"duration": units.Elapsed,
	"latency":  units.Latency,
	"number":   units.Count,
	"bytes":    units.Bytes,
	"percent":  func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
}).Parse(pageHTML))

// Write renders result to w.
func Write(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	series, err := chartJSON(result.TimeSeries)
	if err != nil {
		return fmt.Errorf("failed to convert time series: %w", err)
	}

	data := reportData{
		TestResult:     result,
		Endpoints:      result.Endpoints(),
		Groups:         result.Groups(),
		TimeSeriesJSON: template.JS(series),
	}
	if result.Summary != nil {
		for step, n := range result.Summary.Skips {
			data.Skips = append(data.Skips, skipRow{Step: step, Count: n})
		}
		sort.Slice(data.Skips, func(i, j int) bool {
			a, b := data.Skips[i], data.Skips[j]
			if a.Count != b.Count {
				return a.Count > b.Count
			}
			return a.Step < b.Step
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// WriteFile renders result to path, creating parent directories.
func WriteFile(path string, result *engine.TestResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, result); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

func chartJSON(buckets []*metrics.TimeBucket) (string, error) {
	points := make([]chartPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, chartPoint{
			T:         b.Timestamp.Format(time.RFC3339),
			RPS:       b.IntervalRPS,
			ErrorRate: b.IntervalErrorRate,
			CheckRate: b.IntervalCheckRate,
			P50:       millis(b.LatencyP50),
			P95:       millis(b.LatencyP95),
			P99:       millis(b.LatencyP99),
			VUs:       b.ActiveVUs,
			Phase:     string(b.Phase),
		})
	}
	out, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(out), nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
