package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		key, expr string
		metric    string
		agg       string
		pct       float64
		op        string
		value     float64
		tags      map[string]string
	}{
		{"http_req_duration", "p(95)<100", HTTPReqDuration, AggPercentile, 95, "<", float64(100 * time.Millisecond), nil},
		{"http_req_duration", "p95 < 500ms", HTTPReqDuration, AggPercentile, 95, "<", float64(500 * time.Millisecond), nil},
		{"http_req_duration", "p(99.9) <= 1s", HTTPReqDuration, AggPercentile, 99.9, "<=", float64(time.Second), nil},
		{"http_req_duration", "avg<200", HTTPReqDuration, AggAvg, 0, "<", float64(200 * time.Millisecond), nil},
		{"http_req_duration", "mean < 1s", HTTPReqDuration, AggAvg, 0, "<", float64(time.Second), nil},
		{"http_req_duration{name:/pvz (create)}", "med<50", HTTPReqDuration, AggMed, 0, "<", float64(50 * time.Millisecond), map[string]string{"name": "/pvz (create)"}},
		{"checks", "rate>0.9999", Checks, AggRate, 0, ">", 0.9999, nil},
		{"checks{group:::Read PVZ Data with Filters}", "rate>=99%", Checks, AggRate, 0, ">=", 0.99, map[string]string{"group": "::Read PVZ Data with Filters"}},
		{"http_req_failed", "rate<0.01", HTTPReqFailed, AggRate, 0, "<", 0.01, nil},
		{"http_reqs", "count>=1000", HTTPReqs, AggCount, 0, ">=", 1000, nil},
		{"iterations", "rate = 10", Iterations, AggRate, 0, "==", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.key+" "+tt.expr, func(t *testing.T) {
			th, err := Parse(tt.key, tt.expr)
			require.NoError(t, err)

			assert.Equal(t, tt.metric, th.Metric)
			assert.Equal(t, tt.agg, th.Aggregation)
			assert.InDelta(t, tt.pct, th.Percentile, 1e-9)
			assert.Equal(t, tt.op, th.Op)
			assert.InDelta(t, tt.value, th.Value, 1e-6)
			assert.Equal(t, tt.tags, th.Tags)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		key, expr string
	}{
		{"http_req_duration", "p95"},
		{"http_req_duration", "p(0)<100"},
		{"http_req_duration", "p(101)<100"},
		{"http_req_duration", "p<100"},
		{"http_req_duration", "rate<100"},
		{"http_req_duration", "p(95)<fast"},
		{"http_req_failed", "p(95)<0.1"},
		{"checks", "rate>high"},
		{"avg9<3", "avg9<3"},
		{"vus", "max<10"},
		{"http_req_duration{status:200}", "p(95)<100"},
		{"http_req_duration{name}", "p(95)<100"},
		{"iterations{name:x}", "count>1"},
	}

	for _, tt := range tests {
		t.Run(tt.key+" "+tt.expr, func(t *testing.T) {
			_, err := Parse(tt.key, tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestParseAll_SortedAndWrapped(t *testing.T) {
	ths, err := ParseAll(map[string][]string{
		"http_req_duration": {"p(95)<100", "p(99)<250"},
		"checks":            {"rate>0.9999"},
	})
	require.NoError(t, err)
	require.Len(t, ths, 3)
	assert.Equal(t, Checks, ths[0].Metric)
	assert.Equal(t, HTTPReqDuration, ths[1].Metric)

	_, err = ParseAll(map[string][]string{"checks": {"rate>"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds.checks")
}

// summaryWithP95 records 100 requests with a p95 near p95ms and one failed
// check out of 10000.
func summaryWithP95(t *testing.T, p95ms int) *metrics.Summary {
	t.Helper()
	engine := metrics.NewEngine()
	t.Cleanup(engine.Stop)

	for i := 1; i <= 100; i++ {
		ms := i * p95ms / 95
		engine.RecordRequest(metrics.RequestSample{
			Name:     "/pvz (create)",
			Group:    "",
			Duration: time.Duration(ms) * time.Millisecond,
			Status:   201,
		})
	}
	for i := 0; i < 10000; i++ {
		engine.RecordCheck("", "per-VU PVZ created", i != 0)
	}
	engine.RecordIteration(metrics.IterationComplete, time.Second)
	return engine.Summary()
}

func TestEvaluate_IndependentResults(t *testing.T) {
	summary := summaryWithP95(t, 120)

	ths, err := ParseAll(map[string][]string{
		"http_req_duration": {"p(95)<100"},
		"checks":            {"rate>0.999"},
		"http_req_failed":   {"rate<0.01"},
	})
	require.NoError(t, err)

	results := Evaluate(ths, summary)
	require.Len(t, results, 3)

	byMetric := map[string]Result{}
	for _, r := range results {
		byMetric[r.Metric] = r
	}

	assert.False(t, byMetric["http_req_duration"].Passed)
	assert.Contains(t, byMetric["http_req_duration"].Message, "p(95)")
	assert.True(t, byMetric["checks"].Passed)
	assert.True(t, byMetric["http_req_failed"].Passed)
	assert.False(t, AllPassed(results))
}

func TestEvaluate_CheckRateBoundary(t *testing.T) {
	summary := summaryWithP95(t, 50)

	strict, err := Parse("checks", "rate>0.9999")
	require.NoError(t, err)
	result := strict.Evaluate(summary)
	assert.False(t, result.Passed, "9999/10000 is not > 0.9999")
	assert.Equal(t, "0.9999", result.Value)

	durations, err := Parse("http_req_duration", "p(95)<100")
	require.NoError(t, err)
	assert.True(t, durations.Evaluate(summary).Passed)
}

func TestEvaluate_TaggedSeries(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	engine.RecordRequest(metrics.RequestSample{Name: "/products (create)", Group: "::Reception and Products Workload", Duration: 300 * time.Millisecond, Status: 201})
	engine.RecordRequest(metrics.RequestSample{Name: "/pvz (filtered get)", Group: "::Read PVZ Data with Filters", Duration: 5 * time.Millisecond, Status: 500})
	engine.RecordCheck("::Reception and Products Workload", "product added", true)
	engine.RecordCheck("::Read PVZ Data with Filters", "get pvz list with filters successful", false)
	summary := engine.Summary()

	tests := []struct {
		key, expr string
		passed    bool
	}{
		{"http_req_duration{name:/pvz (filtered get)}", "p(95)<100", true},
		{"http_req_duration{name:/products (create)}", "p(95)<100", false},
		{"http_req_duration{group:::Reception and Products Workload}", "max<1s", true},
		{"http_req_failed{group:::Read PVZ Data with Filters}", "rate<0.5", false},
		{"checks{group:::Reception and Products Workload}", "rate==1", true},
		{"checks{name:get pvz list with filters successful}", "rate>0", false},
		{"http_reqs", "count==2", true},
		{"http_req_duration{name:/receptions (create)}", "p(95)<100", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			th, err := Parse(tt.key, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, th.Evaluate(summary).Passed)
		})
	}
}

func TestEvaluate_NoSamples(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	th, err := Parse("http_req_duration", "p(95)<100")
	require.NoError(t, err)

	result := th.Evaluate(engine.Summary())
	assert.False(t, result.Passed)
	assert.Equal(t, "n/a", result.Value)

	assert.False(t, th.Evaluate(nil).Passed)
	assert.True(t, AllPassed(nil))
}
