package metrics

import "time"

// Phase is where the timeline is, as shown on charts and progress.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"

	// PhaseGracefulStop is the window after the last stage in which
	// remaining VUs finish their in-flight iteration.
	PhaseGracefulStop Phase = "graceful-stop"

	PhaseDone Phase = "done"
)

// IterationOutcome classifies how a scenario iteration ended.
type IterationOutcome int

const (
	// IterationComplete means every step ran.
	IterationComplete IterationOutcome = iota
	// IterationIncomplete means a dependency was missing or a required
	// status was not met, so part of the scenario was skipped.
	IterationIncomplete
	// IterationFailed means a transport error aborted the iteration.
	IterationFailed
	// IterationCancelled means the VU was force-stopped mid-iteration.
	IterationCancelled
)

func (o IterationOutcome) String() string {
	switch o {
	case IterationComplete:
		return "complete"
	case IterationIncomplete:
		return "incomplete"
	case IterationFailed:
		return "failed"
	case IterationCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RequestSample is one observed request.
type RequestSample struct {
	// Name is the request tag used for per-endpoint breakdown.
	Name string
	// Group is the "::"-separated group path, empty at top level.
	Group string

	Duration time.Duration
	Status   int
	Bytes    int64

	// TransportError is set when no response was received.
	TransportError bool
}

// Failed reports whether the sample counts towards http_req_failed.
func (s RequestSample) Failed() bool {
	return s.TransportError || s.Status >= 400 || s.Status == 0
}

// Snapshot is the engine's state at Timestamp.
type Snapshot struct {
	TotalRequests   int64 `json:"totalRequests"`
	SuccessRequests int64 `json:"successRequests"`
	FailedRequests  int64 `json:"failedRequests"`
	TransportErrors int64 `json:"transportErrors"`
	TotalBytes      int64 `json:"totalBytes"`

	Latency LatencyStats `json:"latency"`

	RPS            float64 `json:"rps"`
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// ErrorRate is http_req_failed as a fraction.
	ErrorRate float64 `json:"errorRate"`

	Checks     CheckTotals     `json:"checks"`
	Iterations IterationTotals `json:"iterations"`

	// SkippedSteps counts requests not sent because a dependency was missing.
	SkippedSteps int64 `json:"skippedSteps"`

	ActiveVUs    int           `json:"activeVUs"`
	CurrentPhase Phase         `json:"currentPhase"`
	Elapsed      time.Duration `json:"elapsed"`
	StartTime    time.Time     `json:"startTime"`
	Timestamp    time.Time     `json:"timestamp"`
}

// CheckTotals aggregates every check evaluation.
type CheckTotals struct {
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
	Rate   float64 `json:"rate"`
}

// IterationTotals counts iterations by outcome.
type IterationTotals struct {
	Total      int64        `json:"total"`
	Complete   int64        `json:"complete"`
	Incomplete int64        `json:"incomplete"`
	Failed     int64        `json:"failed"`
	Cancelled  int64        `json:"cancelled"`
	Rate       float64      `json:"rate"`
	Duration   LatencyStats `json:"duration"`
}

// LatencyStats summarizes one histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LatencyPercentiles is the subset of LatencyStats stamped on buckets.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// CheckStats is the pass/fail tally for one named check.
type CheckStats struct {
	Name   string  `json:"name"`
	Group  string  `json:"group,omitempty"`
	Passes int64   `json:"passes"`
	Fails  int64   `json:"fails"`
	Rate   float64 `json:"rate"`
}

// TimeBucket is one emitter interval. Total* fields are run-wide counts at
// Timestamp; Interval* fields cover only this interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`
	IntervalChecks    int64   `json:"intervalChecks"`
	IntervalCheckRate float64 `json:"intervalCheckRate"`

	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// PhaseChange marks entry into Phase after Requests requests.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// EngineConfig sizes the metrics engine. Histogram bounds are in
// microseconds; zero fields take DefaultEngineConfig's values.
type EngineConfig struct {
	BucketInterval   time.Duration
	MaxBuckets       int
	HistogramMin     int64
	HistogramMax     int64
	HistogramSigFigs int
}

// DefaultEngineConfig emits one bucket a second for up to an hour and
// records latencies from 1µs to 1h at three significant figures.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       DefaultMaxBuckets,
		HistogramMin:     1,
		HistogramMax:     int64(time.Hour / time.Microsecond),
		HistogramSigFigs: 3,
	}
}
