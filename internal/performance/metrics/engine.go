// Package metrics aggregates request, check and iteration results from all
// virtual users.
//
// Every Engine method may be called from any VU goroutine. Counters are
// atomics; each HDR histogram has its own lock because RecordValue is not
// safe for concurrent use.
package metrics

import (
	"maps"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// series is a latency histogram with request counters, keyed by name or group.
type series struct {
	hist   *hdrhistogram.Histogram
	total  int64
	failed int64
}

type checkCounter struct {
	name   string
	group  string
	passes atomic.Int64
	fails  atomic.Int64
}

// Engine is the run-wide sink for samples. A goroutine started by the
// constructor closes a time bucket every BucketInterval until Stop.
type Engine struct {
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requestSeries map[string]*series
	groupSeries   map[string]*series
	seriesMu      sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	transportErrors atomic.Int64
	totalBytes      atomic.Int64

	checkPasses atomic.Int64
	checkFails  atomic.Int64
	checks      map[string]*checkCounter
	checksMu    sync.RWMutex

	iterations    [4]atomic.Int64
	iterationHist *hdrhistogram.Histogram
	iterationMu   sync.Mutex

	skippedSteps atomic.Int64
	skips        map[string]int64
	skipsMu      sync.Mutex

	activeVUs atomic.Int32

	timeSeries *bucketRing

	phases    phaseLog
	startTime time.Time

	quit     chan struct{}
	emitDone chan struct{}
	stopOnce sync.Once

	config EngineConfig
}

// NewEngine starts an Engine with DefaultEngineConfig.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig starts an Engine; zero config fields take defaults.
func NewEngineWithConfig(config EngineConfig) *Engine {
	if config.BucketInterval <= 0 {
		config.BucketInterval = time.Second
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = 1
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = DefaultEngineConfig().HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = 3
	}

	e := &Engine{
		requestSeries: make(map[string]*series),
		groupSeries:   make(map[string]*series),
		checks:        make(map[string]*checkCounter),
		skips:         make(map[string]int64),
		timeSeries:    newBucketRing(config.MaxBuckets, nil),
		phases:        phaseLog{current: PhaseInit},
		startTime:     time.Now(),
		quit:          make(chan struct{}),
		emitDone:      make(chan struct{}),
		config:        config,
	}
	e.latencyHist = e.newHistogram()
	e.iterationHist = e.newHistogram()

	go e.emitEvery(config.BucketInterval)
	return e
}

func (e *Engine) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
}

func (e *Engine) clampMicros(d time.Duration) int64 {
	return min(max(d.Microseconds(), e.config.HistogramMin), e.config.HistogramMax)
}

// RecordRequest folds one request into the overall, per-name and per-group
// aggregates.
func (e *Engine) RecordRequest(s RequestSample) {
	micros := e.clampMicros(s.Duration)
	failed := s.Failed()

	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(micros)
	e.latencyHistMu.Unlock()

	if s.Name != "" || s.Group != "" {
		e.seriesMu.Lock()
		if s.Name != "" {
			e.recordSeries(e.requestSeries, s.Name, micros, failed)
		}
		if s.Group != "" {
			e.recordSeries(e.groupSeries, s.Group, micros, failed)
		}
		e.seriesMu.Unlock()
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(s.Bytes)
	if failed {
		e.failedRequests.Add(1)
	} else {
		e.successRequests.Add(1)
	}
	if s.TransportError {
		e.transportErrors.Add(1)
	}

	e.timeSeries.request(failed)
}

// recordSeries must be called with seriesMu held; HDR RecordValue is not thread-safe.
func (e *Engine) recordSeries(m map[string]*series, key string, micros int64, failed bool) {
	s, ok := m[key]
	if !ok {
		s = &series{hist: e.newHistogram()}
		m[key] = s
	}
	s.hist.RecordValue(micros)
	s.total++
	if failed {
		s.failed++
	}
}

// RecordCheck records one check evaluation under group::name.
func (e *Engine) RecordCheck(group, name string, passed bool) {
	if passed {
		e.checkPasses.Add(1)
	} else {
		e.checkFails.Add(1)
	}

	c := e.checkCounter(group, name)
	if passed {
		c.passes.Add(1)
	} else {
		c.fails.Add(1)
	}

	e.timeSeries.check(passed)
}

func (e *Engine) checkCounter(group, name string) *checkCounter {
	key := group + "::" + name

	e.checksMu.RLock()
	c, ok := e.checks[key]
	e.checksMu.RUnlock()
	if ok {
		return c
	}

	e.checksMu.Lock()
	defer e.checksMu.Unlock()
	if c, ok = e.checks[key]; !ok {
		c = &checkCounter{name: name, group: group}
		e.checks[key] = c
	}
	return c
}

// RecordIteration counts a finished iteration.
func (e *Engine) RecordIteration(outcome IterationOutcome, duration time.Duration) {
	if outcome < IterationComplete || outcome > IterationCancelled {
		return
	}
	e.iterations[outcome].Add(1)

	micros := e.clampMicros(duration)
	e.iterationMu.Lock()
	e.iterationHist.RecordValue(micros)
	e.iterationMu.Unlock()
}

// RecordSkip attributes a dependency skip to the named step.
func (e *Engine) RecordSkip(step string) {
	e.skippedSteps.Add(1)
	e.skipsMu.Lock()
	e.skips[step]++
	e.skipsMu.Unlock()
}

// SetPhase moves the run into phase. Repeating the current phase is a
// no-op, so ramping executors may call it on every tick.
func (e *Engine) SetPhase(phase Phase) {
	e.phases.enter(phase, time.Now(), e.totalRequests.Load())
}

func (e *Engine) GetPhase() Phase { return e.phases.get() }

// GetPhaseHistory returns a copy of every phase transition so far.
func (e *Engine) GetPhaseHistory() []PhaseChange { return e.phases.history() }

func (e *Engine) SetActiveVUs(count int) { e.activeVUs.Store(int32(count)) }

func (e *Engine) GetActiveVUs() int { return int(e.activeVUs.Load()) }

func (e *Engine) emitEvery(interval time.Duration) {
	defer close(e.emitDone)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-e.quit:
			return
		case <-tick.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.timeSeries.emit(
		BucketTotals{
			Requests:  e.totalRequests.Load(),
			Successes: e.successRequests.Load(),
			Failures:  e.failedRequests.Load(),
			Bytes:     e.totalBytes.Load(),
		},
		e.GetLatencyPercentiles(),
		e.GetActiveVUs(),
		e.GetPhase(),
	)
}

// GetLatencyPercentiles reads the overall latency histogram.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

// GetSnapshot reads every counter and histogram.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latencyStats := statsOf(e.latencyHist)
	e.latencyHistMu.Unlock()

	e.iterationMu.Lock()
	iterationStats := statsOf(e.iterationHist)
	e.iterationMu.Unlock()

	elapsed := time.Since(e.startTime)
	secs := elapsed.Seconds()
	total, failed := e.totalRequests.Load(), e.failedRequests.Load()

	// RPS prefers the steady-phase average, which ramps do not dilute.
	steadyRPS, steadyBuckets := e.timeSeries.steadyRPS()
	rps := steadyRPS
	if steadyBuckets == 0 && secs > 0 {
		rps = float64(total) / secs
	}

	passes, fails := e.checkPasses.Load(), e.checkFails.Load()

	iters := IterationTotals{
		Complete:   e.iterations[IterationComplete].Load(),
		Incomplete: e.iterations[IterationIncomplete].Load(),
		Failed:     e.iterations[IterationFailed].Load(),
		Cancelled:  e.iterations[IterationCancelled].Load(),
		Duration:   iterationStats,
	}
	iters.Total = iters.Complete + iters.Incomplete + iters.Failed + iters.Cancelled
	if secs > 0 {
		iters.Rate = float64(iters.Total) / secs
	}

	return &Snapshot{
		TotalRequests:   total,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failed,
		TransportErrors: e.transportErrors.Load(),
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latencyStats,
		RPS:             rps,
		SteadyStateRPS:  steadyRPS,
		ErrorRate:       ratio(failed, total),
		Checks: CheckTotals{
			Passes: passes,
			Fails:  fails,
			Rate:   ratio(passes, passes+fails),
		},
		Iterations:   iters,
		SkippedSteps: e.skippedSteps.Load(),
		ActiveVUs:    e.GetActiveVUs(),
		CurrentPhase: e.GetPhase(),
		Elapsed:      elapsed,
		StartTime:    e.startTime,
		Timestamp:    time.Now(),
	}
}

// GetTimeSeries returns the retained buckets, oldest first.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.timeSeries.buckets()
}

// GetRequestStats returns per-request-name statistics.
func (e *Engine) GetRequestStats() map[string]SeriesStats {
	e.seriesMu.Lock()
	defer e.seriesMu.Unlock()
	return seriesStatsOf(e.requestSeries)
}

// GetGroupStats returns per-group statistics.
func (e *Engine) GetGroupStats() map[string]SeriesStats {
	e.seriesMu.Lock()
	defer e.seriesMu.Unlock()
	return seriesStatsOf(e.groupSeries)
}

// GetCheckStats returns the tally of every check, ordered by group then name.
func (e *Engine) GetCheckStats() []CheckStats {
	e.checksMu.RLock()
	defer e.checksMu.RUnlock()

	result := make([]CheckStats, 0, len(e.checks))
	for _, c := range e.checks {
		passes, fails := c.passes.Load(), c.fails.Load()
		result = append(result, CheckStats{
			Name:   c.name,
			Group:  c.group,
			Passes: passes,
			Fails:  fails,
			Rate:   ratio(passes, passes+fails),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// GetSkips returns dependency skips by step name.
func (e *Engine) GetSkips() map[string]int64 {
	e.skipsMu.Lock()
	defer e.skipsMu.Unlock()

	return maps.Clone(e.skips)
}

// Stop ends the emitter and closes the last, partial bucket. Later calls
// do nothing.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		<-e.emitDone
		e.emitBucket()
	})
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func statsOf(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   micros(int64(h.Mean())),
		StdDev: micros(int64(h.StdDev())),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}
