package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxBuckets keeps an hour of one-second buckets.
const DefaultMaxBuckets = 3600

// intervalCounters accumulate between two bucket emissions. Writers only
// touch atomics, so the request path never takes the ring's lock.
type intervalCounters struct {
	requests   atomic.Int64
	failures   atomic.Int64
	checks     atomic.Int64
	checkFails atomic.Int64
}

// BucketTotals are the run-wide counters stamped on each bucket.
type BucketTotals struct {
	Requests  int64
	Successes int64
	Failures  int64
	Bytes     int64
}

// bucketRing holds the most recent buckets, oldest first, dropping the
// oldest once full.
type bucketRing struct {
	interval intervalCounters
	now      func() time.Time

	mu     sync.RWMutex
	limit  int
	ring   []*TimeBucket
	opened time.Time
}

func newBucketRing(limit int, now func() time.Time) *bucketRing {
	if limit <= 0 {
		limit = DefaultMaxBuckets
	}
	if now == nil {
		now = time.Now
	}
	return &bucketRing{limit: limit, now: now, opened: now()}
}

func (r *bucketRing) request(failed bool) {
	r.interval.requests.Add(1)
	if failed {
		r.interval.failures.Add(1)
	}
}

func (r *bucketRing) check(passed bool) {
	r.interval.checks.Add(1)
	if !passed {
		r.interval.checkFails.Add(1)
	}
}

// emit closes the open interval into a bucket and starts the next one.
func (r *bucketRing) emit(totals BucketTotals, lat LatencyPercentiles, activeVUs int, phase Phase) *TimeBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	secs := now.Sub(r.opened).Seconds()
	if secs <= 0 {
		secs = 1
	}
	r.opened = now

	reqs := r.interval.requests.Swap(0)
	fails := r.interval.failures.Swap(0)
	checks := r.interval.checks.Swap(0)
	checkFails := r.interval.checkFails.Swap(0)

	b := &TimeBucket{
		Timestamp:        now,
		TotalRequests:    totals.Requests,
		TotalSuccesses:   totals.Successes,
		TotalFailures:    totals.Failures,
		TotalBytes:       totals.Bytes,
		IntervalRequests: reqs,
		IntervalRPS:      float64(reqs) / secs,
		IntervalChecks:   checks,
		LatencyP50:       lat.P50,
		LatencyP95:       lat.P95,
		LatencyP99:       lat.P99,
		ActiveVUs:        activeVUs,
		Phase:            phase,
	}
	if reqs > 0 {
		b.IntervalErrorRate = float64(fails) / float64(reqs)
	}
	if checks > 0 {
		b.IntervalCheckRate = float64(checks-checkFails) / float64(checks)
	}

	if len(r.ring) == r.limit {
		copy(r.ring, r.ring[1:])
		r.ring = r.ring[:len(r.ring)-1]
	}
	r.ring = append(r.ring, b)
	return b
}

// buckets returns a copy of the retained buckets, oldest first.
func (r *bucketRing) buckets() []*TimeBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.ring) == 0 {
		return nil
	}
	return append([]*TimeBucket(nil), r.ring...)
}

// steadyRPS averages interval RPS over the buckets emitted while the
// timeline held its target.
func (r *bucketRing) steadyRPS() (rps float64, buckets int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	for _, b := range r.ring {
		if b.Phase == PhaseSteady {
			sum += b.IntervalRPS
			buckets++
		}
	}
	if buckets == 0 {
		return 0, 0
	}
	return sum / float64(buckets), buckets
}
