package camdetect

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/swdee/go-camdetect/postprocess"
	"gonum.org/v1/gonum/stat"
)

// Stats collects detection counters and inference latency over a sliding
// window of recent batches
type Stats struct {
	mu        sync.Mutex
	window    int
	latencies []float64
	next      int
	batches   uint64
	dets      uint64
	errors    uint64
	discarded uint64
	throttled uint64
}

// StatsSnapshot is a point in time copy of the statistics
type StatsSnapshot struct {
	// Batches is the number of detection results shown
	Batches uint64
	// Detections is the cumulative number of objects detected
	Detections uint64
	// Errors is the number of failed detection cycles reported
	Errors uint64
	// Discarded is the number of results dropped for being produced with
	// options that have since changed
	Discarded uint64
	// Throttled is the number of detection cycles skipped while a failed
	// detector waits to be rebuilt
	Throttled uint64
	// LatencyMean, LatencyStdDev and LatencyP95 describe inference time over
	// the window
	LatencyMean   time.Duration
	LatencyStdDev time.Duration
	LatencyP95    time.Duration
	// Samples is the number of latencies in the window
	Samples int
}

// NewStats returns statistics keeping latency for the last window batches
func NewStats(window int) *Stats {

	if window < 1 {
		window = 1
	}

	return &Stats{
		window:    window,
		latencies: make([]float64, 0, window),
	}
}

// observe records a batch shown on the overlay
func (s *Stats) observe(b postprocess.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	s.dets += uint64(len(b.Detections))

	ms := float64(b.InferenceTime) / float64(time.Millisecond)

	if len(s.latencies) < s.window {
		s.latencies = append(s.latencies, ms)
		return
	}

	s.latencies[s.next] = ms
	s.next = (s.next + 1) % s.window
}

// failed records a reported detection error
func (s *Stats) failed() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// discard records a result dropped as stale
func (s *Stats) discard() {
	s.mu.Lock()
	s.discarded++
	s.mu.Unlock()
}

// throttle records a cycle skipped while detector rebuilding is throttled
func (s *Stats) throttle() {
	s.mu.Lock()
	s.throttled++
	s.mu.Unlock()
}

// Snapshot returns the current statistics
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Batches:    s.batches,
		Detections: s.dets,
		Errors:     s.errors,
		Discarded:  s.discarded,
		Throttled:  s.throttled,
		Samples:    len(s.latencies),
	}

	if len(s.latencies) == 0 {
		return snap
	}

	mean, std := stat.MeanStdDev(s.latencies, nil)

	if math.IsNaN(std) {
		std = 0
	}

	sorted := make([]float64, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Float64s(sorted)

	p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)

	snap.LatencyMean = msDuration(mean)
	snap.LatencyStdDev = msDuration(std)
	snap.LatencyP95 = msDuration(p95)

	return snap
}

// msDuration converts milliseconds to a duration
func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
