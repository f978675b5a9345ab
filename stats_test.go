package camdetect

import (
	"testing"
	"time"

	"github.com/swdee/go-camdetect/postprocess"
)

func TestStatsEmpty(t *testing.T) {

	snap := NewStats(10).Snapshot()

	if snap.Samples != 0 || snap.LatencyMean != 0 || snap.LatencyP95 != 0 {
		t.Errorf("expected zero snapshot, got %+v", snap)
	}
}

func TestStatsLatency(t *testing.T) {

	s := NewStats(4)

	// window keeps the last 4 latencies, 30 40 50 60
	for _, ms := range []int{10, 20, 30, 40, 50, 60} {
		s.observe(postprocess.Batch{
			InferenceTime: time.Duration(ms) * time.Millisecond,
			Detections:    []postprocess.Detection{det("a", 1, 0, 0, 1, 1)},
		})
	}

	s.failed()
	s.discard()
	s.discard()

	snap := s.Snapshot()

	if snap.Batches != 6 || snap.Detections != 6 {
		t.Errorf("expected 6 batches and detections, got %+v", snap)
	}

	if snap.Errors != 1 || snap.Discarded != 2 {
		t.Errorf("expected 1 error and 2 discarded, got %+v", snap)
	}

	if snap.Samples != 4 {
		t.Errorf("expected 4 samples, got %d", snap.Samples)
	}

	if snap.LatencyMean != 45*time.Millisecond {
		t.Errorf("expected 45ms mean, got %v", snap.LatencyMean)
	}

	if snap.LatencyP95 != 60*time.Millisecond {
		t.Errorf("expected 60ms p95, got %v", snap.LatencyP95)
	}

	if snap.LatencyStdDev <= 0 {
		t.Errorf("expected positive std dev, got %v", snap.LatencyStdDev)
	}
}

func TestStatsSingleSample(t *testing.T) {

	s := NewStats(4)
	s.observe(postprocess.Batch{InferenceTime: 8 * time.Millisecond})

	snap := s.Snapshot()

	if snap.LatencyStdDev != 0 {
		t.Errorf("expected zero std dev for one sample, got %v", snap.LatencyStdDev)
	}

	if snap.LatencyMean != 8*time.Millisecond {
		t.Errorf("expected 8ms mean, got %v", snap.LatencyMean)
	}
}
