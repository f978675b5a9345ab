package camdetect

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/swdee/go-camdetect/postprocess"
	"github.com/swdee/go-camdetect/render"
)

// pipelineRig wires a pipeline to fakes and runs its worker and UI looper
type pipelineRig struct {
	factory  *fakeFactory
	view     *testView
	overlay  *render.Overlay
	ui       *Looper
	buffer   *FrameBuffer
	pipe     *Pipeline
	notified []error
	results  []postprocess.Batch
	cancel   context.CancelFunc
	runErr   chan error
}

func newPipelineRig(t *testing.T, f *fakeFactory, gate Gate) *pipelineRig {
	t.Helper()
	return newPipelineRigWith(t, f, gate, nil)
}

// newPipelineRigWith lets setup adjust the invoker before the worker starts
func newPipelineRigWith(t *testing.T, f *fakeFactory, gate Gate, setup func(*Invoker)) *pipelineRig {
	t.Helper()

	log, _ := quietLogger()

	inv, err := NewInvoker(f.build, DefaultDetectorOptions(), log)

	if err != nil {
		t.Fatal(err)
	}

	if setup != nil {
		setup(inv)
	}

	r := &pipelineRig{
		factory: f,
		view:    &testView{size: image.Pt(100, 100)},
		ui:      NewLooper(8),
		buffer:  NewFrameBuffer(),
		runErr:  make(chan error, 1),
	}

	r.overlay = render.NewOverlay(r.view, render.DefaultStyle())

	r.pipe, err = NewPipeline(PipelineConfig{
		Buffer:   r.buffer,
		Invoker:  inv,
		Overlay:  r.overlay,
		UI:       r.ui,
		Gate:     gate,
		Notify:   func(err error) { r.notified = append(r.notified, err) },
		OnResult: func(b postprocess.Batch) { r.results = append(r.results, b) },
		Log:      log,
	})

	if err != nil {
		t.Fatal(err)
	}

	go r.ui.Run()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go func() { r.runErr <- r.pipe.Run(ctx) }()

	t.Cleanup(func() {
		r.cancel()
		<-r.runErr
		r.ui.Stop()
		r.buffer.Close()
	})

	return r
}

// onUI runs fn on the UI looper and waits for it
func (r *pipelineRig) onUI(t *testing.T, fn func()) {
	t.Helper()

	if err := r.ui.Call(context.Background(), fn); err != nil {
		t.Fatal(err)
	}
}

func (r *pipelineRig) overlayLen(t *testing.T) int {
	var n int
	r.onUI(t, func() { n = r.overlay.Batch().Len() })
	return n
}

func bananas(opts DetectorOptions) []postprocess.Detection {
	return []postprocess.Detection{det("banana", 0.87, 10, 10, 50, 50)}
}

func TestPipelineShowsResults(t *testing.T) {

	r := newPipelineRig(t, &fakeFactory{dets: bananas}, nil)

	if err := r.pipe.Submit(rgbaFrame(50, 50, 255, 255, 0)); err != nil {
		t.Fatal(err)
	}

	eventually(t, "first batch", func() bool { return r.pipe.Stats().Batches == 1 })

	r.onUI(t, func() {
		if len(r.results) != 1 || r.results[0].Seq != 1 {
			t.Errorf("unexpected results %+v", r.results)
		}

		if r.overlay.Batch().Len() != 1 {
			t.Errorf("expected 1 detection on overlay, got %d", r.overlay.Batch().Len())
		}

		if r.overlay.ScaleFactor() != 2 {
			t.Errorf("expected scale 2, got %v", r.overlay.ScaleFactor())
		}

		if r.view.invalidated == 0 {
			t.Error("view was not invalidated")
		}
	})
}

func TestPipelineThresholdDiscardsStale(t *testing.T) {

	f := &fakeFactory{
		dets:    bananas,
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}

	r := newPipelineRig(t, f, nil)

	// first frame is shown
	r.pipe.Submit(rgbaFrame(50, 50, 0, 0, 0))
	<-f.entered
	f.block <- struct{}{}

	eventually(t, "first batch", func() bool { return r.pipe.Stats().Batches == 1 })

	if n := r.overlayLen(t); n != 1 {
		t.Fatalf("expected 1 detection shown, got %d", n)
	}

	// second frame is in flight with the old threshold when it changes
	r.pipe.Submit(rgbaFrame(50, 50, 0, 0, 0))
	<-f.entered

	if err := r.pipe.SetThreshold(0.8); err != nil {
		t.Fatal(err)
	}

	if n := r.overlayLen(t); n != 0 {
		t.Errorf("expected overlay cleared on threshold change, got %d", n)
	}

	f.block <- struct{}{}

	eventually(t, "stale discard", func() bool { return r.pipe.Stats().Discarded == 1 })

	if n := r.overlayLen(t); n != 0 {
		t.Errorf("stale result was shown, got %d detections", n)
	}

	// next frame runs on a rebuilt detector with the new threshold
	r.pipe.Submit(rgbaFrame(50, 50, 0, 0, 0))
	<-f.entered
	f.block <- struct{}{}

	eventually(t, "second batch", func() bool { return r.pipe.Stats().Batches == 2 })

	if f.count() != 2 {
		t.Errorf("expected detector rebuilt, built %d", f.count())
	}

	if got := f.last().opts.Threshold; got != 0.8 {
		t.Errorf("expected rebuilt detector threshold 0.8, got %v", got)
	}

	if n := r.overlayLen(t); n != 1 {
		t.Errorf("expected new result shown, got %d", n)
	}
}

func TestPipelineMaxResultsDiscardsStale(t *testing.T) {

	f := &fakeFactory{
		dets: func(opts DetectorOptions) []postprocess.Detection {
			return []postprocess.Detection{
				det("banana", 0.9, 10, 10, 50, 50),
				det("apple", 0.8, 60, 60, 90, 90),
			}
		},
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}

	r := newPipelineRig(t, f, nil)

	r.pipe.Submit(rgbaFrame(100, 100, 0, 0, 0))
	<-f.entered
	f.block <- struct{}{}

	eventually(t, "first batch", func() bool { return r.pipe.Stats().Batches == 1 })

	if n := r.overlayLen(t); n != 2 {
		t.Fatalf("expected 2 detections shown, got %d", n)
	}

	r.pipe.Submit(rgbaFrame(100, 100, 0, 0, 0))
	<-f.entered

	if err := r.pipe.SetMaxResults(1); err != nil {
		t.Fatal(err)
	}

	if n := r.overlayLen(t); n != 0 {
		t.Errorf("expected overlay cleared on max results change, got %d", n)
	}

	f.block <- struct{}{}

	eventually(t, "stale discard", func() bool { return r.pipe.Stats().Discarded == 1 })

	if n := r.overlayLen(t); n != 0 {
		t.Errorf("stale result was shown, got %d detections", n)
	}

	r.pipe.Submit(rgbaFrame(100, 100, 0, 0, 0))
	<-f.entered
	f.block <- struct{}{}

	eventually(t, "second batch", func() bool { return r.pipe.Stats().Batches == 2 })

	if got := f.last().opts.MaxResults; got != 1 {
		t.Errorf("expected rebuilt detector max results 1, got %d", got)
	}
}

func TestPipelineThrottledRebuildCounted(t *testing.T) {

	f := &fakeFactory{fail: errFake}

	r := newPipelineRigWith(t, f, nil, func(inv *Invoker) {
		inv.SetRetryInterval(time.Hour)
	})

	r.pipe.Submit(rgbaFrame(20, 20, 0, 0, 0))

	eventually(t, "construction error", func() bool { return r.pipe.Stats().Errors == 1 })

	r.pipe.Submit(rgbaFrame(20, 20, 0, 0, 0))

	eventually(t, "throttled cycle", func() bool { return r.pipe.Stats().Throttled == 1 })

	if got := r.pipe.Stats().Errors; got != 1 {
		t.Errorf("throttled cycle counted as error, got %d errors", got)
	}

	r.onUI(t, func() {
		if len(r.notified) != 1 || !errors.Is(r.notified[0], ErrDetectorConstruction) {
			t.Errorf("expected construction failure notified once, got %v", r.notified)
		}
	})
}

func TestPipelineErrorLeavesOverlay(t *testing.T) {

	r := newPipelineRig(t, &fakeFactory{detErr: errFake}, nil)

	r.pipe.Submit(rgbaFrame(20, 20, 0, 0, 0))

	eventually(t, "error", func() bool { return r.pipe.Stats().Errors == 1 })

	r.onUI(t, func() {
		if len(r.notified) != 1 || !errors.Is(r.notified[0], ErrInference) {
			t.Errorf("expected one inference error notified, got %v", r.notified)
		}

		if r.view.invalidated != 0 {
			t.Errorf("overlay redrawn on error")
		}

		if len(r.results) != 0 {
			t.Errorf("result callback called on error")
		}
	})
}

func TestPipelineSetThresholdInvalid(t *testing.T) {

	r := newPipelineRig(t, &fakeFactory{}, nil)

	if err := r.pipe.SetThreshold(2); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}

	if err := r.pipe.SetMaxResults(-1); err == nil {
		t.Error("expected error for negative max results")
	}
}

func TestPipelineCameraPermission(t *testing.T) {

	deny := func(c Capability) bool { return c != CapabilityCamera }

	r := newPipelineRig(t, &fakeFactory{}, deny)

	err := <-r.runErr
	r.runErr <- err

	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestPipelineCaptureWithoutCompositor(t *testing.T) {

	r := newPipelineRig(t, &fakeFactory{}, nil)

	_, err := r.pipe.Capture(context.Background())

	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}

	r.onUI(t, func() {
		if len(r.notified) != 1 {
			t.Errorf("expected capture failure notified, got %v", r.notified)
		}
	})
}

func TestNewPipelineRequiresComponents(t *testing.T) {

	if _, err := NewPipeline(PipelineConfig{}); err == nil {
		t.Error("expected error for empty config")
	}
}
