package camdetect

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/swdee/go-camdetect/postprocess"
	"gocv.io/x/gocv"
)

// fakeDetector returns a fixed set of detections
type fakeDetector struct {
	opts   DetectorOptions
	dets   []postprocess.Detection
	err    error
	sizes  []image.Point
	closed bool
	// entered, when set, is signalled on entry to Detect
	entered chan struct{}
	// block, when set, is waited on before returning from Detect
	block chan struct{}
}

func (d *fakeDetector) Detect(img gocv.Mat) ([]postprocess.Detection, error) {

	d.sizes = append(d.sizes, image.Pt(img.Cols(), img.Rows()))

	if d.entered != nil {
		d.entered <- struct{}{}
	}

	if d.block != nil {
		<-d.block
	}

	if d.err != nil {
		return nil, d.err
	}

	return d.dets, nil
}

func (d *fakeDetector) Close() error {
	d.closed = true
	return nil
}

var _ Detector = (*fakeDetector)(nil)

// fakeFactory records every detector it builds
type fakeFactory struct {
	mu    sync.Mutex
	built []*fakeDetector
	// fail makes construction fail while set
	fail error
	// dets returned by each built detector
	dets func(opts DetectorOptions) []postprocess.Detection
	// detErr is returned by Detect of each built detector
	detErr error
	// entered and block are handed to each built detector
	entered chan struct{}
	block   chan struct{}
}

func (f *fakeFactory) build(opts DetectorOptions) (Detector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}

	d := &fakeDetector{opts: opts, err: f.detErr, entered: f.entered, block: f.block}

	if f.dets != nil {
		d.dets = f.dets(opts)
	}

	f.built = append(f.built, d)

	return d, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func (f *fakeFactory) last() *fakeDetector {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.built) == 0 {
		return nil
	}

	return f.built[len(f.built)-1]
}

// quietLogger returns a logger discarding output and recording entries
func quietLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// rgbaFrame returns a frame filled with a single colour
func rgbaFrame(w, h int, r, g, b byte) *Frame {

	data := make([]byte, w*h*4)

	for i := 0; i < len(data); i += 4 {
		data[i] = r
		data[i+1] = g
		data[i+2] = b
		data[i+3] = 255
	}

	return &Frame{
		Data:      data,
		Width:     w,
		Height:    h,
		Timestamp: time.Now(),
	}
}

// stepClock advances by step on every call
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

// testView is a fixed size view counting redraw requests
type testView struct {
	size        image.Point
	invalidated int
}

func (v *testView) Size() image.Point { return v.size }
func (v *testView) Invalidate()       { v.invalidated++ }

// eventually polls cond until it holds or a second has passed
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}

		time.Sleep(time.Millisecond)
	}
}

var errFake = errors.New("fake failure")

func det(label string, score float32, l, t, r, b float32) postprocess.Detection {
	return postprocess.Detection{
		Box:        postprocess.Rect{Left: l, Top: t, Right: r, Bottom: b},
		Categories: []postprocess.Category{{Label: label, Score: score}},
	}
}
