package camdetect

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-camdetect/postprocess"
	"github.com/swdee/go-camdetect/render"
)

// Capability is an OS level permission the pipeline needs
type Capability int

const (
	CapabilityCamera Capability = iota
	CapabilityStorage
)

// String returns the capability name
func (c Capability) String() string {
	switch c {
	case CapabilityCamera:
		return "camera"
	case CapabilityStorage:
		return "storage"
	default:
		return fmt.Sprintf("capability %d", int(c))
	}
}

// Gate reports whether a capability has been granted
type Gate func(Capability) bool

// Result is the outcome of one detection cycle, either a Batch or an Err
type Result struct {
	Batch postprocess.Batch
	Err   error
}

// PipelineConfig holds the components wired together by the Pipeline
type PipelineConfig struct {
	// Buffer receives camera frames, required
	Buffer *FrameBuffer
	// Invoker runs detection, required
	Invoker *Invoker
	// Overlay shows the results, required
	Overlay *render.Overlay
	// UI is the looper owning Overlay, required
	UI *Looper
	// Compositor takes snapshots, optional
	Compositor *Compositor
	// Stats collects counters, optional
	Stats *Stats
	// Gate checks permissions, optional, everything is allowed when nil
	Gate Gate
	// Notify shows a transient error message to the user, called on the UI
	// looper, optional
	Notify func(err error)
	// OnResult is called on the UI looper after a batch is shown, optional
	OnResult func(b postprocess.Batch)
	// Log is the logger, defaults to the logrus standard logger
	Log logrus.FieldLogger
}

// Pipeline connects the camera frame buffer, the background detection worker
// and the overlay owned by the UI looper
type Pipeline struct {
	cfg PipelineConfig
	log logrus.FieldLogger
	// acceptGen is the lowest options generation whose results are shown,
	// only accessed on the UI looper
	acceptGen uint64
}

// NewPipeline returns a pipeline for the given components
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {

	if cfg.Buffer == nil || cfg.Invoker == nil || cfg.Overlay == nil || cfg.UI == nil {
		return nil, fmt.Errorf("pipeline requires a buffer, invoker, overlay and UI looper")
	}

	if cfg.Stats == nil {
		cfg.Stats = NewStats(100)
	}

	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	return &Pipeline{
		cfg:       cfg,
		log:       cfg.Log,
		acceptGen: cfg.Invoker.Generation(),
	}, nil
}

// Submit hands a camera frame to the pipeline, it never blocks
func (p *Pipeline) Submit(f *Frame) error {
	return p.cfg.Buffer.Submit(f)
}

// Stats returns the pipeline statistics
func (p *Pipeline) Stats() StatsSnapshot {
	return p.cfg.Stats.Snapshot()
}

// BufferStats returns the frame buffer counters
func (p *Pipeline) BufferStats() BufferStats {
	return p.cfg.Buffer.Stats()
}

// Run is the background worker, it detects objects on the latest frame and
// posts every result to the UI looper.  It returns when ctx is done or the
// frame buffer is closed, and closes the invoker before returning.
func (p *Pipeline) Run(ctx context.Context) error {

	if !p.allowed(CapabilityCamera) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, CapabilityCamera)
	}

	defer func() {
		if err := p.cfg.Invoker.Close(); err != nil {
			p.log.WithField("error", err).Warn("Error closing invoker")
		}
	}()

	for {
		frame, err := p.cfg.Buffer.Next(ctx)

		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}

		res := p.process(frame)

		if !p.cfg.UI.Post(func() { p.deliver(res) }) {
			return nil
		}
	}
}

// process runs detection on a single frame
func (p *Pipeline) process(frame *Frame) Result {

	img, err := p.cfg.Buffer.Load(frame)

	if err != nil {
		return Result{
			Batch: postprocess.Batch{Seq: frame.Seq, Generation: p.cfg.Invoker.Generation()},
			Err:   fmt.Errorf("%w: %w", ErrInference, err),
		}
	}

	batch, err := p.cfg.Invoker.Detect(img, frame.Rotation)
	batch.Seq = frame.Seq

	return Result{Batch: batch, Err: err}
}

// deliver applies a result to the overlay, runs on the UI looper
func (p *Pipeline) deliver(res Result) {

	if res.Batch.Generation < p.acceptGen {
		p.cfg.Stats.discard()

		p.log.WithFields(logrus.Fields{
			"seq":        res.Batch.Seq,
			"generation": res.Batch.Generation,
		}).Debug("Discarding stale detection result")

		return
	}

	if res.Err != nil {

		// failure already reported when the rebuild was attempted
		if errors.Is(res.Err, errRebuildThrottled) {
			p.cfg.Stats.throttle()
			return
		}

		p.cfg.Stats.failed()

		p.log.WithFields(logrus.Fields{
			"seq":   res.Batch.Seq,
			"error": res.Err,
		}).Warn("Detection failed")

		p.notify(res.Err)
		return
	}

	p.cfg.Overlay.SetResults(res.Batch, res.Batch.ImageHeight, res.Batch.ImageWidth)
	p.cfg.Overlay.Invalidate()

	p.cfg.Stats.observe(res.Batch)

	if p.cfg.OnResult != nil {
		p.cfg.OnResult(res.Batch)
	}
}

// SetThreshold changes the detector confidence threshold.  The overlay is
// cleared on the UI looper and results produced with the previous threshold
// are never shown afterwards.  It returns after queuing the change and may be
// called from any goroutine, including the UI looper.
func (p *Pipeline) SetThreshold(t float32) error {

	if err := ValidateThreshold(t); err != nil {
		return err
	}

	ok := p.cfg.UI.Post(func() {
		gen, err := p.cfg.Invoker.SetThreshold(t)

		if err != nil {
			p.notify(err)
			return
		}

		p.acceptGen = gen
		p.cfg.Overlay.Clear()
	})

	if !ok {
		return ErrClosed
	}

	return nil
}

// SetMaxResults changes the maximum number of detections shown, in the same
// way as SetThreshold
func (p *Pipeline) SetMaxResults(n int) error {

	if n < 0 {
		return fmt.Errorf("max results can not be negative, got %d", n)
	}

	ok := p.cfg.UI.Post(func() {
		gen, err := p.cfg.Invoker.SetMaxResults(n)

		if err != nil {
			p.notify(err)
			return
		}

		p.acceptGen = gen
		p.cfg.Overlay.Clear()
	})

	if !ok {
		return ErrClosed
	}

	return nil
}

// Capture takes a snapshot of the preview with the overlay drawn on it and
// exports it.  Failures are also shown to the user through Notify.
func (p *Pipeline) Capture(ctx context.Context) (Snapshot, error) {

	snap, err := p.capture(ctx)

	if err != nil {
		p.log.WithField("error", err).Warn("Snapshot capture failed")

		// notify runs on the looper, Capture must not wait on it
		if !p.cfg.UI.TryPost(func() { p.notify(err) }) {
			p.log.Debug("UI queue full, capture error not shown")
		}

		return Snapshot{}, err
	}

	p.log.WithFields(logrus.Fields{
		"name":     snap.Name,
		"location": snap.Location,
		"bytes":    len(snap.Data),
	}).Info("Snapshot saved")

	return snap, nil
}

func (p *Pipeline) capture(ctx context.Context) (Snapshot, error) {

	if p.cfg.Compositor == nil {
		return Snapshot{}, fmt.Errorf("%w: no compositor configured", ErrCaptureUnavailable)
	}

	for _, c := range []Capability{CapabilityCamera, CapabilityStorage} {
		if !p.allowed(c) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrPermissionDenied, c)
		}
	}

	return p.cfg.Compositor.Capture(ctx)
}

// allowed checks the permission gate
func (p *Pipeline) allowed(c Capability) bool {
	return p.cfg.Gate == nil || p.cfg.Gate(c)
}

// notify shows an error to the user, must run on the UI looper
func (p *Pipeline) notify(err error) {
	if p.cfg.Notify != nil {
		p.cfg.Notify(err)
	}
}
