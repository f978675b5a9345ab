package camdetect

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-camdetect/postprocess"
	"github.com/swdee/go-camdetect/preprocess"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// detectorState is the lifecycle state of the detector held by the Invoker
type detectorState int

const (
	// stateUninitialized means no detector is built, one is built on the next
	// call to Detect
	stateUninitialized detectorState = iota
	// stateReady means a detector is built for the current options
	stateReady
	// stateFailed means building the detector failed, rebuilding is retried
	// at a limited rate
	stateFailed
)

// String returns a readable description of the state
func (s detectorState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

// Invoker wraps the detector, rotating frames upright before inference and
// timing the inference call.  Option changes take effect on the next call to
// Detect, where the old detector is closed and a new one built.
//
// Detect and Close must only be called from a single goroutine (the
// background worker), the option setters are safe to call from any goroutine.
type Invoker struct {
	factory DetectorFactory
	log     logrus.FieldLogger

	// mu protects opts and generation
	mu         sync.Mutex
	opts       DetectorOptions
	generation uint64

	// fields below are owned by the worker goroutine
	state   detectorState
	det     Detector
	detGen  uint64
	lastErr error
	retry   *rate.Limiter
	rotated gocv.Mat
	hasRot  bool
	now     func() time.Time
}

// NewInvoker returns an invoker building detectors with factory.  No detector
// is built until the first call to Detect.
func NewInvoker(factory DetectorFactory, opts DetectorOptions,
	log logrus.FieldLogger) (*Invoker, error) {

	if factory == nil {
		return nil, fmt.Errorf("detector factory can not be nil")
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Invoker{
		factory:    factory,
		log:        log,
		opts:       opts,
		generation: 1,
		retry:      rate.NewLimiter(rate.Every(time.Second), 1),
		now:        time.Now,
	}, nil
}

// SetRetryInterval sets how often building a failed detector is retried
func (inv *Invoker) SetRetryInterval(d time.Duration) {
	inv.retry = rate.NewLimiter(rate.Every(d), 1)
}

// Options returns the current options and their generation
func (inv *Invoker) Options() (DetectorOptions, uint64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.opts, inv.generation
}

// Generation returns the generation of the current options, it increases on
// every option change
func (inv *Invoker) Generation() uint64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.generation
}

// SetThreshold changes the confidence threshold.  The detector is rebuilt on
// the next call to Detect.  The new options generation is returned.
func (inv *Invoker) SetThreshold(t float32) (uint64, error) {

	if err := ValidateThreshold(t); err != nil {
		return 0, err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.opts.Threshold = t
	inv.generation++

	inv.log.WithFields(logrus.Fields{
		"threshold":  t,
		"generation": inv.generation,
	}).Info("Detector threshold changed")

	return inv.generation, nil
}

// SetMaxResults changes the maximum number of results returned.  The detector
// is rebuilt on the next call to Detect.  The new options generation is
// returned.
func (inv *Invoker) SetMaxResults(n int) (uint64, error) {

	if n < 0 {
		return 0, fmt.Errorf("max results can not be negative, got %d", n)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.opts.MaxResults = n
	inv.generation++

	return inv.generation, nil
}

// Detect rotates the frame by rotation degrees clockwise and runs the detector
// on it.  Boxes in the returned batch are relative to the rotated frame, whose
// size is given by the batch ImageWidth and ImageHeight.  On error the batch
// holds no detections.
func (inv *Invoker) Detect(frame gocv.Mat, rotation int) (postprocess.Batch, error) {

	opts, gen := inv.Options()

	batch := postprocess.Batch{
		Generation: gen,
	}

	img := frame

	if preprocess.NormaliseRotation(rotation) != 0 {

		if !inv.hasRot {
			inv.rotated = gocv.NewMat()
			inv.hasRot = true
		}

		if err := preprocess.Rotate(frame, &inv.rotated, rotation); err != nil {
			return batch, fmt.Errorf("%w: %w", ErrInference, err)
		}

		img = inv.rotated
	}

	batch.ImageWidth = img.Cols()
	batch.ImageHeight = img.Rows()

	det, err := inv.detector(opts, gen)

	if err != nil {
		return batch, err
	}

	start := inv.now()
	dets, err := det.Detect(img)
	batch.InferenceTime = inv.now().Sub(start)

	if err != nil {
		return batch, fmt.Errorf("%w: %w", ErrInference, err)
	}

	batch.Detections = postprocess.FilterScore(dets, opts.Threshold)

	return batch, nil
}

// detector returns the detector for the options generation, building it if
// needed
func (inv *Invoker) detector(opts DetectorOptions, gen uint64) (Detector, error) {

	switch inv.state {
	case stateReady:
		if inv.detGen == gen {
			return inv.det, nil
		}

		// options changed since the detector was built
		inv.teardown()

	case stateFailed:
		if inv.detGen == gen && !inv.retry.Allow() {
			return nil, fmt.Errorf("%w: %w", errRebuildThrottled, inv.lastErr)
		}

		inv.state = stateUninitialized
	}

	det, err := inv.factory(opts)
	inv.detGen = gen

	if err != nil {
		inv.state = stateFailed
		inv.lastErr = fmt.Errorf("%w: %w", ErrDetectorConstruction, err)

		// next attempt waits a full retry interval
		inv.retry.Allow()

		inv.log.WithFields(logrus.Fields{
			"generation": gen,
			"error":      err,
		}).Error("Error building detector")

		return nil, inv.lastErr
	}

	inv.det = det
	inv.state = stateReady
	inv.lastErr = nil

	inv.log.WithFields(logrus.Fields{
		"threshold":   opts.Threshold,
		"max_results": opts.MaxResults,
		"generation":  gen,
	}).Debug("Detector built")

	return det, nil
}

// teardown closes the current detector
func (inv *Invoker) teardown() {

	if inv.det != nil {
		if err := inv.det.Close(); err != nil {
			inv.log.WithField("error", err).Warn("Error closing detector")
		}
	}

	inv.det = nil
	inv.state = stateUninitialized
}

// State returns the detector lifecycle state, for the worker goroutine only
func (inv *Invoker) State() string {
	return inv.state.String()
}

// Close tears down the detector and frees the rotation buffer
func (inv *Invoker) Close() error {

	inv.teardown()

	if inv.hasRot {
		inv.hasRot = false
		return inv.rotated.Close()
	}

	return nil
}
