package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	camdetect "github.com/swdee/go-camdetect"
	"gocv.io/x/gocv"
)

// Facing is the direction the selected camera lens points
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

// String returns the facing name
func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// Config describes the camera devices and the requested capture format
type Config struct {
	// BackDevice and FrontDevice are device IDs, eg: "0", or a video file or
	// stream URL opened by OpenCV
	BackDevice  string
	FrontDevice string
	// Width and Height requested from the device, 4:3 by default
	Width  int
	Height int
	// Rotation in degrees clockwise needed to display frames upright
	Rotation int
	// MirrorFront flips front facing frames horizontally so the preview
	// behaves like a mirror
	MirrorFront bool
	// RetryInterval between attempts to bind a device that failed to open
	RetryInterval time.Duration
}

// DefaultConfig returns a config for the first video device at 640x480
func DefaultConfig() Config {
	return Config{
		BackDevice:    "0",
		FrontDevice:   "1",
		Width:         640,
		Height:        480,
		MirrorFront:   true,
		RetryInterval: 2 * time.Second,
	}
}

// Sink receives each captured frame, it must not block
type Sink func(f *camdetect.Frame) error

// Device reads frames from the selected camera, renders them into the
// Preview and pushes them to a Sink
type Device struct {
	cfg     Config
	log     logrus.FieldLogger
	preview *Preview

	mu     sync.Mutex
	facing Facing
	// flip is signalled when the facing changes so Run rebinds the device
	flip chan struct{}
}

// NewDevice returns a device rendering into preview, the back camera is
// selected first
func NewDevice(cfg Config, preview *Preview, log logrus.FieldLogger) *Device {

	if log == nil {
		log = logrus.StandardLogger()
	}

	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig().RetryInterval
	}

	return &Device{
		cfg:     cfg,
		log:     log,
		preview: preview,
		flip:    make(chan struct{}, 1),
	}
}

// Facing returns the selected camera
func (d *Device) Facing() Facing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.facing
}

// Flip switches between the back and front cameras and returns the newly
// selected one.  The device is rebound by Run.
func (d *Device) Flip() Facing {

	d.mu.Lock()

	if d.facing == FacingBack {
		d.facing = FacingFront
	} else {
		d.facing = FacingBack
	}

	f := d.facing
	d.mu.Unlock()

	select {
	case d.flip <- struct{}{}:
	default:
	}

	d.log.WithField("facing", f).Info("Camera flipped")

	return f
}

// deviceID returns the device for the given facing
func (d *Device) deviceID(f Facing) string {
	if f == FacingFront {
		return d.cfg.FrontDevice
	}
	return d.cfg.BackDevice
}

// open binds the camera for the given facing
func (d *Device) open(f Facing) (*gocv.VideoCapture, error) {

	id := d.deviceID(f)

	capture, err := gocv.OpenVideoCapture(id)

	if err != nil {
		return nil, fmt.Errorf("error opening %s camera %q: %w", f, id, err)
	}

	if d.cfg.Width > 0 && d.cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))
	}

	return capture, nil
}

// Run captures frames until ctx is done.  A camera that fails to bind is
// logged, the preview is left blank and binding is retried.
func (d *Device) Run(ctx context.Context, sink Sink) error {

	for {
		facing := d.Facing()

		capture, err := d.open(facing)

		if err != nil {
			d.log.WithField("error", err).Error("Camera bind failed")
			d.preview.Reset()

			select {
			case <-ctx.Done():
				return nil
			case <-d.flip:
			case <-time.After(d.cfg.RetryInterval):
			}

			continue
		}

		d.log.WithFields(logrus.Fields{
			"facing": facing,
			"device": d.deviceID(facing),
		}).Info("Camera bound")

		err = d.stream(ctx, capture, facing, sink)
		capture.Close()

		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// stream reads frames from capture until ctx is done, the camera is flipped
// or reading fails
func (d *Device) stream(ctx context.Context, capture *gocv.VideoCapture,
	facing Facing, sink Sink) error {

	bgr := gocv.NewMat()
	defer bgr.Close()

	rgba := gocv.NewMat()
	defer rgba.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.flip:
			return nil
		default:
		}

		if ok := capture.Read(&bgr); !ok {
			d.log.Warn("Camera stopped delivering frames")
			d.preview.Reset()

			select {
			case <-ctx.Done():
			case <-time.After(d.cfg.RetryInterval):
			}

			return nil
		}

		if bgr.Empty() {
			continue
		}

		if facing == FacingFront && d.cfg.MirrorFront {
			gocv.Flip(bgr, &bgr, 1)
		}

		gocv.CvtColor(bgr, &rgba, gocv.ColorBGRToRGBA)

		if err := d.preview.Update(rgba, d.cfg.Rotation); err != nil {
			d.log.WithField("error", err).Warn("Error updating preview")
		}

		frame := &camdetect.Frame{
			Data:      rgba.ToBytes(),
			Width:     rgba.Cols(),
			Height:    rgba.Rows(),
			Rotation:  d.cfg.Rotation,
			Timestamp: time.Now(),
		}

		if err := sink(frame); err != nil {
			return fmt.Errorf("error submitting frame: %w", err)
		}
	}
}
