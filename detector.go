package camdetect

import (
	"fmt"

	"github.com/swdee/go-camdetect/postprocess"
	"gocv.io/x/gocv"
)

// Detector is an object detection model ready to run inference
type Detector interface {
	// Detect runs inference on the RGBA image and returns the detections
	// scoring at or above the threshold the detector was built with, with box
	// coordinates in the pixel space of img
	Detect(img gocv.Mat) ([]postprocess.Detection, error)
	// Close frees the model resources
	Close() error
}

// DetectorOptions are the settings a Detector is built with.  Changing any of
// them requires the detector to be rebuilt.
type DetectorOptions struct {
	// Threshold is the minimum confidence score in the range [0,1]
	Threshold float32
	// MaxResults limits the number of detections returned, 0 for no limit
	MaxResults int
}

// DefaultDetectorOptions returns default options
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{
		Threshold:  0.5,
		MaxResults: 3,
	}
}

// Validate checks the options are in range
func (o DetectorOptions) Validate() error {

	if err := ValidateThreshold(o.Threshold); err != nil {
		return err
	}

	if o.MaxResults < 0 {
		return fmt.Errorf("max results can not be negative, got %d", o.MaxResults)
	}

	return nil
}

// ValidateThreshold checks t is in the range [0,1]
func ValidateThreshold(t float32) error {

	// written so NaN fails
	if !(t >= 0 && t <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, t)
	}

	return nil
}

// DetectorFactory builds a Detector from options, it may fail
type DetectorFactory func(opts DetectorOptions) (Detector, error)
