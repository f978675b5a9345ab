package camdetect

import "errors"

var (
	// ErrDetectorConstruction is returned when the detector could not be
	// built from its options
	ErrDetectorConstruction = errors.New("detector construction failed")
	// ErrInference is returned when the detector failed on a frame
	ErrInference = errors.New("inference failed")
	// ErrCaptureUnavailable is returned when no preview snapshot could be
	// taken, for example before the camera has delivered a frame
	ErrCaptureUnavailable = errors.New("preview snapshot unavailable")
	// ErrPermissionDenied is returned when the permission gate refuses the
	// camera or storage capability
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidThreshold is returned for thresholds outside [0,1]
	ErrInvalidThreshold = errors.New("threshold must be in the range [0,1]")
	// ErrClosed is returned by components used after Close
	ErrClosed = errors.New("closed")

	// errRebuildThrottled marks a frame skipped while a failed detector is
	// waiting to be rebuilt
	errRebuildThrottled = errors.New("detector rebuild throttled")
)
