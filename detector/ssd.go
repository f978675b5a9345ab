package detector

import (
	"fmt"
	"image"
	"os"

	camdetect "github.com/swdee/go-camdetect"
	"github.com/swdee/go-camdetect/postprocess"
	"gocv.io/x/gocv"
)

// ModelConfig describes an SSD style model file loaded by the OpenCV DNN
// module
type ModelConfig struct {
	// ModelFile is the model weights, eg: .pb, .onnx, .caffemodel
	ModelFile string
	// ConfigFile is the optional network description, eg: .pbtxt, .prototxt
	ConfigFile string
	// Labels are the class names, indexed by class ID less LabelOffset
	Labels []string
	// InputWidth and InputHeight are the model input tensor dimensions
	InputWidth  int
	InputHeight int
	// Scale is multiplied with each pixel value
	Scale float64
	// Mean is subtracted from each pixel before scaling
	Mean gocv.Scalar
	// SwapRB converts the BGR input to RGB for models trained on RGB
	SwapRB bool
	// Backend and Target select the hardware inference runs on
	Backend gocv.NetBackendType
	Target  gocv.NetTargetType
	// Params are the output post processing parameters
	Params postprocess.SSDParams
	// NMSThreshold is the IoU above which overlapping boxes of the same
	// label are suppressed, 0 disables suppression
	NMSThreshold float32
}

// MobileNetSSDConfig returns the settings for the TensorFlow MobileNet SSD v2
// COCO model
func MobileNetSSDConfig(modelFile, configFile string, labels []string) ModelConfig {
	return ModelConfig{
		ModelFile:    modelFile,
		ConfigFile:   configFile,
		Labels:       labels,
		InputWidth:   300,
		InputHeight:  300,
		Scale:        1.0,
		Mean:         gocv.NewScalar(0, 0, 0, 0),
		SwapRB:       true,
		Backend:      gocv.NetBackendDefault,
		Target:       gocv.NetTargetCPU,
		Params:       postprocess.SSDCOCOParams(),
		NMSThreshold: 0.5,
	}
}

// SSD runs an SSD object detection model through the OpenCV DNN module
type SSD struct {
	net     gocv.Net
	cfg     ModelConfig
	opts    camdetect.DetectorOptions
	process *postprocess.SSD
	// bgr is the reused colour converted input
	bgr gocv.Mat
}

// NewSSD loads the model and returns a detector using the given options
func NewSSD(cfg ModelConfig, opts camdetect.DetectorOptions) (*SSD, error) {

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// check file exists in Go, before passing to C
	info, err := os.Stat(cfg.ModelFile)

	if err != nil {
		return nil, fmt.Errorf("model file does not exist at %s, error: %w",
			cfg.ModelFile, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("model file is a directory")
	}

	net := gocv.ReadNet(cfg.ModelFile, cfg.ConfigFile)

	if net.Empty() {
		return nil, fmt.Errorf("error reading network model from %s", cfg.ModelFile)
	}

	if err := net.SetPreferableBackend(cfg.Backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting backend: %w", err)
	}

	if err := net.SetPreferableTarget(cfg.Target); err != nil {
		net.Close()
		return nil, fmt.Errorf("error setting target: %w", err)
	}

	return &SSD{
		net:     net,
		cfg:     cfg,
		opts:    opts,
		process: postprocess.NewSSD(cfg.Params),
		bgr:     gocv.NewMat(),
	}, nil
}

// Factory returns a DetectorFactory building SSD detectors from cfg
func Factory(cfg ModelConfig) camdetect.DetectorFactory {
	return func(opts camdetect.DetectorOptions) (camdetect.Detector, error) {
		return NewSSD(cfg, opts)
	}
}

// Detect runs inference on the RGBA image
func (s *SSD) Detect(img gocv.Mat) ([]postprocess.Detection, error) {

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gocv.CvtColor(img, &s.bgr, gocv.ColorRGBAToBGR)

	blob := gocv.BlobFromImage(s.bgr, s.cfg.Scale,
		image.Pt(s.cfg.InputWidth, s.cfg.InputHeight), s.cfg.Mean, s.cfg.SwapRB, false)
	defer blob.Close()

	s.net.SetInput(blob, "")

	prob := s.net.Forward("")
	defer prob.Close()

	output, err := prob.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading output tensor: %w", err)
	}

	dets := s.process.DetectObjects(output, img.Cols(), img.Rows(),
		s.cfg.Labels, s.opts.Threshold)

	if s.cfg.NMSThreshold > 0 {
		dets = postprocess.NMS(dets, s.cfg.NMSThreshold)
	}

	return postprocess.TopK(dets, s.opts.MaxResults), nil
}

// Close frees the network
func (s *SSD) Close() error {

	if err := s.bgr.Close(); err != nil {
		return err
	}

	return s.net.Close()
}
