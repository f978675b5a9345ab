package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the camera detection program configuration
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Detector DetectorConfig `yaml:"detector"`
	Camera   CameraConfig   `yaml:"camera"`
	View     ViewConfig     `yaml:"view"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// ModelConfig locates the detection model
type ModelConfig struct {
	File      string `yaml:"file" validate:"required"`
	Config    string `yaml:"config"`
	Labels    string `yaml:"labels" validate:"required"`
	InputSize int    `yaml:"input_size" validate:"gt=0"`
	Backend   string `yaml:"backend" validate:"omitempty,oneof=default halide openvino opencv vulkan cuda"`
	Target    string `yaml:"target" validate:"omitempty,oneof=cpu fp32 fp16 vpu vulkan fpga cuda cudafp16"`
	SwapRB    bool   `yaml:"swap_rb"`
	// NMSThreshold suppresses overlapping boxes of the same label, 0 disables
	NMSThreshold float32 `yaml:"nms_threshold" validate:"gte=0,lte=1"`
}

// DetectorConfig holds the detector options
type DetectorConfig struct {
	// ThresholdPercent is the confidence threshold in whole percent
	ThresholdPercent int `yaml:"threshold_percent" validate:"gte=0,lte=100"`
	MaxResults       int `yaml:"max_results" validate:"gte=0"`
	// RetrySeconds between attempts to rebuild a detector that failed
	RetrySeconds float64 `yaml:"retry_seconds" validate:"gt=0"`
	StatsWindow  int     `yaml:"stats_window" validate:"gt=0"`
}

// CameraConfig selects the camera devices and capture format
type CameraConfig struct {
	BackDevice  string `yaml:"back_device" validate:"required"`
	FrontDevice string `yaml:"front_device"`
	Width       int    `yaml:"width" validate:"gt=0"`
	Height      int    `yaml:"height" validate:"gt=0"`
	Rotation    int    `yaml:"rotation" validate:"oneof=0 90 180 270"`
	MirrorFront bool   `yaml:"mirror_front"`
}

// ViewConfig is the size of the on screen preview
type ViewConfig struct {
	Width  int `yaml:"width" validate:"gt=0"`
	Height int `yaml:"height" validate:"gt=0"`
}

// ExportConfig selects where snapshots are saved
type ExportConfig struct {
	Dir     string   `yaml:"dir" validate:"required"`
	Quality int      `yaml:"quality" validate:"gte=1,lte=100"`
	S3      S3Config `yaml:"s3"`
}

// S3Config enables uploading snapshots to S3 when Bucket is set.
// Credentials are normally supplied through the environment.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region" validate:"required_with=Bucket"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

// LogConfig sets up logging
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
	// File is an optional rotated log file
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	NoColors   bool   `yaml:"no_colors"`
}

// HTTPConfig is the preview server address
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

// Default returns the default configuration, a 640x480 (4:3) camera, a 50%
// threshold and up to 3 results
func Default() Config {
	return Config{
		Model: ModelConfig{
			File:      "../data/ssd_mobilenet_v2_coco.pb",
			Config:    "../data/ssd_mobilenet_v2_coco.pbtxt",
			Labels:    "../data/coco_91_labels_list.txt",
			InputSize: 300,
			Backend:   "default",
			Target:    "cpu",
			SwapRB:    true,

			NMSThreshold: 0.5,
		},
		Detector: DetectorConfig{
			ThresholdPercent: 50,
			MaxResults:       3,
			RetrySeconds:     1,
			StatsWindow:      100,
		},
		Camera: CameraConfig{
			BackDevice:  "0",
			FrontDevice: "1",
			Width:       640,
			Height:      480,
			MirrorFront: true,
		},
		View: ViewConfig{
			Width:  640,
			Height: 480,
		},
		Export: ExportConfig{
			Dir:     "CamDetect",
			Quality: 100,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		HTTP: HTTPConfig{
			Addr: "localhost:8080",
		},
	}
}

// Load reads the YAML configuration file over the defaults, applies
// environment overrides and validates the result.  An empty path uses the
// defaults only.
func Load(path string) (*Config, error) {

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadEnv loads variables from the given .env files into the process
// environment, missing files are ignored
func LoadEnv(files ...string) error {

	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	return nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv() error {

	strVars := map[string]*string{
		"CAMDETECT_MODEL_FILE":  &c.Model.File,
		"CAMDETECT_LABELS_FILE": &c.Model.Labels,
		"CAMDETECT_CAMERA":      &c.Camera.BackDevice,
		"CAMDETECT_EXPORT_DIR":  &c.Export.Dir,
		"CAMDETECT_HTTP_ADDR":   &c.HTTP.Addr,
		"CAMDETECT_LOG_LEVEL":   &c.Log.Level,
		"AWS_BUCKET_NAME":       &c.Export.S3.Bucket,
		"AWS_REGION":            &c.Export.S3.Region,
		"AWS_ACCESS_KEY_ID":     &c.Export.S3.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &c.Export.S3.SecretAccessKey,
		"AWS_S3_ENDPOINT":       &c.Export.S3.Endpoint,
	}

	for name, dst := range strVars {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("CAMDETECT_THRESHOLD_PERCENT"); ok {

		pct, err := strconv.Atoi(v)

		if err != nil {
			return fmt.Errorf("invalid CAMDETECT_THRESHOLD_PERCENT %q: %w", v, err)
		}

		c.Detector.ThresholdPercent = pct
	}

	return nil
}

// Validate checks the configuration against its struct tags
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Threshold returns the detector threshold in the range [0,1]
func (c *Config) Threshold() float32 {
	return ThresholdFromPercent(c.Detector.ThresholdPercent)
}

// ThresholdFromPercent converts a whole percent, as set by the threshold
// control, into a threshold clamped to [0,1]
func ThresholdFromPercent(pct int) float32 {

	if pct < 0 {
		pct = 0
	}

	if pct > 100 {
		pct = 100
	}

	return float32(pct) / 100
}

// PercentFromThreshold converts a threshold to the nearest whole percent
func PercentFromThreshold(t float32) int {
	return int(math.Round(float64(t) * 100))
}
