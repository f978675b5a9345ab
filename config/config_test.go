package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestDefaultIsValid(t *testing.T) {

	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.Threshold() != 0.5 || cfg.Detector.MaxResults != 3 {
		t.Errorf("unexpected detector defaults %+v", cfg.Detector)
	}

	// 4:3 capture
	if cfg.Camera.Width*3 != cfg.Camera.Height*4 {
		t.Errorf("expected 4:3 capture, got %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {

	path := writeFile(t, "camdetect.yaml", `
detector:
  threshold_percent: 65
  max_results: 5
view:
  width: 1080
  height: 1920
export:
  dir: /tmp/snaps
`)

	cfg, err := Load(path)

	if err != nil {
		t.Fatal(err)
	}

	if cfg.Detector.ThresholdPercent != 65 || cfg.Detector.MaxResults != 5 {
		t.Errorf("detector not loaded, got %+v", cfg.Detector)
	}

	if cfg.View.Width != 1080 || cfg.View.Height != 1920 {
		t.Errorf("view not loaded, got %+v", cfg.View)
	}

	// untouched sections keep their defaults
	if cfg.Camera.Width != 640 || cfg.Export.Quality != 100 {
		t.Errorf("defaults lost, got camera %+v export %+v", cfg.Camera, cfg.Export)
	}
}

func TestLoadInvalid(t *testing.T) {

	tests := []struct {
		name string
		yaml string
	}{
		{"threshold over 100", "detector:\n  threshold_percent: 120\n"},
		{"bad rotation", "camera:\n  rotation: 45\n"},
		{"zero view", "view:\n  width: 0\n"},
		{"bucket without region", "export:\n  s3:\n    bucket: snaps\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"malformed", "detector: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "c.yaml", tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {

	env := writeFile(t, ".env", "AWS_BUCKET_NAME=snaps\nAWS_REGION=ap-southeast-2\n")

	t.Setenv("CAMDETECT_THRESHOLD_PERCENT", "30")
	t.Setenv("AWS_BUCKET_NAME", "")
	os.Unsetenv("AWS_BUCKET_NAME")
	t.Setenv("AWS_REGION", "")
	os.Unsetenv("AWS_REGION")

	if err := LoadEnv(env, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")

	if err != nil {
		t.Fatal(err)
	}

	if cfg.Export.S3.Bucket != "snaps" || cfg.Export.S3.Region != "ap-southeast-2" {
		t.Errorf("s3 settings not loaded from .env, got %+v", cfg.Export.S3)
	}

	if cfg.Threshold() != 0.3 {
		t.Errorf("expected threshold 0.3, got %v", cfg.Threshold())
	}

	t.Setenv("CAMDETECT_THRESHOLD_PERCENT", "high")

	if _, err := Load(""); err == nil {
		t.Error("expected error for non numeric threshold")
	}
}

func TestThresholdPercent(t *testing.T) {

	tests := []struct {
		pct  int
		want float32
	}{
		{-5, 0},
		{0, 0},
		{1, 0.01},
		{50, 0.5},
		{100, 1},
		{150, 1},
	}

	for _, tt := range tests {
		if got := ThresholdFromPercent(tt.pct); got != tt.want {
			t.Errorf("percent %d: expected %v, got %v", tt.pct, tt.want, got)
		}
	}

	for pct := 0; pct <= 100; pct++ {
		if got := PercentFromThreshold(ThresholdFromPercent(pct)); got != pct {
			t.Errorf("percent %d round tripped to %d", pct, got)
		}
	}
}
