package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	camdetect "github.com/swdee/go-camdetect"
	"github.com/swdee/go-camdetect/camera"
	"github.com/swdee/go-camdetect/config"
	"github.com/swdee/go-camdetect/detector"
	"github.com/swdee/go-camdetect/export"
	"github.com/swdee/go-camdetect/logger"
	"github.com/swdee/go-camdetect/render"
	"gocv.io/x/gocv"
)

// view is the browser preview, it has a fixed size and redraw requests wake
// the MJPEG streams
type view struct {
	size image.Point
	mu   sync.Mutex
	// redraw is closed and replaced on every Invalidate
	redraw chan struct{}
}

func newView(w, h int) *view {
	return &view{
		size:   image.Pt(w, h),
		redraw: make(chan struct{}),
	}
}

// Size returns the view dimensions
func (v *view) Size() image.Point {
	return v.size
}

// Invalidate wakes every stream waiting on the view
func (v *view) Invalidate() {
	v.mu.Lock()
	close(v.redraw)
	v.redraw = make(chan struct{})
	v.mu.Unlock()
}

// changed returns a channel closed on the next Invalidate
func (v *view) changed() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redraw
}

// Demo holds the running detection pipeline and serves it over HTTP
type Demo struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	view     *view
	ui       *camdetect.Looper
	inv      *camdetect.Invoker
	overlay  *render.Overlay
	preview  *camera.Preview
	device   *camera.Device
	pipe     *camdetect.Pipeline
	streamer *camdetect.Compositor

	// lastErr is the most recent error shown to the user
	mu      sync.Mutex
	lastErr string
}

// NewDemo wires the camera, detector and overlay together
func NewDemo(cfg *config.Config, log logrus.FieldLogger) (*Demo, error) {

	labels, err := camdetect.LoadLabels(cfg.Model.Labels)

	if err != nil {
		return nil, fmt.Errorf("error loading model labels: %w", err)
	}

	modelCfg := modelConfig(cfg, labels)

	opts := camdetect.DetectorOptions{
		Threshold:  cfg.Threshold(),
		MaxResults: cfg.Detector.MaxResults,
	}

	inv, err := camdetect.NewInvoker(detector.Factory(modelCfg), opts, log)

	if err != nil {
		return nil, fmt.Errorf("error creating invoker: %w", err)
	}

	inv.SetRetryInterval(time.Duration(cfg.Detector.RetrySeconds * float64(time.Second)))

	d := &Demo{
		cfg:     cfg,
		log:     log,
		view:    newView(cfg.View.Width, cfg.View.Height),
		ui:      camdetect.NewLooper(16),
		inv:     inv,
		preview: camera.NewPreview(cfg.View.Width, cfg.View.Height),
	}

	d.overlay = render.NewOverlay(d.view, render.DefaultStyle())

	d.device = camera.NewDevice(camera.Config{
		BackDevice:  cfg.Camera.BackDevice,
		FrontDevice: cfg.Camera.FrontDevice,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		Rotation:    cfg.Camera.Rotation,
		MirrorFront: cfg.Camera.MirrorFront,
	}, d.preview, log)

	exporter, err := newExporter(cfg)

	if err != nil {
		return nil, err
	}

	comp := camdetect.NewCompositor(d.preview, d.overlay, d.ui, exporter)
	comp.SetQuality(cfg.Export.Quality)

	// the stream uses the same drawing routine as snapshots but never exports
	d.streamer = camdetect.NewCompositor(d.preview, d.overlay, d.ui, nil)
	d.streamer.SetQuality(75)

	d.pipe, err = camdetect.NewPipeline(camdetect.PipelineConfig{
		Buffer:     camdetect.NewFrameBuffer(),
		Invoker:    inv,
		Overlay:    d.overlay,
		UI:         d.ui,
		Compositor: comp,
		Stats:      camdetect.NewStats(cfg.Detector.StatsWindow),
		Gate:       d.gate,
		Notify:     d.notify,
		Log:        log,
	})

	if err != nil {
		return nil, err
	}

	return d, nil
}

// modelConfig maps the configuration onto the SSD model settings
func modelConfig(cfg *config.Config, labels []string) detector.ModelConfig {

	m := detector.MobileNetSSDConfig(cfg.Model.File, cfg.Model.Config, labels)
	m.InputWidth = cfg.Model.InputSize
	m.InputHeight = cfg.Model.InputSize
	m.SwapRB = cfg.Model.SwapRB
	m.NMSThreshold = cfg.Model.NMSThreshold

	if cfg.Model.Backend != "" {
		m.Backend = gocv.ParseNetBackend(cfg.Model.Backend)
	}

	if cfg.Model.Target != "" {
		m.Target = gocv.ParseNetTarget(cfg.Model.Target)
	}

	return m
}

// newExporter uploads to S3 when a bucket is configured and saves to the
// export directory otherwise
func newExporter(cfg *config.Config) (camdetect.Exporter, error) {

	if cfg.Export.S3.Bucket == "" {
		return export.NewFileExporter(cfg.Export.Dir), nil
	}

	exp, err := export.NewS3Exporter(export.S3Config{
		Bucket:          cfg.Export.S3.Bucket,
		Region:          cfg.Export.S3.Region,
		Prefix:          cfg.Export.S3.Prefix,
		Endpoint:        cfg.Export.S3.Endpoint,
		AccessKeyID:     cfg.Export.S3.AccessKeyID,
		SecretAccessKey: cfg.Export.S3.SecretAccessKey,
	})

	if err != nil {
		return nil, fmt.Errorf("error creating s3 exporter: %w", err)
	}

	return exp, nil
}

// gate grants the camera capability and grants storage when the export
// directory can be created
func (d *Demo) gate(c camdetect.Capability) bool {

	if c != camdetect.CapabilityStorage || d.cfg.Export.S3.Bucket != "" {
		return true
	}

	return os.MkdirAll(d.cfg.Export.Dir, 0o755) == nil
}

// notify records the error for the status endpoint, runs on the UI looper
func (d *Demo) notify(err error) {
	d.mu.Lock()
	d.lastErr = err.Error()
	d.mu.Unlock()
}

// Run starts the UI looper, the detection worker and the camera and blocks
// until ctx is done
func (d *Demo) Run(ctx context.Context) {

	go d.ui.Run()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()

		if err := d.pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.WithField("error", err).Error("Detection worker stopped")
		}
	}()

	go func() {
		defer wg.Done()

		err := d.device.Run(ctx, func(f *camdetect.Frame) error {
			return d.pipe.Submit(f)
		})

		if err != nil {
			d.log.WithField("error", err).Error("Camera stopped")
		}
	}()

	wg.Wait()

	d.ui.Stop()
	d.preview.Close()
}

// Stream is the HTTP handler streaming the preview with the overlay as MJPEG
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	d.log.Info("New client connection established")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	// redraw at the camera rate even when no new results arrive
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			d.log.Info("Client disconnected")
			return
		case <-ticker.C:
		case <-d.view.changed():
		}

		snap, err := d.streamer.Capture(r.Context())

		if err != nil {
			// no camera frame yet
			continue
		}

		w.Write([]byte("--frame\r\n"))
		w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
		w.Write(snap.Data)
		w.Write([]byte("\r\n"))

		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

// Overlay is the HTTP handler returning the overlay alone as a transparent
// PNG, for clients drawing their own preview
func (d *Demo) Overlay(w http.ResponseWriter, r *http.Request) {

	size := d.view.Size()
	surface := render.NewImageSurface(image.NewRGBA(image.Rect(0, 0, size.X, size.Y)))

	err := d.ui.Call(r.Context(), func() {
		d.overlay.Draw(surface)
	})

	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	png.Encode(w, surface.Image())
}

// Threshold is the HTTP handler setting the threshold from a whole percent
func (d *Demo) Threshold(w http.ResponseWriter, r *http.Request) {

	pct, err := strconv.Atoi(r.FormValue("percent"))

	if err != nil || pct < 0 || pct > 100 {
		http.Error(w, "percent must be a whole number in [0,100]", http.StatusBadRequest)
		return
	}

	if err := d.pipe.SetThreshold(config.ThresholdFromPercent(pct)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{"threshold_percent": pct})
}

// Capture is the HTTP handler saving a snapshot
func (d *Demo) Capture(w http.ResponseWriter, r *http.Request) {

	snap, err := d.pipe.Capture(r.Context())

	switch {
	case errors.Is(err, camdetect.ErrCaptureUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, camdetect.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"name":       snap.Name,
		"location":   snap.Location,
		"detections": snap.Detections,
	})
}

// Flip is the HTTP handler switching between the back and front cameras
func (d *Demo) Flip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"facing": d.device.Flip().String()})
}

// Stats is the HTTP handler reporting pipeline statistics
func (d *Demo) Stats(w http.ResponseWriter, r *http.Request) {

	s := d.pipe.Stats()
	b := d.pipe.BufferStats()
	opts, gen := d.inv.Options()

	d.mu.Lock()
	lastErr := d.lastErr
	d.mu.Unlock()

	writeJSON(w, map[string]any{
		"batches":         s.Batches,
		"detections":      s.Detections,
		"errors":          s.Errors,
		"discarded":       s.Discarded,
		"throttled":       s.Throttled,
		"threshold_pct":   config.PercentFromThreshold(opts.Threshold),
		"max_results":     opts.MaxResults,
		"generation":      gen,
		"latency_mean_ms": s.LatencyMean.Milliseconds(),
		"latency_std_ms":  s.LatencyStdDev.Milliseconds(),
		"latency_p95_ms":  s.LatencyP95.Milliseconds(),
		"frames":          b.Submitted,
		"frames_dropped":  b.Dropped,
		"facing":          d.device.Facing().String(),
		"last_error":      lastErr,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func main() {

	cfgFile := flag.String("c", "", "YAML configuration file, defaults are used when not set")
	envFile := flag.String("e", ".env", "Environment file with S3 credentials and overrides")
	httpAddr := flag.String("a", "", "HTTP Address to run server on, format address:port, overrides the config")

	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgFile)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	base, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		NoColors:   cfg.Log.NoColors,
	})

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithSession(base)

	demo, err := NewDemo(cfg, log)

	if err != nil {
		log.Fatalf("Error creating demo: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", demo.Stream)
	mux.HandleFunc("/overlay.png", demo.Overlay)
	mux.HandleFunc("/threshold", demo.Threshold)
	mux.HandleFunc("/capture", demo.Capture)
	mux.HandleFunc("/flip", demo.Flip)
	mux.HandleFunc("/stats", demo.Stats)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		srv.Shutdown(shutdownCtx)
	}()

	go demo.Run(ctx)

	log.Infof("Open browser and view video at http://%s/stream", cfg.HTTP.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
