package camdetect

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/swdee/go-camdetect/render"
	"gocv.io/x/gocv"
)

// Preview is the on screen camera preview
type Preview interface {
	// Snapshot returns the pixels currently shown, sized to the view
	Snapshot() (image.Image, error)
}

// Exporter stores an encoded snapshot
type Exporter interface {
	// Export saves data under the suggested file name and returns where it
	// was stored
	Export(ctx context.Context, name string, data []byte) (string, error)
}

// Snapshot is an exported capture
type Snapshot struct {
	// Name is the file name the snapshot was exported with
	Name string
	// Location is where the exporter stored it
	Location string
	// Data is the JPEG encoded image
	Data []byte
	// Detections is the number of boxes drawn on the snapshot
	Detections int
}

// Compositor flattens the preview and the overlay into a single image using
// the same drawing routine as the screen, so exports match what is shown
type Compositor struct {
	preview  Preview
	overlay  *render.Overlay
	ui       *Looper
	exporter Exporter
	font     render.MatFont
	quality  int
	now      func() time.Time
	surface  func(img *gocv.Mat) render.Surface
}

// NewCompositor returns a compositor drawing overlay, which is owned by the ui
// looper, onto snapshots of preview.  exporter may be nil in which case the
// snapshot is only returned.
func NewCompositor(preview Preview, overlay *render.Overlay, ui *Looper,
	exporter Exporter) *Compositor {

	c := &Compositor{
		preview:  preview,
		overlay:  overlay,
		ui:       ui,
		exporter: exporter,
		font:     render.DefaultMatFont(),
		quality:  100,
		now:      time.Now,
	}

	c.surface = func(img *gocv.Mat) render.Surface {
		return render.NewMatSurface(img, c.font)
	}

	return c
}

// SetQuality sets the JPEG quality in the range [1,100]
func (c *Compositor) SetQuality(q int) {

	if q < 1 {
		q = 1
	}

	if q > 100 {
		q = 100
	}

	c.quality = q
}

// Capture snapshots the preview, draws the overlay onto it, encodes it as JPEG
// and exports it.  The overlay is drawn on the UI looper, so the snapshot
// reflects every overlay change posted before Capture was called.
func (c *Compositor) Capture(ctx context.Context) (Snapshot, error) {

	img, err := c.preview.Snapshot()

	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	if img == nil || img.Bounds().Empty() {
		return Snapshot{}, fmt.Errorf("%w: preview is empty", ErrCaptureUnavailable)
	}

	// GoCV drawing expects BGR pixel order
	mat, err := gocv.ImageToMatRGB(img)

	if err != nil {
		return Snapshot{}, fmt.Errorf("error converting preview: %w", err)
	}

	defer mat.Close()

	snap := Snapshot{}

	err = c.ui.Call(ctx, func() {
		c.overlay.Draw(c.surface(&mat))
		snap.Detections = c.overlay.Batch().Len()
	})

	if err != nil {
		return Snapshot{}, fmt.Errorf("error drawing overlay: %w", err)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat,
		[]int{gocv.IMWriteJpegQuality, c.quality})

	if err != nil {
		return Snapshot{}, fmt.Errorf("error encoding snapshot: %w", err)
	}

	snap.Data = append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	snap.Name = SnapshotName(c.now())

	if c.exporter == nil {
		return snap, nil
	}

	snap.Location, err = c.exporter.Export(ctx, snap.Name, snap.Data)

	if err != nil {
		return Snapshot{}, fmt.Errorf("error exporting snapshot: %w", err)
	}

	return snap, nil
}

// SnapshotName returns the file name for a snapshot taken at t
func SnapshotName(t time.Time) string {
	return fmt.Sprintf("Snapshot_%s.jpg", t.Format("20060102_150405"))
}
