package camera

import (
	"fmt"
	"image"
	"sync"

	camdetect "github.com/swdee/go-camdetect"
	"github.com/swdee/go-camdetect/preprocess"
	"gocv.io/x/gocv"
)

// Preview holds the latest camera frame as shown on screen, rotated upright
// and scaled to fill the view with the overflow cropped from the right and
// bottom edges.  This is the same mapping the overlay uses for boxes.
type Preview struct {
	mu      sync.Mutex
	view    image.Point
	resizer *preprocess.Resizer
	rotated gocv.Mat
	scaled  gocv.Mat
	img     *image.RGBA
}

// NewPreview returns an empty preview for a view of the given size
func NewPreview(viewWidth, viewHeight int) *Preview {
	return &Preview{
		view:    image.Pt(viewWidth, viewHeight),
		rotated: gocv.NewMat(),
		scaled:  gocv.NewMat(),
	}
}

// Size returns the view dimensions
func (p *Preview) Size() image.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Update renders the RGBA frame into the preview
func (p *Preview) Update(frame gocv.Mat, rotation int) error {

	if frame.Empty() || frame.Channels() != 4 {
		return fmt.Errorf("preview requires an RGBA frame")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := preprocess.Rotate(frame, &p.rotated, rotation); err != nil {
		return err
	}

	w, h := p.rotated.Cols(), p.rotated.Rows()

	// resizer is rebuilt when the camera resolution or rotation changes
	if p.resizer == nil || p.resizer.SrcWidth() != w || p.resizer.SrcHeight() != h {

		if p.resizer != nil {
			p.resizer.Close()
		}

		p.resizer = preprocess.NewResizer(w, h, p.view.X, p.view.Y)
	}

	if p.resizer.ScaleFactor() == 0 {
		return fmt.Errorf("invalid preview view size %v", p.view)
	}

	p.resizer.FillResize(p.rotated, &p.scaled)

	if p.img == nil || p.img.Bounds().Size() != p.view {
		p.img = image.NewRGBA(image.Rect(0, 0, p.view.X, p.view.Y))
	}

	// Mat rows are contiguous after CopyTo so the pixel layout matches
	copy(p.img.Pix, p.scaled.ToBytes())

	return nil
}

// Snapshot returns a copy of the pixels currently shown.  It returns
// ErrCaptureUnavailable until the first frame has been rendered.
func (p *Preview) Snapshot() (image.Image, error) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.img == nil {
		return nil, fmt.Errorf("%w: no camera frame shown yet", camdetect.ErrCaptureUnavailable)
	}

	img := image.NewRGBA(p.img.Rect)
	copy(img.Pix, p.img.Pix)

	return img, nil
}

// Reset blanks the preview, used when the camera is unbound
func (p *Preview) Reset() {
	p.mu.Lock()
	p.img = nil
	p.mu.Unlock()
}

// Close frees the preview buffers
func (p *Preview) Close() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resizer != nil {
		p.resizer.Close()
		p.resizer = nil
	}

	p.rotated.Close()

	return p.scaled.Close()
}

var _ camdetect.Preview = (*Preview)(nil)
