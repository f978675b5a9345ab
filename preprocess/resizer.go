package preprocess

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Resizer defines the struct used for scaling camera frames to fill a view
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width of the view to fill
	destWidth int
	// destHeight is the height of the view to fill
	destHeight int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// scale applied to both axes
	scale float32
	// resize dimensions before cropping
	resizeW int
	resizeH int
}

// NewResizer returns a resizer used for scaling a source image up or down
// until it covers the destination dimensions
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// preCalc the scale factor and resize dimensions, the larger of the two axis
// ratios is used so the scaled image overflows the destination on one axis
func (r *Resizer) preCalc() {

	r.scale = 0
	r.resizeW = 0
	r.resizeH = 0

	if r.srcWidth <= 0 || r.srcHeight <= 0 || r.destWidth <= 0 || r.destHeight <= 0 {
		return
	}

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleW

	if scaleH > scaleW {
		r.scale = scaleH
	}

	// round up so rounding never leaves the resized image short of the view
	r.resizeW = int(math.Ceil(float64(float32(r.srcWidth) * r.scale)))
	r.resizeH = int(math.Ceil(float64(float32(r.srcHeight) * r.scale)))

	if r.resizeW < r.destWidth {
		r.resizeW = r.destWidth
	}

	if r.resizeH < r.destHeight {
		r.resizeH = r.destHeight
	}
}

// FillResize scales src to cover the destination dimensions and crops the
// overflow keeping the top left corner, matching how the overlay maps boxes
// into view space.  dest is left untouched if the dimensions are degenerate.
func (r *Resizer) FillResize(src gocv.Mat, dest *gocv.Mat) {

	if r.scale == 0 {
		return
	}

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationLinear)

	crop := r.tempMat.Region(image.Rect(0, 0, r.destWidth, r.destHeight))
	defer crop.Close()

	crop.CopyTo(dest)
}

// ScaleFactor returns the scale factor used in fill resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
