package render

import (
	"fmt"
	"image"
	"math"

	"github.com/swdee/go-camdetect/postprocess"
)

// Overlay renders detection results over the camera preview.  Boxes arrive in
// the pixel space of the frame given to the detector and are scaled up until
// that frame covers the whole view (fill mode, the overflowing axis is
// cropped), so a single scale factor is used for both axes.
//
// Overlay is not safe for concurrent use, all calls must be made from the
// goroutine that owns the view.
type Overlay struct {
	// view is the on screen view, may be nil when only drawing captures
	view Viewport
	// initStyle is the style given on construction and restored by Clear
	initStyle Style
	// style is the current paint style
	style Style
	// batch is the current set of results to draw
	batch postprocess.Batch
	// viewSize is the view geometry read when the batch was set
	viewSize image.Point
	// scale from detector image space to view space
	scale float32
}

// NewOverlay returns an overlay renderer for the given view using style for
// all painting
func NewOverlay(view Viewport, style Style) *Overlay {
	return &Overlay{
		view:      view,
		initStyle: style,
		style:     style,
		scale:     1,
	}
}

// SetResults stores the batch and recomputes the scale factor from the
// current view size and the dimensions of the image the boxes are relative to.
// It does not redraw, call Invalidate afterwards.
func (o *Overlay) SetResults(batch postprocess.Batch, imageHeight, imageWidth int) {

	o.batch = batch

	if o.view != nil {
		o.viewSize = o.view.Size()
	} else {
		o.viewSize = image.Point{}
	}

	o.scale = ScaleToCover(o.viewSize.X, o.viewSize.Y, imageWidth, imageHeight)
}

// Invalidate asks the view to redraw
func (o *Overlay) Invalidate() {
	if o.view != nil {
		o.view.Invalidate()
	}
}

// Clear restores the paint style to the one given on construction, drops all
// results and redraws, leaving an empty overlay
func (o *Overlay) Clear() {
	o.style = o.initStyle
	o.batch = postprocess.Batch{}
	o.Invalidate()
}

// ScaleFactor returns the scale computed by the last SetResults call
func (o *Overlay) ScaleFactor() float32 {
	return o.scale
}

// Batch returns the results currently drawn
func (o *Overlay) Batch() postprocess.Batch {
	return o.batch
}

// Style returns the current paint style
func (o *Overlay) Style() Style {
	return o.style
}

// Draw paints the current results on the surface in the order the detector
// returned them, so later boxes are drawn over earlier ones.
func (o *Overlay) Draw(dst Surface) {

	for _, det := range o.batch.Detections {

		box := det.Box.Scale(o.scale)

		// draw rectangle around detected object
		dst.StrokeRect(box, ColorOfDetection(det), o.style.BoxStrokeWidth)

		text := LabelText(det)

		if text == "" {
			continue
		}

		// draw chip behind the label anchored at the box top left corner
		textW, textH := dst.MeasureText(text, o.style.TextSize)

		dst.FillRect(postprocess.Rect{
			Left:   box.Left,
			Top:    box.Top,
			Right:  box.Left + float32(textW+o.style.LabelPadding),
			Bottom: box.Top + float32(textH+o.style.LabelPadding),
		}, o.style.LabelBackground)

		dst.DrawText(text, float64(box.Left), float64(box.Top)+textH,
			o.style.TextColor, o.style.TextSize)
	}
}

// LabelText returns the text shown for a detection, its top category label
// and score to two decimal places.  Detections without a category have no
// label.
func LabelText(det postprocess.Detection) string {

	cat, ok := det.Top()

	if !ok {
		return ""
	}

	return fmt.Sprintf("%s %.2f", cat.Label, cat.Score)
}

// ScaleToCover returns the factor that scales an image of imgWidth x
// imgHeight up (or down) until it covers a view of viewWidth x viewHeight.
// Degenerate sizes return 0.
func ScaleToCover(viewWidth, viewHeight, imgWidth, imgHeight int) float32 {

	if imgWidth <= 0 || imgHeight <= 0 {
		return 0
	}

	scale := math.Max(float64(viewWidth)/float64(imgWidth),
		float64(viewHeight)/float64(imgHeight))

	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale < 0 {
		return 0
	}

	return float32(scale)
}
