package render

import (
	"image"
	"image/color"

	"github.com/swdee/go-camdetect/postprocess"
)

// Surface is a canvas the overlay can be drawn on.  Coordinates are in the
// surface's own pixel space with the origin at the top left.
type Surface interface {
	// Size returns the width and height of the surface in pixels
	Size() image.Point
	// StrokeRect draws the outline of the rectangle
	StrokeRect(r postprocess.Rect, c color.RGBA, width float64)
	// FillRect draws a filled rectangle
	FillRect(r postprocess.Rect, c color.RGBA)
	// MeasureText returns the width and height of the bounding box of the
	// rendered text
	MeasureText(text string, size float64) (w, h float64)
	// DrawText draws text with its left edge at x and its baseline at y
	DrawText(text string, x, y float64, c color.RGBA, size float64)
}

// Viewport is the on screen view the overlay is shown on
type Viewport interface {
	// Size returns the current laid out width and height of the view, which
	// is zero before layout
	Size() image.Point
	// Invalidate requests the view is redrawn
	Invalidate()
}
