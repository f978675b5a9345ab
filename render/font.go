package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Style defines the paint settings used to render the overlay.  It is a value
// type, a copy is taken by the Overlay on construction and never mutated.
type Style struct {
	// BoxStrokeWidth is the line width of the bounding box
	BoxStrokeWidth float64
	// TextSize is the pixel size of the label text
	TextSize float64
	// TextColor is the color of the label text
	TextColor color.RGBA
	// LabelBackground is the fill color of the chip behind the label text
	LabelBackground color.RGBA
	// LabelPadding is added to the measured text width and height to size
	// the label chip
	LabelPadding float64
}

// DefaultStyle returns default style settings
func DefaultStyle() Style {
	return Style{
		BoxStrokeWidth:  8,
		TextSize:        50,
		TextColor:       White,
		LabelBackground: Black,
		LabelPadding:    8,
	}
}

// MatFont defines the parameters for rendering text on a Mat using GoCV's
// Hershey fonts
type MatFont struct {
	Face      gocv.HersheyFont
	Thickness int
	LineType  gocv.LineType
	// PixelSize is the glyph height in pixels of the Face at a font scale of
	// 1.0, used to convert a Style.TextSize into a Hershey font scale
	PixelSize float64
}

// DefaultMatFont returns default font settings
func DefaultMatFont() MatFont {
	return MatFont{
		Face:      gocv.FontHersheySimplex,
		Thickness: 2,
		LineType:  gocv.LineAA,
		PixelSize: 22,
	}
}

// scale returns the Hershey font scale producing text of the given pixel size
func (f MatFont) scale(size float64) float64 {

	if f.PixelSize <= 0 {
		return size
	}

	return size / f.PixelSize
}
