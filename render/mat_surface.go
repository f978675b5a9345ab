package render

import (
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-camdetect/postprocess"
	"gocv.io/x/gocv"
)

// MatSurface draws on a GoCV Mat.  GoCV passes colors to OpenCV in BGR order,
// so the Mat must be BGR or BGRA for colors to come out as given.
type MatSurface struct {
	img  *gocv.Mat
	font MatFont
}

// NewMatSurface returns a surface drawing on img
func NewMatSurface(img *gocv.Mat, font MatFont) *MatSurface {
	return &MatSurface{
		img:  img,
		font: font,
	}
}

// Size returns the Mat dimensions
func (s *MatSurface) Size() image.Point {
	return image.Pt(s.img.Cols(), s.img.Rows())
}

// StrokeRect draws the rectangle outline
func (s *MatSurface) StrokeRect(r postprocess.Rect, c color.RGBA, width float64) {

	thickness := int(math.Round(width))

	if thickness < 1 {
		thickness = 1
	}

	gocv.Rectangle(s.img, toImageRect(r), c, thickness)
}

// FillRect draws a filled rectangle
func (s *MatSurface) FillRect(r postprocess.Rect, c color.RGBA) {
	gocv.Rectangle(s.img, toImageRect(r), c, -1)
}

// MeasureText returns the text size as reported by OpenCV, the height
// excludes the baseline
func (s *MatSurface) MeasureText(text string, size float64) (w, h float64) {
	sz := gocv.GetTextSize(text, s.font.Face, s.font.scale(size), s.font.Thickness)
	return float64(sz.X), float64(sz.Y)
}

// DrawText draws text with the bottom left corner at the baseline point
func (s *MatSurface) DrawText(text string, x, y float64, c color.RGBA, size float64) {
	gocv.PutTextWithParams(s.img, text, image.Pt(int(math.Round(x)), int(math.Round(y))),
		s.font.Face, s.font.scale(size), c, s.font.Thickness, s.font.LineType, false)
}

// toImageRect rounds the rect edges to whole pixels
func toImageRect(r postprocess.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(float64(r.Left))),
		int(math.Round(float64(r.Top))),
		int(math.Round(float64(r.Right))),
		int(math.Round(float64(r.Bottom))),
	)
}
