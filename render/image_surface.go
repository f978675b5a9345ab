package render

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/swdee/go-camdetect/postprocess"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var ttf *truetype.Font

// init parses the Go regular font used for label text
func init() {
	var err error
	ttf, err = truetype.Parse(goregular.TTF)

	if err != nil {
		panic(err)
	}
}

// ImageSurface draws on an in memory RGBA image without needing OpenCV
type ImageSurface struct {
	dc *gg.Context
	// faces caches font faces by pixel size
	faces map[float64]font.Face
}

// NewImageSurface returns a surface drawing directly on img
func NewImageSurface(img *image.RGBA) *ImageSurface {
	return &ImageSurface{
		dc:    gg.NewContextForRGBA(img),
		faces: make(map[float64]font.Face),
	}
}

// Image returns the image being drawn on
func (s *ImageSurface) Image() image.Image {
	return s.dc.Image()
}

// Size returns the image dimensions
func (s *ImageSurface) Size() image.Point {
	return image.Pt(s.dc.Width(), s.dc.Height())
}

// StrokeRect draws the rectangle outline centered on its edges
func (s *ImageSurface) StrokeRect(r postprocess.Rect, c color.RGBA, width float64) {
	s.dc.SetColor(c)
	s.dc.SetLineWidth(width)
	s.dc.DrawRectangle(float64(r.Left), float64(r.Top), float64(r.Width()), float64(r.Height()))
	s.dc.Stroke()
}

// FillRect draws a filled rectangle
func (s *ImageSurface) FillRect(r postprocess.Rect, c color.RGBA) {
	s.dc.SetColor(c)
	s.dc.DrawRectangle(float64(r.Left), float64(r.Top), float64(r.Width()), float64(r.Height()))
	s.dc.Fill()
}

// MeasureText returns the ink bounds of the text rounded up to whole pixels,
// the height is measured from the baseline up as OpenCV does
func (s *ImageSurface) MeasureText(text string, size float64) (w, h float64) {
	bounds, _ := font.BoundString(s.face(size), text)
	return float64((bounds.Max.X - bounds.Min.X).Ceil()), float64((-bounds.Min.Y).Ceil())
}

// DrawText draws text with its baseline at y
func (s *ImageSurface) DrawText(text string, x, y float64, c color.RGBA, size float64) {
	s.dc.SetFontFace(s.face(size))
	s.dc.SetColor(c)
	s.dc.DrawString(text, x, y)
}

// face returns the cached font face for the pixel size
func (s *ImageSurface) face(size float64) font.Face {

	if f, ok := s.faces[size]; ok {
		return f
	}

	f := truetype.NewFace(ttf, &truetype.Options{Size: size})
	s.faces[size] = f

	return f
}
