package render

import (
	"image/color"
	"unicode"
	"unicode/utf8"

	"github.com/swdee/go-camdetect/postprocess"
)

var (
	// letterColors is the box color palette, one entry per letter of the
	// alphabet A-Z.  Labels sharing a first letter share a color.
	letterColors = [26]color.RGBA{
		{R: 255, G: 56, B: 56, A: 255},   // A #FF3838
		{R: 255, G: 112, B: 31, A: 255},  // B #FF701F
		{R: 255, G: 178, B: 29, A: 255},  // C #FFB21D
		{R: 207, G: 210, B: 49, A: 255},  // D #CFD231
		{R: 72, G: 249, B: 10, A: 255},   // E #48F90A
		{R: 26, G: 147, B: 52, A: 255},   // F #1A9334
		{R: 0, G: 212, B: 187, A: 255},   // G #00D4BB
		{R: 0, G: 194, B: 255, A: 255},   // H #00C2FF
		{R: 52, G: 69, B: 147, A: 255},   // I #344593
		{R: 100, G: 115, B: 255, A: 255}, // J #6473FF
		{R: 0, G: 24, B: 236, A: 255},    // K #0018EC
		{R: 132, G: 56, B: 255, A: 255},  // L #8438FF
		{R: 82, G: 0, B: 133, A: 255},    // M #520085
		{R: 255, G: 149, B: 200, A: 255}, // N #FF95C8
		{R: 255, G: 55, B: 199, A: 255},  // O #FF37C7
		{R: 255, G: 157, B: 151, A: 255}, // P #FF9D97
		{R: 44, G: 153, B: 168, A: 255},  // Q #2C99A8
		{R: 61, G: 219, B: 134, A: 255},  // R #3DDB86
		{R: 203, G: 56, B: 255, A: 255},  // S #CB38FF
		{R: 146, G: 204, B: 23, A: 255},  // T #92CC17
		{R: 250, G: 128, B: 114, A: 255}, // U #FA8072
		{R: 64, G: 255, B: 0, A: 255},    // V #40FF00
		{R: 255, G: 64, B: 0, A: 255},    // W #FF4000
		{R: 64, G: 0, B: 255, A: 255},    // X #4000FF
		{R: 0, G: 128, B: 255, A: 255},   // Y #0080FF
		{R: 210, G: 105, B: 30, A: 255},  // Z #D2691E
	}

	// DefaultColor is used for labels that do not start with a letter
	DefaultColor = letterColors[0]

	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// ColorOf returns the box color for the given label, picked from the first
// character of the label regardless of case.  Empty labels and labels
// starting with anything other than A-Z use DefaultColor.
func ColorOf(label string) color.RGBA {

	r, _ := utf8.DecodeRuneInString(label)
	r = unicode.ToUpper(r)

	if r >= 'A' && r <= 'Z' {
		return letterColors[r-'A']
	}

	return DefaultColor
}

// ColorOfDetection returns the box color for the detection's top category,
// or DefaultColor when it has none
func ColorOfDetection(det postprocess.Detection) color.RGBA {

	cat, ok := det.Top()

	if !ok {
		return DefaultColor
	}

	return ColorOf(cat.Label)
}
