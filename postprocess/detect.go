package postprocess

import (
	"sort"
	"time"
)

// Rect are the dimensions of the bounding box of a detected object in the
// pixel space of the image given to the detector
type Rect struct {
	Left   float32
	Top    float32
	Right  float32
	Bottom float32
}

// Width of the box
func (r Rect) Width() float32 {
	return r.Right - r.Left
}

// Height of the box
func (r Rect) Height() float32 {
	return r.Bottom - r.Top
}

// Canon returns the rect with swapped edges corrected so Left <= Right and
// Top <= Bottom
func (r Rect) Canon() Rect {

	if r.Left > r.Right {
		r.Left, r.Right = r.Right, r.Left
	}

	if r.Top > r.Bottom {
		r.Top, r.Bottom = r.Bottom, r.Top
	}

	return r
}

// Scale multiplies all four edges by the given factor
func (r Rect) Scale(f float32) Rect {
	return Rect{
		Left:   r.Left * f,
		Top:    r.Top * f,
		Right:  r.Right * f,
		Bottom: r.Bottom * f,
	}
}

// Category is a single classification of a detected object
type Category struct {
	// Label is the class name from the labels file the Model was trained on
	Label string
	// Score is the confidence score in the range [0,1]
	Score float32
	// Index is the line number in the labels file, or -1 if unknown
	Index int
}

// Detection defines the attributes of a single object detected
type Detection struct {
	// Box is the bounding box of the object location
	Box Rect
	// Categories are ordered by rank, only the first is displayed
	Categories []Category
	// ID is a unique ID assigned to the detection result
	ID int64
}

// Top returns the highest ranked category.  ok is false when the detection
// has no categories.
func (d Detection) Top() (cat Category, ok bool) {

	if len(d.Categories) == 0 {
		return Category{Index: -1}, false
	}

	return d.Categories[0], true
}

// Batch is the set of detections produced by a single inference call.  It is
// never modified after being returned by the detection invoker.
type Batch struct {
	// Seq is the sequence number of the frame the batch was produced from
	Seq uint64
	// Detections in the order returned by the detector
	Detections []Detection
	// InferenceTime is the wall clock time spent in the inference call only
	InferenceTime time.Duration
	// ImageWidth and ImageHeight are the dimensions of the (rotated) frame
	// the boxes are relative to
	ImageWidth  int
	ImageHeight int
	// Generation of the detector configuration that produced the batch
	Generation uint64
}

// InferenceMillis returns the inference latency in milliseconds
func (b Batch) InferenceMillis() int64 {
	return b.InferenceTime.Milliseconds()
}

// Len returns the number of detections in the batch
func (b Batch) Len() int {
	return len(b.Detections)
}

// FilterScore drops categories scoring below the threshold and then any
// detection left without a category.  Order is preserved.
func FilterScore(dets []Detection, threshold float32) []Detection {

	out := make([]Detection, 0, len(dets))

	for _, det := range dets {

		cats := make([]Category, 0, len(det.Categories))

		for _, cat := range det.Categories {
			if cat.Score >= threshold {
				cats = append(cats, cat)
			}
		}

		if len(cats) == 0 {
			continue
		}

		det.Categories = cats
		out = append(out, det)
	}

	return out
}

// TopK orders detections by their top category score, highest first, and
// keeps at most k of them.  k <= 0 keeps all.  Equal scores keep their
// original order.
func TopK(dets []Detection, k int) []Detection {

	out := make([]Detection, len(dets))
	copy(out, dets)

	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Top()
		b, _ := out[j].Top()
		return a.Score > b.Score
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}

	return out
}
