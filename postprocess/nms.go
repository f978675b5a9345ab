package postprocess

import (
	"math"
)

// NMS implements a class aware Non-Maximum Suppression (NMS) over detections.
// Detections are visited from highest to lowest top score and any later
// detection with the same top label overlapping a kept one by more than the
// IoU threshold is suppressed.  The result is ordered by descending score.
func NMS(dets []Detection, threshold float32) []Detection {

	order := TopK(dets, 0)
	suppressed := make([]bool, len(order))
	out := make([]Detection, 0, len(order))

	for i := range order {

		if suppressed[i] {
			continue
		}

		out = append(out, order[i])
		ci, _ := order[i].Top()

		for j := i + 1; j < len(order); j++ {

			if suppressed[j] {
				continue
			}

			cj, _ := order[j].Top()

			if ci.Label != cj.Label {
				continue
			}

			if IoU(order[i].Box, order[j].Box) > threshold {
				suppressed[j] = true
			}
		}
	}

	return out
}

// IoU works out the Intersection over Union value of two boxes
func IoU(a, b Rect) float32 {

	a = a.Canon()
	b = b.Canon()

	w := math.Max(0, math.Min(float64(a.Right), float64(b.Right))-math.Max(float64(a.Left), float64(b.Left)))
	h := math.Max(0, math.Min(float64(a.Bottom), float64(b.Bottom))-math.Max(float64(a.Top), float64(b.Top)))
	intersection := float32(w * h)

	union := a.Width()*a.Height() + b.Width()*b.Height() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}
