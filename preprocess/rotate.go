package preprocess

import (
	"fmt"

	"gocv.io/x/gocv"
)

// NormaliseRotation maps any multiple of 90 degrees into the range [0,360)
func NormaliseRotation(degrees int) int {
	return ((degrees % 360) + 360) % 360
}

// RotatedSize returns the dimensions of a width x height image after being
// rotated by the given degrees
func RotatedSize(width, height, degrees int) (int, int) {

	switch NormaliseRotation(degrees) {
	case 90, 270:
		return height, width
	default:
		return width, height
	}
}

// Rotate rotates src clockwise by degrees into dst.  Only multiples of 90
// are supported, which is what camera sensors report.
func Rotate(src gocv.Mat, dst *gocv.Mat, degrees int) error {

	switch NormaliseRotation(degrees) {
	case 0:
		src.CopyTo(dst)
	case 90:
		gocv.Rotate(src, dst, gocv.Rotate90Clockwise)
	case 180:
		gocv.Rotate(src, dst, gocv.Rotate180Clockwise)
	case 270:
		gocv.Rotate(src, dst, gocv.Rotate90CounterClockwise)
	default:
		return fmt.Errorf("unsupported rotation of %d degrees", degrees)
	}

	return nil
}
