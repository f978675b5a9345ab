package postprocess

import (
	"github.com/swdee/go-camdetect/postprocess/result"
)

// ssdRowSize is the number of float values describing each detection in the
// SSD output tensor: [imageID, classID, score, left, top, right, bottom]
const ssdRowSize = 7

// SSD defines the struct for SSD (Single Shot MultiBox Detector) model
// post processing, the output layout used by MobileNet SSD and EfficientDet
// Lite models exported for the OpenCV DNN module
type SSD struct {
	// Params are the Model configuration parameters
	Params SSDParams
	// idGen is the ID generator for the detection results
	idGen *result.IDGenerator
}

// SSDParams defines the struct containing the SSD parameters to use for
// post processing operations
type SSDParams struct {
	// LabelOffset is subtracted from the class ID before looking up the label
	// name.  Models trained with a background class at index 0 and a labels
	// file without it need an offset of 1
	LabelOffset int
	// MaxObjectNumber is the maximum number of rows read from the output
	// tensor
	MaxObjectNumber int
}

// SSDCOCOParams returns an instance of SSDParams configured with default
// values for a Model trained on the COCO dataset featuring:
// - Label Offset: 0, the labels file keeps the background entry at line 0
// - Maximum Object Number: 100
func SSDCOCOParams() SSDParams {
	return SSDParams{
		LabelOffset:     0,
		MaxObjectNumber: 100,
	}
}

// NewSSD returns an instance of the SSD post processor
func NewSSD(p SSDParams) *SSD {
	return &SSD{
		Params: p,
		idGen:  result.NewIDGenerator(),
	}
}

// DetectObjects decodes the flattened [1,1,N,7] output tensor into
// detections.  Box coordinates in the tensor are normalised to [0,1] and are
// scaled to the given image width and height.  Rows scoring below threshold
// are skipped.  Detection order follows the tensor order.
func (s *SSD) DetectObjects(output []float32, imgWidth, imgHeight int,
	labels []string, threshold float32) []Detection {

	rows := len(output) / ssdRowSize

	if s.Params.MaxObjectNumber > 0 && rows > s.Params.MaxObjectNumber {
		rows = s.Params.MaxObjectNumber
	}

	dets := make([]Detection, 0)

	for i := 0; i < rows; i++ {
		row := output[i*ssdRowSize : (i+1)*ssdRowSize]

		// a negative image id marks the end of valid rows
		if row[0] < 0 {
			break
		}

		score := row[2]

		if score < threshold {
			continue
		}

		classID := int(row[1])
		labelIdx := classID - s.Params.LabelOffset

		label := ""

		if labelIdx >= 0 && labelIdx < len(labels) {
			label = labels[labelIdx]
		}

		box := Rect{
			Left:   clampUnit(row[3]) * float32(imgWidth),
			Top:    clampUnit(row[4]) * float32(imgHeight),
			Right:  clampUnit(row[5]) * float32(imgWidth),
			Bottom: clampUnit(row[6]) * float32(imgHeight),
		}.Canon()

		dets = append(dets, Detection{
			Box: box,
			Categories: []Category{
				{Label: label, Score: score, Index: labelIdx},
			},
			ID: s.idGen.GetNext(),
		})
	}

	return dets
}

// clampUnit restricts the value to the range [0,1]
func clampUnit(val float32) float32 {

	if val < 0 {
		return 0
	}

	if val > 1 {
		return 1
	}

	return val
}
