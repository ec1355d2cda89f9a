package model

// Detection represents a single object found in an image.
// BBox holds absolute pixel coordinates [x1, y1, x2, y2] (top-left, bottom-right).
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
}
