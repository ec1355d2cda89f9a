package model

import "time"

// DetectionReport is the outcome of processing one upload.
type DetectionReport struct {
	Filename    string        `json:"filename"`
	Detections  []Detection   `json:"detections"`
	ResultImage string        `json:"result_image,omitempty"`
	Annotated   bool          `json:"-"`
	Elapsed     time.Duration `json:"-"`
	Timestamp   time.Time     `json:"timestamp"`
}
