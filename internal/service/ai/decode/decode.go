// Package decode turns raw detector output tensors into candidate boxes in
// image pixel space. It does not depend on OpenCV so it can be tested alone.
package decode

// Candidate is a box that passed the confidence threshold, before NMS.
type Candidate struct {
	X1, Y1, X2, Y2 float32
	Score          float32
	ClassID        int
}

// Frame describes the original image and the network input it was resized to.
type Frame struct {
	Width, Height int // original image size
	InputSize     int // square network input, e.g. 640
}

// YOLO decodes a YOLOv8-style output laid out as [4+classes, anchors] in
// row-major order: rows 0..3 are cx, cy, w, h in input pixels and the
// remaining rows hold per-class scores. Candidates below threshold are dropped.
func YOLO(data []float32, attributes, anchors int, frame Frame, threshold float32) []Candidate {
	if attributes <= 4 || anchors <= 0 || len(data) < attributes*anchors || frame.InputSize <= 0 {
		return nil
	}

	xScale := float32(frame.Width) / float32(frame.InputSize)
	yScale := float32(frame.Height) / float32(frame.InputSize)
	classes := attributes - 4

	var candidates []Candidate
	for i := 0; i < anchors; i++ {
		classID, score := -1, float32(0)
		for c := 0; c < classes; c++ {
			s := data[(4+c)*anchors+i]
			if s > score {
				classID, score = c, s
			}
		}
		if classID < 0 || score < threshold {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		candidates = append(candidates, clamp(Candidate{
			X1:      (cx - w/2) * xScale,
			Y1:      (cy - h/2) * yScale,
			X2:      (cx + w/2) * xScale,
			Y2:      (cy + h/2) * yScale,
			Score:   score,
			ClassID: classID,
		}, frame))
	}
	return candidates
}

// SSD decodes a TF SSD output flattened to rows of
// [batch_id, class_id, confidence, x1, y1, x2, y2] with normalized coordinates.
// Class ids are returned as they come from the network (COCO 91-id space).
func SSD(data []float32, frame Frame, threshold float32) []Candidate {
	const stride = 7

	var candidates []Candidate
	for i := 0; i+stride <= len(data); i += stride {
		confidence := data[i+2]
		if confidence < threshold {
			continue
		}
		candidates = append(candidates, clamp(Candidate{
			X1:      data[i+3] * float32(frame.Width),
			Y1:      data[i+4] * float32(frame.Height),
			X2:      data[i+5] * float32(frame.Width),
			Y2:      data[i+6] * float32(frame.Height),
			Score:   confidence,
			ClassID: int(data[i+1]),
		}, frame))
	}
	return candidates
}

// BBox truncates a candidate to integer pixel coordinates [x1, y1, x2, y2].
func (c Candidate) BBox() [4]int {
	return [4]int{int(c.X1), int(c.Y1), int(c.X2), int(c.Y2)}
}

// clamp keeps a candidate inside the image.
func clamp(c Candidate, frame Frame) Candidate {
	w, h := float32(frame.Width), float32(frame.Height)
	c.X1 = clampf(c.X1, 0, w)
	c.Y1 = clampf(c.Y1, 0, h)
	c.X2 = clampf(c.X2, 0, w)
	c.Y2 = clampf(c.Y2, 0, h)
	return c
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
