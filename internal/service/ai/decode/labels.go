package decode

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Labels maps class indexes to human-readable names.
type Labels []string

// COCO is the 80-class label set the stock YOLOv8 weights are trained on.
var COCO = Labels{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant", "bed",
	"dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// cocoUnusedIDs are the ids of the 91-id COCO paper space that have no class.
var cocoUnusedIDs = []int{12, 26, 29, 30, 45, 66, 68, 69, 71, 83}

// Name returns the label for classID, or "class<N>" when the table has no entry.
func (l Labels) Name(classID int) string {
	if classID >= 0 && classID < len(l) {
		return l[classID]
	}
	return fmt.Sprintf("class%d", classID)
}

// COCOPaperIndex maps a 1-based COCO paper id (as emitted by the TF SSD
// models) onto an index of the 80-class table. It returns -1 for the
// background id, unused ids and ids outside the table.
func COCOPaperIndex(id int) int {
	if id < 1 || id > 90 {
		return -1
	}
	skipped := 0
	for _, unused := range cocoUnusedIDs {
		if unused == id {
			return -1
		}
		if unused < id {
			skipped++
		}
	}
	return id - 1 - skipped
}

// LoadLabels reads a dataset YAML in the Ultralytics layout. Both forms of
// the names key are accepted:
//
//	names: [person, bicycle]
//	names: {0: person, 1: bicycle}
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}

	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse labels file %s: %w", path, err)
	}

	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode label list: %w", err)
		}
		return Labels(names), nil

	case yaml.MappingNode:
		var byIndex map[int]string
		if err := doc.Names.Decode(&byIndex); err != nil {
			return nil, fmt.Errorf("failed to decode label map: %w", err)
		}
		size := 0
		for idx := range byIndex {
			if idx < 0 {
				return nil, fmt.Errorf("negative label index %d", idx)
			}
			if idx+1 > size {
				size = idx + 1
			}
		}
		labels := make(Labels, size)
		for idx := 0; idx < size; idx++ {
			name, ok := byIndex[idx]
			if !ok {
				name = fmt.Sprintf("class%d", idx)
			}
			labels[idx] = name
		}
		return labels, nil
	}

	return nil, fmt.Errorf("labels file %s has no names list", path)
}
