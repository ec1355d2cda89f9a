package ai

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/model"
	"detectweb/internal/service/ai/decode"

	"github.com/disintegration/imaging"
	"github.com/mdobak/go-xerrors"
	"gocv.io/x/gocv"
)

var (
	// ErrImageNotFound is returned when the image to analyze does not exist.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidThreshold is returned for confidence thresholds outside [0,1].
	ErrInvalidThreshold = errors.New("confidence threshold must be in [0,1]")
)

// Layout identifies how the network output tensor is organized.
type Layout int

const (
	// LayoutYOLO is the Ultralytics ONNX export: [1, 4+classes, anchors].
	LayoutYOLO Layout = iota
	// LayoutSSD is the TF SSD MobileNet graph: [1, 1, N, 7].
	LayoutSSD
)

func (l Layout) String() string {
	if l == LayoutSSD {
		return "ssd"
	}
	return "yolo"
}

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// classOffset exceeds any supported image width.
const classOffset = 1 << 16

// DetectorService wraps one DNN handle shared by all requests.
// A gocv Net is not safe for concurrent forward passes, so inference is serialized.
type DetectorService struct {
	net          gocv.Net
	netMutex     sync.Mutex
	layout       Layout
	labels       decode.Labels
	inputSize    int
	nmsThreshold float32
	modelPath    string
	logger       *logger.Logger
}

// NewDetectorService loads the network described by the configuration.
// It fails when the model, its config or the label file cannot be loaded.
func NewDetectorService(cfg *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		layout:       LayoutYOLO,
		labels:       decode.COCO,
		inputSize:    cfg.InputSize,
		nmsThreshold: float32(cfg.NMSThreshold),
		modelPath:    cfg.ModelPath,
		logger:       logger,
	}
	if cfg.ModelConfigPath != "" {
		service.layout = LayoutSSD
		service.inputSize = 300
	}

	if cfg.LabelsPath != "" {
		labels, err := decode.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
		service.labels = labels
	}

	if err := service.initializeNet(cfg.ModelPath, cfg.ModelConfigPath); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet(modelPath, configPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("model config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network initialized (%s layout, %d labels): %s", s.layout, len(s.labels), modelPath)
	return nil
}

// Detect runs the network once over the image at path and returns every
// detection scoring at least confidence, in original image pixel coordinates.
func (s *DetectorService) Detect(path string, confidence float64) ([]model.Detection, error) {
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, confidence)
	}

	mat, err := s.readImage(path)
	if err != nil {
		if !errors.Is(err, ErrImageNotFound) {
			s.logger.Error("%s", xerrors.Sprint(err))
		}
		return nil, err
	}
	defer mat.Close()

	start := time.Now()
	candidates, err := s.infer(mat, float32(confidence))
	if err != nil {
		err = xerrors.New(fmt.Errorf("inference failed for %s: %w", path, err))
		s.logger.Error("%s", xerrors.Sprint(err))
		return nil, err
	}

	detections := make([]model.Detection, 0, len(candidates))
	for _, c := range candidates {
		detections = append(detections, model.Detection{
			Class:      s.labelFor(c.ClassID),
			Confidence: float64(c.Score),
			BBox:       c.BBox(),
		})
	}

	s.logger.Info("Detected %d object(s) in %s (%v)", len(detections), path, time.Since(start).Round(time.Millisecond))
	return detections, nil
}

// Annotate draws every detection as a rectangle with a "<class> <confidence>"
// label and overwrites the image at path, keeping its format.
func (s *DetectorService) Annotate(path string, detections []model.Detection) error {
	mat, err := s.readImage(path)
	if err != nil {
		return err
	}
	defer mat.Close()

	annotated := mat.Clone()
	defer annotated.Close()

	for _, detection := range detections {
		rect := image.Rect(detection.BBox[0], detection.BBox[1], detection.BBox[2], detection.BBox[3])
		if err := gocv.Rectangle(&annotated, rect, boxColor, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s %.2f", detection.Class, detection.Confidence)
		pt := image.Pt(detection.BBox[0], max(detection.BBox[1]-5, 12))
		if err := gocv.PutText(&annotated, label, pt, gocv.FontHersheySimplex, 0.5, boxColor, 1); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}

	img, err := annotated.ToImage()
	if err != nil {
		return fmt.Errorf("failed to convert annotated image: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		s.logger.Error("Failed to save annotated image %s: %v", path, err)
		return fmt.Errorf("failed to save annotated image: %w", err)
	}
	return nil
}

// Layout reports which output layout the loaded network uses.
func (s *DetectorService) Layout() Layout {
	return s.layout
}

// LayoutName is the layout as reported by the health endpoint.
func (s *DetectorService) LayoutName() string {
	return s.layout.String()
}

// ModelPath returns the weights file the network was loaded from.
func (s *DetectorService) ModelPath() string {
	return s.modelPath
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.netMutex.Lock()
	defer s.netMutex.Unlock()
	return s.net.Close()
}

// readImage decodes png/jpeg/gif files into a BGR Mat.
func (s *DetectorService) readImage(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return gocv.Mat{}, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return gocv.Mat{}, fmt.Errorf("failed to stat image %s: %w", path, err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return gocv.Mat{}, xerrors.New(fmt.Errorf("failed to decode image %s: %w", path, err))
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image %s: %w", path, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("decoded image is empty: %s", path)
	}
	return mat, nil
}

// infer runs a forward pass and decodes the output, then applies NMS.
func (s *DetectorService) infer(mat gocv.Mat, threshold float32) ([]decode.Candidate, error) {
	var blob gocv.Mat
	switch s.layout {
	case LayoutSSD:
		blob = gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	default:
		blob = gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	}
	defer blob.Close()

	frame := decode.Frame{Width: mat.Cols(), Height: mat.Rows(), InputSize: s.inputSize}

	s.netMutex.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.netMutex.Unlock()
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("network returned an empty output")
	}

	var candidates []decode.Candidate
	switch s.layout {
	case LayoutSSD:
		candidates = decode.SSD(flatten(output, output.Total()/7, 7), frame, threshold)
	default:
		// [1, 4+classes, anchors]
		dims := output.Size()
		if len(dims) != 3 {
			return nil, fmt.Errorf("unexpected output shape %v", dims)
		}
		candidates = decode.YOLO(flatten(output, dims[1], dims[2]), dims[1], dims[2], frame, threshold)
	}

	return s.suppress(candidates, threshold), nil
}

// suppress applies the runtime's non-maximum suppression per class.
// Boxes of different classes are shifted apart so they never overlap.
func (s *DetectorService) suppress(candidates []decode.Candidate, threshold float32) []decode.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		bbox := c.BBox()
		offset := c.ClassID * classOffset
		boxes[i] = image.Rect(bbox[0]+offset, bbox[1], bbox[2]+offset, bbox[3])
		scores[i] = c.Score
	}

	indices := gocv.NMSBoxes(boxes, scores, threshold, s.nmsThreshold)
	kept := make([]decode.Candidate, 0, len(indices))
	for _, idx := range indices {
		kept = append(kept, candidates[idx])
	}
	return kept
}

// labelFor maps a network class id onto the label table.
func (s *DetectorService) labelFor(classID int) string {
	if s.layout == LayoutSSD {
		if idx := decode.COCOPaperIndex(classID); idx >= 0 {
			return s.labels.Name(idx)
		}
	}
	return s.labels.Name(classID)
}

// flatten copies an output blob into a row-major float slice of rows x cols.
func flatten(output gocv.Mat, rows, cols int) []float32 {
	reshaped := output.Reshape(1, rows)
	defer reshaped.Close()

	data := make([]float32, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data = append(data, reshaped.GetFloatAt(r, c))
		}
	}
	return data
}
