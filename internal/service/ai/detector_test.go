package ai

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/model"

	"github.com/disintegration/imaging"
)

func newTestDetector() *DetectorService {
	return &DetectorService{
		layout:    LayoutYOLO,
		inputSize: 640,
		logger:    logger.NewDiscardLogger(),
	}
}

func writeBlackPNG(t *testing.T, dir string, size int) string {
	t.Helper()

	img := imaging.New(size, size, color.NRGBA{0, 0, 0, 255})
	path := filepath.Join(dir, "black.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}
	return path
}

func TestDetect_ImageNotFound(t *testing.T) {
	d := newTestDetector()

	_, err := d.Detect(filepath.Join(t.TempDir(), "nonexistent_image.jpg"), 0.25)
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("Expected ErrImageNotFound, got %v", err)
	}
}

func TestDetect_InvalidThreshold(t *testing.T) {
	d := newTestDetector()

	for _, conf := range []float64{-0.01, 1.01} {
		if _, err := d.Detect("whatever.png", conf); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("Detect(conf=%v): expected ErrInvalidThreshold, got %v", conf, err)
		}
	}
}

func TestDetect_UndecodableImage(t *testing.T) {
	d := newTestDetector()

	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := d.Detect(path, 0.25)
	if err == nil {
		t.Fatal("Expected decode error")
	}
	if errors.Is(err, ErrImageNotFound) {
		t.Errorf("Decode failure must not look like a missing file: %v", err)
	}
}

func TestDetect_UndecodableImageLogsStack(t *testing.T) {
	logDir := t.TempDir()
	log, err := logger.NewLogger(logDir)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer log.Close()

	d := newTestDetector()
	d.logger = log

	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := d.Detect(path, 0.25); err == nil {
		t.Fatal("Expected decode error")
	}

	data, err := os.ReadFile(filepath.Join(logDir, logger.ErrorFile))
	if err != nil {
		t.Fatalf("Failed to read error log: %v", err)
	}
	logged := string(data)
	if !strings.Contains(logged, "failed to decode image") {
		t.Errorf("Expected decode failure in error log, got %q", logged)
	}
	if !strings.Contains(logged, "at ") || !strings.Contains(logged, "readImage") {
		t.Errorf("Expected a stack frame in error log, got %q", logged)
	}
}

func TestNewDetectorService_MissingModel(t *testing.T) {
	cfg := &config.Config{
		ModelPath:    filepath.Join(t.TempDir(), "missing.onnx"),
		InputSize:    640,
		NMSThreshold: 0.45,
	}

	if _, err := NewDetectorService(cfg, logger.NewDiscardLogger()); err == nil {
		t.Fatal("Expected error for missing model file")
	}
}

func TestNewDetectorService_MissingLabels(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(modelPath, []byte("weights"), 0644); err != nil {
		t.Fatalf("Failed to write model: %v", err)
	}

	cfg := &config.Config{
		ModelPath:  modelPath,
		LabelsPath: filepath.Join(dir, "missing.yaml"),
		InputSize:  640,
	}

	if _, err := NewDetectorService(cfg, logger.NewDiscardLogger()); err == nil {
		t.Fatal("Expected error for missing labels file")
	}
}

func TestAnnotate_DrawsBoxesAndOverwritesFile(t *testing.T) {
	d := newTestDetector()
	path := writeBlackPNG(t, t.TempDir(), 100)

	detections := []model.Detection{
		{Class: "person", Confidence: 0.95, BBox: [4]int{10, 20, 60, 80}},
	}

	if err := d.Annotate(path, detections); err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen annotated image: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 100, 100) {
		t.Errorf("Annotation changed image size: %v", img.Bounds())
	}

	r, g, b, _ := img.At(10, 50).RGBA()
	if g>>8 < 200 || r>>8 > 50 || b>>8 > 50 {
		t.Errorf("Expected green box edge at (10,50), got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)
	}

	r, g, b, _ = img.At(90, 90).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("Expected untouched black pixel at (90,90), got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestAnnotate_ImageNotFound(t *testing.T) {
	d := newTestDetector()

	err := d.Annotate(filepath.Join(t.TempDir(), "gone.png"), nil)
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("Expected ErrImageNotFound, got %v", err)
	}
}

func TestLabelFor(t *testing.T) {
	yolo := &DetectorService{layout: LayoutYOLO, labels: []string{"person", "bicycle", "car"}}
	if got := yolo.labelFor(2); got != "car" {
		t.Errorf("YOLO labelFor(2) = %q, expected car", got)
	}

	ssd := &DetectorService{layout: LayoutSSD, labels: []string{"person", "bicycle", "car"}}
	if got := ssd.labelFor(3); got != "car" {
		t.Errorf("SSD labelFor(3) = %q, expected car", got)
	}
}
