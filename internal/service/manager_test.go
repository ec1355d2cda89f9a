package service

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"detectweb/internal/logger"
	"detectweb/internal/model"
	"detectweb/internal/service/storage"

	"github.com/google/go-cmp/cmp"
)

type stubDetector struct {
	detections  []model.Detection
	detectErr   error
	annotateErr error
	gotPath     string
	gotConf     float64
	annotated   []string
}

func (s *stubDetector) Detect(path string, confidence float64) ([]model.Detection, error) {
	s.gotPath, s.gotConf = path, confidence
	return s.detections, s.detectErr
}

func (s *stubDetector) Annotate(path string, detections []model.Detection) error {
	s.annotated = append(s.annotated, path)
	return s.annotateErr
}

type recordingHub struct {
	messages [][]byte
}

func (h *recordingHub) Broadcast(message []byte) bool {
	h.messages = append(h.messages, message)
	return true
}

func newTestManager(t *testing.T, detector Detector) (*Manager, *recordingHub) {
	t.Helper()

	log := logger.NewDiscardLogger()
	store := storage.NewUploadStore(filepath.Join(t.TempDir(), "uploads"), nil, log)
	m := NewManager(detector, store, nil, 0.25, log)
	hub := &recordingHub{}
	m.hub = hub
	return m, hub
}

var personDetection = []model.Detection{
	{Class: "person", Confidence: 0.95, BBox: [4]int{100, 100, 200, 200}},
}

func TestProcessUpload_ReturnsDetectorOutput(t *testing.T) {
	detector := &stubDetector{detections: personDetection}
	m, hub := newTestManager(t, detector)

	report, err := m.ProcessUpload("test.png", strings.NewReader("png"), false)
	if err != nil {
		t.Fatalf("ProcessUpload failed: %v", err)
	}

	if diff := cmp.Diff(personDetection, report.Detections); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}
	if detector.gotConf != 0.25 {
		t.Errorf("Expected configured threshold 0.25, got %v", detector.gotConf)
	}
	if filepath.Base(detector.gotPath) != report.Filename {
		t.Errorf("Detector ran on %s, report names %s", detector.gotPath, report.Filename)
	}
	if _, err := os.Stat(detector.gotPath); err != nil {
		t.Errorf("Upload should exist on disk: %v", err)
	}
	if report.ResultImage != "" || len(detector.annotated) != 0 {
		t.Error("Annotation should not run when disabled")
	}
	if len(hub.messages) != 1 {
		t.Fatalf("Expected 1 broadcast event, got %d", len(hub.messages))
	}
}

func TestProcessUpload_Annotates(t *testing.T) {
	detector := &stubDetector{detections: personDetection}
	m, _ := newTestManager(t, detector)

	report, err := m.ProcessUpload("test.png", strings.NewReader("png"), true)
	if err != nil {
		t.Fatalf("ProcessUpload failed: %v", err)
	}

	if len(detector.annotated) != 1 {
		t.Fatalf("Expected one annotation, got %d", len(detector.annotated))
	}
	if !report.Annotated {
		t.Error("Expected report to be marked annotated")
	}
	if report.ResultImage != "/static/uploads/"+report.Filename {
		t.Errorf("Unexpected result image URL %q", report.ResultImage)
	}
}

func TestProcessUpload_AnnotationFailureKeepsResult(t *testing.T) {
	detector := &stubDetector{detections: personDetection, annotateErr: errors.New("draw failed")}
	m, _ := newTestManager(t, detector)

	report, err := m.ProcessUpload("test.png", strings.NewReader("png"), true)
	if err != nil {
		t.Fatalf("Annotation failure must not fail the request: %v", err)
	}
	if report.Annotated {
		t.Error("Report should not be marked annotated")
	}
	if len(report.Detections) != 1 {
		t.Errorf("Expected detections to be kept, got %d", len(report.Detections))
	}
}

func TestProcessUpload_DetectionError(t *testing.T) {
	sentinel := errors.New("forward pass failed")
	m, hub := newTestManager(t, &stubDetector{detectErr: sentinel})

	_, err := m.ProcessUpload("test.png", strings.NewReader("png"), false)
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped detector error, got %v", err)
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		t.Error("Detection failure must not be reported as a store failure")
	}
	if len(hub.messages) != 0 {
		t.Error("No event should be broadcast for a failed detection")
	}
}

func TestProcessUpload_StoreError(t *testing.T) {
	log := logger.NewDiscardLogger()

	// a file where the upload directory should be
	blocker := filepath.Join(t.TempDir(), "uploads")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	m := NewManager(&stubDetector{}, storage.NewUploadStore(blocker, nil, log), nil, 0.25, log)

	_, err := m.ProcessUpload("test.png", strings.NewReader("png"), false)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected StoreError, got %v", err)
	}
}

func TestProcessUpload_NoDetectionsEncodesEmptyList(t *testing.T) {
	m, hub := newTestManager(t, &stubDetector{})

	report, err := m.ProcessUpload("empty.jpg", strings.NewReader("jpg"), false)
	if err != nil {
		t.Fatalf("ProcessUpload failed: %v", err)
	}
	if report.Detections == nil {
		t.Fatal("Expected empty, non-nil detections")
	}

	var event map[string]any
	if err := json.Unmarshal(hub.messages[0], &event); err != nil {
		t.Fatalf("Invalid event JSON: %v", err)
	}
	if _, ok := event["detections"].([]any); !ok {
		t.Errorf("Expected detections array in event, got %v", event["detections"])
	}
}
