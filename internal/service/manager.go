package service

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"detectweb/internal/logger"
	"detectweb/internal/model"
	"detectweb/internal/service/storage"
	"detectweb/internal/service/websocket"
)

// Detector runs object detection on stored images.
type Detector interface {
	Detect(path string, confidence float64) ([]model.Detection, error)
	Annotate(path string, detections []model.Detection) error
}

// Broadcaster publishes detection events to live viewers.
type Broadcaster interface {
	Broadcast(message []byte) bool
}

// Manager runs the upload -> detect -> annotate -> notify pipeline.
type Manager struct {
	detector   Detector
	store      *storage.UploadStore
	hub        Broadcaster
	logger     *logger.Logger
	confidence float64
}

// NewManager wires the pipeline. hub may be nil when live events are not needed.
func NewManager(detector Detector, store *storage.UploadStore, hub *websocket.HubService, confidence float64, logger *logger.Logger) *Manager {
	m := &Manager{
		detector:   detector,
		store:      store,
		logger:     logger,
		confidence: confidence,
	}
	if hub != nil {
		m.hub = hub
	}
	return m
}

// UploadURL is the public path under which a stored upload is served.
func UploadURL(filename string) string {
	return "/static/uploads/" + filename
}

// StoreError marks a failure to persist the upload, as opposed to a detection failure.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return "store upload: " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// ProcessUpload stores the image read from r and runs detection on it.
// With annotate set the stored file is overwritten with boxes and labels
// drawn on it and the report carries its URL. An annotation failure is
// logged and the unannotated image is kept.
func (m *Manager) ProcessUpload(originalName string, r io.Reader, annotate bool) (*model.DetectionReport, error) {
	upload, err := m.store.Save(originalName, r)
	if err != nil {
		return nil, &StoreError{Err: err}
	}

	start := time.Now()
	detections, err := m.detector.Detect(upload.FilePath, m.confidence)
	if err != nil {
		m.logger.Error("Detection failed for %s: %v", upload.Filename, err)
		return nil, fmt.Errorf("detect %s: %w", upload.Filename, err)
	}
	if detections == nil {
		detections = []model.Detection{}
	}

	report := &model.DetectionReport{
		Filename:   upload.Filename,
		Detections: detections,
		Timestamp:  upload.CreatedAt,
	}

	if annotate {
		if err := m.detector.Annotate(upload.FilePath, detections); err != nil {
			m.logger.Warning("Failed to annotate %s, keeping original image: %v", upload.Filename, err)
		} else {
			report.Annotated = true
		}
		report.ResultImage = UploadURL(upload.Filename)
	}
	report.Elapsed = time.Since(start)

	m.logger.Info("📷 %s: %d detection(s) in %v", upload.Filename, len(detections), report.Elapsed.Round(time.Millisecond))
	m.notify(report)

	return report, nil
}

// notify sends the report to live viewers, if any.
func (m *Manager) notify(report *model.DetectionReport) {
	if m.hub == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		m.logger.Error("Failed to encode detection event: %v", err)
		return
	}
	m.hub.Broadcast(payload)
}
