package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/model"
	"detectweb/internal/service"
)

// Client-facing error messages.
const (
	MsgNoFilePart         = "No file part"
	MsgNoSelectedFile     = "No selected file"
	MsgFileTypeNotAllowed = "File type not allowed"
	MsgFileTooLarge       = "File too large"
	MsgDetectionFailed    = "Detection failed"
	MsgStoreFailed        = "Could not store file"
)

// multipartMemory is how much of a multipart body is kept in memory; the rest spills to temp files.
const multipartMemory = 8 << 20

type detectResponse struct {
	Success     bool              `json:"success"`
	Filename    string            `json:"filename,omitempty"`
	ResultImage string            `json:"result_image,omitempty"`
	Detections  []model.Detection `json:"detections"`
}

// uploadError is a validation failure with the status it maps to.
type uploadError struct {
	status  int
	message string
}

// DetectHandler handles POST /detect: stores the upload, runs detection,
// optionally annotates the stored image and returns its URL with the detections.
func DetectHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return detect(manager, cfg, logger, true)
}

// APIDetectHandler handles POST /api/detect and returns only the detections.
func APIDetectHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return detect(manager, cfg, logger, false)
}

func detect(manager *service.Manager, cfg *config.Config, logger *logger.Logger, withImage bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header, uerr := readUpload(w, r, cfg)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if uerr != nil {
			respondError(w, uerr.message, uerr.status)
			return
		}

		file, err := header.Open()
		if err != nil {
			logger.Error("Failed to open uploaded file %s: %v", header.Filename, err)
			respondError(w, MsgStoreFailed, http.StatusInternalServerError)
			return
		}
		defer file.Close()

		report, err := manager.ProcessUpload(header.Filename, file, withImage && cfg.Annotate)
		if err != nil {
			var storeErr *service.StoreError
			if errors.As(err, &storeErr) {
				logger.Error("Failed to store upload %s: %v", header.Filename, err)
				respondError(w, MsgStoreFailed, http.StatusInternalServerError)
				return
			}
			respondError(w, MsgDetectionFailed, http.StatusInternalServerError)
			return
		}

		response := detectResponse{
			Success:    true,
			Detections: report.Detections,
		}
		if withImage {
			response.Filename = report.Filename
			response.ResultImage = report.ResultImage
			if response.ResultImage == "" {
				response.ResultImage = service.UploadURL(report.Filename)
			}
		}

		respondJSON(w, response, http.StatusOK)
	}
}

// readUpload enforces the body size limit and validates the "file" field, in order:
// size, presence, filename, extension.
func readUpload(w http.ResponseWriter, r *http.Request, cfg *config.Config) (*multipart.FileHeader, *uploadError) {
	if r.ContentLength > cfg.MaxContentLength {
		return nil, &uploadError{http.StatusRequestEntityTooLarge, MsgFileTooLarge}
	}
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxContentLength)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, MsgFileTooLarge}
		}
		// not multipart at all, or no parts: nothing named "file" was sent
		return nil, &uploadError{http.StatusBadRequest, MsgNoFilePart}
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		// a file input submitted without a selection arrives as a plain value;
		// so does a text field named "file", and the two cannot be told apart here
		if _, ok := r.MultipartForm.Value["file"]; ok {
			return nil, &uploadError{http.StatusBadRequest, MsgNoSelectedFile}
		}
		return nil, &uploadError{http.StatusBadRequest, MsgNoFilePart}
	}

	header := files[0]
	if header.Filename == "" {
		return nil, &uploadError{http.StatusBadRequest, MsgNoSelectedFile}
	}
	if !cfg.AllowedFile(header.Filename) {
		return nil, &uploadError{http.StatusBadRequest, MsgFileTypeNotAllowed}
	}
	return header, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
