package handler

import (
	"net/http"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/repository"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/disk"
)

// ModelInfo is implemented by detectors that can describe their loaded model.
type ModelInfo interface {
	ModelPath() string
	LayoutName() string
}

// ClientCounter reports connected live-event viewers.
type ClientCounter interface {
	GetClientCount() int
}

type healthResponse struct {
	Status    string        `json:"status"`
	Model     *modelStatus  `json:"model,omitempty"`
	Uploads   *uploadStatus `json:"uploads,omitempty"`
	Disk      *diskStatus   `json:"disk,omitempty"`
	Viewers   int           `json:"viewers"`
	Retention string        `json:"retention"`
}

type modelStatus struct {
	Path   string `json:"path"`
	Layout string `json:"layout"`
}

type uploadStatus struct {
	Count     int    `json:"count"`
	TotalSize string `json:"total_size"`
}

type diskStatus struct {
	Free        string  `json:"free"`
	Total       string  `json:"total"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthHandler reports model, upload storage, disk and viewer state.
// Any of model, uploadRepo and viewers may be nil.
func HealthHandler(cfg *config.Config, model ModelInfo, uploadRepo repository.UploadRepository,
	viewers ClientCounter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := healthResponse{
			Status:    "ok",
			Retention: cfg.UploadRetention.String(),
		}

		if model != nil {
			response.Model = &modelStatus{Path: model.ModelPath(), Layout: model.LayoutName()}
		}

		if uploadRepo != nil {
			count, err := uploadRepo.Count()
			if err != nil {
				logger.Error("Error counting uploads: %v", err)
				response.Status = "degraded"
			}
			size, err := uploadRepo.TotalSize()
			if err != nil {
				logger.Error("Error getting upload size: %v", err)
				response.Status = "degraded"
			}
			response.Uploads = &uploadStatus{Count: count, TotalSize: units.HumanSize(float64(size))}
		}

		response.Disk = diskUsage(cfg.UploadDirectory)

		if viewers != nil {
			response.Viewers = viewers.GetClientCount()
		}

		respondJSON(w, response, http.StatusOK)
	}
}

// diskUsage reports the filesystem holding dir, falling back to the working
// directory when dir does not exist yet.
func diskUsage(dir string) *diskStatus {
	usage, err := disk.Usage(dir)
	if err != nil {
		if usage, err = disk.Usage("."); err != nil {
			return nil
		}
	}
	return &diskStatus{
		Free:        units.HumanSize(float64(usage.Free)),
		Total:       units.HumanSize(float64(usage.Total)),
		UsedPercent: usage.UsedPercent,
	}
}
