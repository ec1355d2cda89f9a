package repository

import (
	"time"

	"detectweb/internal/model"
)

// UploadRepository defines the interface for upload record operations.
type UploadRepository interface {
	// Create operations
	Insert(upload *model.Upload) (int64, error)

	// Read operations
	GetByFilename(filename string) (*model.Upload, error)
	ListOlderThan(cutoff time.Time) ([]model.Upload, error)
	Count() (int, error)
	TotalSize() (int64, error)

	// Delete operations
	Delete(id int64) error
}
