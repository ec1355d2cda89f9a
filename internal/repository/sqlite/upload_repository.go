package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"detectweb/internal/model"
)

// UploadRepository implements repository.UploadRepository for SQLite.
type UploadRepository struct {
	db *DB
}

// NewUploadRepository creates a new SQLite upload repository.
func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Insert adds a new upload record. Timestamps are stored in UTC.
func (r *UploadRepository) Insert(upload *model.Upload) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	createdAt := upload.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO uploads (filename, filepath, filesize, created_at)
		VALUES (?, ?, ?, ?)
	`, upload.Filename, upload.FilePath, upload.FileSize, createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert upload: %w", err)
	}

	return result.LastInsertId()
}

// GetByFilename retrieves an upload by its stored filename. Returns nil when absent.
func (r *UploadRepository) GetByFilename(filename string) (*model.Upload, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var upload model.Upload
	err := r.db.Conn().QueryRow(`
		SELECT id, filename, filepath, filesize, created_at
		FROM uploads WHERE filename = ?
	`, filename).Scan(&upload.ID, &upload.Filename, &upload.FilePath, &upload.FileSize, &upload.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}

	return &upload, nil
}

// ListOlderThan returns uploads created before cutoff, oldest first.
func (r *UploadRepository) ListOlderThan(cutoff time.Time) ([]model.Upload, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, filename, filepath, filesize, created_at
		FROM uploads WHERE created_at < ? ORDER BY created_at
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		var upload model.Upload
		if err := rows.Scan(&upload.ID, &upload.Filename, &upload.FilePath, &upload.FileSize, &upload.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}

	return uploads, rows.Err()
}

// Count returns the number of tracked uploads.
func (r *UploadRepository) Count() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM uploads`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return count, nil
}

// TotalSize returns the summed size in bytes of all tracked uploads.
func (r *UploadRepository) TotalSize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var size int64
	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM uploads`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum upload sizes: %w", err)
	}
	return size, nil
}

// Delete removes an upload record by ID.
func (r *UploadRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM uploads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
