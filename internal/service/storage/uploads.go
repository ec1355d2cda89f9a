package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"detectweb/internal/logger"
	"detectweb/internal/model"
	"detectweb/internal/repository"

	"github.com/docker/go-units"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// maxNameAttempts bounds the collision fallback in Save.
const maxNameAttempts = 5

// UploadStore writes uploaded images to disk under timestamped names and
// tracks them so expired files can be swept.
type UploadStore struct {
	uploadDir  string
	uploadRepo repository.UploadRepository
	logger     *logger.Logger
	now        func() time.Time
}

// NewUploadStore creates a new UploadStore with the target directory and logger.
// uploadRepo may be nil, in which case uploads are not tracked for retention.
func NewUploadStore(uploadDir string, uploadRepo repository.UploadRepository, logger *logger.Logger) *UploadStore {
	return &UploadStore{
		uploadDir:  uploadDir,
		uploadRepo: uploadRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// Dir returns the directory uploads are written to.
func (s *UploadStore) Dir() string {
	return s.uploadDir
}

// Save persists the content of r as {unix_timestamp}_{sanitized name} and records it.
// The upload directory is created when missing. A name that is already taken
// gets a short random segment after the timestamp, so uploads never overwrite
// each other.
func (s *UploadStore) Save(originalName string, r io.Reader) (*model.Upload, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	createdAt := s.now()
	filename := SecureFilename(fmt.Sprintf("%d_%s", createdAt.Unix(), originalName))

	file, err := s.createExclusive(filename)
	for attempt := 1; errors.Is(err, os.ErrExist) && attempt < maxNameAttempts; attempt++ {
		filename = SecureFilename(fmt.Sprintf("%d_%s_%s", createdAt.Unix(), shortID(), originalName))
		file, err = s.createExclusive(filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	fullpath := filepath.Join(s.uploadDir, filename)
	size, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(fullpath)
		return nil, fmt.Errorf("failed to write upload %s: %w", filename, errors.Join(copyErr, closeErr))
	}

	upload := &model.Upload{
		Filename:  filename,
		FilePath:  fullpath,
		FileSize:  size,
		CreatedAt: createdAt,
	}

	if s.uploadRepo != nil {
		id, err := s.uploadRepo.Insert(upload)
		if err != nil {
			// the file is still usable; it just won't be swept
			s.logger.Error("Error saving upload record %s: %v", filename, err)
		} else {
			upload.ID = id
		}
	}

	s.logger.Info("Stored upload %s (%s)", filename, units.HumanSize(float64(size)))
	return upload, nil
}

// Sweep deletes uploads older than maxAge from disk and from the repository.
// It returns the number of uploads removed.
func (s *UploadStore) Sweep(maxAge time.Duration) (int, error) {
	if s.uploadRepo == nil || maxAge <= 0 {
		return 0, nil
	}

	expired, err := s.uploadRepo.ListOlderThan(s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}

	removed := 0
	var freed int64
	for _, upload := range expired {
		if err := os.Remove(upload.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Failed to delete upload %s: %v", upload.FilePath, err)
			continue
		}
		if err := s.uploadRepo.Delete(upload.ID); err != nil {
			s.logger.Error("Failed to delete upload record %s: %v", upload.Filename, err)
			continue
		}
		removed++
		freed += upload.FileSize
	}

	if removed > 0 {
		s.logger.Info("Swept %d expired upload(s), freed %s", removed, units.HumanSize(float64(freed)))
	}
	return removed, nil
}

// Import records image files in the upload directory that have no upload
// record yet, using their modification time as creation time, so that Sweep
// also covers files written before tracking was enabled.
func (s *UploadStore) Import(allowed func(filename string) bool) (int, error) {
	if s.uploadRepo == nil {
		return 0, errors.New("upload store has no repository")
	}

	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !allowed(entry.Name()) {
			continue
		}

		existing, err := s.uploadRepo.GetByFilename(entry.Name())
		if err != nil {
			return imported, err
		}
		if existing != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warning("Skipping %s: %v", entry.Name(), err)
			continue
		}

		_, err = s.uploadRepo.Insert(&model.Upload{
			Filename:  entry.Name(),
			FilePath:  filepath.Join(s.uploadDir, entry.Name()),
			FileSize:  info.Size(),
			CreatedAt: info.ModTime(),
		})
		if err != nil {
			return imported, fmt.Errorf("failed to record %s: %w", entry.Name(), err)
		}
		imported++
	}
	return imported, nil
}

// Run schedules Sweep every interval until ctx is cancelled.
// A zero retention disables sweeping and Run just waits for ctx.
func (s *UploadStore) Run(ctx context.Context, retention, interval time.Duration) error {
	if retention <= 0 || interval <= 0 {
		s.logger.Info("Upload retention disabled")
		<-ctx.Done()
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(retention); err != nil {
				s.logger.Error("Upload sweep failed: %v", err)
			}
		}),
		gocron.WithName("upload-retention"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		scheduler.Shutdown()
		return fmt.Errorf("failed to schedule upload sweep: %w", err)
	}

	scheduler.Start()
	s.logger.Info("Upload retention: removing uploads older than %v every %v", retention, interval)

	<-ctx.Done()
	return scheduler.Shutdown()
}

func (s *UploadStore) createExclusive(filename string) (*os.File, error) {
	return os.OpenFile(filepath.Join(s.uploadDir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
