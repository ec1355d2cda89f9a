package route

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/model"
	"detectweb/internal/service"
	"detectweb/internal/service/storage"
)

type noopDetector struct{}

func (noopDetector) Detect(string, float64) ([]model.Detection, error) { return nil, nil }
func (noopDetector) Annotate(string, []model.Detection) error { return nil }

func setupTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()

	tempDir := t.TempDir()
	cfg := &config.Config{
		UploadDirectory:   filepath.Join(tempDir, "static", "uploads"),
		StaticDirectory:   filepath.Join(tempDir, "static"),
		MaxContentLength:  16 << 20,
		AllowedExtensions: config.AllowedExtensions,
		CORSOrigins:       []string{"*"},
	}
	if err := os.MkdirAll(cfg.StaticDirectory, 0755); err != nil {
		t.Fatalf("Failed to create static dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.StaticDirectory, "index.html"), []byte("<h1>YOLO Object Detection</h1>"), 0644); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}

	log, err := logger.NewLogger(filepath.Join(tempDir, "logs"))
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(log.Close)

	store := storage.NewUploadStore(cfg.UploadDirectory, nil, log)
	manager := service.NewManager(noopDetector{}, store, nil, 0.25, log)

	return SetupRoutes(manager, cfg, log, Dependencies{}), cfg
}

func TestSetupRoutes(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/", http.StatusOK, "YOLO Object Detection"},
		{http.MethodGet, "/missing", http.StatusNotFound, ""},
		{http.MethodPost, "/detect", http.StatusBadRequest, "No file part"},
		{http.MethodPost, "/api/detect", http.StatusBadRequest, "No file part"},
		{http.MethodGet, "/api/health", http.StatusOK, `"status":"ok"`},
		{http.MethodGet, "/logs/info", http.StatusOK, ""},
		{http.MethodGet, "/static/uploads/nothing.png", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

		if rr.Code != tt.status {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.status, rr.Code)
		}
		if tt.body != "" && !strings.Contains(rr.Body.String(), tt.body) {
			t.Errorf("%s %s: expected body to contain %q, got %q", tt.method, tt.path, tt.body, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s: missing request id", tt.method, tt.path)
		}
	}
}

func TestSetupRoutes_CORS(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/detect", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin *, got %q", got)
	}
}
