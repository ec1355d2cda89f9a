package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"detectweb/internal/logger"
)

func setupLogMux(t *testing.T) (*http.ServeMux, *logger.Logger) {
	t.Helper()

	log, err := logger.NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(log.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /logs/{level}", ShowLogsHandler(log))
	mux.HandleFunc("POST /logs/{level}/clear", ClearLogsHandler(log))
	return mux, log
}

func TestShowLogsHandler(t *testing.T) {
	mux, log := setupLogMux(t)
	log.Warning("disk almost full")

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "disk almost full") {
		t.Errorf("Expected warning in log output, got %q", rr.Body.String())
	}
}

func TestShowLogsHandler_UnknownLevel(t *testing.T) {
	mux, _ := setupLogMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logs/debug", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestClearLogsHandler(t *testing.T) {
	mux, log := setupLogMux(t)
	log.Error("boom")

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logs/error/clear", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}

	info, err := os.Stat(filepath.Join(log.Dir(), logger.ErrorFile))
	if err != nil {
		t.Fatalf("Log file missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty log file, got %d bytes", info.Size())
	}
}
