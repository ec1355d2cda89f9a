package handler

import (
	"net/http"
	"path/filepath"

	"detectweb/internal/config"
)

// ViewUploadHandler serves a stored upload by name from the upload directory.
func ViewUploadHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.PathValue("filename"))
		if name == "." || name == "/" || name == ".." {
			http.NotFound(w, r)
			return
		}
		filePath := filepath.Join(cfg.UploadDirectory, name)
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}
