package route

import (
	"net/http"
	"os"
	"path/filepath"

	"detectweb/internal/config"
	"detectweb/internal/handler"
	"detectweb/internal/logger"
	"detectweb/internal/middleware"
	"detectweb/internal/repository"
	"detectweb/internal/service"
	"detectweb/internal/service/websocket"

	"github.com/rs/cors"
)

// dynamicHTMLHandler serves /path as {staticDir}/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean(path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// Dependencies groups what the routes need besides the manager and config.
// Model, UploadRepo and Hub are optional.
type Dependencies struct {
	Model      handler.ModelInfo
	UploadRepo repository.UploadRepository
	Hub        *websocket.HubService
}

// SetupRoutes registers the detection endpoints, static file serving and
// log endpoints, and wraps the mux with CORS and request logging.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Detection
	mux.HandleFunc("POST /detect", handler.DetectHandler(manager, cfg, logger))
	mux.HandleFunc("POST /api/detect", handler.APIDetectHandler(manager, cfg, logger))

	// Uploaded and static files
	mux.HandleFunc("GET /static/uploads/{filename}", handler.ViewUploadHandler(cfg))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// Status and live events
	var viewers handler.ClientCounter
	if deps.Hub != nil {
		viewers = deps.Hub
		mux.HandleFunc("GET /api/events", handler.EventsWebsocketHandler(deps.Hub, logger))
	}
	mux.HandleFunc("GET /api/health", handler.HealthHandler(cfg, deps.Model, deps.UploadRepo, viewers, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	// Landing page, and /name -> {static}/name.html
	mux.HandleFunc("GET /", dynamicHTMLHandler(cfg.StaticDirectory))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})

	return middleware.LoggingMiddleware(logger, corsHandler.Handler(mux))
}
