package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/repository/sqlite"
	"detectweb/internal/route"
	"detectweb/internal/service"
	"detectweb/internal/service/ai"
	"detectweb/internal/service/storage"
	"detectweb/internal/service/websocket"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      *logger.Logger
	db          *sqlite.DB
	uploadRepo  *sqlite.UploadRepository
	detector    *ai.DetectorService
	uploadStore *storage.UploadStore
	hubService  *websocket.HubService
	manager     *service.Manager
}

// NewApp loads configuration and builds every service. The model is loaded
// here, so a missing or broken model stops startup.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	uploadRepo := sqlite.NewUploadRepository(db)

	detector, err := ai.NewDetectorService(cfg, log)
	if err != nil {
		log.Error("Failed to load model %s: %v", cfg.ModelPath, err)
		db.Close()
		log.Close()
		return nil, err
	}

	store := storage.NewUploadStore(cfg.UploadDirectory, uploadRepo, log)
	hub := websocket.NewHubService(log)
	mng := service.NewManager(detector, store, hub, cfg.Confidence, log)

	return &App{
		config:      cfg,
		logger:      log,
		db:          db,
		uploadRepo:  uploadRepo,
		detector:    detector,
		uploadStore: store,
		hubService:  hub,
		manager:     mng,
	}, nil
}

// Run serves HTTP until SIGINT/SIGTERM, alongside the event hub and the
// upload retention job, then shuts everything down.
func (a *App) Run() error {
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := route.SetupRoutes(a.manager, a.config, a.logger, route.Dependencies{
		Model:      a.detector,
		UploadRepo: a.uploadRepo,
		Hub:        a.hubService,
	})

	server := &http.Server{
		Addr:              a.config.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("🚀 Object Detection Server")
	a.logger.Info("📍 URL: http://%s", a.config.Addr())
	a.logger.Info("📁 Uploads: %s", a.config.UploadDirectory)
	a.logger.Info("🤖 AI Model: %s (%s)", a.detector.ModelPath(), a.detector.Layout())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hubService.Run(ctx)
	})

	g.Go(func() error {
		return a.uploadStore.Run(ctx, a.config.UploadRetention, a.config.CleanupInterval)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) close() {
	if err := a.detector.Close(); err != nil {
		a.logger.Error("Failed to release model: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
