package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"detectweb/internal/config"
	"detectweb/internal/logger"
	"detectweb/internal/repository/sqlite"
	"detectweb/internal/service/storage"
)

func main() {
	uploadDir := flag.String("dir", "static/uploads", "Directory containing uploads")
	dbPath := flag.String("db", "data/uploads.db", "Database path")
	maxAge := flag.Duration("max-age", 24*time.Hour, "Remove uploads older than this")
	importFiles := flag.Bool("import", false, "Record untracked image files before sweeping")
	flag.Parse()

	if *maxAge <= 0 {
		log.Fatalf("-max-age must be positive, got %v", *maxAge)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	store := storage.NewUploadStore(*uploadDir, sqlite.NewUploadRepository(db), logger.NewDiscardLogger())

	if *importFiles {
		cfg := &config.Config{AllowedExtensions: config.AllowedExtensions}
		imported, err := store.Import(cfg.AllowedFile)
		if err != nil {
			log.Fatalf("Failed to import uploads: %v", err)
		}
		fmt.Printf("📥 Recorded %d untracked upload(s) from %s\n", imported, *uploadDir)
	}

	removed, err := store.Sweep(*maxAge)
	if err != nil {
		log.Fatalf("Failed to sweep uploads: %v", err)
	}
	fmt.Printf("✅ Removed %d upload(s) older than %v\n", removed, *maxAge)
}
