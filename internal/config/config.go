package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
)

// AllowedExtensions is the fixed set of image extensions accepted for upload.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif"}

type Config struct {
	Host              string
	Port              int
	UploadDirectory   string
	MaxContentLength  int64 // request body limit in bytes
	AllowedExtensions []string
	ModelPath         string
	ModelConfigPath   string // SSD pbtxt; empty selects YOLO ONNX
	LabelsPath        string
	Confidence        float64
	NMSThreshold      float64
	InputSize         int
	Annotate          bool
	DatabasePath      string
	UploadRetention   time.Duration // 0 disables sweeping
	CleanupInterval   time.Duration
	LogDirectory      string
	StaticDirectory   string
	CORSOrigins       []string
}

// Load reads the configuration from the environment (and an optional .env file)
// and validates it. Malformed values are reported rather than replaced by defaults.
// The returned Config must not be modified afterwards.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              env.Int("PORT", 5000),
		UploadDirectory:   getEnv("UPLOAD_FOLDER", filepath.Join("static", "uploads")),
		MaxContentLength:  env.Bytes("MAX_CONTENT_LENGTH", 16*units.MiB),
		AllowedExtensions: AllowedExtensions,
		ModelPath:         getEnv("YOLO_MODEL", filepath.Join("models", "yolov8n.onnx")),
		ModelConfigPath:   getEnv("MODEL_CONFIG", ""),
		LabelsPath:        getEnv("LABELS_PATH", ""),
		Confidence:        env.Float("YOLO_CONF", 0.25),
		NMSThreshold:      env.Float("NMS_THRESHOLD", 0.45),
		InputSize:         env.Int("INPUT_SIZE", 640),
		Annotate:          env.Bool("ANNOTATE", true),
		DatabasePath:      getEnv("DB_PATH", filepath.Join("data", "uploads.db")),
		UploadRetention:   env.Duration("UPLOAD_RETENTION", 24*time.Hour),
		CleanupInterval:   env.Duration("CLEANUP_INTERVAL", 10*time.Minute),
		LogDirectory:      getEnv("LOG_DIR", "logs"),
		StaticDirectory:   getEnv("STATIC_DIR", "static"),
		CORSOrigins:       getEnvAsList("CORS_ORIGINS", []string{"*"}),
	}
	if err := env.Err(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that cannot be expressed by the defaults alone.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("max content length must be positive, got %d", c.MaxContentLength)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", c.Confidence)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold must be in [0,1], got %v", c.NMSThreshold)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("input size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.UploadDirectory == "" {
		return fmt.Errorf("upload directory is required")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.UploadRetention < 0 || c.CleanupInterval < 0 {
		return fmt.Errorf("retention and cleanup interval cannot be negative")
	}
	if c.UploadRetention > 0 && c.CleanupInterval == 0 {
		return fmt.Errorf("cleanup interval is required when upload retention is set")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedFile reports whether filename has one of the allowed extensions.
// Only the part after the last dot counts and the comparison ignores case.
func (c *Config) AllowedFile(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects every parse failure,
// so one Load reports all malformed settings at once.
type envReader struct {
	errs []error
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
}

// Err returns the joined parse errors, or nil.
func (e *envReader) Err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) Int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return intValue
}

func (e *envReader) Float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return floatValue
}

func (e *envReader) Bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return boolValue
}

func (e *envReader) Duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return d
}

// Bytes accepts plain byte counts ("16777216") as well as sizes like "16MiB".
func (e *envReader) Bytes(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	size, err := units.RAMInBytes(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return size
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
