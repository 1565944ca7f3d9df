// Package config centralizes how FlatDrop reads its settings and exposes them
// as strongly typed Go values. Values come from, in increasing precedence:
// built-in defaults, an optional YAML file, a .env file and the process
// environment.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pdfutil "github.com/dharsanguruparan/FlatDrop/internal/pdf"
)

// Store kinds understood by Load.
const (
	StoreLocal  = "local"
	StoreRemote = "remote"
	StoreMemory = "memory"
)

// Reaper backends understood by Load.
const (
	ReaperMemory = "memory"
	ReaperAsynq  = "asynq"
)

// ErrMissingToken is returned when no bearer secret is configured. The server
// refuses to start without one.
var ErrMissingToken = errors.New("AUTH_TOKEN is not set")

// Config represents runtime configuration for the service.
type Config struct {
	Address     string
	AuthToken   string
	MaxFileSize int64

	Store     string
	OutputDir string
	UploadDir string
	WorkDir   string
	TTL       time.Duration

	RasterScale   int
	ResizeWidth   int
	ResizeHeight  int
	PageWidth     float64
	PageHeight    float64
	Placement     string
	EncodeWorkers int
	VerifyOutput  bool

	SigningSecret []byte

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	S3Bucket    string
	S3Prefix    string

	Reaper        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string

	LogLevel  string
	LogFormat string
}

const (
	defaultPort          = "3000"
	defaultMaxFileSize   = 50 << 20 // 50 MiB
	defaultTTL           = 5 * time.Minute
	defaultRasterScale   = 2000
	defaultResizeWidth   = 2480
	defaultResizeHeight  = 3508
	defaultPageWidth     = 612.0
	defaultPageHeight    = 792.0
	defaultEncodeWorkers = 4
	defaultS3Prefix      = "converted/"
)

// Load reads configuration from the environment falling back to defaults.
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path := os.Getenv("FLATDROP_CONFIG"); path != "" {
		if err := applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{
		Address:     readEnv("FLATDROP_ADDRESS", ":"+readEnv("PORT", defaultPort)),
		AuthToken:   readEnv("AUTH_TOKEN", ""),
		MaxFileSize: parseInt64("FLATDROP_MAX_FILE_BYTES", defaultMaxFileSize),

		Store:     strings.ToLower(readEnv("FLATDROP_STORE", StoreLocal)),
		OutputDir: readEnv("FLATDROP_OUTPUT_DIR", "output"),
		UploadDir: readEnv("FLATDROP_UPLOAD_DIR", "uploads"),
		WorkDir:   readEnv("FLATDROP_WORK_DIR", "images"),
		TTL:       parseDuration("FLATDROP_TTL", defaultTTL),

		RasterScale:   parseInt("FLATDROP_RASTER_SCALE", defaultRasterScale),
		ResizeWidth:   parseInt("FLATDROP_RESIZE_WIDTH", defaultResizeWidth),
		ResizeHeight:  parseInt("FLATDROP_RESIZE_HEIGHT", defaultResizeHeight),
		PageWidth:     parseFloat("FLATDROP_PAGE_WIDTH", defaultPageWidth),
		PageHeight:    parseFloat("FLATDROP_PAGE_HEIGHT", defaultPageHeight),
		Placement:     strings.ToLower(readEnv("FLATDROP_PLACEMENT", pdfutil.PlacementNatural)),
		EncodeWorkers: parseInt("FLATDROP_ENCODE_WORKERS", defaultEncodeWorkers),
		VerifyOutput:  parseBool("FLATDROP_VERIFY_OUTPUT", true),

		SigningSecret: parseSecret("FLATDROP_SIGNING_SECRET"),

		S3Endpoint:  readEnv("FLATDROP_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: readEnv("FLATDROP_S3_ACCESS_KEY", ""),
		S3SecretKey: readEnv("FLATDROP_S3_SECRET_KEY", ""),
		S3UseSSL:    parseBool("FLATDROP_S3_USE_SSL", false),
		S3Region:    readEnv("FLATDROP_S3_REGION", "us-east-1"),
		S3Bucket:    readEnv("FLATDROP_S3_BUCKET", "flatdrop"),
		S3Prefix:    readEnv("FLATDROP_S3_PREFIX", defaultS3Prefix),

		Reaper:        strings.ToLower(readEnv("FLATDROP_REAPER", ReaperMemory)),
		RedisAddr:     readEnv("FLATDROP_REDIS_ADDR", "localhost:6379"),
		RedisPassword: readEnv("FLATDROP_REDIS_PASSWORD", ""),
		RedisDB:       parseInt("FLATDROP_REDIS_DB", 0),

		DatabaseURL: readEnv("DATABASE_URL", ""),

		LogLevel:  readEnv("FLATDROP_LOG_LEVEL", "info"),
		LogFormat: readEnv("FLATDROP_LOG_FORMAT", "json"),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.EncodeWorkers <= 0 {
		cfg.EncodeWorkers = defaultEncodeWorkers
	}
	if cfg.RasterScale <= 0 {
		cfg.RasterScale = defaultRasterScale
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be served.
func (c *Config) Validate() error {
	if c.AuthToken == "" {
		return ErrMissingToken
	}
	switch c.Store {
	case StoreLocal, StoreRemote, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.Reaper {
	case ReaperMemory, ReaperAsynq:
	default:
		return fmt.Errorf("unknown reaper %q", c.Reaper)
	}
	switch c.Placement {
	case pdfutil.PlacementNatural, pdfutil.PlacementStretch:
	default:
		return fmt.Errorf("unknown placement %q", c.Placement)
	}
	if c.ResizeWidth <= 0 || c.ResizeHeight <= 0 {
		return fmt.Errorf("invalid resize box %dx%d", c.ResizeWidth, c.ResizeHeight)
	}
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return fmt.Errorf("invalid page size %gx%g", c.PageWidth, c.PageHeight)
	}
	if c.Store == StoreRemote && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return errors.New("remote store requires FLATDROP_S3_ACCESS_KEY and FLATDROP_S3_SECRET_KEY")
	}
	return nil
}

// ServesDownloads reports whether artifacts are served by this process rather
// than by the blob backend.
func (c *Config) ServesDownloads() bool {
	return c.Store != StoreRemote
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("config: read random secret: %v", err))
	}
	return buf
}
