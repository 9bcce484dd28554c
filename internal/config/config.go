package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Builder names accepted by BOOTCFORGE_BUILDER.
const (
	BuilderCentOS = "CentOS"
	BuilderRHEL   = "RHEL"
)

// Config holds all configuration for the bootcforge server.
type Config struct {
	Port   int
	APIKey string

	// DataDir holds history.json and the event journal.
	DataDir string

	// Build defaults
	Builder             string // "CentOS" or "RHEL"
	BuildTimeoutMinutes int
	MaxNotFoundRetries  int
	DefaultEngine       string // podman connection used when a request omits it
	PodmanBinary        string // optional custom podman path

	// NATS event sync (disabled when empty)
	NATSURL string

	// S3-compatible object storage for exported disk archives (disabled when Bucket is empty)
	S3Endpoint        string
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool

	// Telemetry
	SegmentWriteKey  string
	TelemetryEnabled bool

	// Standalone metrics listener; empty serves /metrics from the API port only.
	MetricsAddr string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:   8080,
		APIKey: os.Getenv("BOOTCFORGE_API_KEY"),

		DataDir: envOrDefault("BOOTCFORGE_DATA_DIR", defaultDataDir()),

		Builder:             envOrDefault("BOOTCFORGE_BUILDER", BuilderCentOS),
		BuildTimeoutMinutes: envOrDefaultInt("BOOTCFORGE_BUILD_TIMEOUT_MINUTES", 60),
		MaxNotFoundRetries:  envOrDefaultInt("BOOTCFORGE_MAX_NOT_FOUND_RETRIES", 5),
		DefaultEngine:       envOrDefault("BOOTCFORGE_ENGINE", "podman"),
		PodmanBinary:        os.Getenv("BOOTCFORGE_PODMAN_BINARY"),

		NATSURL: os.Getenv("BOOTCFORGE_NATS_URL"),

		S3Endpoint:        os.Getenv("BOOTCFORGE_S3_ENDPOINT"),
		S3Bucket:          os.Getenv("BOOTCFORGE_S3_BUCKET"),
		S3Region:          envOrDefault("BOOTCFORGE_S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("BOOTCFORGE_S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("BOOTCFORGE_S3_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:  envOrDefaultBool("BOOTCFORGE_S3_FORCE_PATH_STYLE", false),

		SegmentWriteKey:  os.Getenv("BOOTCFORGE_SEGMENT_WRITE_KEY"),
		TelemetryEnabled: envOrDefaultBool("BOOTCFORGE_TELEMETRY", true),

		MetricsAddr: os.Getenv("BOOTCFORGE_METRICS_ADDR"),
	}

	if portStr := os.Getenv("BOOTCFORGE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid BOOTCFORGE_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	switch cfg.Builder {
	case BuilderCentOS, BuilderRHEL:
	default:
		return nil, fmt.Errorf("invalid BOOTCFORGE_BUILDER %q: must be %s or %s", cfg.Builder, BuilderCentOS, BuilderRHEL)
	}

	if cfg.BuildTimeoutMinutes <= 0 {
		return nil, fmt.Errorf("invalid BOOTCFORGE_BUILD_TIMEOUT_MINUTES %d: must be positive", cfg.BuildTimeoutMinutes)
	}

	return cfg, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "bootcforge")
	}
	return filepath.Join(os.TempDir(), "bootcforge")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
