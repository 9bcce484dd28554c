package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear env to test defaults
	os.Unsetenv("BOOTCFORGE_PORT")
	os.Unsetenv("BOOTCFORGE_API_KEY")
	os.Unsetenv("BOOTCFORGE_BUILDER")
	os.Unsetenv("BOOTCFORGE_BUILD_TIMEOUT_MINUTES")
	os.Unsetenv("BOOTCFORGE_TELEMETRY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Builder != BuilderCentOS {
		t.Errorf("expected builder CentOS, got %s", cfg.Builder)
	}
	if cfg.BuildTimeoutMinutes != 60 {
		t.Errorf("expected 60 minute timeout, got %d", cfg.BuildTimeoutMinutes)
	}
	if cfg.MaxNotFoundRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.MaxNotFoundRetries)
	}
	if !cfg.TelemetryEnabled {
		t.Error("expected telemetry enabled by default")
	}
	if cfg.DataDir == "" {
		t.Error("expected a default data dir")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BOOTCFORGE_PORT", "9999")
	t.Setenv("BOOTCFORGE_API_KEY", "test-key")
	t.Setenv("BOOTCFORGE_BUILDER", "RHEL")
	t.Setenv("BOOTCFORGE_TELEMETRY", "off")
	t.Setenv("BOOTCFORGE_S3_FORCE_PATH_STYLE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
	if cfg.Builder != BuilderRHEL {
		t.Errorf("expected builder RHEL, got %s", cfg.Builder)
	}
	if cfg.TelemetryEnabled {
		t.Error("expected telemetry disabled")
	}
	if !cfg.S3ForcePathStyle {
		t.Error("expected path-style S3")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("BOOTCFORGE_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestLoadInvalidBuilder(t *testing.T) {
	t.Setenv("BOOTCFORGE_BUILDER", "Fedora")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown builder, got nil")
	}
}

func TestLoadInvalidTimeout(t *testing.T) {
	t.Setenv("BOOTCFORGE_BUILD_TIMEOUT_MINUTES", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero timeout, got nil")
	}
}
