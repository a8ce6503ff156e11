package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/scanproof/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OCRPollInterval != 10*time.Second {
		t.Errorf("OCRPollInterval = %v, want 10s", cfg.OCRPollInterval)
	}
	if cfg.OCRTimeout != 300*time.Second {
		t.Errorf("OCRTimeout = %v, want 300s", cfg.OCRTimeout)
	}
	if cfg.MaxAttempts != 3 || cfg.BaseDelay != time.Second {
		t.Errorf("retry = %d/%v, want 3/1s", cfg.MaxAttempts, cfg.BaseDelay)
	}
	if cfg.CacheTTL != time.Hour || !cfg.CacheEnabled {
		t.Errorf("cache = %v/%v, want enabled/1h", cfg.CacheEnabled, cfg.CacheTTL)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PROJECT_ID", "essay-project")
	t.Setenv("OCR_BUCKET", "ocr-temp")
	t.Setenv("OCR_TIMEOUT", "90s")
	t.Setenv("GENERATOR", "Gemini")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProjectID != "essay-project" || cfg.OCRBucket != "ocr-temp" {
		t.Errorf("unexpected project/bucket: %q/%q", cfg.ProjectID, cfg.OCRBucket)
	}
	if cfg.OCRTimeout != 90*time.Second {
		t.Errorf("OCRTimeout = %v, want 90s", cfg.OCRTimeout)
	}
	if cfg.Generator != GeneratorGemini {
		t.Errorf("Generator = %q, want %q", cfg.Generator, GeneratorGemini)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanproof.yaml")
	content := "ocr_bucket: from-file\nocr_mode: async\ncache_ttl: 5m\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OCRBucket != "from-file" || cfg.OCRMode != OCRModeAsync {
		t.Errorf("unexpected bucket/mode: %q/%q", cfg.OCRBucket, cfg.OCRMode)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
}

func TestValidateCorrectionCredentials(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"vertex ok", func(c *Config) { c.ProjectID = "p" }, false},
		{"vertex missing project", func(c *Config) {}, true},
		{"gemini ok", func(c *Config) { c.Generator = GeneratorGemini; c.GeminiAPIKey = "k" }, false},
		{"gemini missing key", func(c *Config) { c.Generator = GeneratorGemini }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.ValidateCorrection()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCorrection() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrCredentialsMissing) {
				t.Fatalf("expected ErrCredentialsMissing, got %v", err)
			}
		})
	}
}

func TestValidateOCR(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateOCR(); err == nil {
		t.Fatal("expected error without bucket")
	}
	cfg.OCRBucket = "bucket"
	if err := cfg.ValidateOCR(); err != nil {
		t.Fatalf("ValidateOCR() error = %v", err)
	}
	cfg.OCRMode = "fast"
	if err := cfg.ValidateOCR(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
