package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// Generator backends.
const (
	GeneratorVertex = "vertex"
	GeneratorGemini = "gemini"
)

// OCR modes.
const (
	OCRModeAuto  = "auto"
	OCRModeSync  = "sync"
	OCRModeAsync = "async"
)

// Config holds all settings shared by the functions and the CLI.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	LogLevel  string `mapstructure:"log_level"`

	OCRBucket        string        `mapstructure:"ocr_bucket"`
	OCRMode          string        `mapstructure:"ocr_mode"`
	OCRPollInterval  time.Duration `mapstructure:"ocr_poll_interval"`
	OCRTimeout       time.Duration `mapstructure:"ocr_timeout"`
	ResultWait       time.Duration `mapstructure:"ocr_result_wait"`
	ResultPoll       time.Duration `mapstructure:"ocr_result_poll"`
	UploadPrefix     string        `mapstructure:"ocr_upload_prefix"`
	ResultPrefix     string        `mapstructure:"ocr_result_prefix"`
	TextOutputBucket string        `mapstructure:"text_output_bucket"`

	Generator      string        `mapstructure:"generator"`
	Model          string        `mapstructure:"model"`
	VertexAIRegion string        `mapstructure:"vertex_ai_region"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	GeminiBaseURL  string        `mapstructure:"gemini_base_url"`
	MaxAttempts    int           `mapstructure:"correction_max_attempts"`
	BaseDelay      time.Duration `mapstructure:"correction_base_delay"`
	CacheEnabled   bool          `mapstructure:"cache_enabled"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`

	SessionCollection  string        `mapstructure:"sessions_collection"`
	SessionLeaseTTL    time.Duration `mapstructure:"session_lease_ttl"`
	DocumentCollection string        `mapstructure:"firestore_collection"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LogLevel:           "info",
		OCRMode:            OCRModeAuto,
		OCRPollInterval:    10 * time.Second,
		OCRTimeout:         300 * time.Second,
		ResultWait:         300 * time.Second,
		ResultPoll:         10 * time.Second,
		UploadPrefix:       "uploads",
		ResultPrefix:       "ocr_results",
		Generator:          GeneratorVertex,
		Model:              "gemini-2.5-flash",
		VertexAIRegion:     "us-central1",
		GeminiBaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai/",
		MaxAttempts:        3,
		BaseDelay:          time.Second,
		CacheEnabled:       true,
		CacheTTL:           time.Hour,
		SessionCollection:  "sessions",
		SessionLeaseTTL:    15 * time.Minute,
		DocumentCollection: "documents",
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. Environment variables use the upper-cased key, e.g. PROJECT_ID.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault("project_id", d.ProjectID)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("ocr_bucket", d.OCRBucket)
	v.SetDefault("ocr_mode", d.OCRMode)
	v.SetDefault("ocr_poll_interval", d.OCRPollInterval)
	v.SetDefault("ocr_timeout", d.OCRTimeout)
	v.SetDefault("ocr_result_wait", d.ResultWait)
	v.SetDefault("ocr_result_poll", d.ResultPoll)
	v.SetDefault("ocr_upload_prefix", d.UploadPrefix)
	v.SetDefault("ocr_result_prefix", d.ResultPrefix)
	v.SetDefault("text_output_bucket", d.TextOutputBucket)
	v.SetDefault("generator", d.Generator)
	v.SetDefault("model", d.Model)
	v.SetDefault("vertex_ai_region", d.VertexAIRegion)
	v.SetDefault("gemini_api_key", d.GeminiAPIKey)
	v.SetDefault("gemini_base_url", d.GeminiBaseURL)
	v.SetDefault("correction_max_attempts", d.MaxAttempts)
	v.SetDefault("correction_base_delay", d.BaseDelay)
	v.SetDefault("cache_enabled", d.CacheEnabled)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("sessions_collection", d.SessionCollection)
	v.SetDefault("session_lease_ttl", d.SessionLeaseTTL)
	v.SetDefault("firestore_collection", d.DocumentCollection)

	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Generator = strings.ToLower(cfg.Generator)
	cfg.OCRMode = strings.ToLower(cfg.OCRMode)
	return &cfg, nil
}

// ValidateOCR checks the settings needed to run text recognition.
func (c *Config) ValidateOCR() error {
	var errs []error
	if c.OCRBucket == "" {
		errs = append(errs, errors.New("OCR_BUCKET must be set"))
	}
	switch c.OCRMode {
	case OCRModeAuto, OCRModeSync, OCRModeAsync:
	default:
		errs = append(errs, fmt.Errorf("unknown OCR_MODE %q", c.OCRMode))
	}
	if c.OCRPollInterval <= 0 || c.OCRTimeout <= 0 {
		errs = append(errs, errors.New("OCR_POLL_INTERVAL and OCR_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateCorrection checks the settings needed to reach the text model.
// Missing credentials are reported as models.ErrCredentialsMissing.
func (c *Config) ValidateCorrection() error {
	switch c.Generator {
	case GeneratorVertex:
		if c.ProjectID == "" || c.VertexAIRegion == "" {
			return fmt.Errorf("%w: PROJECT_ID and VERTEX_AI_REGION must be set for the vertex generator", models.ErrCredentialsMissing)
		}
	case GeneratorGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY must be set for the gemini generator", models.ErrCredentialsMissing)
		}
	default:
		return fmt.Errorf("unknown GENERATOR %q", c.Generator)
	}
	if c.MaxAttempts < 1 {
		return errors.New("CORRECTION_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// NewLogger builds a JSON slog logger at the named level.
func NewLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
