package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/gcp"
)

// NewGenerator builds the text model backend selected by cfg.Generator.
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	if err := cfg.ValidateCorrection(); err != nil {
		return nil, err
	}
	if cfg.Generator == config.GeneratorGemini {
		gen, err := gcp.NewGeminiGenerator(gcp.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
	gen, err := gcp.NewVertexGenerator(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.Model)
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// NewCorrectorFromConfig builds a Corrector with the configured backend and cache.
func NewCorrectorFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Corrector, error) {
	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	var cache *ResultCache
	if cfg.CacheEnabled {
		cache = NewResultCache(cfg.CacheTTL)
	}
	return NewCorrector(gen, cache, CorrectorConfigFrom(cfg), logger), nil
}

// NewExtractorFromConfig builds an Extractor on Cloud Storage and Cloud Vision.
func NewExtractorFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Extractor, error) {
	if err := cfg.ValidateOCR(); err != nil {
		return nil, err
	}
	gateway, err := gcp.NewStorageGateway(ctx)
	if err != nil {
		return nil, err
	}
	return newCloudExtractor(ctx, cfg, gateway, logger)
}

func newCloudExtractor(ctx context.Context, cfg *config.Config, gateway Gateway, logger *slog.Logger) (*Extractor, error) {
	annotator, err := gcp.NewVisionAnnotator(ctx)
	if err != nil {
		return nil, err
	}
	jobs := NewJobClient(annotator, JobClientConfig{PollInterval: cfg.OCRPollInterval, Timeout: cfg.OCRTimeout}, logger)
	return NewExtractor(gateway, jobs, NewAssembler(gateway, logger), ExtractorConfigFrom(cfg), logger), nil
}

// NewWorkflowFromConfig builds the workflow. Sessions are kept in Firestore
// when persistent is set and in memory otherwise.
func NewWorkflowFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, persistent bool) (*Workflow, error) {
	extractor, err := NewExtractorFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	corrector, err := NewCorrectorFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var store SessionStore = NewMemorySessionStore()
	if persistent {
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		store = gcp.NewFirestoreSessionStore(client, cfg.SessionCollection)
	}

	logger.Info("Workflow initialized.", "generator", cfg.Generator, "model", cfg.Model, "ocrMode", cfg.OCRMode, "persistentSessions", persistent)
	sessions := NewSessionManager(store, logger).WithLeaseTTL(cfg.SessionLeaseTTL)
	return NewWorkflow(sessions, extractor, corrector, logger), nil
}

// NewIngestFromConfig builds the ingest function with Firestore status records.
func NewIngestFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*IngestFunction, error) {
	if cfg.TextOutputBucket == "" {
		return nil, errors.New("TEXT_OUTPUT_BUCKET must be set")
	}
	if err := cfg.ValidateOCR(); err != nil {
		return nil, err
	}
	gateway, err := gcp.NewStorageGateway(ctx)
	if err != nil {
		return nil, err
	}
	extractor, err := newCloudExtractor(ctx, cfg, gateway, logger)
	if err != nil {
		return nil, err
	}
	client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	documents := gcp.NewFirestoreDocumentStore(client, cfg.DocumentCollection)

	logger.Info("Ingest function initialized.", "textBucket", cfg.TextOutputBucket, "collection", cfg.DocumentCollection)
	return NewIngest(gateway, documents, extractor, IngestConfig{TextBucket: cfg.TextOutputBucket}, logger), nil
}
