package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/scanproof/internal/config"
	"github.com/Lllllllleong/scanproof/internal/models"
)

// ExtractorConfig holds the storage layout and mode selection for extraction.
type ExtractorConfig struct {
	Bucket       string
	Mode         string
	UploadPrefix string
	ResultPrefix string
	ResultWait   time.Duration
	ResultPoll   time.Duration
}

// ExtractorConfigFrom copies the relevant settings out of cfg.
func ExtractorConfigFrom(cfg *config.Config) ExtractorConfig {
	return ExtractorConfig{
		Bucket:       cfg.OCRBucket,
		Mode:         cfg.OCRMode,
		UploadPrefix: cfg.UploadPrefix,
		ResultPrefix: cfg.ResultPrefix,
		ResultWait:   cfg.ResultWait,
		ResultPoll:   cfg.ResultPoll,
	}
}

// Extractor turns an uploaded document into plain text, choosing between
// synchronous detection and an asynchronous storage-backed job.
type Extractor struct {
	gateway   Gateway
	jobs      *JobClient
	assembler *Assembler
	config    ExtractorConfig
	logger    *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(gateway Gateway, jobs *JobClient, assembler *Assembler, config ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		gateway:   gateway,
		jobs:      jobs,
		assembler: assembler,
		config:    config,
		logger:    logger,
	}
}

// Extract recognizes the text of doc. Empty results fail with
// models.ErrNoTextRecognized.
func (e *Extractor) Extract(ctx context.Context, sessionID string, doc models.Document, progress ProgressFunc) (models.ExtractedText, error) {
	logCtx := e.logger.With("sessionId", sessionID, "filename", doc.Filename, "mediaType", doc.MediaType)

	if doc.MediaType != models.MediaPDF && !doc.MediaType.IsImage() {
		return models.ExtractedText{}, fmt.Errorf("%w: %q", models.ErrUnsupportedMedia, doc.MediaType)
	}
	if len(doc.Content) == 0 {
		return models.ExtractedText{}, fmt.Errorf("%w: %s is empty", models.ErrNoTextRecognized, doc.Filename)
	}

	var (
		result models.ExtractedText
		err    error
	)
	if e.useAsync(logCtx, doc) {
		result, err = e.extractAsync(ctx, logCtx, sessionID, doc, progress)
	} else {
		result, err = e.jobs.Recognize(ctx, doc)
		if err == nil && progress != nil {
			progress(100)
		}
	}
	if err != nil {
		return models.ExtractedText{}, err
	}

	if strings.TrimSpace(result.Text) == "" {
		logCtx.Warn("OCR finished without any text.")
		return models.ExtractedText{}, fmt.Errorf("%w: %s", models.ErrNoTextRecognized, doc.Filename)
	}
	logCtx.Info("Extraction complete.", "pageCount", len(result.Pages), "chars", len(result.Text))
	return result, nil
}

// useAsync picks the recognition path. In auto mode only multi-page PDFs go
// through the asynchronous job.
func (e *Extractor) useAsync(logCtx *slog.Logger, doc models.Document) bool {
	if doc.MediaType.IsImage() {
		return false
	}
	switch e.config.Mode {
	case config.OCRModeSync:
		return false
	case config.OCRModeAsync:
		return true
	}
	pageCount, err := pdfPageCount(doc.Content)
	if err != nil {
		logCtx.Warn("Could not count PDF pages, using async recognition.", "error", err)
		return true
	}
	logCtx.Info("Counted PDF pages.", "pageCount", pageCount)
	return pageCount > 1
}

func (e *Extractor) extractAsync(ctx context.Context, logCtx *slog.Logger, sessionID string, doc models.Document, progress ProgressFunc) (models.ExtractedText, error) {
	inputKey := path.Join(e.config.UploadPrefix, sessionID, contentHash(doc.Content)+".pdf")
	if err := e.gateway.Put(ctx, e.config.Bucket, inputKey, doc.Content); err != nil {
		logCtx.Error("Failed to upload OCR input", "error", err, "gcsObject", inputKey)
		return models.ExtractedText{}, fmt.Errorf("failed to upload document: %w", err)
	}

	job := NewJob(e.config.Bucket, inputKey, "", doc.MediaType)
	job.DestinationPrefix = path.Join(e.config.ResultPrefix, sessionID, job.ID) + "/"
	logCtx = logCtx.With("jobId", job.ID)

	if err := e.jobs.Run(ctx, job, progress); err != nil {
		e.cleanup(logCtx, inputKey, job.DestinationPrefix)
		return models.ExtractedText{}, err
	}

	result, err := e.assembler.Assemble(ctx, e.config.Bucket, job.DestinationPrefix, e.config.ResultWait, e.config.ResultPoll)
	if err != nil {
		e.cleanup(logCtx, inputKey, job.DestinationPrefix)
		return models.ExtractedText{}, err
	}

	if err := e.gateway.Delete(ctx, e.config.Bucket, inputKey); err != nil {
		logCtx.Warn("Failed to delete OCR input", "gcsObject", inputKey, "error", err)
	}
	return result, nil
}

// cleanup removes the input object and any partial results. It runs on its
// own context so a cancelled request still releases storage.
func (e *Extractor) cleanup(logCtx *slog.Logger, inputKey, resultPrefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.gateway.Delete(ctx, e.config.Bucket, inputKey); err != nil {
		logCtx.Warn("Cleanup: failed to delete OCR input", "gcsObject", inputKey, "error", err)
	}
	for obj, err := range e.gateway.List(ctx, e.config.Bucket, resultPrefix) {
		if err != nil {
			logCtx.Warn("Cleanup: failed to list partial results", "prefix", resultPrefix, "error", err)
			return
		}
		if err := e.gateway.Delete(ctx, e.config.Bucket, obj.Name); err != nil {
			logCtx.Warn("Cleanup: failed to delete partial result", "gcsObject", obj.Name, "error", err)
		}
	}
}

func pdfPageCount(content []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(content), conf)
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
