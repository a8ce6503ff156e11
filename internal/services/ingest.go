package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// IngestConfig holds where recognized text is written.
type IngestConfig struct {
	TextBucket string
}

// IngestFunction recognizes documents dropped into the inbox bucket and
// writes their text next to a Firestore status record.
type IngestFunction struct {
	gateway   Gateway
	documents DocumentStore
	extractor TextExtractor
	config    IngestConfig
	logger    *slog.Logger
}

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// NewIngest creates an IngestFunction.
func NewIngest(gateway Gateway, documents DocumentStore, extractor TextExtractor, config IngestConfig, logger *slog.Logger) *IngestFunction {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestFunction{
		gateway:   gateway,
		documents: documents,
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// Process handles one finalized object. Unsupported files and duplicates of
// an already ingested file are skipped without error.
func (f *IngestFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := f.logger.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	media, err := models.ParseMediaType(e.ContentType, e.Name)
	if err != nil {
		logCtx.Warn("Skipping unsupported object.", "contentType", e.ContentType, "error", err)
		return nil
	}

	content, err := f.gateway.Get(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source object", "error", err)
		return fmt.Errorf("failed to download gs://%s/%s: %w", e.Bucket, e.Name, err)
	}

	fileHash := contentHash(content)
	logCtx = logCtx.With("fileHash", fileHash)

	existingID, found, err := f.documents.FindByHash(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if found {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", existingID)
		return nil
	}

	docID, err := f.documents.Create(ctx, models.DocumentRecord{
		FileHash:         fileHash,
		OriginalFilename: e.Name,
		MediaType:        string(media),
		Status:           models.DocumentExtracting,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		logCtx.Error("Failed to create document record", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", docID)
	logCtx.Info("Created document record in Firestore.")

	doc := models.Document{Filename: e.Name, MediaType: media, Content: content}
	result, err := f.extractor.Extract(ctx, docID, doc, func(p int) {
		logCtx.Debug("OCR progress.", "percent", p)
	})
	if err != nil {
		return f.handleError(ctx, logCtx, docID, "text extraction failed", err)
	}

	textKey := fmt.Sprintf("%s/%s", docID, models.ArtifactOriginal.Filename())
	if err := f.gateway.Put(ctx, f.config.TextBucket, textKey, []byte(result.Text)); err != nil {
		return f.handleError(ctx, logCtx, docID, "failed to write extracted text", err)
	}

	textURI := fmt.Sprintf("gs://%s/%s", f.config.TextBucket, textKey)
	if err := f.documents.UpdateStatus(ctx, docID, models.DocumentExtracted, "", textURI, len(result.Pages)); err != nil {
		logCtx.Error("Failed to update status to EXTRACTED", "error", err)
		return err
	}
	logCtx.Info("Ingest complete.", "textUri", textURI, "pageCount", len(result.Pages))
	return nil
}

func (f *IngestFunction) handleError(ctx context.Context, logCtx *slog.Logger, docID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	details := fmt.Sprintf("%s: %v", message, originalErr)
	if err := f.documents.UpdateStatus(context.WithoutCancel(ctx), docID, models.DocumentFailed, details, "", 0); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
