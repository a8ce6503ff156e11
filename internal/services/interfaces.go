package services

import (
	"context"
	"iter"
	"time"

	"github.com/Lllllllleong/scanproof/internal/gcp"
	"github.com/Lllllllleong/scanproof/internal/models"
)

// Gateway is the object storage used to stage OCR inputs and read results.
type Gateway interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	List(ctx context.Context, bucket, prefix string) iter.Seq2[models.ObjectHandle, error]
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Annotator performs document text detection.
type Annotator interface {
	DetectDocumentText(ctx context.Context, content []byte, media models.MediaType) ([]models.OcrResultPage, error)
	StartFileAnnotation(ctx context.Context, job *models.OcrJob) (gcp.Operation, error)
}

// Generator sends a prompt to a text model and returns its raw reply.
type Generator interface {
	Generate(ctx context.Context, p gcp.Prompt) (string, error)
}

// SessionStore persists workflow sessions between requests.
type SessionStore interface {
	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Delete(ctx context.Context, id string) error
}

// SessionLocker is a SessionStore that can hold a per-session lease shared by
// every process using the store.
type SessionLocker interface {
	AcquireLease(ctx context.Context, id, token string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, id, token string) error
}

// DocumentStore records ingested documents and their processing status.
type DocumentStore interface {
	FindByHash(ctx context.Context, fileHash string) (string, bool, error)
	Create(ctx context.Context, rec models.DocumentRecord) (string, error)
	UpdateStatus(ctx context.Context, id, state, errDetails, textURI string, pageCount int) error
}

// ProgressFunc receives a completion estimate between 0 and 100.
type ProgressFunc func(percent int)
