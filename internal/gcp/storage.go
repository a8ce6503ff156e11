package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// StorageGateway is the GCS-backed object store used for OCR inputs and
// result fragments.
type StorageGateway struct {
	client *storage.Client
}

// NewStorageGateway creates a gateway with its own storage client.
func NewStorageGateway(ctx context.Context) (*StorageGateway, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &StorageGateway{client: client}, nil
}

// Put uploads data, overwriting any existing object with the same key.
func (g *StorageGateway) Put(ctx context.Context, bucket, key string, data []byte) error {
	writer := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// List enumerates objects under prefix. Each range over the returned
// sequence starts a fresh listing.
func (g *StorageGateway) List(ctx context.Context, bucket, prefix string) iter.Seq2[models.ObjectHandle, error] {
	return func(yield func(models.ObjectHandle, error) bool) {
		it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield(models.ObjectHandle{}, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err))
				return
			}
			if !yield(models.ObjectHandle{Name: attrs.Name, Size: attrs.Size}, nil) {
				return
			}
		}
	}
}

// Get downloads an object.
func (g *StorageGateway) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, key, models.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (g *StorageGateway) Delete(ctx context.Context, bucket, key string) error {
	err := g.client.Bucket(bucket).Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, key, err)
}

// Close releases the underlying client.
func (g *StorageGateway) Close() error {
	return g.client.Close()
}
