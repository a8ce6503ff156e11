package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: projectID must be provided to create a firestore client", models.ErrCredentialsMissing)
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreSessionStore snapshots workflow sessions, one document per session ID.
type FirestoreSessionStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSessionStore returns a store writing to the given collection.
func NewFirestoreSessionStore(client *firestore.Client, collection string) *FirestoreSessionStore {
	return &FirestoreSessionStore{client: client, collection: collection}
}

// Load reads a session snapshot.
func (s *FirestoreSessionStore) Load(ctx context.Context, id string) (*models.Session, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	var sess models.Session
	if err := snap.DataTo(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save overwrites the snapshot for sess.ID.
func (s *FirestoreSessionStore) Save(ctx context.Context, sess *models.Session) error {
	if _, err := s.client.Collection(s.collection).Doc(sess.ID).Set(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the snapshot; a missing session is not an error.
func (s *FirestoreSessionStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Collection(s.collection).Doc(id).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// sessionLease is stored in a sibling collection so session snapshots can be
// overwritten without touching it.
type sessionLease struct {
	Token     string    `firestore:"token"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

func (s *FirestoreSessionStore) leaseRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection + "_leases").Doc(id)
}

// AcquireLease takes the session lease in a transaction. A live lease held by
// another token fails with models.ErrSessionBusy.
func (s *FirestoreSessionStore) AcquireLease(ctx context.Context, id, token string, ttl time.Duration) error {
	ref := s.leaseRef(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now()
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var lease sessionLease
			if err := snap.DataTo(&lease); err != nil {
				return err
			}
			if lease.Token != token && now.Before(lease.ExpiresAt) {
				return fmt.Errorf("%w: %s", models.ErrSessionBusy, id)
			}
		}
		return tx.Set(ref, sessionLease{Token: token, ExpiresAt: now.Add(ttl)})
	})
	if err != nil && !errors.Is(err, models.ErrSessionBusy) {
		return fmt.Errorf("failed to acquire lease for session %s: %w", id, err)
	}
	return err
}

// ReleaseLease deletes the lease if token still holds it.
func (s *FirestoreSessionStore) ReleaseLease(ctx context.Context, id, token string) error {
	ref := s.leaseRef(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var lease sessionLease
		if err := snap.DataTo(&lease); err != nil {
			return err
		}
		if lease.Token != token {
			return nil
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("failed to release lease for session %s: %w", id, err)
	}
	return nil
}

// FirestoreDocumentStore tracks ingested documents and their extraction status.
type FirestoreDocumentStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreDocumentStore returns a store writing to the given collection.
func NewFirestoreDocumentStore(client *firestore.Client, collection string) *FirestoreDocumentStore {
	return &FirestoreDocumentStore{client: client, collection: collection}
}

// FindByHash returns the ID of a document with the same content hash, if any.
func (s *FirestoreDocumentStore) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := s.client.Collection(s.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, true, nil
	}
	return "", false, nil
}

// Create adds a new document record and returns its generated ID.
func (s *FirestoreDocumentStore) Create(ctx context.Context, rec models.DocumentRecord) (string, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	docRef, _, err := s.client.Collection(s.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create document record: %w", err)
	}
	return docRef.ID, nil
}

// UpdateStatus sets the status and, when non-empty, the error details and text URI.
func (s *FirestoreDocumentStore) UpdateStatus(ctx context.Context, id, state, errDetails, textURI string, pageCount int) error {
	updates := []firestore.Update{
		{Path: "status", Value: state},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if textURI != "" {
		updates = append(updates, firestore.Update{Path: "textUri", Value: textURI})
	}
	if pageCount > 0 {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: pageCount})
	}
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}
