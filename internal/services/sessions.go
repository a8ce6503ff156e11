package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// sessionIDLength is the number of uuid characters used as a session ID.
const sessionIDLength = 8

// NewSessionID returns a short random session identifier.
func NewSessionID() string {
	return uuid.NewString()[:sessionIDLength]
}

// DefaultSessionLeaseTTL bounds how long a crashed holder can keep a
// session busy.
const DefaultSessionLeaseTTL = 15 * time.Minute

// MemorySessionStore keeps sessions in process memory. Managers sharing one
// store also share its leases.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	leases   map[string]memoryLease
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]models.Session),
		leases:   make(map[string]memoryLease),
	}
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return cloneSession(&sess), nil
}

func (s *MemorySessionStore) Save(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *cloneSession(sess)
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// AcquireLease marks id busy for token until ttl passes or it is released.
func (s *MemorySessionStore) AcquireLease(_ context.Context, id, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if l, ok := s.leases[id]; ok && l.token != token && now.Before(l.expiresAt) {
		return fmt.Errorf("%w: %s", models.ErrSessionBusy, id)
	}
	s.leases[id] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return nil
}

// ReleaseLease drops the lease if token still holds it.
func (s *MemorySessionStore) ReleaseLease(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[id]; ok && l.token == token {
		delete(s.leases, id)
	}
	return nil
}

func cloneSession(sess *models.Session) *models.Session {
	c := *sess
	if sess.Findings != nil {
		c.Findings = make([]models.SentenceFinding, len(sess.Findings))
		for i, f := range sess.Findings {
			f.Corrections = slices.Clone(f.Corrections)
			c.Findings[i] = f
		}
	}
	return &c
}

// SessionManager serializes operations per session. At most one operation
// runs for a session at a time; a second caller fails with
// models.ErrSessionBusy instead of waiting. When the store is a
// SessionLocker the guard also holds across processes.
type SessionManager struct {
	store    SessionStore
	logger   *slog.Logger
	now      func() time.Time
	leaseTTL time.Duration

	mu   sync.Mutex
	held map[string]struct{}
}

// NewSessionManager creates a SessionManager over store.
func NewSessionManager(store SessionStore, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:    store,
		logger:   logger,
		now:      time.Now,
		leaseTTL: DefaultSessionLeaseTTL,
		held:     make(map[string]struct{}),
	}
}

// WithLeaseTTL sets the lease duration used with a SessionLocker store.
func (m *SessionManager) WithLeaseTTL(ttl time.Duration) *SessionManager {
	if ttl > 0 {
		m.leaseTTL = ttl
	}
	return m
}

// Create starts a new session at the original stage.
func (m *SessionManager) Create(ctx context.Context) (*models.Session, error) {
	for range 3 {
		id := NewSessionID()
		if _, err := m.store.Load(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, models.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to check session id: %w", err)
		}
		now := m.now()
		sess := &models.Session{ID: id, Stage: models.StageOriginal, CreatedAt: now, UpdatedAt: now}
		if err := m.store.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to save session: %w", err)
		}
		m.logger.Info("Session created.", "sessionId", id)
		return sess, nil
	}
	return nil, errors.New("failed to allocate a unique session id")
}

// Get returns a snapshot of the session.
func (m *SessionManager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.store.Load(ctx, id)
}

// Delete removes the session.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	release, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	if _, err := m.store.Load(ctx, id); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	m.logger.Info("Session deleted.", "sessionId", id)
	return nil
}

// Update runs fn on a copy of the session while holding the session lock.
// The copy is persisted only when fn succeeds; on failure the stored drafts
// are left untouched and only the error message is recorded.
func (m *SessionManager) Update(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	release, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	next := cloneSession(current)
	if err := fn(next); err != nil {
		current.LastError = err.Error()
		current.UpdatedAt = m.now()
		if saveErr := m.store.Save(context.WithoutCancel(ctx), current); saveErr != nil {
			m.logger.Error("Failed to record session error", "sessionId", id, "error", saveErr)
		}
		return nil, err
	}

	next.LastError = ""
	next.UpdatedAt = m.now()
	if err := m.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return cloneSession(next), nil
}

// acquire marks id as held in this process and, when supported, takes the
// store lease. The returned func releases both.
func (m *SessionManager) acquire(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	if _, busy := m.held[id]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", models.ErrSessionBusy, id)
	}
	m.held[id] = struct{}{}
	m.mu.Unlock()

	releaseLocal := func() {
		m.mu.Lock()
		delete(m.held, id)
		m.mu.Unlock()
	}

	locker, ok := m.store.(SessionLocker)
	if !ok {
		return releaseLocal, nil
	}
	token := uuid.NewString()
	if err := locker.AcquireLease(ctx, id, token, m.leaseTTL); err != nil {
		releaseLocal()
		return nil, err
	}
	return func() {
		if err := locker.ReleaseLease(context.WithoutCancel(ctx), id, token); err != nil {
			m.logger.Error("Failed to release session lease", "sessionId", id, "error", err)
		}
		releaseLocal()
	}, nil
}
