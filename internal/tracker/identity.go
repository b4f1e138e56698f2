package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage keys, shared with the browser snippet so ids can be handed over.
const (
	VisitorKey = "tf_visitor_id"
	SessionKey = "tf_session_id"
)

// NewID returns a unique opaque identifier.
func NewID() string {
	return "tf_" + uuid.NewString()
}

// Storage is a key/value scope that identities live in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Identity hands out the visitor and session ids, creating each lazily on
// first access and reusing it until its storage scope forgets it.
type Identity struct {
	visitor Storage
	session Storage
	newID   func() string
	logger  *slog.Logger

	mu sync.Mutex
	// ids that could not be persisted; kept for the life of the process so
	// callers still see a stable value
	fallback map[string]string
}

func NewIdentity(visitor, session Storage, logger *slog.Logger) *Identity {
	return &Identity{
		visitor:  visitor,
		session:  session,
		newID:    NewID,
		logger:   logger,
		fallback: make(map[string]string),
	}
}

func (i *Identity) VisitorID(ctx context.Context) string {
	return i.get(ctx, i.visitor, VisitorKey)
}

func (i *Identity) SessionID(ctx context.Context) string {
	return i.get(ctx, i.session, SessionKey)
}

// Reset forgets the session id so the next access starts a new session.
func (i *Identity) Reset(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.fallback, SessionKey)
	if err := i.session.Delete(ctx, SessionKey); err != nil {
		i.logger.Warn("failed to clear session id", "error", err)
	}
}

func (i *Identity) get(ctx context.Context, s Storage, key string) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if id, ok := i.fallback[key]; ok {
		return id
	}

	id, ok, err := s.Get(ctx, key)
	if err != nil {
		i.logger.Warn("identity storage read failed", "key", key, "error", err)
		id = i.newID()
		i.fallback[key] = id
		return id
	}
	if ok && id != "" {
		return id
	}

	id = i.newID()
	if err := s.Set(ctx, key, id); err != nil {
		i.logger.Warn("identity storage write failed", "key", key, "error", err)
		i.fallback[key] = id
	}
	return id
}

// MemoryStorage keeps values in process memory. With a non-zero TTL an entry
// expires after that long without being read or written, which models a
// browsing session timing out.
type MemoryStorage struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	touched time.Time
}

func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	now := m.now()
	if m.ttl > 0 && now.Sub(e.touched) > m.ttl {
		delete(m.entries, key)
		return "", false, nil
	}
	e.touched = now
	m.entries[key] = e
	return e.value, true, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, touched: m.now()}
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
