package upload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	mu      sync.Mutex
	session *Session
	deleted bool
}

// MemorySessionStore keeps sessions in process memory. The map lock covers
// lookup, insert and delete only; each session has its own lock for its pending set.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*memoryEntry)}
}

func (m *MemorySessionStore) Create(ctx context.Context, params *CreateSessionParams) (*Session, error) {
	plan, err := NewPlan(params.Size, params.ChunkSize)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:         uuid.NewString(),
		BucketID:   params.BucketID,
		Name:       params.Name,
		Digest:     params.Digest,
		Size:       plan.Size,
		ChunkSize:  plan.ChunkSize,
		ChunkCount: plan.ChunkCount,
		Pending:    newPendingSet(plan.ChunkCount),
		State:      StateUploading,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = &memoryEntry{session: session}
	m.mu.Unlock()

	return session.clone(), nil
}

func (m *MemorySessionStore) lookup(id string) (*memoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	return e, ok
}

// with runs fn under the session lock, or fails with ErrSessionNotFound.
// Cancelling sessions count as missing.
func (m *MemorySessionStore) with(id string, fn func(s *Session) error) error {
	return m.withAny(id, func(s *Session) error {
		if s.State == StateCancelling {
			return ErrSessionNotFound
		}
		return fn(s)
	})
}

func (m *MemorySessionStore) withAny(id string, fn func(s *Session) error) error {
	e, ok := m.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ErrSessionNotFound
	}
	return fn(e.session)
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var snapshot *Session
	err := m.with(id, func(s *Session) error {
		snapshot = s.clone()
		return nil
	})
	return snapshot, err
}

func (m *MemorySessionStore) MarkReceived(ctx context.Context, id string, index int) (MarkResult, error) {
	var result MarkResult
	err := m.with(id, func(s *Session) error {
		if !s.Plan().InRange(index) {
			return ErrChunkOutOfRange
		}
		if !s.Pending.Contains(index) {
			result.Remaining = s.Pending.Cardinality()
			return nil
		}
		s.Pending.Remove(index)
		result.Remaining = s.Pending.Cardinality()
		if result.Remaining == 0 {
			s.State = StateFinalizing
			result.Completed = true
		}
		return nil
	})
	return result, err
}

func (m *MemorySessionStore) ClaimFinalize(ctx context.Context, id string) error {
	return m.with(id, func(s *Session) error {
		if s.State == StateFinalizing {
			return ErrFinalizeInProgress
		}
		if s.Pending.Cardinality() > 0 {
			return ErrChunksPending
		}
		s.State = StateFinalizing
		return nil
	})
}

func (m *MemorySessionStore) ReleaseFinalize(ctx context.Context, id string) error {
	return m.with(id, func(s *Session) error {
		s.State = StateUploading
		return nil
	})
}

func (m *MemorySessionStore) ClaimTeardown(ctx context.Context, id string) (*Session, error) {
	var snapshot *Session
	err := m.withAny(id, func(s *Session) error {
		if s.State == StateFinalizing {
			return ErrFinalizeInProgress
		}
		s.State = StateCancelling
		snapshot = s.clone()
		return nil
	})
	return snapshot, err
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

func (m *MemorySessionStore) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	m.mu.RLock()
	entries := make([]*memoryEntry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var expired []string
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted && e.session.State != StateFinalizing && e.session.CreatedAt.Before(before) {
			expired = append(expired, e.session.ID)
		}
		e.mu.Unlock()
	}
	return expired, nil
}

// RecoverFinalizing has nothing to do: memory sessions do not survive a restart
func (m *MemorySessionStore) RecoverFinalizing(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *MemorySessionStore) Close() error {
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
