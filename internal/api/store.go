// internal/api/store.go
package api

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polytopelabs/hyperpuzzle-simulator/internal/observability"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/sim/session"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

// StoredSession pairs a live session with its server-side identity.
type StoredSession struct {
	ID      string
	Puzzle  string
	Created time.Time
	Session *session.Session
}

// SessionStore tracks live sessions by id. All methods are safe for
// concurrent use; the sessions themselves carry their own locking.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*StoredSession
	metrics  *observability.APICollector
}

// NewSessionStore returns an empty store. metrics may be nil.
func NewSessionStore(metrics *observability.APICollector) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*StoredSession),
		metrics:  metrics,
	}
}

// Create instantiates a session for def and registers it under a fresh id.
func (st *SessionStore) Create(def *model.PuzzleDefinition, opts ...session.Option) *StoredSession {
	stored := &StoredSession{
		ID:      uuid.NewString(),
		Puzzle:  def.Name,
		Created: time.Now().UTC(),
		Session: session.New(def, opts...),
	}

	st.mu.Lock()
	st.sessions[stored.ID] = stored
	st.mu.Unlock()

	if st.metrics != nil {
		st.metrics.SessionOpened()
	}
	return stored
}

// Get looks up a session by id.
func (st *SessionStore) Get(id string) (*StoredSession, error) {
	st.mu.RLock()
	stored, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return stored, nil
}

// Delete removes a session by id.
func (st *SessionStore) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if st.metrics != nil {
		st.metrics.SessionClosed()
	}
	return nil
}

// List returns all sessions ordered by creation time, oldest first.
func (st *SessionStore) List() []*StoredSession {
	st.mu.RLock()
	out := make([]*StoredSession, 0, len(st.sessions))
	for _, stored := range st.sessions {
		out = append(out, stored)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
