// Package sessions provides the in-memory registry of research sessions
// observed on relayed event streams.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deepresearch/research-agent/pkg/models"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned when creating a session id that is taken.
	ErrExists = errors.New("session already exists")
)

// MemorySessionStore is a thread-safe in-memory implementation of SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session // key: session ID
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.Session),
	}
}

// CreateSession stores a new session.
func (s *MemorySessionStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, session.ID)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// GetSession returns a copy of the session.
func (s *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	cp := *session
	return &cp, nil
}

// UpdateSession replaces the session state.
func (s *MemorySessionStore) UpdateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, session.ID)
	}
	cp := *session
	cp.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = &cp
	return nil
}

// UpdateSessionFunc applies fn to the stored session under the store lock,
// so concurrent read-modify-write cycles do not lose updates.
func (s *MemorySessionStore) UpdateSessionFunc(_ context.Context, sessionID string, fn func(*models.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	cp := *session
	fn(&cp)
	cp.ID = sessionID
	cp.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = &cp
	return nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *MemorySessionStore) ListSessions(_ context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, *sess)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// DeleteSession removes a session.
func (s *MemorySessionStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	return nil
}
