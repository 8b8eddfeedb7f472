package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"namegate/internal/session/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in maps guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]models.Session
	byToken  map[string]id.SessionID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[id.SessionID]models.Session),
		byToken:  make(map[string]id.SessionID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byToken[session.Token]; ok {
		return fmt.Errorf("session token: %w", sentinel.ErrConflict)
	}
	s.sessions[session.ID] = *session
	s.byToken[session.Token] = session.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("session token: %w", sentinel.ErrNotFound)
	}
	session := s.sessions[sessionID]
	return &session, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			sess := session
			out = append(out, &sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RevokeActiveByUser revokes every active session of a user, optionally
// narrowed to one client, and reports how many it touched.
func (s *InMemoryStore) RevokeActiveByUser(_ context.Context, userID id.UserID, clientID *id.ClientID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for sessionID, session := range s.sessions {
		if session.UserID != userID || !session.IsActive(now) {
			continue
		}
		if clientID != nil && session.ClientID != *clientID {
			continue
		}
		session.Revoke(now)
		s.sessions[sessionID] = session
		n++
	}
	return n, nil
}
