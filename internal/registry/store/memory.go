package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"namegate/internal/registry/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
)

type bindingKey struct {
	userID   id.UserID
	clientID id.ClientID
}

// InMemoryStore keeps app-context bindings in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	bindings map[bindingKey]models.AppContextAssignment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bindings: make(map[bindingKey]models.AppContextAssignment)}
}

// Upsert writes the binding for (user, client), replacing any previous one.
func (s *InMemoryStore) Upsert(_ context.Context, a *models.AppContextAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[bindingKey{a.UserID, a.ClientID}] = *a
	return nil
}

func (s *InMemoryStore) FindByUserAndClient(_ context.Context, userID id.UserID, clientID id.ClientID) (*models.AppContextAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.bindings[bindingKey{userID, clientID}]
	if !ok {
		return nil, fmt.Errorf("app-context binding: %w", sentinel.ErrNotFound)
	}
	return &a, nil
}

func (s *InMemoryStore) DeleteByUserAndClient(_ context.Context, userID id.UserID, clientID id.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bindingKey{userID, clientID}
	if _, ok := s.bindings[key]; !ok {
		return fmt.Errorf("app-context binding: %w", sentinel.ErrNotFound)
	}
	delete(s.bindings, key)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.AppContextAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AppContextAssignment
	for _, a := range s.bindings {
		if a.UserID == userID {
			binding := a
			out = append(out, &binding)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// CountByContext reports how many bindings still point at a context.
func (s *InMemoryStore) CountByContext(_ context.Context, contextID id.ContextID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.bindings {
		if a.ContextID == contextID {
			n++
		}
	}
	return n, nil
}
