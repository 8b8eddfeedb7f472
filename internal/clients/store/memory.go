package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"namegate/internal/clients/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
)

// InMemoryStore keeps client applications in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	clients map[id.ClientID]models.ClientApplication
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{clients: make(map[id.ClientID]models.ClientApplication)}
}

func (s *InMemoryStore) Create(_ context.Context, client *models.ClientApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ClientID]; ok {
		return fmt.Errorf("client %s: %w", client.ClientID, sentinel.ErrConflict)
	}
	s.clients[client.ClientID] = *client
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, client *models.ClientApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ClientID]; !ok {
		return fmt.Errorf("client %s: %w", client.ClientID, sentinel.ErrNotFound)
	}
	s.clients[client.ClientID] = *client
	return nil
}

func (s *InMemoryStore) FindByClientID(_ context.Context, clientID id.ClientID) (*models.ClientApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	return &client, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.ClientApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ClientApplication, 0, len(s.clients))
	for _, client := range s.clients {
		c := client
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}
