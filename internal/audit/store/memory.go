package store

import (
	"context"
	"sort"
	"sync"

	"namegate/internal/audit/models"
	id "namegate/pkg/domain"
)

// InMemoryStore keeps audit entries in an append-only slice.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Insert(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// ListByTarget returns the newest entries for a target user, up to limit.
// ULIDs sort lexicographically by creation time, so ordering by id descending
// is newest-first.
func (s *InMemoryStore) ListByTarget(_ context.Context, targetUserID id.UserID, limit int) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Entry
	for i := range s.entries {
		if s.entries[i].TargetUserID == targetUserID {
			entry := s.entries[i]
			out = append(out, &entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
