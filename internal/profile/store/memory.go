package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"namegate/internal/profile/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
)

// Error contract: store methods return sentinel.ErrNotFound (wrapped) when an
// entity does not exist and sentinel.ErrConflict on uniqueness violations.
// Services translate these into domain errors.

// InMemoryStore keeps the profile catalog in memory for tests and dev runs.
// It favors clarity over performance.
type InMemoryStore struct {
	mu          sync.RWMutex
	names       map[id.NameID]*models.Name
	contexts    map[id.ContextID]*models.Context
	assignments map[id.ContextID]*models.ContextNameAssignment
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		names:       make(map[id.NameID]*models.Name),
		contexts:    make(map[id.ContextID]*models.Context),
		assignments: make(map[id.ContextID]*models.ContextNameAssignment),
	}
}

// -----------------------------------------------------------------------------
// Names
// -----------------------------------------------------------------------------

func (s *InMemoryStore) CreateName(_ context.Context, name *models.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *name
	s.names[name.ID] = &copied
	return nil
}

func (s *InMemoryStore) UpdateName(_ context.Context, name *models.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name.ID]; !ok {
		return fmt.Errorf("name %s: %w", name.ID, sentinel.ErrNotFound)
	}
	copied := *name
	s.names[name.ID] = &copied
	return nil
}

func (s *InMemoryStore) DeleteName(_ context.Context, ownerID id.UserID, nameID id.NameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.names[nameID]
	if !ok || name.OwnerID != ownerID {
		return fmt.Errorf("name %s: %w", nameID, sentinel.ErrNotFound)
	}
	delete(s.names, nameID)
	return nil
}

func (s *InMemoryStore) FindNameByID(_ context.Context, nameID id.NameID) (*models.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, ok := s.names[nameID]; ok {
		copied := *name
		return &copied, nil
	}
	return nil, fmt.Errorf("name %s: %w", nameID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListNamesByOwner(_ context.Context, ownerID id.UserID) ([]*models.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []*models.Name
	for _, name := range s.names {
		if name.OwnerID == ownerID {
			copied := *name
			names = append(names, &copied)
		}
	}
	return names, nil
}

func (s *InMemoryStore) FindPreferredName(_ context.Context, ownerID id.UserID) (*models.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.names {
		if name.OwnerID == ownerID && name.IsPreferred {
			copied := *name
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("preferred name for %s: %w", ownerID, sentinel.ErrNotFound)
}

// SetPreferredName atomically makes nameID the owner's only preferred name.
// The previous preferred flag is cleared in the same critical section.
func (s *InMemoryStore) SetPreferredName(_ context.Context, ownerID id.UserID, nameID id.NameID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.names[nameID]
	if !ok || target.OwnerID != ownerID {
		return fmt.Errorf("name %s: %w", nameID, sentinel.ErrNotFound)
	}
	for _, name := range s.names {
		if name.OwnerID == ownerID && name.IsPreferred && name.ID != nameID {
			name.IsPreferred = false
			name.UpdatedAt = now
		}
	}
	target.IsPreferred = true
	target.UpdatedAt = now
	return nil
}

// -----------------------------------------------------------------------------
// Contexts
// -----------------------------------------------------------------------------

func (s *InMemoryStore) CreateContext(_ context.Context, dc *models.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.contexts {
		if existing.OwnerID == dc.OwnerID && existing.Name == dc.Name {
			return fmt.Errorf("context name %q: %w", dc.Name, sentinel.ErrConflict)
		}
	}
	copied := *dc
	s.contexts[dc.ID] = &copied
	return nil
}

func (s *InMemoryStore) DeleteContext(_ context.Context, ownerID id.UserID, contextID id.ContextID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dc, ok := s.contexts[contextID]
	if !ok || dc.OwnerID != ownerID {
		return fmt.Errorf("context %s: %w", contextID, sentinel.ErrNotFound)
	}
	delete(s.contexts, contextID)
	delete(s.assignments, contextID)
	return nil
}

func (s *InMemoryStore) FindContextByID(_ context.Context, contextID id.ContextID) (*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if dc, ok := s.contexts[contextID]; ok {
		copied := *dc
		return &copied, nil
	}
	return nil, fmt.Errorf("context %s: %w", contextID, sentinel.ErrNotFound)
}

// FindContextByOwnerAndName matches exactly and case-sensitively.
func (s *InMemoryStore) FindContextByOwnerAndName(_ context.Context, ownerID id.UserID, name string) (*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dc := range s.contexts {
		if dc.OwnerID == ownerID && dc.Name == name {
			copied := *dc
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("context %q: %w", name, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListContextsByOwner(_ context.Context, ownerID id.UserID) ([]*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var contexts []*models.Context
	for _, dc := range s.contexts {
		if dc.OwnerID == ownerID {
			copied := *dc
			contexts = append(contexts, &copied)
		}
	}
	return contexts, nil
}

// -----------------------------------------------------------------------------
// Context-name assignments
// -----------------------------------------------------------------------------

// UpsertAssignment replaces any existing assignment for the context. The
// unique-per-context invariant is the map key.
func (s *InMemoryStore) UpsertAssignment(_ context.Context, assignment *models.ContextNameAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *assignment
	s.assignments[assignment.ContextID] = &copied
	return nil
}

func (s *InMemoryStore) FindAssignmentByContext(_ context.Context, contextID id.ContextID) (*models.ContextNameAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if assignment, ok := s.assignments[contextID]; ok {
		copied := *assignment
		return &copied, nil
	}
	return nil, fmt.Errorf("assignment for context %s: %w", contextID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) DeleteAssignment(_ context.Context, contextID id.ContextID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[contextID]; !ok {
		return fmt.Errorf("assignment for context %s: %w", contextID, sentinel.ErrNotFound)
	}
	delete(s.assignments, contextID)
	return nil
}

// CountAssignmentsByName reports how many contexts currently disclose the
// given name. Used by the delete-name safeguard.
func (s *InMemoryStore) CountAssignmentsByName(_ context.Context, nameID id.NameID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, assignment := range s.assignments {
		if assignment.NameID == nameID {
			count++
		}
	}
	return count, nil
}
