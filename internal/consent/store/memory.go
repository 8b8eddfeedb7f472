package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"namegate/internal/consent/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
)

// InMemoryStore keeps consents in a map guarded by a RWMutex. Used by unit
// tests and single-node dev runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[id.ConsentID]models.Consent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{consents: make(map[id.ConsentID]models.Consent)}
}

// Create persists a new consent. At most one live consent may occupy a
// (granter, requester) pair at a time.
func (s *InMemoryStore) Create(_ context.Context, c *models.Consent, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consents[c.ID]; ok {
		return fmt.Errorf("consent %s: %w", c.ID, sentinel.ErrConflict)
	}
	for _, existing := range s.consents {
		if existing.GranterID == c.GranterID &&
			existing.RequesterID == c.RequesterID &&
			existing.IsLive(now) {
			return fmt.Errorf("live consent exists for pair: %w", sentinel.ErrConflict)
		}
	}
	s.consents[c.ID] = *c
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, c *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consents[c.ID]; !ok {
		return fmt.Errorf("consent %s: %w", c.ID, sentinel.ErrNotFound)
	}
	s.consents[c.ID] = *c
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consentID id.ConsentID) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.consents[consentID]
	if !ok {
		return nil, fmt.Errorf("consent %s: %w", consentID, sentinel.ErrNotFound)
	}
	return &c, nil
}

// FindLiveByPair returns the live consent occupying the (granter, requester)
// pair, if any.
func (s *InMemoryStore) FindLiveByPair(_ context.Context, granterID, requesterID id.UserID, now time.Time) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.consents {
		if c.GranterID == granterID && c.RequesterID == requesterID && c.IsLive(now) {
			out := c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("live consent for pair: %w", sentinel.ErrNotFound)
}

// FindGrantedByPair returns every consent that currently authorizes the
// requester to see a name of the granter, newest grant first (ties broken by
// id, descending) so callers can pick deterministically.
func (s *InMemoryStore) FindGrantedByPair(_ context.Context, granterID, requesterID id.UserID, now time.Time) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Consent
	for _, c := range s.consents {
		if c.GranterID == granterID && c.RequesterID == requesterID && c.IsActive(now) {
			consent := c
			out = append(out, &consent)
		}
	}
	sortGrantedDesc(out)
	return out, nil
}

func sortGrantedDesc(consents []*models.Consent) {
	sort.Slice(consents, func(i, j int) bool {
		gi, gj := consents[i].GrantedAt, consents[j].GrantedAt
		if gi != nil && gj != nil && !gi.Equal(*gj) {
			return gi.After(*gj)
		}
		return consents[i].ID.String() > consents[j].ID.String()
	})
}

func (s *InMemoryStore) ListByGranter(_ context.Context, granterID id.UserID) ([]*models.Consent, error) {
	return s.list(func(c *models.Consent) bool { return c.GranterID == granterID })
}

func (s *InMemoryStore) ListByRequester(_ context.Context, requesterID id.UserID) ([]*models.Consent, error) {
	return s.list(func(c *models.Consent) bool { return c.RequesterID == requesterID })
}

func (s *InMemoryStore) list(match func(*models.Consent) bool) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Consent
	for _, c := range s.consents {
		consent := c
		if match(&consent) {
			out = append(out, &consent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// CountLiveByContext reports how many live consents still reference a context.
// The context-deletion safeguard blocks while this is non-zero.
func (s *InMemoryStore) CountLiveByContext(_ context.Context, contextID id.ContextID, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.consents {
		if c.ContextID == contextID && c.IsLive(now) {
			n++
		}
	}
	return n, nil
}
