package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"namegate/internal/consent/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store     *InMemoryStore
	ctx       context.Context
	now       time.Time
	granter   id.UserID
	requester id.UserID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.granter = id.UserID(uuid.New())
	s.requester = id.UserID(uuid.New())
}

func (s *InMemoryStoreSuite) newConsent(contextID id.ContextID) *models.Consent {
	c, err := models.NewConsent(id.ConsentID(uuid.New()), s.granter, s.requester, contextID, nil, s.now)
	s.Require().NoError(err)
	return c
}

func (s *InMemoryStoreSuite) TestCreateRejectsLiveDuplicate() {
	first := s.newConsent(id.ContextID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, first, s.now))

	// a second live consent for the same pair conflicts even with a
	// different context
	err := s.store.Create(s.ctx, s.newConsent(id.ContextID(uuid.New())), s.now)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	// revoking the grant frees the pair
	s.Require().True(first.ApplyGrant(s.now))
	s.Require().True(first.ApplyRevoke(s.now))
	s.Require().NoError(s.store.Update(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, s.newConsent(id.ContextID(uuid.New())), s.now))
}

func (s *InMemoryStoreSuite) TestCreateAllowsDistinctRequesters() {
	contextID := id.ContextID(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, s.newConsent(contextID), s.now))

	other, err := models.NewConsent(id.ConsentID(uuid.New()), s.granter, id.UserID(uuid.New()), contextID, nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, other, s.now))
}

func (s *InMemoryStoreSuite) TestFindLiveByPair() {
	c := s.newConsent(id.ContextID(uuid.New()))
	s.Require().NoError(s.store.Create(s.ctx, c, s.now))

	found, err := s.store.FindLiveByPair(s.ctx, s.granter, s.requester, s.now)
	s.Require().NoError(err)
	s.Equal(c.ID, found.ID)

	_, err = s.store.FindLiveByPair(s.ctx, s.granter, id.UserID(uuid.New()), s.now)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestFindGrantedByPairOrdering() {
	newer := s.newConsent(id.ContextID(uuid.New()))
	s.Require().True(newer.ApplyGrant(s.now))
	s.Require().NoError(s.store.Create(s.ctx, newer, s.now))

	// a second live grant for the pair is an anomaly the unique index should
	// prevent; fabricate one by mutating a consent created under another
	// requester, and check the read side still orders deterministically
	older, err := models.NewConsent(id.ConsentID(uuid.New()), s.granter, id.UserID(uuid.New()), id.ContextID(uuid.New()), nil, s.now.Add(-2*time.Hour))
	s.Require().NoError(err)
	s.Require().True(older.ApplyGrant(s.now.Add(-time.Hour)))
	s.Require().NoError(s.store.Create(s.ctx, older, s.now))
	older.RequesterID = s.requester
	s.Require().NoError(s.store.Update(s.ctx, older))

	granted, err := s.store.FindGrantedByPair(s.ctx, s.granter, s.requester, s.now)
	s.Require().NoError(err)
	s.Require().Len(granted, 2)
	assert.Equal(s.T(), newer.ID, granted[0].ID, "newest grant first")
	assert.Equal(s.T(), older.ID, granted[1].ID)
}

func (s *InMemoryStoreSuite) TestFindGrantedByPairSkipsExpired() {
	expiry := s.now.Add(time.Minute)
	c, err := models.NewConsent(id.ConsentID(uuid.New()), s.granter, s.requester, id.ContextID(uuid.New()), &expiry, s.now)
	s.Require().NoError(err)
	s.Require().True(c.ApplyGrant(s.now))
	s.Require().NoError(s.store.Create(s.ctx, c, s.now))

	granted, err := s.store.FindGrantedByPair(s.ctx, s.granter, s.requester, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(granted)
}

func (s *InMemoryStoreSuite) TestCountLiveByContext() {
	contextID := id.ContextID(uuid.New())
	c := s.newConsent(contextID)
	s.Require().NoError(s.store.Create(s.ctx, c, s.now))

	count, err := s.store.CountLiveByContext(s.ctx, contextID, s.now)
	s.Require().NoError(err)
	s.Equal(1, count)

	s.Require().True(c.ApplyGrant(s.now))
	s.Require().True(c.ApplyRevoke(s.now))
	s.Require().NoError(s.store.Update(s.ctx, c))

	count, err = s.store.CountLiveByContext(s.ctx, contextID, s.now)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *InMemoryStoreSuite) TestFindByIDUnknown() {
	_, err := s.store.FindByID(s.ctx, id.ConsentID(uuid.New()))
	require.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}
