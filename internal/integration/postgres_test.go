//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	auditmodels "namegate/internal/audit/models"
	auditstore "namegate/internal/audit/store"
	clientmodels "namegate/internal/clients/models"
	clientstore "namegate/internal/clients/store"
	consentmodels "namegate/internal/consent/models"
	consentstore "namegate/internal/consent/store"
	"namegate/internal/jwtclaims"
	"namegate/internal/platform/postgres"
	profilemodels "namegate/internal/profile/models"
	profilestore "namegate/internal/profile/store"
	registrystore "namegate/internal/registry/store"
	"namegate/internal/resolution"
	sessionservice "namegate/internal/session/service"
	sessionstore "namegate/internal/session/store"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
	"namegate/pkg/requestcontext"
	"namegate/pkg/secrets"
	"namegate/pkg/testutil/containers"
)

const (
	clientID     = "nc_0123456789abcdef"
	clientSecret = "integration-secret"
)

type PostgresSuite struct {
	suite.Suite
	pg  *containers.PostgresContainer
	ctx context.Context
	now time.Time

	profiles *profilestore.PostgresStore
	consents *consentstore.PostgresStore
	clients  *clientstore.PostgresStore
	bindings *registrystore.PostgresStore
	sessions *sessionstore.PostgresStore
	audits   *auditstore.PostgresStore
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T(), postgres.Schema())
	s.profiles = profilestore.NewPostgres(s.pg.DB)
	s.consents = consentstore.NewPostgres(s.pg.DB)
	s.clients = clientstore.NewPostgres(s.pg.DB)
	s.bindings = registrystore.NewPostgres(s.pg.DB)
	s.sessions = sessionstore.NewPostgres(s.pg.DB)
	s.audits = auditstore.NewPostgres(s.pg.DB)
}

func (s *PostgresSuite) SetupTest() {
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	require.NoError(s.T(), s.pg.TruncateTables(context.Background(),
		"audit_log_entries", "sessions", "app_context_assignments", "consents",
		"context_name_assignments", "contexts", "names", "client_applications"))
}

func (s *PostgresSuite) seedContext(ownerID id.UserID, contextName, nameText string, kind profilemodels.NameKind) *profilemodels.Context {
	name, err := profilemodels.NewName(id.NameID(uuid.New()), ownerID, nameText, kind, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.CreateName(s.ctx, name))

	dc, err := profilemodels.NewContext(id.ContextID(uuid.New()), ownerID, contextName, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.CreateContext(s.ctx, dc))
	s.Require().NoError(s.profiles.UpsertAssignment(s.ctx, &profilemodels.ContextNameAssignment{
		ContextID: dc.ID, NameID: name.ID, OwnerID: ownerID, AssignedAt: s.now,
	}))
	return dc
}

func (s *PostgresSuite) TestProfileRoundTrip() {
	ownerID := id.UserID(uuid.New())
	dc := s.seedContext(ownerID, "gaming", "Jed", profilemodels.NameKindNickname)

	found, err := s.profiles.FindContextByOwnerAndName(s.ctx, ownerID, "gaming")
	s.Require().NoError(err)
	s.Equal(dc.ID, found.ID)

	_, err = s.profiles.FindContextByOwnerAndName(s.ctx, ownerID, "Gaming")
	s.ErrorIs(err, sentinel.ErrNotFound, "lookups are case-sensitive")

	names, err := s.profiles.ListNamesByOwner(s.ctx, ownerID)
	s.Require().NoError(err)
	s.Require().Len(names, 1)
	s.Equal("Jed", names[0].Text)
}

func (s *PostgresSuite) TestLiveConsentUniqueIndex() {
	granter := id.UserID(uuid.New())
	requester := id.UserID(uuid.New())
	work := s.seedContext(granter, "work", "J. Lewandowski", profilemodels.NameKindProfessional)
	gaming := s.seedContext(granter, "gaming", "Jed", profilemodels.NameKindNickname)

	first, err := consentmodels.NewConsent(id.ConsentID(uuid.New()), granter, requester, work.ID, nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.consents.Create(s.ctx, first, s.now))

	// a second live consent for the pair conflicts even under another context
	second, err := consentmodels.NewConsent(id.ConsentID(uuid.New()), granter, requester, gaming.ID, nil, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.consents.Create(s.ctx, second, s.now), sentinel.ErrConflict)

	// revoking frees the pair for a fresh consent
	s.Require().True(first.ApplyGrant(s.now))
	s.Require().NoError(s.consents.Update(s.ctx, first))
	s.Require().True(first.ApplyRevoke(s.now))
	s.Require().NoError(s.consents.Update(s.ctx, first))
	s.Require().NoError(s.consents.Create(s.ctx, second, s.now))
}

func (s *PostgresSuite) TestPreferredNameSwap() {
	ownerID := id.UserID(uuid.New())

	first, err := profilemodels.NewName(id.NameID(uuid.New()), ownerID, "Jędrzej Lewandowski", profilemodels.NameKindLegal, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.CreateName(s.ctx, first))
	second, err := profilemodels.NewName(id.NameID(uuid.New()), ownerID, "JJ", profilemodels.NameKindPreferred, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.CreateName(s.ctx, second))

	s.Require().NoError(s.profiles.SetPreferredName(s.ctx, ownerID, first.ID, s.now))

	// switching while a preferred name already exists must not trip the
	// partial unique index on (owner_id) WHERE is_preferred
	s.Require().NoError(s.profiles.SetPreferredName(s.ctx, ownerID, second.ID, s.now))

	preferred, err := s.profiles.FindPreferredName(s.ctx, ownerID)
	s.Require().NoError(err)
	s.Equal(second.ID, preferred.ID)

	names, err := s.profiles.ListNamesByOwner(s.ctx, ownerID)
	s.Require().NoError(err)
	flagged := 0
	for _, n := range names {
		if n.IsPreferred {
			flagged++
		}
	}
	s.Equal(1, flagged, "exactly one preferred name after the swap")
}

func (s *PostgresSuite) TestConsentReRequestAfterExpiry() {
	granter := id.UserID(uuid.New())
	requester := id.UserID(uuid.New())
	work := s.seedContext(granter, "work", "J. Lewandowski", profilemodels.NameKindProfessional)

	deadline := s.now.Add(time.Minute)
	stale, err := consentmodels.NewConsent(id.ConsentID(uuid.New()), granter, requester, work.ID, &deadline, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.consents.Create(s.ctx, stale, s.now))

	// past the deadline the pair slot must open up again even though the
	// stale row still sits in the live-pair index as PENDING
	later := s.now.Add(time.Hour)
	fresh, err := consentmodels.NewConsent(id.ConsentID(uuid.New()), granter, requester, work.ID, nil, later)
	s.Require().NoError(err)
	s.Require().NoError(s.consents.Create(s.ctx, fresh, later))

	reloaded, err := s.consents.FindByID(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(consentmodels.StatusExpired, reloaded.Status, "stale row reconciled, history preserved")

	live, err := s.consents.FindLiveByPair(s.ctx, granter, requester, later)
	s.Require().NoError(err)
	s.Equal(fresh.ID, live.ID)
}

func (s *PostgresSuite) TestResolutionAgainstPostgres() {
	target := id.UserID(uuid.New())
	requester := id.UserID(uuid.New())
	work := s.seedContext(target, "work", "J. Lewandowski", profilemodels.NameKindProfessional)

	engine := resolution.New(s.consents, s.profiles)

	result, err := engine.Resolve(s.ctx, resolution.Request{TargetUserID: target, ContextHint: "work"})
	s.Require().NoError(err)
	s.Equal("J. Lewandowski", result.Text)
	s.Equal(resolution.TierContext, result.Tier)

	consent, err := consentmodels.NewConsent(id.ConsentID(uuid.New()), target, requester, work.ID, nil, s.now)
	s.Require().NoError(err)
	s.Require().True(consent.ApplyGrant(s.now))
	s.Require().NoError(s.consents.Create(s.ctx, consent, s.now))

	result, err = engine.Resolve(s.ctx, resolution.Request{TargetUserID: target, RequesterID: &requester})
	s.Require().NoError(err)
	s.Equal("J. Lewandowski", result.Text)
	s.Equal(resolution.TierConsent, result.Tier)
}

func (s *PostgresSuite) TestSessionFlowInTransaction() {
	userID := id.UserID(uuid.New())
	gaming := s.seedContext(userID, "gaming", "Jed", profilemodels.NameKindNickname)

	hash, err := secrets.Hash(clientSecret)
	s.Require().NoError(err)
	client, err := clientmodels.NewClientApplication(id.ClientID(clientID), "Chess Club", "chess.example", hash, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.clients.Create(s.ctx, client))

	engine := resolution.New(s.consents, s.profiles)
	signer, err := jwtclaims.NewSigner([]byte("0123456789abcdef0123456789abcdef"), "https://namegate.example")
	s.Require().NoError(err)

	svc := sessionservice.New(s.sessions, s.clients, s.bindings, s.profiles,
		engine, signer, txcontext.NewSQLRunner(s.pg.DB))

	authorized, err := svc.Authorize(s.ctx, sessionservice.AuthorizeInput{
		ClientID:     id.ClientID(clientID),
		ClientSecret: clientSecret,
		UserID:       userID,
		ContextID:    gaming.ID,
		ReturnURL:    "https://chess.example/callback",
	})
	s.Require().NoError(err)

	binding, err := s.bindings.FindByUserAndClient(s.ctx, userID, id.ClientID(clientID))
	s.Require().NoError(err)
	s.Equal(gaming.ID, binding.ContextID)

	resolved, err := svc.Resolve(s.ctx, authorized.Session.Token)
	s.Require().NoError(err)
	s.Equal("Jed", resolved.DisclosedName)
	s.Equal("gaming", resolved.ContextName)

	n, err := svc.Revoke(s.ctx, userID, nil)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = svc.Resolve(s.ctx, authorized.Session.Token)
	s.Require().Error(err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *PostgresSuite) TestAuditInsertAndHistory() {
	target := id.UserID(uuid.New())

	for i, name := range []string{"Jed", "J. Lewandowski"} {
		entry := &auditmodels.Entry{
			ID:            time.Now().UTC().Add(time.Duration(i) * time.Millisecond).Format("20060102150405.000000000"),
			Action:        auditmodels.ActionNameDisclosed,
			TargetUserID:  target,
			DisclosedName: name,
			Tier:          resolution.TierFallback,
			AccessedAt:    s.now,
		}
		s.Require().NoError(s.audits.Insert(s.ctx, entry))
	}

	entries, err := s.audits.ListByTarget(s.ctx, target, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("J. Lewandowski", entries[0].DisclosedName, "newest first")
}
