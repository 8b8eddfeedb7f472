package resolution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namegate/internal/audit"
	consentmodels "namegate/internal/consent/models"
	consentstore "namegate/internal/consent/store"
	profilemodels "namegate/internal/profile/models"
	profilestore "namegate/internal/profile/store"
	id "namegate/pkg/domain"
	"namegate/pkg/requestcontext"
)

type capturingAuditor struct {
	mu      sync.Mutex
	records []audit.Disclosure
}

func (c *capturingAuditor) Record(_ context.Context, d audit.Disclosure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, d)
}

type fixture struct {
	engine   *Engine
	auditor  *capturingAuditor
	consents *consentstore.InMemoryStore
	profiles *profilestore.InMemoryStore
	ctx      context.Context
	now      time.Time
	target   id.UserID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		auditor:  &capturingAuditor{},
		consents: consentstore.NewInMemoryStore(),
		profiles: profilestore.NewInMemoryStore(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		target:   id.UserID(uuid.New()),
	}
	f.ctx = requestcontext.WithTime(context.Background(), f.now)
	f.engine = New(f.consents, f.profiles, WithAuditPublisher(f.auditor))
	return f
}

func (f *fixture) addName(t *testing.T, text string, kind profilemodels.NameKind, preferred bool) *profilemodels.Name {
	t.Helper()
	name, err := profilemodels.NewName(id.NameID(uuid.New()), f.target, text, kind, "", f.now)
	require.NoError(t, err)
	require.NoError(t, f.profiles.CreateName(f.ctx, name))
	if preferred {
		require.NoError(t, f.profiles.SetPreferredName(f.ctx, f.target, name.ID, f.now))
	}
	return name
}

func (f *fixture) addContext(t *testing.T, label string, name *profilemodels.Name) *profilemodels.Context {
	t.Helper()
	dc, err := profilemodels.NewContext(id.ContextID(uuid.New()), f.target, label, "", f.now)
	require.NoError(t, err)
	require.NoError(t, f.profiles.CreateContext(f.ctx, dc))
	if name != nil {
		require.NoError(t, f.profiles.UpsertAssignment(f.ctx, &profilemodels.ContextNameAssignment{
			ContextID:  dc.ID,
			NameID:     name.ID,
			OwnerID:    f.target,
			AssignedAt: f.now,
		}))
	}
	return dc
}

func (f *fixture) grantConsent(t *testing.T, requester id.UserID, contextID id.ContextID, grantedAt time.Time) *consentmodels.Consent {
	t.Helper()
	c, err := consentmodels.NewConsent(id.ConsentID(uuid.New()), f.target, requester, contextID, nil, grantedAt.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, c.ApplyGrant(grantedAt))
	require.NoError(t, f.consents.Create(f.ctx, c, f.now))
	return c
}

func TestResolveScenario(t *testing.T) {
	// user with Legal, Preferred (flagged), and Alias names spread over
	// Work, Gaming, and OSS contexts
	f := newFixture(t)
	legal := f.addName(t, "Jędrzej Lewandowski", profilemodels.NameKindLegal, false)
	preferred := f.addName(t, "JJ", profilemodels.NameKindPreferred, true)
	alias := f.addName(t, "J.L.", profilemodels.NameKindAlias, false)

	f.addContext(t, "Work", legal)
	f.addContext(t, "Gaming", preferred)
	f.addContext(t, "OSS", alias)

	cases := []struct {
		hint     string
		expected string
		tier     string
	}{
		{"Work", "Jędrzej Lewandowski", TierContext},
		{"Gaming", "JJ", TierContext},
		{"OSS", "J.L.", TierContext},
		{"", "JJ", TierFallback},
		{"Nonexistent Context", "JJ", TierFallback},
		{"work", "JJ", TierFallback}, // hints are case-sensitive
	}
	for _, tc := range cases {
		result, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target, ContextHint: tc.hint})
		require.NoError(t, err, "hint %q", tc.hint)
		assert.Equal(t, tc.expected, result.Text, "hint %q", tc.hint)
		assert.Equal(t, tc.tier, result.Tier, "hint %q", tc.hint)
	}
}

func TestResolveHintByID(t *testing.T) {
	f := newFixture(t)
	nick := f.addName(t, "Jed", profilemodels.NameKindNickname, false)
	gaming := f.addContext(t, "gaming", nick)

	result, err := f.engine.Resolve(f.ctx, Request{
		TargetUserID: f.target,
		ContextHint:  gaming.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Jed", result.Text)
	assert.Equal(t, TierContext, result.Tier)
	require.NotNil(t, result.ContextID)
	assert.Equal(t, gaming.ID, *result.ContextID)
}

func TestResolveForeignContextFallsBack(t *testing.T) {
	f := newFixture(t)
	f.addName(t, "Jane", profilemodels.NameKindLegal, true)

	// a context id belonging to a different user must not disclose through
	other := id.UserID(uuid.New())
	foreign, err := profilemodels.NewContext(id.ContextID(uuid.New()), other, "theirs", "", f.now)
	require.NoError(t, err)
	require.NoError(t, f.profiles.CreateContext(f.ctx, foreign))

	result, err := f.engine.Resolve(f.ctx, Request{
		TargetUserID: f.target,
		ContextHint:  foreign.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane", result.Text)
	assert.Equal(t, TierFallback, result.Tier)
}

func TestResolveConsentBeatsHint(t *testing.T) {
	f := newFixture(t)
	f.addName(t, "JJ", profilemodels.NameKindPreferred, true)
	pro := f.addName(t, "J. Lewandowski, PhD", profilemodels.NameKindProfessional, false)
	nick := f.addName(t, "Jed", profilemodels.NameKindNickname, false)

	work := f.addContext(t, "work", pro)
	f.addContext(t, "gaming", nick)

	requester := id.UserID(uuid.New())
	f.grantConsent(t, requester, work.ID, f.now.Add(-time.Hour))

	result, err := f.engine.Resolve(f.ctx, Request{
		TargetUserID: f.target,
		RequesterID:  &requester,
		ContextHint:  "gaming",
	})
	require.NoError(t, err)
	assert.Equal(t, "J. Lewandowski, PhD", result.Text, "consent outranks the explicit hint")
	assert.Equal(t, TierConsent, result.Tier)
}

func TestResolveFallback(t *testing.T) {
	t.Run("no names at all discloses the fixed sentinel", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target})
		require.NoError(t, err)
		assert.Equal(t, FallbackName, result.Text)
		assert.Equal(t, TierFallback, result.Tier)
		assert.Nil(t, result.NameID)
	})

	t.Run("names without a preferred flag still disclose the sentinel", func(t *testing.T) {
		f := newFixture(t)
		f.addName(t, "Jane", profilemodels.NameKindLegal, false)

		result, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target})
		require.NoError(t, err)
		assert.Equal(t, FallbackName, result.Text)
	})
}

func TestResolveDanglingContext(t *testing.T) {
	t.Run("consent to an unassigned context skips the hint tier", func(t *testing.T) {
		f := newFixture(t)
		preferred := f.addName(t, "Jane Doe", profilemodels.NameKindPreferred, true)
		nick := f.addName(t, "JD", profilemodels.NameKindNickname, false)

		bare := f.addContext(t, "bare", nil)
		f.addContext(t, "gaming", nick)

		requester := id.UserID(uuid.New())
		f.grantConsent(t, requester, bare.ID, f.now.Add(-time.Hour))

		result, err := f.engine.Resolve(f.ctx, Request{
			TargetUserID: f.target,
			RequesterID:  &requester,
			ContextHint:  "gaming",
		})
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", result.Text)
		assert.Equal(t, TierFallback, result.Tier)
		require.NotNil(t, result.NameID)
		assert.Equal(t, preferred.ID, *result.NameID)
	})

	t.Run("hinted context without an assignment falls back", func(t *testing.T) {
		f := newFixture(t)
		f.addName(t, "Jane Doe", profilemodels.NameKindLegal, true)
		f.addContext(t, "bare", nil)

		result, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target, ContextHint: "bare"})
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", result.Text)
		assert.Equal(t, TierFallback, result.Tier)
	})
}

func TestResolveMultipleGrants(t *testing.T) {
	f := newFixture(t)
	oldName := f.addName(t, "Old Name", profilemodels.NameKindAlias, false)
	freshName := f.addName(t, "Fresh Name", profilemodels.NameKindAlias, false)

	oldCtx := f.addContext(t, "old", oldName)
	freshCtx := f.addContext(t, "fresh", freshName)

	requester := id.UserID(uuid.New())
	f.grantConsent(t, requester, freshCtx.ID, f.now.Add(-time.Hour))

	// fabricate the anomaly the unique index should prevent: a second live
	// grant for the same pair, older than the first
	stray := f.grantConsent(t, id.UserID(uuid.New()), oldCtx.ID, f.now.Add(-2*time.Hour))
	stray.RequesterID = requester
	require.NoError(t, f.consents.Update(f.ctx, stray))

	result, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target, RequesterID: &requester})
	require.NoError(t, err)
	assert.Equal(t, "Fresh Name", result.Text, "newest grant wins")
	assert.Equal(t, TierConsent, result.Tier)
}

func TestResolveRevokedConsentFallsBack(t *testing.T) {
	f := newFixture(t)
	f.addName(t, "Jane Doe", profilemodels.NameKindLegal, true)
	pro := f.addName(t, "Dr. Doe", profilemodels.NameKindProfessional, false)
	work := f.addContext(t, "work", pro)

	requester := id.UserID(uuid.New())
	consent := f.grantConsent(t, requester, work.ID, f.now.Add(-time.Hour))

	result, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target, RequesterID: &requester})
	require.NoError(t, err)
	require.Equal(t, "Dr. Doe", result.Text)

	require.True(t, consent.ApplyRevoke(f.now))
	require.NoError(t, f.consents.Update(f.ctx, consent))

	result, err = f.engine.Resolve(f.ctx, Request{TargetUserID: f.target, RequesterID: &requester})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Text)
	assert.Equal(t, TierFallback, result.Tier)
}

func TestResolveAudits(t *testing.T) {
	f := newFixture(t)
	f.addName(t, "Jane Doe", profilemodels.NameKindLegal, true)

	requester := id.UserID(uuid.New())
	_, err := f.engine.Resolve(f.ctx, Request{TargetUserID: f.target, RequesterID: &requester})
	require.NoError(t, err)

	require.Len(t, f.auditor.records, 1)
	record := f.auditor.records[0]
	assert.Equal(t, f.target, record.TargetUserID)
	require.NotNil(t, record.RequesterID)
	assert.Equal(t, requester, *record.RequesterID)
	assert.Equal(t, "Jane Doe", record.DisclosedName)
	assert.Equal(t, TierFallback, record.Tier)
	assert.Equal(t, f.now, record.AccessedAt)
}

func TestResolveRejectsNilTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Resolve(f.ctx, Request{})
	require.Error(t, err)
}
