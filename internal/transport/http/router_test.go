package httptransport

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namegate/internal/audit"
	auditstore "namegate/internal/audit/store"
	clientmodels "namegate/internal/clients/models"
	clientstore "namegate/internal/clients/store"
	consentservice "namegate/internal/consent/service"
	consentstore "namegate/internal/consent/store"
	"namegate/internal/jwtclaims"
	profileservice "namegate/internal/profile/service"
	profilestore "namegate/internal/profile/store"
	registryservice "namegate/internal/registry/service"
	registrystore "namegate/internal/registry/store"
	"namegate/internal/resolution"
	sessionservice "namegate/internal/session/service"
	sessionstore "namegate/internal/session/store"
	id "namegate/pkg/domain"
	txcontext "namegate/pkg/platform/tx"
	"namegate/pkg/secrets"
	"namegate/pkg/testutil"
)

const (
	testClientID     = "nc_0123456789abcdef"
	testClientSecret = "router-test-secret"
)

type apiFixture struct {
	router  http.Handler
	userID  id.UserID
	otherID id.UserID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	profiles := profilestore.NewInMemoryStore()
	consents := consentstore.NewInMemoryStore()
	clients := clientstore.NewInMemoryStore()
	bindings := registrystore.NewInMemoryStore()
	sessions := sessionstore.NewInMemoryStore()
	audits := auditstore.NewInMemoryStore()

	recorder := audit.NewRecorder(audits)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = recorder.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	now := time.Now().UTC()
	hash, err := secrets.Hash(testClientSecret)
	require.NoError(t, err)
	client, err := clientmodels.NewClientApplication(id.ClientID(testClientID), "Chess Club", "chess.example", hash, now)
	require.NoError(t, err)
	require.NoError(t, clients.Create(ctx, client))

	engine := resolution.New(consents, profiles, resolution.WithAuditPublisher(recorder))
	signer, err := jwtclaims.NewSigner([]byte("0123456789abcdef0123456789abcdef"), "https://namegate.example")
	require.NoError(t, err)

	profileSvc := profileservice.New(profiles, consents)
	consentSvc := consentservice.New(consents, profiles)
	registrySvc := registryservice.New(bindings, profiles, clients)
	sessionSvc := sessionservice.New(sessions, clients, bindings, profiles,
		engine, signer, txcontext.PassthroughRunner{})

	router := NewRouter(Handlers{
		Profile:  NewProfileHandler(profileSvc, nil),
		Consent:  NewConsentHandler(consentSvc, nil),
		Registry: NewRegistryHandler(registrySvc, nil),
		Resolve:  NewResolveHandler(engine, nil),
		Session:  NewSessionHandler(sessionSvc, nil),
		Audit:    NewAuditHandler(recorder, nil),
	}, nil, nil)

	return &apiFixture{
		router:  router,
		userID:  id.UserID(uuid.New()),
		otherID: id.UserID(uuid.New()),
	}
}

func TestRouterOperational(t *testing.T) {
	f := newAPIFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/names"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "missing user header")
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/names",
		map[string]string{"text": "Jed", "kind": "NICKNAME"})
	req.Header.Set(userHeader, f.userID.String())
	rr := testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var name struct {
		ID string `json:"id"`
	}
	testutil.DecodeJSON(t, rr, &name)
	require.NotEmpty(t, name.ID)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/v1/contexts",
		map[string]string{"name": "gaming"})
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var dc struct {
		ID string `json:"id"`
	}
	testutil.DecodeJSON(t, rr, &dc)

	req = testutil.NewJSONRequest(t, http.MethodPut, "/v1/contexts/"+dc.ID+"/name",
		map[string]string{"name_id": name.ID})
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	req = testutil.NewRequest(t, http.MethodGet, "/v1/names")
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var listed struct {
		Names []struct {
			Text string `json:"text"`
		} `json:"names"`
	}
	testutil.DecodeJSON(t, rr, &listed)
	require.Len(t, listed.Names, 1)
	assert.Equal(t, "Jed", listed.Names[0].Text)

	// the hinted resolve sees the assignment; no auth required
	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet,
		"/v1/resolve/"+f.userID.String()+"?context=gaming"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resolved resolveResponse
	testutil.DecodeJSON(t, rr, &resolved)
	assert.Equal(t, "Jed", resolved.Name)
	assert.Equal(t, resolution.TierContext, resolved.Tier)
	assert.Equal(t, dc.ID, resolved.ContextID)
}

func TestResolveFallbackOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet,
		"/v1/resolve/"+f.userID.String()))
	require.Equal(t, http.StatusOK, rr.Code)

	var resolved resolveResponse
	testutil.DecodeJSON(t, rr, &resolved)
	assert.Equal(t, resolution.FallbackName, resolved.Name)
	assert.Equal(t, resolution.TierFallback, resolved.Tier)
}

func TestConsentFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	contextID := createContextWithName(t, f, f.userID, "work", "J. Lewandowski", "PROFESSIONAL")

	// requester asks for consent
	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/consents", map[string]any{
		"granter_id": f.userID.String(),
		"context_id": contextID,
	})
	req.Header.Set(userHeader, f.otherID.String())
	rr := testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// granter approves
	req = testutil.NewJSONRequest(t, http.MethodPost, "/v1/consents/grant",
		map[string]string{"requester_id": f.otherID.String()})
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var decision struct {
		Changed bool `json:"changed"`
	}
	testutil.DecodeJSON(t, rr, &decision)
	assert.True(t, decision.Changed)

	// the requester now resolves through the consented context
	req = testutil.NewRequest(t, http.MethodGet, "/v1/resolve/"+f.userID.String())
	req.Header.Set(userHeader, f.otherID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resolved resolveResponse
	testutil.DecodeJSON(t, rr, &resolved)
	assert.Equal(t, "J. Lewandowski", resolved.Name)
	assert.Equal(t, resolution.TierConsent, resolved.Tier)

	// revoking returns the requester to the fallback
	req = testutil.NewJSONRequest(t, http.MethodPost, "/v1/consents/revoke",
		map[string]string{"requester_id": f.otherID.String()})
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = testutil.NewRequest(t, http.MethodGet, "/v1/resolve/"+f.userID.String())
	req.Header.Set(userHeader, f.otherID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code)
	testutil.DecodeJSON(t, rr, &resolved)
	assert.Equal(t, resolution.TierFallback, resolved.Tier)
}

func TestOAuthFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	contextID := createContextWithName(t, f, f.userID, "gaming", "Jed", "NICKNAME")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/oauth/authorize", map[string]string{
		"client_id":     testClientID,
		"client_secret": testClientSecret,
		"context_id":    contextID,
		"return_url":    "https://chess.example/callback",
		"state":         "abc",
	})
	req.Header.Set(userHeader, f.userID.String())
	rr := testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var authorized struct {
		SessionToken string `json:"session_token"`
		RedirectURL  string `json:"redirect_url"`
		Context      struct {
			ContextName string `json:"context_name"`
		} `json:"context"`
	}
	testutil.DecodeJSON(t, rr, &authorized)
	assert.Equal(t, "gaming", authorized.Context.ContextName)

	token := tokenFromRedirect(t, authorized.RedirectURL)
	assert.Equal(t, token, authorized.SessionToken)

	// the client trades the token for the name
	req = testutil.NewRequest(t, http.MethodGet, "/v1/oauth/resolve")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resolved resolveTokenResponse
	testutil.DecodeJSON(t, rr, &resolved)
	assert.Equal(t, "Jed", resolved.Name)
	assert.Equal(t, "gaming", resolved.ContextName)
	assert.Equal(t, "Chess Club", resolved.AppName)
	assert.NotEmpty(t, resolved.Claims)

	// unassigning the client blocks further resolution
	req = testutil.NewRequest(t, http.MethodDelete, "/v1/apps/"+testClientID+"/context")
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	req = testutil.NewRequest(t, http.MethodGet, "/v1/oauth/resolve")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(f.router, req)
	assert.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())

	// revoke reports the count and kills the token
	req = testutil.NewJSONRequest(t, http.MethodPost, "/v1/oauth/revoke", map[string]string{})
	req.Header.Set(userHeader, f.userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var revoked struct {
		RevokedCount int `json:"revoked_count"`
	}
	testutil.DecodeJSON(t, rr, &revoked)
	assert.Equal(t, 1, revoked.RevokedCount)

	req = testutil.NewRequest(t, http.MethodGet, "/v1/oauth/resolve")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(f.router, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuditHistoryOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet,
		"/v1/resolve/"+f.userID.String()))
	require.Equal(t, http.StatusOK, rr.Code)

	// the recorder persists asynchronously
	require.Eventually(t, func() bool {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/audit/disclosures")
		req.Header.Set(userHeader, f.userID.String())
		rr := testutil.DoRequest(f.router, req)
		if rr.Code != http.StatusOK {
			return false
		}
		var history struct {
			Entries []struct {
				DisclosedName string `json:"disclosed_name"`
			} `json:"entries"`
		}
		testutil.DecodeJSON(t, rr, &history)
		return len(history.Entries) == 1 &&
			history.Entries[0].DisclosedName == resolution.FallbackName
	}, 2*time.Second, 10*time.Millisecond)

	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet,
		"/v1/audit/disclosures"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func createContextWithName(t *testing.T, f *apiFixture, userID id.UserID, contextName, nameText, kind string) string {
	t.Helper()

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/names",
		map[string]string{"text": nameText, "kind": kind})
	req.Header.Set(userHeader, userID.String())
	rr := testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var name struct {
		ID string `json:"id"`
	}
	testutil.DecodeJSON(t, rr, &name)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/v1/contexts",
		map[string]string{"name": contextName})
	req.Header.Set(userHeader, userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var dc struct {
		ID string `json:"id"`
	}
	testutil.DecodeJSON(t, rr, &dc)

	req = testutil.NewJSONRequest(t, http.MethodPut, "/v1/contexts/"+dc.ID+"/name",
		map[string]string{"name_id": name.ID})
	req.Header.Set(userHeader, userID.String())
	rr = testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	return dc.ID
}

func tokenFromRedirect(t *testing.T, redirectURL string) string {
	t.Helper()
	parsed, err := url.Parse(redirectURL)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}
