package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	clientmodels "namegate/internal/clients/models"
	"namegate/internal/jwtclaims"
	profilemodels "namegate/internal/profile/models"
	registrymodels "namegate/internal/registry/models"
	"namegate/internal/resolution"
	"namegate/internal/session/models"
	"namegate/internal/session/store"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
	"namegate/pkg/requestcontext"
	"namegate/pkg/secrets"
)

const (
	defaultSessionTTL  = 2 * time.Hour
	tokenMintAttempts  = 3
	maxStateParamBytes = 255
)

// ClientSource resolves client applications for credential checks.
type ClientSource interface {
	FindByClientID(ctx context.Context, clientID id.ClientID) (*clientmodels.ClientApplication, error)
}

// BindingStore holds which context the user assigned to each client.
type BindingStore interface {
	Upsert(ctx context.Context, a *registrymodels.AppContextAssignment) error
	FindByUserAndClient(ctx context.Context, userID id.UserID, clientID id.ClientID) (*registrymodels.AppContextAssignment, error)
}

// ContextSource resolves contexts for ownership checks and claim enrichment.
type ContextSource interface {
	FindContextByID(ctx context.Context, contextID id.ContextID) (*profilemodels.Context, error)
}

// Resolver decides which name a session discloses.
type Resolver interface {
	Resolve(ctx context.Context, req resolution.Request) (*resolution.Result, error)
}

// ClaimsSigner turns a resolved session into a signed token.
type ClaimsSigner interface {
	Sign(in jwtclaims.TokenInput) (string, error)
}

// Metrics counts session lifecycle events.
type Metrics interface {
	IncSessionIssued()
	AddSessionsRevoked(n int)
}

// Service runs the session lifecycle: Authorize binds a context to a client
// and mints a bearer token for the pair, Resolve trades the token for the
// disclosed name, Revoke kills active tokens in bulk.
type Service struct {
	sessions store.Store
	clients  ClientSource
	bindings BindingStore
	contexts ContextSource
	resolver Resolver
	signer   ClaimsSigner
	runner   txcontext.Runner
	logger   *slog.Logger
	metrics  Metrics
	ttl      time.Duration
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func New(sessions store.Store, clients ClientSource, bindings BindingStore, contexts ContextSource,
	resolver Resolver, signer ClaimsSigner, runner txcontext.Runner, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		clients:  clients,
		bindings: bindings,
		contexts: contexts,
		resolver: resolver,
		signer:   signer,
		runner:   runner,
		ttl:      defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AuthorizeInput struct {
	ClientID     id.ClientID
	ClientSecret string
	UserID       id.UserID
	ContextID    id.ContextID
	ReturnURL    string
	State        string
}

// ClientInfo is the client identity echoed back to the authorizing user.
type ClientInfo struct {
	ClientID        id.ClientID `json:"client_id"`
	DisplayName     string      `json:"display_name"`
	PublisherDomain string      `json:"publisher_domain"`
}

// ContextInfo is the context the session was bound to.
type ContextInfo struct {
	ID          id.ContextID `json:"id"`
	ContextName string       `json:"context_name"`
}

type AuthorizeResult struct {
	Session     *models.Session
	Client      ClientInfo
	Context     ContextInfo
	RedirectURL string
}

// Authorize authenticates the client, binds the chosen context to it, and
// mints a session token, all in one transaction. The caller redirects the
// user's agent to RedirectURL, which carries the token and the client's
// state echo.
func (s *Service) Authorize(ctx context.Context, in AuthorizeInput) (*AuthorizeResult, error) {
	now := requestcontext.Now(ctx)

	if err := validateReturnURL(in.ReturnURL); err != nil {
		return nil, err
	}
	if len(in.State) > maxStateParamBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "state parameter too long")
	}

	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		return nil, err
	}

	dc, err := s.contexts.FindContextByID(ctx, in.ContextID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context")
	}
	if dc.OwnerID != in.UserID {
		// foreign contexts read as absent
		return nil, dErrors.New(dErrors.CodeNotFound, "context not found")
	}

	var session *models.Session
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.bindings.Upsert(ctx, &registrymodels.AppContextAssignment{
			UserID:     in.UserID,
			ClientID:   in.ClientID,
			ContextID:  in.ContextID,
			AssignedAt: now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind context")
		}
		var mintErr error
		session, mintErr = s.mintSession(ctx, in, now)
		return mintErr
	})
	if err != nil {
		return nil, err
	}

	redirect, err := buildRedirectURL(in.ReturnURL, session.Token, in.State)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build redirect URL")
	}

	if s.metrics != nil {
		s.metrics.IncSessionIssued()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "session issued",
			"session_id", session.ID.String(),
			"client_id", string(client.ClientID),
			"user_id", in.UserID.String(),
			"context_id", in.ContextID.String(),
			"expires_at", session.ExpiresAt,
		)
	}
	return &AuthorizeResult{
		Session: session,
		Client: ClientInfo{
			ClientID:        client.ClientID,
			DisplayName:     client.DisplayName,
			PublisherDomain: client.PublisherDomain,
		},
		Context: ContextInfo{
			ID:          dc.ID,
			ContextName: dc.Name,
		},
		RedirectURL: redirect,
	}, nil
}

func (s *Service) authenticateClient(ctx context.Context, clientID id.ClientID, secret string) (*clientmodels.ClientApplication, error) {
	client, err := s.clients.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid client credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client")
	}
	if !client.Active || !secrets.Verify(client.SecretHash, secret) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid client credentials")
	}
	return client, nil
}

// mintSession creates the session row, re-minting the token on the rare
// collision with an existing one.
func (s *Service) mintSession(ctx context.Context, in AuthorizeInput, now time.Time) (*models.Session, error) {
	for attempt := 0; attempt < tokenMintAttempts; attempt++ {
		token, err := models.NewToken()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint session token")
		}
		session := &models.Session{
			ID:        id.SessionID(uuid.New()),
			Token:     token,
			ClientID:  in.ClientID,
			UserID:    in.UserID,
			ContextID: in.ContextID,
			ReturnURL: in.ReturnURL,
			State:     in.State,
			IPAddress: requestcontext.ClientIP(ctx),
			UserAgent: requestcontext.UserAgent(ctx),
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		err = s.sessions.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
		}
	}
	return nil, dErrors.New(dErrors.CodeInternal, "failed to mint a unique session token")
}

type ResolveResult struct {
	DisclosedName string
	Tier          string
	ContextName   string
	AppName       string
	Claims        string
	ExpiresAt     time.Time
}

// Resolve trades a bearer token for the name its session discloses. The
// context binding is read at resolve time, so unassigning the client between
// authorize and resolve withdraws the disclosure. Unknown, expired, and
// revoked tokens all report the same invalid-token error so callers cannot
// probe for live tokens.
func (s *Service) Resolve(ctx context.Context, rawToken string) (*ResolveResult, error) {
	now := requestcontext.Now(ctx)

	if err := models.ValidateToken(rawToken); err != nil {
		return nil, err
	}

	session, err := s.sessions.FindByToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid or expired session token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if !session.IsActive(now) {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "invalid or expired session token")
	}

	binding, err := s.bindings.FindByUserAndClient(ctx, session.UserID, session.ClientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoContextAssigned, "no context assigned to this application")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load context binding")
	}

	result, err := s.resolver.Resolve(ctx, resolution.Request{
		TargetUserID: session.UserID,
		ClientID:     &session.ClientID,
		ContextHint:  binding.ContextID.String(),
	})
	if err != nil {
		return nil, err
	}

	session.MarkUsed(now)
	if err := s.sessions.Update(ctx, session); err != nil {
		// the disclosure already happened and was audited; a failed used_at
		// stamp is not worth failing the request over
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to stamp session use",
				"session_id", session.ID.String(), "error", err)
		}
	}

	contextName := ""
	if dc, err := s.contexts.FindContextByID(ctx, binding.ContextID); err == nil {
		contextName = dc.Name
	}
	appName := ""
	if client, err := s.clients.FindByClientID(ctx, session.ClientID); err == nil {
		appName = client.DisplayName
	}

	claims, err := s.signer.Sign(jwtclaims.TokenInput{
		SessionID:     session.ID,
		TargetUserID:  session.UserID,
		ClientID:      session.ClientID,
		DisclosedName: result.Text,
		ContextName:   contextName,
		AppName:       appName,
		IssuedAt:      now,
		ExpiresAt:     session.ExpiresAt,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign claims")
	}

	return &ResolveResult{
		DisclosedName: result.Text,
		Tier:          result.Tier,
		ContextName:   contextName,
		AppName:       appName,
		Claims:        claims,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

// Revoke kills every active session of the user, optionally narrowed to one
// client, and reports how many tokens it invalidated.
func (s *Service) Revoke(ctx context.Context, userID id.UserID, clientID *id.ClientID) (int, error) {
	now := requestcontext.Now(ctx)

	n, err := s.sessions.RevokeActiveByUser(ctx, userID, clientID, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke sessions")
	}

	if s.metrics != nil {
		s.metrics.AddSessionsRevoked(n)
	}
	if s.logger != nil && n > 0 {
		s.logger.InfoContext(ctx, "sessions revoked",
			"user_id", userID.String(), "count", n)
	}
	return n, nil
}

// SessionView is a session as shown to its user, with the raw user agent
// folded into a readable device summary.
type SessionView struct {
	Session *models.Session `json:"session"`
	Device  string          `json:"device"`
}

// Sessions lists the user's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, userID id.UserID) ([]SessionView, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			Session: session,
			Device:  deviceSummary(session.UserAgent),
		})
	}
	return views, nil
}

func deviceSummary(rawUA string) string {
	if rawUA == "" {
		return "unknown device"
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case browser != "" && os != "":
		return fmt.Sprintf("%s on %s", browser, os)
	case browser != "":
		return browser
	case os != "":
		return os
	}
	return "unknown device"
}

// validateReturnURL accepts absolute https URLs, plus http for localhost
// development callbacks.
func validateReturnURL(raw string) error {
	if raw == "" || !govalidator.IsURL(raw) {
		return dErrors.New(dErrors.CodeValidation, "return_url must be a valid absolute URL")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return dErrors.New(dErrors.CodeValidation, "return_url must be a valid absolute URL")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeValidation, "return_url must use https")
}

// buildRedirectURL appends the token and state to the client's return URL,
// preserving any query parameters it already carries.
func buildRedirectURL(returnURL, token, state string) (string, error) {
	parsed, err := url.Parse(returnURL)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	q.Set("token", token)
	if state != "" {
		q.Set("state", state)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
