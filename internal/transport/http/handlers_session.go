package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	sessionservice "namegate/internal/session/service"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// SessionService runs the token lifecycle for client applications.
type SessionService interface {
	Authorize(ctx context.Context, in sessionservice.AuthorizeInput) (*sessionservice.AuthorizeResult, error)
	Resolve(ctx context.Context, rawToken string) (*sessionservice.ResolveResult, error)
	Revoke(ctx context.Context, userID id.UserID, clientID *id.ClientID) (int, error)
	Sessions(ctx context.Context, userID id.UserID) ([]sessionservice.SessionView, error)
}

// SessionHandler exposes the authorize/resolve/revoke token flow.
type SessionHandler struct {
	sessions SessionService
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

func (h *SessionHandler) Register(r chi.Router) {
	r.Post("/oauth/authorize", h.handleAuthorize)
	r.Get("/oauth/resolve", h.handleResolve)
	r.Post("/oauth/revoke", h.handleRevoke)
	r.Get("/sessions", h.handleSessions)
}

type authorizeRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	ContextID    string `json:"context_id"`
	ReturnURL    string `json:"return_url"`
	State        string `json:"state"`
}

type authorizeResponse struct {
	SessionID    string                     `json:"session_id"`
	SessionToken string                     `json:"session_token"`
	Client       sessionservice.ClientInfo  `json:"client"`
	Context      sessionservice.ContextInfo `json:"context"`
	RedirectURL  string                     `json:"redirect_url"`
	ExpiresAt    time.Time                  `json:"expires_at"`
}

// handleAuthorize binds the chosen context to the client and mints a session
// token, returned inside the redirect URL.
func (h *SessionHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	clientID, err := id.ParseClientID(req.ClientID)
	if err != nil {
		writeError(w, err)
		return
	}
	contextID, err := id.ParseContextID(req.ContextID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.sessions.Authorize(r.Context(), sessionservice.AuthorizeInput{
		ClientID:     clientID,
		ClientSecret: req.ClientSecret,
		UserID:       userID,
		ContextID:    contextID,
		ReturnURL:    req.ReturnURL,
		State:        req.State,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authorizeResponse{
		SessionID:    result.Session.ID.String(),
		SessionToken: result.Session.Token,
		Client:       result.Client,
		Context:      result.Context,
		RedirectURL:  result.RedirectURL,
		ExpiresAt:    result.Session.ExpiresAt,
	})
}

type resolveTokenResponse struct {
	Name        string    `json:"name"`
	Tier        string    `json:"tier"`
	ContextName string    `json:"context_name"`
	AppName     string    `json:"app_name"`
	Claims      string    `json:"claims"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleResolve trades a bearer session token for the disclosed name and a
// signed claims token.
func (h *SessionHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.sessions.Resolve(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveTokenResponse{
		Name:        result.DisclosedName,
		Tier:        result.Tier,
		ContextName: result.ContextName,
		AppName:     result.AppName,
		Claims:      result.Claims,
		ExpiresAt:   result.ExpiresAt,
	})
}

type revokeRequest struct {
	ClientID string `json:"client_id,omitempty"`
}

func (h *SessionHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var clientID *id.ClientID
	if req.ClientID != "" {
		parsed, err := id.ParseClientID(req.ClientID)
		if err != nil {
			writeError(w, err)
			return
		}
		clientID = &parsed
	}

	n, err := h.sessions.Revoke(r.Context(), userID, clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked_count": n})
}

func (h *SessionHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := h.sessions.Sessions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return token, nil
}
