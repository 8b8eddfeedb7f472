package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namegate/internal/consent/models"
	consentservice "namegate/internal/consent/service"
	id "namegate/pkg/domain"
)

// ConsentService runs the consent lifecycle between two users.
type ConsentService interface {
	Request(ctx context.Context, in consentservice.RequestConsentInput) (*models.Consent, error)
	Grant(ctx context.Context, granterID, requesterID id.UserID) (bool, error)
	Revoke(ctx context.Context, granterID, requesterID id.UserID) (bool, error)
	ListGranted(ctx context.Context, granterID id.UserID) ([]*models.Consent, error)
	ListRequested(ctx context.Context, requesterID id.UserID) ([]*models.Consent, error)
}

// ConsentHandler exposes consent requests, grants, and revocations.
type ConsentHandler struct {
	consents ConsentService
	logger   *slog.Logger
}

func NewConsentHandler(consents ConsentService, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{consents: consents, logger: logger}
}

func (h *ConsentHandler) Register(r chi.Router) {
	r.Route("/consents", func(r chi.Router) {
		r.Post("/", h.handleRequest)
		r.Post("/grant", h.handleGrant)
		r.Post("/revoke", h.handleRevoke)
		r.Get("/granted", h.handleListGranted)
		r.Get("/requested", h.handleListRequested)
	})
}

type requestConsentRequest struct {
	GranterID string     `json:"granter_id"`
	ContextID string     `json:"context_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleRequest opens a consent: the acting user asks the granter to share
// the name assigned to one of the granter's contexts.
func (h *ConsentHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	requesterID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req requestConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	granterID, err := id.ParseUserID(req.GranterID)
	if err != nil {
		writeError(w, err)
		return
	}
	contextID, err := id.ParseContextID(req.ContextID)
	if err != nil {
		writeError(w, err)
		return
	}

	consent, err := h.consents.Request(r.Context(), consentservice.RequestConsentInput{
		RequesterID: requesterID,
		GranterID:   granterID,
		ContextID:   contextID,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, consent)
}

type consentDecisionRequest struct {
	RequesterID string `json:"requester_id"`
}

func (h *ConsentHandler) handleGrant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.consents.Grant)
}

func (h *ConsentHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.consents.Revoke)
}

// decide runs a grant or revoke for the acting user as granter. Both report
// whether a transition actually happened instead of erroring on a no-op.
func (h *ConsentHandler) decide(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, granterID, requesterID id.UserID) (bool, error)) {
	granterID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req consentDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	requesterID, err := id.ParseUserID(req.RequesterID)
	if err != nil {
		writeError(w, err)
		return
	}

	changed, err := op(r.Context(), granterID, requesterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *ConsentHandler) handleListGranted(w http.ResponseWriter, r *http.Request) {
	granterID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	consents, err := h.consents.ListGranted(r.Context(), granterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": consents})
}

func (h *ConsentHandler) handleListRequested(w http.ResponseWriter, r *http.Request) {
	requesterID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	consents, err := h.consents.ListRequested(r.Context(), requesterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": consents})
}
