package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"namegate/internal/resolution"
	id "namegate/pkg/domain"
)

// Resolver answers which name the target discloses to the caller.
type Resolver interface {
	Resolve(ctx context.Context, req resolution.Request) (*resolution.Result, error)
}

// ResolveHandler exposes direct user-to-user name resolution. The acting user,
// when authenticated, becomes the requester so their consents apply; anonymous
// calls resolve through the context hint or the fallback only.
type ResolveHandler struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewResolveHandler(resolver Resolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logger}
}

func (h *ResolveHandler) Register(r chi.Router) {
	r.Get("/resolve/{userID}", h.handleResolve)
}

type resolveResponse struct {
	Name      string `json:"name"`
	Tier      string `json:"tier"`
	ContextID string `json:"context_id,omitempty"`
}

func (h *ResolveHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	targetID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var requesterID *id.UserID
	if raw := r.Header.Get(userHeader); raw != "" {
		parsed, err := id.ParseUserID(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		requesterID = &parsed
	}

	result, err := h.resolver.Resolve(r.Context(), resolution.Request{
		TargetUserID: targetID,
		RequesterID:  requesterID,
		ContextHint:  r.URL.Query().Get("context"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := resolveResponse{Name: result.Text, Tier: result.Tier}
	if result.ContextID != nil {
		resp.ContextID = result.ContextID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
