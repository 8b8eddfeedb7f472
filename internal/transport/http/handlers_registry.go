package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"namegate/internal/registry/models"
	id "namegate/pkg/domain"
)

// RegistryService maintains which context each client application sees.
type RegistryService interface {
	Assign(ctx context.Context, userID id.UserID, clientID id.ClientID, contextID id.ContextID) (*models.AppContextAssignment, error)
	Unassign(ctx context.Context, userID id.UserID, clientID id.ClientID) error
	Binding(ctx context.Context, userID id.UserID, clientID id.ClientID) (*models.AppContextAssignment, error)
	List(ctx context.Context, userID id.UserID) ([]*models.AppContextAssignment, error)
}

// RegistryHandler exposes the per-user app-to-context registry.
type RegistryHandler struct {
	registry RegistryService
	logger   *slog.Logger
}

func NewRegistryHandler(registry RegistryService, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{registry: registry, logger: logger}
}

func (h *RegistryHandler) Register(r chi.Router) {
	r.Route("/apps", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{clientID}/context", h.handleBinding)
		r.Put("/{clientID}/context", h.handleAssign)
		r.Delete("/{clientID}/context", h.handleUnassign)
	})
}

type assignContextRequest struct {
	ContextID string `json:"context_id"`
}

func (h *RegistryHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req assignContextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	contextID, err := id.ParseContextID(req.ContextID)
	if err != nil {
		writeError(w, err)
		return
	}

	assignment, err := h.registry.Assign(r.Context(), userID, clientID, contextID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (h *RegistryHandler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.registry.Unassign(r.Context(), userID, clientID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) handleBinding(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	binding, err := h.registry.Binding(r.Context(), userID, clientID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, binding)
}

func (h *RegistryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	assignments, err := h.registry.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}
