package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"namegate/internal/profile/models"
	profileservice "namegate/internal/profile/service"
	id "namegate/pkg/domain"
)

// ProfileService is the catalog of names, contexts, and their assignments.
type ProfileService interface {
	CreateName(ctx context.Context, ownerID id.UserID, req profileservice.CreateNameRequest) (*models.Name, error)
	UpdateName(ctx context.Context, ownerID id.UserID, nameID id.NameID, req profileservice.UpdateNameRequest) (*models.Name, error)
	DeleteName(ctx context.Context, ownerID id.UserID, nameID id.NameID) error
	SetPreferredName(ctx context.Context, ownerID id.UserID, nameID id.NameID) error
	ListNames(ctx context.Context, ownerID id.UserID) ([]*models.Name, error)

	CreateContext(ctx context.Context, ownerID id.UserID, req profileservice.CreateContextRequest) (*models.Context, error)
	DeleteContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID) error
	ListContexts(ctx context.Context, ownerID id.UserID) ([]*models.Context, error)

	AssignNameToContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID, nameID id.NameID) error
	UnassignName(ctx context.Context, ownerID id.UserID, contextID id.ContextID) error
}

// ProfileHandler exposes the name and context catalog.
type ProfileHandler struct {
	profiles ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

func (h *ProfileHandler) Register(r chi.Router) {
	r.Route("/names", func(r chi.Router) {
		r.Get("/", h.handleListNames)
		r.Post("/", h.handleCreateName)
		r.Patch("/{nameID}", h.handleUpdateName)
		r.Delete("/{nameID}", h.handleDeleteName)
		r.Post("/{nameID}/preferred", h.handleSetPreferred)
	})
	r.Route("/contexts", func(r chi.Router) {
		r.Get("/", h.handleListContexts)
		r.Post("/", h.handleCreateContext)
		r.Delete("/{contextID}", h.handleDeleteContext)
		r.Put("/{contextID}/name", h.handleAssignName)
		r.Delete("/{contextID}/name", h.handleUnassignName)
	})
}

func (h *ProfileHandler) handleCreateName(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req profileservice.CreateNameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, err := h.profiles.CreateName(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, name)
}

func (h *ProfileHandler) handleListNames(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	names, err := h.profiles.ListNames(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

func (h *ProfileHandler) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nameID, err := id.ParseNameID(chi.URLParam(r, "nameID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req profileservice.UpdateNameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, err := h.profiles.UpdateName(r.Context(), ownerID, nameID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, name)
}

func (h *ProfileHandler) handleDeleteName(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nameID, err := id.ParseNameID(chi.URLParam(r, "nameID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.profiles.DeleteName(r.Context(), ownerID, nameID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) handleSetPreferred(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nameID, err := id.ParseNameID(chi.URLParam(r, "nameID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.profiles.SetPreferredName(r.Context(), ownerID, nameID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req profileservice.CreateContextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dc, err := h.profiles.CreateContext(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dc)
}

func (h *ProfileHandler) handleListContexts(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contexts, err := h.profiles.ListContexts(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contexts": contexts})
}

func (h *ProfileHandler) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.profiles.DeleteContext(r.Context(), ownerID, contextID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignNameRequest struct {
	NameID string `json:"name_id"`
}

func (h *ProfileHandler) handleAssignName(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req assignNameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	nameID, err := id.ParseNameID(req.NameID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.profiles.AssignNameToContext(r.Context(), ownerID, contextID, nameID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) handleUnassignName(w http.ResponseWriter, r *http.Request) {
	ownerID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contextID, err := id.ParseContextID(chi.URLParam(r, "contextID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.profiles.UnassignName(r.Context(), ownerID, contextID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
