package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"namegate/internal/audit/models"
	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// AuditSource reads back disclosure history for a user.
type AuditSource interface {
	History(ctx context.Context, targetUserID id.UserID, limit int) ([]*models.Entry, error)
}

// AuditHandler lets users review who saw which of their names.
type AuditHandler struct {
	source AuditSource
	logger *slog.Logger
}

func NewAuditHandler(source AuditSource, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{source: source, logger: logger}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/audit/disclosures", h.handleHistory)
}

func (h *AuditHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxHistoryLimit {
			writeError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	entries, err := h.source.History(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
