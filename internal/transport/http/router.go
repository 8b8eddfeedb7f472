package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"namegate/internal/platform/metrics"
	"namegate/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// Handlers carries the feature handlers the router mounts. Nil entries are
// skipped, which test routers use to mount only the feature under test.
type Handlers struct {
	Profile  *ProfileHandler
	Consent  *ConsentHandler
	Registry *RegistryHandler
	Resolve  *ResolveHandler
	Session  *SessionHandler
	Audit    *AuditHandler
}

// NewRouter wires the public API. Operational endpoints stay outside the /v1
// middleware chain.
func NewRouter(h Handlers, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		if m != nil {
			r.Use(middleware.Latency(m))
		}

		if h.Profile != nil {
			h.Profile.Register(r)
		}
		if h.Consent != nil {
			h.Consent.Register(r)
		}
		if h.Registry != nil {
			h.Registry.Register(r)
		}
		if h.Resolve != nil {
			h.Resolve.Register(r)
		}
		if h.Session != nil {
			h.Session.Register(r)
		}
		if h.Audit != nil {
			h.Audit.Register(r)
		}
	})

	return r
}
