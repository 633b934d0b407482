package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/maelza/maelza-erp/internal/inventory"
	"github.com/maelza/maelza-erp/internal/observability"
	"github.com/maelza/maelza-erp/internal/orders"
	"github.com/maelza/maelza-erp/internal/parties"
	"github.com/maelza/maelza-erp/internal/platform/httpx"
	"github.com/maelza/maelza-erp/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SalesHandler     *orders.Handler
	PurchasesHandler *orders.Handler
	InventoryHandler *inventory.Handler
	CustomersHandler *parties.Handler
	SuppliersHandler *parties.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Database         Pinger
}

// NewRouter constructs the chi.Router with MAELZA defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("health check: database unreachable", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "down"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.PurchasesHandler != nil {
			r.Route("/purchases", params.PurchasesHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/products", params.InventoryHandler.MountRoutes)
		}
		if params.CustomersHandler != nil {
			r.Route("/customers", params.CustomersHandler.MountRoutes)
		}
		if params.SuppliersHandler != nil {
			r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
