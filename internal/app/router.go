package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
	"github.com/ledgersur/ledgersur/internal/accounting/journals"
	"github.com/ledgersur/ledgersur/internal/accounting/periods"
	"github.com/ledgersur/ledgersur/internal/accounting/reports"
	"github.com/ledgersur/ledgersur/internal/ap"
	"github.com/ledgersur/ledgersur/internal/ar"
	"github.com/ledgersur/ledgersur/internal/observability"
	"github.com/ledgersur/ledgersur/internal/partners"
	"github.com/ledgersur/ledgersur/internal/webhooks"
	"github.com/ledgersur/ledgersur/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	JournalsHandler *journals.Handler
	PeriodsHandler  *periods.Handler
	ReportsHandler  *reports.Handler
	ARHandler       *ar.Handler
	APHandler       *ap.Handler
	PartnersHandler *partners.Handler
	WebhooksHandler *webhooks.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with LedgerSur defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ActorMiddleware)
		params.AccountsHandler.MountRoutes(api)
		params.JournalsHandler.MountRoutes(api)
		params.PeriodsHandler.MountRoutes(api)
		params.ReportsHandler.MountRoutes(api)
		params.ARHandler.MountRoutes(api)
		params.APHandler.MountRoutes(api)
		params.PartnersHandler.MountRoutes(api)

		api.Group(func(svc chi.Router) {
			svc.Use(ServiceTokenMiddleware(params.Config.ServiceTokenHash, params.Logger))
			params.PartnersHandler.MountSettlementRoutes(svc)
			if params.JobsHandler != nil {
				params.JobsHandler.MountRoutes(svc)
			}
		})
	})

	// Inbound platform events carry their own shared-secret check; the rate
	// limit here is tighter than the global one.
	r.Route("/webhooks", func(wh chi.Router) {
		wh.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		params.WebhooksHandler.MountRoutes(wh)
	})

	return r
}
