package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	ledgerhttp "github.com/shiftledger/shiftledger/internal/ledger/http"
	"github.com/shiftledger/shiftledger/internal/observability"
	"github.com/shiftledger/shiftledger/internal/platform/httpx"
	pnlhttp "github.com/shiftledger/shiftledger/internal/pnl/http"
	reconcilehttp "github.com/shiftledger/shiftledger/internal/reconcile/http"
	"github.com/shiftledger/shiftledger/internal/shift"
	"github.com/shiftledger/shiftledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledgerhttp.Handler
	ReconcileHandler *reconcilehttp.Handler
	PnLHandler       *pnlhttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/shift/{date}", func(w http.ResponseWriter, r *http.Request) {
		window, err := shift.Resolve(chi.URLParam(r, "date"))
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		httpx.JSON(w, http.StatusOK, window)
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.ReconcileHandler != nil {
		r.Route("/reconcile", params.ReconcileHandler.MountRoutes)
	}
	if params.PnLHandler != nil {
		r.Route("/pnl", params.PnLHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
