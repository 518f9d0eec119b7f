package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shiftledger/shiftledger/internal/platform/httpx"
	"github.com/shiftledger/shiftledger/internal/pnl"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// Service is the snapshot behaviour exposed over HTTP.
type Service interface {
	Build(ctx context.Context, start, end time.Time) (pnl.BuildResult, error)
	Get(ctx context.Context, start, end time.Time) (pnl.Snapshot, error)
}

// Handler exposes P&L snapshot endpoints.
type Handler struct {
	service   Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the snapshot handler.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, validator: validator.New()}
}

// MountRoutes registers snapshot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/snapshots", h.build)
	r.Get("/snapshots", h.get)
}

var errorRules = map[error][]error{
	httpx.ErrValidation: {pnl.ErrInvalidPeriod, shift.ErrInvalidDateFormat},
	httpx.ErrNotFound:   {pnl.ErrSnapshotNotFound},
	httpx.ErrConflict:   {pnl.ErrBuildInProgress},
}

type periodRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

type snapshotResponse struct {
	pnl.Snapshot
	ProfitTotal decimal.Decimal `json:"profit_total"`
}

type buildResponse struct {
	Snapshot snapshotResponse `json:"snapshot"`
	Changed  bool             `json:"changed"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	err = httpx.Classify(err, errorRules)
	h.logger.Warn("pnl request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) build(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, end, err := h.period(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.service.Build(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buildResponse{
		Snapshot: snapshotResponse{Snapshot: res.Snapshot, ProfitTotal: res.Snapshot.ProfitTotal()},
		Changed:  res.Changed,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req := periodRequest{From: r.URL.Query().Get("from"), To: r.URL.Query().Get("to")}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, end, err := h.period(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.service.Get(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshotResponse{Snapshot: snap, ProfitTotal: snap.ProfitTotal()})
}

func (h *Handler) period(req periodRequest) (time.Time, time.Time, error) {
	start, err := shift.ParseDate(req.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := shift.ParseDate(req.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, pnl.ErrInvalidPeriod
	}
	return start, end, nil
}
