package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/platform/httpx"
	"github.com/shiftledger/shiftledger/internal/shift"
	"github.com/shiftledger/shiftledger/jobs"
)

// Service is the ledger behaviour exposed over HTTP.
type Service interface {
	Rebuild(ctx context.Context, family ledger.Family, date time.Time) (ledger.Row, error)
	RebuildRange(ctx context.Context, family ledger.Family, start, end time.Time) ([]ledger.RangeResult, error)
	Range(ctx context.Context, family ledger.Family, start, end time.Time) ([]ledger.Row, error)
	SetOverrides(ctx context.Context, family ledger.Family, date time.Time, overrides ledger.Overrides, notes *string) (ledger.Row, error)
	Approve(ctx context.Context, family ledger.Family, date time.Time, approved bool) (ledger.Row, error)
}

// Enqueuer hands range rebuilds to the worker.
type Enqueuer interface {
	EnqueueLedgerRebuild(ctx context.Context, payload jobs.LedgerRebuildPayload) (*asynq.TaskInfo, error)
}

// Handler exposes ledger endpoints.
type Handler struct {
	service   Service
	enqueuer  Enqueuer
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the ledger handler. enqueuer may be nil, in which case
// async range rebuilds are refused.
func NewHandler(service Service, enqueuer Enqueuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, enqueuer: enqueuer, logger: logger, validator: validator.New()}
}

// MountRoutes registers ledger routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{family}", func(r chi.Router) {
		r.Get("/", h.listRows)
		r.Post("/rebuild", h.rebuild)
		r.Post("/rebuild-range", h.rebuildRange)
		r.Put("/{date}/overrides", h.setOverrides)
		r.Post("/{date}/approve", h.approve)
	})
}

var errorRules = map[error][]error{
	httpx.ErrValidation:  {ledger.ErrUnknownFamily, ledger.ErrInvalidRange, shift.ErrInvalidDateFormat},
	httpx.ErrNotFound:    {ledger.ErrRowNotFound},
	httpx.ErrConflict:    {ledger.ErrRebuildInProgress},
	httpx.ErrUnavailable: {ledger.ErrUsageSourceUnavailable},
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	err = httpx.Classify(err, errorRules)
	h.logger.Warn("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

type rebuildRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type rangeRequest struct {
	From  string `json:"from" validate:"required,datetime=2006-01-02"`
	To    string `json:"to" validate:"required,datetime=2006-01-02"`
	Async bool   `json:"async"`
}

type overridesRequest struct {
	StartManual     *float64 `json:"start_manual" validate:"omitempty,gte=0"`
	PurchasedManual *float64 `json:"purchased_manual" validate:"omitempty,gte=0"`
	ActualEndManual *float64 `json:"actual_end_manual" validate:"omitempty,gte=0"`
	Notes           *string  `json:"notes" validate:"omitempty,max=2000"`
}

type approveRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type rangeItem struct {
	Date  string      `json:"date"`
	Row   *ledger.Row `json:"row,omitempty"`
	Error string      `json:"error,omitempty"`
}

type rangeResponse struct {
	Family  ledger.Family `json:"family"`
	Results []rangeItem   `json:"results"`
	Failed  int           `json:"failed"`
}

func (h *Handler) rebuild(w http.ResponseWriter, r *http.Request) {
	family, err := ledger.ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rebuildRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := shift.ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.service.Rebuild(r.Context(), family, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) rebuildRange(w http.ResponseWriter, r *http.Request) {
	family, err := ledger.ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rangeRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	start, end, err := parseRange(req.From, req.To)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Async {
		if h.enqueuer == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Worker Unavailable", "background rebuilds are not configured")
			return
		}
		info, err := h.enqueuer.EnqueueLedgerRebuild(r.Context(), jobs.LedgerRebuildPayload{
			Family: string(family),
			From:   req.From,
			To:     req.To,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID, "queue": info.Queue})
		return
	}

	results, err := h.service.RebuildRange(r.Context(), family, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := rangeResponse{Family: family, Results: make([]rangeItem, 0, len(results))}
	for _, res := range results {
		item := rangeItem{Date: shift.FormatDate(res.Date)}
		if res.Err != nil {
			item.Error = res.Err.Error()
			resp.Failed++
		} else {
			row := res.Row
			item.Row = &row
		}
		resp.Results = append(resp.Results, item)
	}
	status := http.StatusOK
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, resp)
}

func (h *Handler) listRows(w http.ResponseWriter, r *http.Request) {
	family, err := ledger.ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start, end, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.service.Range(r.Context(), family, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) setOverrides(w http.ResponseWriter, r *http.Request) {
	family, date, err := familyAndDate(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req overridesRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.service.SetOverrides(r.Context(), family, date, ledger.Overrides{
		Start:     req.StartManual,
		Purchased: req.PurchasedManual,
		ActualEnd: req.ActualEndManual,
	}, req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	family, date, err := familyAndDate(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req approveRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.service.Approve(r.Context(), family, date, *req.Approved)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func familyAndDate(r *http.Request) (ledger.Family, time.Time, error) {
	family, err := ledger.ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		return "", time.Time{}, err
	}
	date, err := shift.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		return "", time.Time{}, err
	}
	return family, date, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := shift.ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := shift.ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, ledger.ErrInvalidRange
	}
	return start, end, nil
}
