package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shiftledger/shiftledger/internal/ledger"
	"github.com/shiftledger/shiftledger/internal/platform/httpx"
	"github.com/shiftledger/shiftledger/internal/reconcile"
	"github.com/shiftledger/shiftledger/internal/shift"
)

// StoredReconciler reconciles a shift from persisted data.
type StoredReconciler interface {
	ForDate(ctx context.Context, date time.Time) (reconcile.Result, error)
}

// Handler exposes reconciliation endpoints.
type Handler struct {
	engine    *reconcile.Engine
	stored    StoredReconciler
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the handler. stored may be nil when only ad-hoc
// reconciliation is offered.
func NewHandler(engine *reconcile.Engine, stored StoredReconciler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, stored: stored, logger: logger, validator: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.reconcile)
	r.Get("/{date}", h.forDate)
}

var errorRules = map[error][]error{
	httpx.ErrValidation: {shift.ErrInvalidDateFormat, ledger.ErrUnknownFamily},
	httpx.ErrNotFound:   {reconcile.ErrReportNotFound},
}

type staffPayload struct {
	TotalSales decimal.Decimal    `json:"total_sales"`
	CashBanked decimal.Decimal    `json:"cash_banked"`
	QRBanked   decimal.Decimal    `json:"qr_banked"`
	StockEnd   map[string]float64 `json:"stock_end"`
}

type posPayload struct {
	NetSales decimal.Decimal    `json:"net_sales"`
	Cash     decimal.Decimal    `json:"cash"`
	QR       decimal.Decimal    `json:"qr"`
	StockEnd map[string]float64 `json:"stock_end"`
}

type reconcileRequest struct {
	ShiftDate string       `json:"shift_date" validate:"required,datetime=2006-01-02"`
	Staff     staffPayload `json:"staff"`
	POS       posPayload   `json:"pos"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	err = httpx.Classify(err, errorRules)
	h.logger.Warn("reconcile request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	window, err := shift.Resolve(req.ShiftDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	staffStock, err := families(req.Staff.StockEnd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	posStock, err := families(req.POS.StockEnd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res := h.engine.Reconcile(window,
		reconcile.StaffDeclared{
			TotalSales: req.Staff.TotalSales,
			CashBanked: req.Staff.CashBanked,
			QRBanked:   req.Staff.QRBanked,
			StockEnd:   staffStock,
		},
		reconcile.POSObserved{
			NetSales: req.POS.NetSales,
			Cash:     req.POS.Cash,
			QR:       req.POS.QR,
			StockEnd: posStock,
		},
	)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) forDate(w http.ResponseWriter, r *http.Request) {
	if h.stored == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "stored reconciliation is not configured")
		return
	}
	date, err := shift.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.stored.ForDate(r.Context(), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func families(in map[string]float64) (map[ledger.Family]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[ledger.Family]float64, len(in))
	for k, v := range in {
		fam, err := ledger.ParseFamily(k)
		if err != nil {
			return nil, err
		}
		out[fam] = v
	}
	return out, nil
}
