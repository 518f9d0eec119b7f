package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shiftledger/shiftledger/internal/pnl"
)

type stubService struct {
	snap pnl.Snapshot
	err  error
}

func (s *stubService) Build(ctx context.Context, start, end time.Time) (pnl.BuildResult, error) {
	if s.err != nil {
		return pnl.BuildResult{}, s.err
	}
	snap := s.snap
	snap.PeriodStart, snap.PeriodEnd = start, end
	return pnl.BuildResult{Snapshot: snap, Changed: true}, nil
}

func (s *stubService) Get(ctx context.Context, start, end time.Time) (pnl.Snapshot, error) {
	if s.err != nil {
		return pnl.Snapshot{}, s.err
	}
	return s.snap, nil
}

func router(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/pnl", NewHandler(svc, nil).MountRoutes)
	return r
}

func TestBuildSnapshotEndpoint(t *testing.T) {
	svc := &stubService{snap: pnl.Snapshot{
		RevenueTotal: decimal.RequireFromString("1000.50"),
		ExpenseTotal: decimal.RequireFromString("400.25"),
	}}
	req := httptest.NewRequest(http.MethodPost, "/pnl/snapshots", strings.NewReader(`{"from":"2025-08-01","to":"2025-08-31"}`))
	rec := httptest.NewRecorder()
	router(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Snapshot struct {
			ProfitTotal decimal.Decimal `json:"profit_total"`
		} `json:"snapshot"`
		Changed bool `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Changed)
	require.True(t, body.Snapshot.ProfitTotal.Equal(decimal.RequireFromString("600.25")))
}

func TestSnapshotEndpointErrors(t *testing.T) {
	cases := []struct {
		name   string
		method string
		target string
		body   string
		err    error
		want   int
	}{
		{"inverted", http.MethodPost, "/pnl/snapshots", `{"from":"2025-08-31","to":"2025-08-01"}`, nil, http.StatusBadRequest},
		{"missing to", http.MethodGet, "/pnl/snapshots?from=2025-08-01", "", nil, http.StatusBadRequest},
		{"not built", http.MethodGet, "/pnl/snapshots?from=2025-08-01&to=2025-08-31", "", pnl.ErrSnapshotNotFound, http.StatusNotFound},
		{"locked", http.MethodPost, "/pnl/snapshots", `{"from":"2025-08-01","to":"2025-08-31"}`, pnl.ErrBuildInProgress, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router(&stubService{err: tc.err}).ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
