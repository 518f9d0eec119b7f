package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shiftledger/shiftledger/internal/observability"
	"github.com/shiftledger/shiftledger/internal/shared"
	"github.com/shiftledger/shiftledger/internal/shift"
)

func newTestRouter() http.Handler {
	return NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "test"},
		Metrics: observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestShiftWindowEndpoint(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shift/2025-08-09", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var w shift.Window
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	require.Equal(t, "2025-08-09T11:00:00Z", w.StartUTC.UTC().Format("2006-01-02T15:04:05Z07:00"))
	require.Equal(t, "2025-08-09T20:00:00Z", w.EndUTC.UTC().Format("2006-01-02T15:04:05Z07:00"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shift/2025-13-01", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointMounted(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestActorContext(t *testing.T) {
	var seen string
	h := actorContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Actor", " shift-lead ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "shift-lead", seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, shared.AnonymousActor, seen)
}
