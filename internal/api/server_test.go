package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/analytics"
	"github.com/JakeFAU/review-trends/internal/config"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		deps Deps
		want int
	}{
		{name: "no runner", deps: Deps{}, want: http.StatusServiceUnavailable},
		{name: "ready", deps: Deps{Runner: &fakeRunner{}}, want: http.StatusOK},
		{
			name: "dependency down",
			deps: Deps{
				Runner: &fakeRunner{},
				Ready:  func(context.Context) error { return errors.New("db down") },
			},
			want: http.StatusServiceUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			newTestServer(tc.deps).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	report := analytics.Compute(nil, now)
	report.KPIs.TotalEstablishments = 3

	rec := httptest.NewRecorder()
	server := newTestServer(Deps{Analytics: fakeReports{report: report}})
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got analytics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 3, got.KPIs.TotalEstablishments)
	require.True(t, got.LastUpdated.Equal(now))
}

func TestServer_StatsFailures(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	server := newTestServer(Deps{Analytics: fakeReports{err: analytics.ErrHistoryUnavailable}})
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "kpis")

	rec = httptest.NewRecorder()
	newTestServer(Deps{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(Deps{Analytics: fakeReports{}}, cfg, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats?api_key=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
