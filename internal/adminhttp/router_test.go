package adminhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHealth struct {
	ok  bool
	msg string
}

func (h fakeHealth) Healthy() (bool, string) { return h.ok, h.msg }

func TestRouter_HealthzReturnsOKWhenHealthy(t *testing.T) {
	router := NewRouter(Config{Health: fakeHealth{ok: true, msg: "running"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouter_HealthzReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	router := NewRouter(Config{Health: fakeHealth{ok: false, msg: "sandbox quarantined"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "sandbox quarantined")
}

func TestRouter_HealthzDefaultsOKWithNoReporter(t *testing.T) {
	router := NewRouter(Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MetricsServesPrometheusFormat(t *testing.T) {
	router := NewRouter(Config{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
