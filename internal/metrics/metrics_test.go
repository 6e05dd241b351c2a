package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mom-admin-api/internal/cache"
	"mom-admin-api/internal/gate"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveGate(t *testing.T) {
	m := New()

	m.ObserveGate(gate.EventFailure, gate.State{MaxAttempts: 3, CurrentAttempts: 3, Locked: true})
	require.Equal(t, 1.0, promtest.ToFloat64(m.GateLocked))
	require.Equal(t, 0.0, promtest.ToFloat64(m.GateRemaining))
	require.Equal(t, 1.0, promtest.ToFloat64(m.GateEvents.WithLabelValues(gate.EventFailure)))

	m.ObserveGate(gate.EventReset, gate.State{MaxAttempts: 3})
	require.Equal(t, 0.0, promtest.ToFloat64(m.GateLocked))
	require.Equal(t, 3.0, promtest.ToFloat64(m.GateRemaining))
}

func TestRecordLogin(t *testing.T) {
	m := New()
	m.RecordLogin(OutcomeFailure)
	m.RecordLogin(OutcomeFailure)
	m.RecordLogin(OutcomeSuccess)

	require.Equal(t, 2.0, promtest.ToFloat64(m.LoginAttempts.WithLabelValues(OutcomeFailure)))
	require.Equal(t, 1.0, promtest.ToFloat64(m.LoginAttempts.WithLabelValues(OutcomeSuccess)))
}

func TestRegisterCacheAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	c := cache.New[string](cache.Options{MaxSize: 4})
	c.Set("a", "1")
	_, _ = c.Get("a")
	_, _ = c.Get("b")
	m.RegisterCache("documents", c.Stats)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	require.Contains(t, body, `mom_admin_cache_entries{cache="documents"} 1`)
	require.Contains(t, body, `mom_admin_cache_capacity{cache="documents"} 4`)
	require.Contains(t, body, `mom_admin_cache_hits_total{cache="documents"} 1`)
	require.Contains(t, body, `mom_admin_cache_misses_total{cache="documents"} 1`)
	require.Contains(t, body, `mom_admin_http_request_duration_seconds_count{method="GET",path="/ping",status="204"} 1`)
}
