package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("loja")

	m.ObserveCheckout("placed", 20*time.Millisecond)
	m.ObserveCheckout("placed", 30*time.Millisecond)
	m.ObserveCheckout("insufficient_stock", time.Millisecond)
	m.ObserveCoupon("redeemed")
	m.ObservePublish(3, nil)
	m.ObservePublish(2, errors.New("broker down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkouts.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.coupons.WithLabelValues("redeemed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.published.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues("error")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New("loja")
	m.ObserveHTTP(http.MethodGet, "/api/cart", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `loja_http_requests_total{method="GET",route="/api/cart",status="200"} 1`)
	assert.Contains(t, string(body), `route="unmatched"`)
	assert.Contains(t, string(body), "go_goroutines")
}
