package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSwap("confirmed", 1.2)
	m.RecordSwap("confirmed", 0.8)
	m.RecordSwap("rejected", 0.5)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.swapsTotal.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.swapsTotal.WithLabelValues("rejected")))

	m.RecordLookupTables("resolved", 3)
	m.RecordLookupTables("dropped", 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lookupTablesTotal.WithLabelValues("resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupTablesTotal.WithLabelValues("dropped")))

	m.RecordJupiterRequest("quote", 200, 0.1)
	m.RecordJupiterRequest("quote", 429, 0.1)
	m.RecordJupiterRequest("quote", 0, 0.1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jupiterRequestsTotal.WithLabelValues("quote", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jupiterRequestsTotal.WithLabelValues("quote", "4xx")))

	m.RecordDBQuery("get", "swaps", 0.01, nil)
	m.RecordDBQuery("get", "swaps", 0.01, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("get", "error")))

	m.RecordWorkflowDuration("confirmed", 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.swapWorkflowExecutionsTotal.WithLabelValues("confirmed")))

	m.RecordNATSPublish("swaps.*", "success", 0.002)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.natsMessagesPublished.WithLabelValues("swaps.*", "success")))
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) }, "duplicate registration must fail loudly")
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  string
	}{
		{
			name: "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("ok"))
			},
			status: "2xx",
		},
		{
			name: "explicit not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			status: "4xx",
		},
		{
			name: "first status wins",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.WriteHeader(http.StatusOK)
			},
			status: "5xx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/test", http.MethodGet, tt.status))

			h := HTTPMetricsMiddleware(m, "/test")(tt.handler)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

			after := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/test", http.MethodGet, tt.status))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestHTTPMetricsMiddleware_Flush(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := HTTPMetricsMiddleware(m, "/stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Write([]byte("data: x\n\n"))
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.True(t, rec.Flushed)
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	h := HTTPMetricsMiddleware(nil, "/x")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, called)
}
