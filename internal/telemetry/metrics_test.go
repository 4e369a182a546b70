package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveInference("direct", "converged", 3, time.Millisecond)
	m.ObserveInference("direct", "converged", 1, time.Millisecond)
	m.ObserveCache(CacheHit)
	m.ObserveCache(CacheMiss)
	m.ObserveCache(CacheMiss)
	m.ObserveModelFit("markov_chain", nil)
	m.ObserveModelFit("markov_chain", errors.New("boom"))
	m.SetActiveSubjects(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inferences.WithLabelValues("direct", "converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelFits.WithLabelValues("markov_chain", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.activeSubjects))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("/v1/infer", "POST", 200, 5*time.Millisecond)
	m.ObserveBeliefUpdate("immediate", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `bayesd_http_requests_total{code="200",method="POST",route="/v1/infer"} 1`)
	assert.Contains(t, string(body), `bayesd_belief_updates_total{stable="true",strategy="immediate"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("/", "GET", 200, time.Second)
		m.ObserveInference("direct", "converged", 1, time.Second)
		m.ObserveCache(CacheHit)
		m.AddEvictedSubjects(1)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
