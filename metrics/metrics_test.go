package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CycleFinished(CycleOK, time.Second)
	m.Events("created", 3)
	m.Message(MessageSent)
	m.Messages(MessageSkipped, 2)
	m.SendObserved(time.Millisecond)
	m.Retry()
	m.CatalogSize(10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.CycleFinished(CycleOK, 2*time.Second)
	m.CycleFinished(CycleFailed, time.Second)
	m.CycleFinished(CycleFailed, time.Second)
	m.Events("version_bumped", 4)
	m.Message(MessageSent)
	m.Messages(MessageSent, 2)
	m.Retry()
	m.CatalogSize(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues(CycleOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues(CycleFailed)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.events.WithLabelValues("version_bumped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.messages.WithLabelValues(MessageSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.catalogSize))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Message(MessageFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `modnotifier_messages_total{outcome="failed"} 1`)
}
