package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordUpdate(t *testing.T) {
	m := NewMetrics()
	m.RecordUpdate(42.5, 1000, 900, 4)

	assert.Equal(t, 42.5, testutil.ToFloat64(m.hashesPerSecond))
	assert.Equal(t, float64(1000), testutil.ToFloat64(m.totalHashes))
	assert.Equal(t, float64(900), testutil.ToFloat64(m.acceptedHashes))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.threads))
}

func TestMetrics_RecordEvent(t *testing.T) {
	m := NewMetrics()
	m.RecordEvent("found")
	m.RecordEvent("found")
	m.RecordEvent("accepted")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.events.WithLabelValues("accepted")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordUpdate(10, 20, 30, 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "minerctl_hashes_per_second 10"))
	assert.True(t, strings.Contains(body, "minerctl_accepted_hashes 30"))
}
