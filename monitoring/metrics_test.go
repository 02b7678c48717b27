package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flightdelay/ml"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("/predict", http.StatusOK, 10*time.Millisecond)
	m.ObserveRequest("/predict", http.StatusBadRequest, time.Millisecond)
	m.ObservePredictions([]ml.DelayLabel{ml.Delayed, ml.OnTime, ml.OnTime})
	m.ObserveValidationError()
	m.SetModelGeneration(3)
	m.SetFeedClients(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/predict", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/predict", "400")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.modelGeneration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feedClients))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObservePredictions([]ml.DelayLabel{ml.Delayed})

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, `flightdelay_predictions_total{label="1"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
