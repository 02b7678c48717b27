package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"flightdelay/ml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	predictions      *prometheus.CounterVec
	batchSize        prometheus.Histogram
	validationErrors prometheus.Counter
	modelGeneration  prometheus.Gauge
	feedClients      prometheus.Gauge
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightdelay_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightdelay_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flightdelay_predictions_total",
			Help: "Served predictions by label.",
		}, []string{"label"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightdelay_prediction_batch_size",
			Help:    "Number of flights per prediction request.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		validationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flightdelay_validation_errors_total",
			Help: "Prediction requests rejected at validation.",
		}),
		modelGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flightdelay_model_generation",
			Help: "Generation of the model currently served, 0 while untrained.",
		}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flightdelay_feed_clients",
			Help: "Connected prediction feed websocket clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.predictions,
		m.batchSize,
		m.validationErrors,
		m.modelGeneration,
		m.feedClients,
	)
	return m
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(route string, code int, duration time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) ObservePredictions(labels []ml.DelayLabel) {
	m.batchSize.Observe(float64(len(labels)))
	for _, label := range labels {
		m.predictions.WithLabelValues(strconv.Itoa(int(label))).Inc()
	}
}

func (m *Metrics) ObserveValidationError() {
	m.validationErrors.Inc()
}

func (m *Metrics) SetModelGeneration(generation uint64) {
	m.modelGeneration.Set(float64(generation))
}

func (m *Metrics) SetFeedClients(n int) {
	m.feedClients.Set(float64(n))
}
