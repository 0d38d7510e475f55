package metrics

import (
	"net/http"
	"strconv"
	"time"

	"ctgmonitor/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ctg"

// Metrics holds every collector exported by the process.
// Params: private registry so parallel tests never share global state.
// Returns: recorders for transport, store, window, alerts, and HTTP.
type Metrics struct {
	registry *prometheus.Registry

	samplesReceived   *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	reconnectAttempts *prometheus.CounterVec
	connectionStatus  *prometheus.GaugeVec
	bufferSize        *prometheus.GaugeVec
	windowPoints      *prometheus.GaugeVec
	alertsDerived     *prometheus.CounterVec
	alertsActive      prometheus.Gauge
	published         *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// New registers collectors on a fresh registry.
// Params: whether to add Go runtime and process collectors.
// Returns: ready metrics set.
func New(withRuntime bool) *Metrics {
	registry := prometheus.NewRegistry()
	if withRuntime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		samplesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_received_total",
			Help:      "Decoded messages delivered per stream.",
		}, []string{"stream"}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Dropped payloads that failed to decode.",
		}, []string{"stream"}),
		reconnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after unrequested closes.",
		}, []string{"stream"}),
		connectionStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current connection status of each stream, 0 otherwise.",
		}, []string{"stream", "status"}),
		bufferSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_size",
			Help:      "Buffered items per stream.",
		}, []string{"stream"}),
		windowPoints: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_points",
			Help:      "Points in the latest chart frame per stream.",
		}, []string{"stream"}),
		alertsDerived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_derived_total",
			Help:      "Alerts that entered the alert list, by kind.",
		}, []string{"kind"}),
		alertsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_active",
			Help:      "Alerts currently held in the bounded list.",
		}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Fan-out publish results by subject kind and outcome.",
		}, []string{"kind", "result"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound alert notifications by channel and outcome.",
		}, []string{"channel", "result"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by route pattern.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MessageReceived counts one delivered message.
func (m *Metrics) MessageReceived(stream domain.StreamKind) {
	m.samplesReceived.WithLabelValues(string(stream)).Inc()
}

// DecodeFailed counts one dropped payload.
func (m *Metrics) DecodeFailed(stream domain.StreamKind) {
	m.decodeErrors.WithLabelValues(string(stream)).Inc()
}

// ReconnectScheduled counts one scheduled reconnect.
func (m *Metrics) ReconnectScheduled(stream domain.StreamKind) {
	m.reconnectAttempts.WithLabelValues(string(stream)).Inc()
}

// SetConnectionStatus flips the one-hot status gauge for stream.
func (m *Metrics) SetConnectionStatus(stream domain.StreamKind, status domain.ConnectionStatus) {
	for _, candidate := range domain.ConnectionStatuses() {
		value := 0.0
		if candidate == status {
			value = 1
		}
		m.connectionStatus.WithLabelValues(string(stream), string(candidate)).Set(value)
	}
}

// SetBufferSize records buffered item count.
func (m *Metrics) SetBufferSize(stream domain.StreamKind, size int) {
	m.bufferSize.WithLabelValues(string(stream)).Set(float64(size))
}

// SetWindowPoints records latest frame size.
func (m *Metrics) SetWindowPoints(stream domain.StreamKind, points int) {
	m.windowPoints.WithLabelValues(string(stream)).Set(float64(points))
}

// AlertDerived counts one alert entering the list.
func (m *Metrics) AlertDerived(kind domain.AlertKind) {
	m.alertsDerived.WithLabelValues(string(kind)).Inc()
}

// AlertsActive records current alert list size.
func (m *Metrics) AlertsActive(count int) {
	m.alertsActive.Set(float64(count))
}

// Published counts one fan-out publish.
func (m *Metrics) Published(kind string, err error) {
	m.published.WithLabelValues(kind, resultLabel(err)).Inc()
}

// Notified counts one outbound notification.
func (m *Metrics) Notified(channel string, err error) {
	m.notifications.WithLabelValues(channel, resultLabel(err)).Inc()
}

// ObserveRequest records one served HTTP request.
// Params: method, route pattern (not raw path), status code, and latency.
// Returns: none.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
