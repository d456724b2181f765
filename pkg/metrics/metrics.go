package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greencorridor"

// Metrics 指标管理器. Each instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	alertsCreated   *prometheus.CounterVec
	alertsResponded *prometheus.CounterVec
	alertsPurged    prometheus.Counter
	alertsExpired   prometheus.Counter

	matchDecisions *prometheus.CounterVec

	broadcastEvents  *prometheus.CounterVec
	broadcastDropped prometheus.Counter

	dbQueryDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_created_total", Help: "Alerts created, by routing area",
		}, []string{"area"}),
		alertsResponded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_responded_total", Help: "Responder decisions, by traffic status",
		}, []string{"traffic_status"}),
		alertsPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_purged_total", Help: "Pending duplicates removed after an accept",
		}),
		alertsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_expired_total", Help: "Alerts removed by the expiry window",
		}),

		matchDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "match_decisions_total", Help: "Matching outcomes per responder, by result",
		}, []string{"result"}),

		broadcastEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_events_total", Help: "Fan-out deliveries by event, sink and result",
		}, []string{"event", "sink", "result"}),
		broadcastDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_dropped_total", Help: "Events dropped because the fan-out queue was full",
		}),

		dbQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "db_query_duration_seconds", Help: "Directory query duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "table"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RegisterGaugeFunc exposes a value sampled at scrape time, such as the live alert count.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, fn)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return gin.WrapH(h)
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordAlertCreated(area string) { m.alertsCreated.WithLabelValues(area).Inc() }

func (m *Metrics) RecordAlertResponded(trafficStatus string) {
	if trafficStatus == "" {
		trafficStatus = "unset"
	}
	m.alertsResponded.WithLabelValues(trafficStatus).Inc()
}

func (m *Metrics) RecordAlertsPurged(n int)  { m.alertsPurged.Add(float64(n)) }
func (m *Metrics) RecordAlertsExpired(n int) { m.alertsExpired.Add(float64(n)) }

func (m *Metrics) RecordMatchDecision(result string) { m.matchDecisions.WithLabelValues(result).Inc() }

func (m *Metrics) RecordBroadcast(event, sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.broadcastEvents.WithLabelValues(event, sink, result).Inc()
}

func (m *Metrics) RecordBroadcastDropped() { m.broadcastDropped.Inc() }

func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

