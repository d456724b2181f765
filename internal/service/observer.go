package service

import (
	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/metrics"
)

// MetricsObserver feeds store lifecycle events into the Prometheus counters.
type MetricsObserver struct {
	m *metrics.Metrics
}

func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver { return &MetricsObserver{m: m} }

func (o *MetricsObserver) AlertCreated(a models.Alert) { o.m.RecordAlertCreated(a.Area) }

func (o *MetricsObserver) AlertResponded(a models.Alert) {
	o.m.RecordAlertResponded(string(a.TrafficStatus))
}

func (o *MetricsObserver) AlertsPurged(n int)  { o.m.RecordAlertsPurged(n) }
func (o *MetricsObserver) AlertsExpired(n int) { o.m.RecordAlertsExpired(n) }
