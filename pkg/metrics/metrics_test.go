package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordAlertCreated("north")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.alertsCreated.WithLabelValues("north")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.alertsCreated.WithLabelValues("north")))
}

func TestAlertCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordAlertResponded("accepted")
	m.RecordAlertResponded("")
	m.RecordAlertsPurged(2)
	m.RecordAlertsExpired(3)
	m.RecordBroadcast("alert:new", "websocket", nil)
	m.RecordBroadcastDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsResponded.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsResponded.WithLabelValues("unset")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsPurged))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.alertsExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastEvents.WithLabelValues("alert:new", "websocket", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcastDropped))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	m.RegisterGaugeFunc("alerts_active", "Live alerts", func() float64 { return 4 })

	r := gin.New()
	r.Use(MonitorMiddleware(m))
	r.GET("/alerts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/alerts/9999", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/alerts/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "greencorridor_alerts_active 4"))
	assert.Contains(t, body, "greencorridor_http_requests_total")
}
