package handlers

import (
	"GreenCorridor/internal/broadcast"
	"GreenCorridor/internal/service"
	"GreenCorridor/pkg/cache"
	"GreenCorridor/pkg/i18n"
	"GreenCorridor/pkg/metrics"
	"GreenCorridor/pkg/middleware"
	"GreenCorridor/pkg/sse"
	"GreenCorridor/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps is everything the HTTP surface talks to. Nil optional fields disable
// the matching feature.
type Deps struct {
	DB          *gorm.DB
	Alerts      *service.AlertService
	WS          *websocket.Hub
	SSE         *sse.Hub
	Metrics     *metrics.Metrics
	I18n        *i18n.I18nSupport
	Idempotency cache.Cache
	RateLimiter *middleware.RateLimiter
	APIPrefix   string
	MetricsPath string
}

type Handlers struct {
	Deps
}

func NewHandlers(d Deps) *Handlers {
	if d.APIPrefix == "" {
		d.APIPrefix = "/api/v1"
	}
	if d.MetricsPath == "" {
		d.MetricsPath = "/metrics"
	}
	return &Handlers{Deps: d}
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.Metrics != nil {
		engine.Use(metrics.MonitorMiddleware(h.Metrics))
		engine.GET(h.MetricsPath, h.Metrics.Handler())
	}
	if h.I18n != nil {
		engine.Use(middleware.LanguageMiddleware(h.I18n))
	}
	engine.GET("/health", h.HealthCheck)

	r := engine.Group(h.APIPrefix)
	h.registerSystemRoutes(r)
	h.registerAlertRoutes(r)
	h.registerResponderRoutes(r)
	h.registerPushRoutes(r)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

// Alert Module
func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	alerts := r.Group("alerts")
	{
		alerts.POST("", h.writeGuards(h.handleCreateAlert)...)

		alerts.GET("", h.handleListAlerts)

		alerts.GET("/stats", h.handleAlertStats)

		alerts.GET("/:id", h.handleGetAlert)

		alerts.POST("/respond", h.handleRespond)

		alerts.POST("/proximity", h.writeGuards(h.handleProximity)...)

		alerts.DELETE("/:id", h.handleDeleteAlert)

		alerts.DELETE("", h.handleClearAlerts)
	}
}

func (h *Handlers) registerResponderRoutes(r *gin.RouterGroup) {
	responders := r.Group("responders")
	{
		responders.GET("", h.handleListResponders)

		responders.GET("/:id", h.handleGetResponder)

		responders.PUT("/:id/location", h.handleUpdateLocation)

		responders.DELETE("/:id", h.handleDeactivateResponder)
	}
}

func (h *Handlers) registerPushRoutes(r *gin.RouterGroup) {
	if h.WS != nil {
		websocket.RegisterRoutes(r, websocket.NewHandler(h.WS, resolveIdentity))
	}
	if h.SSE != nil {
		r.GET("/events", h.handleEvents)
	}
}

// writeGuards prepends rate limiting and idempotency to the alert-producing endpoints.
func (h *Handlers) writeGuards(handler gin.HandlerFunc) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if h.RateLimiter != nil {
		chain = append(chain, h.RateLimiter.Middleware())
	}
	if h.Idempotency != nil {
		chain = append(chain, middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{Store: h.Idempotency}))
	}
	return append(chain, handler)
}

// pushGroups maps a client role to the broadcast groups it listens on.
func pushGroups(role, driver string) ([]string, error) {
	switch role {
	case "responder", "police", "toll":
		return []string{broadcast.GroupResponders}, nil
	case "driver", "ambulance":
		if driver == "" {
			return nil, errDriverNameRequired
		}
		return []string{broadcast.GroupDrivers}, nil
	}
	return nil, errUnknownRole
}

func resolveIdentity(c *gin.Context) (websocket.Identity, error) {
	role := c.Query("role")
	driver := c.Query("driverName")
	groups, err := pushGroups(role, driver)
	if err != nil {
		return websocket.Identity{}, err
	}
	user := driver
	if user == "" {
		user = c.Query("responderId")
	}
	return websocket.Identity{UserID: user, Role: role, Groups: groups}, nil
}
