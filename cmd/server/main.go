package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GreenCorridor/internal/broadcast"
	handlers "GreenCorridor/internal/handler"
	"GreenCorridor/internal/matching"
	"GreenCorridor/internal/models"
	"GreenCorridor/internal/service"
	"GreenCorridor/internal/store"
	"GreenCorridor/pkg/backup"
	"GreenCorridor/pkg/cache"
	"GreenCorridor/pkg/config"
	"GreenCorridor/pkg/i18n"
	"GreenCorridor/pkg/logger"
	"GreenCorridor/pkg/metrics"
	"GreenCorridor/pkg/middleware"
	"GreenCorridor/pkg/notification"
	"GreenCorridor/pkg/scheduler"
	"GreenCorridor/pkg/sse"
	"GreenCorridor/pkg/util"
	"GreenCorridor/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal("config load failed: ", err)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		log.Fatal("logger init failed: ", err)
	}
	defer logger.Sync()

	m := metrics.NewMetrics()

	// responder directory
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("database open failed", zap.Error(err))
		os.Exit(1)
	}
	if err := db.Use(metrics.NewGormPlugin(m)); err != nil {
		logger.Warn("gorm metrics plugin not installed", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Responder{}); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		os.Exit(1)
	}

	tr, err := i18n.NewI18nSupport(cfg.DefaultLanguage, cfg.LocalesDir)
	if err != nil {
		logger.Error("i18n init failed", zap.Error(err))
		os.Exit(1)
	}

	wsCfg := websocket.LoadConfigFromEnv()
	if err := websocket.ValidateConfig(wsCfg); err != nil {
		logger.Error("invalid websocket config", zap.Error(err))
		os.Exit(1)
	}
	wsHub := websocket.NewHub(wsCfg)
	sseHub := sse.NewHub(cfg.SSEPingInterval)

	opts := []broadcast.Option{
		broadcast.WithSink("websocket", wsHub),
		broadcast.WithSink("sse", sseHub),
		broadcast.WithRecorder(m),
	}
	if cfg.Push.Enabled {
		push := notification.NewJPush(notification.JPushConfig{AppKey: cfg.Push.AppKey, MasterSecret: cfg.Push.MasterSecret}, notification.DryRunClient{})
		opts = append(opts, broadcast.WithSink("push", broadcast.NewPushSink(push)))
	}
	bc := broadcast.New(broadcast.Config{QueueSize: cfg.Broadcast.QueueSize, Workers: cfg.Broadcast.Workers}, opts...)

	// accept cooldowns and idempotency keys share one cache
	shared, err := cache.NewCache(cache.Config{
		Type:  cfg.Cache.Type,
		Local: cache.DefaultLocalConfig(),
		Redis: cache.RedisConfig{Addr: cfg.Cache.RedisAddr, Password: cfg.Cache.RedisPassword, DB: cfg.Cache.RedisDB, Prefix: "greencorridor:"},
	})
	if err != nil {
		logger.Error("cache init failed", zap.Error(err))
		os.Exit(1)
	}
	st := store.New(cfg.Policy, store.WithObserver(service.NewMetricsObserver(m)))
	svc := service.NewAlertService(st,
		matching.NewEngine(cfg.Policy, shared),
		db,
		service.WithNotifier(bc),
		service.WithI18n(tr),
		service.WithDecisionRecorder(m),
		service.WithResponderMaxAge(cfg.ResponderMaxAge),
	)

	m.RegisterGaugeFunc("alerts_live", "Alerts currently held in memory", func() float64 { return float64(st.Len()) })
	m.RegisterGaugeFunc("websocket_connections", "Open websocket connections", func() float64 { return float64(wsHub.GetConnectionCount()) })
	m.RegisterGaugeFunc("sse_clients", "Open SSE streams", func() float64 { return float64(sseHub.ClientCount()) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := scheduler.NewCron(ctx, time.Local)
	if _, err := sweeper.Add(cfg.SweepSchedule, scheduler.FuncJob(svc.SweepExpired)); err != nil {
		logger.Error("invalid sweep schedule", zap.String("spec", cfg.SweepSchedule), zap.Error(err))
		os.Exit(1)
	}
	if cfg.Backup.Schedule != "" {
		snap := backup.NewSnapshotter[models.Responder](db, cfg.Backup.Path, "responders", cfg.Backup.Keep)
		if n, err := snap.RestoreLatest(ctx); err != nil {
			logger.Warn("responder restore failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("responder directory restored", zap.Int("rows", n))
		}
		if _, err := sweeper.Add(cfg.Backup.Schedule, snap); err != nil {
			logger.Error("invalid backup schedule", zap.String("spec", cfg.Backup.Schedule), zap.Error(err))
			os.Exit(1)
		}
	}
	sweeper.Start()

	gin.SetMode(ginMode(cfg.Mode))
	engine := gin.New()
	engine.Use(gin.Recovery())

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: cfg.RateLimit.Rate, Identifier: "ip+route", AddHeaders: true}, nil).
			WithObserver(middleware.NewPrometheusObserver(m.Registry()))
	}
	handlers.NewHandlers(handlers.Deps{
		DB:          db,
		Alerts:      svc,
		WS:          wsHub,
		SSE:         sseHub,
		Metrics:     m,
		I18n:        tr,
		Idempotency: shared,
		RateLimiter: limiter,
		APIPrefix:   cfg.APIPrefix,
		MetricsPath: cfg.MetricsPath,
	}).Register(engine)

	srv := &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("server started", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sweeper.Stop()
	bc.Close(5 * time.Second)
	wsHub.Close()
	_ = shared.Close()
	logger.Info("server stopped")
}

func ginMode(mode string) string {
	switch mode {
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	}
	return gin.DebugMode
}
