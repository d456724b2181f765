// Command driver is the ambulance-side poller: it watches the server for
// responder decisions on this driver's alerts and reports each one once.
// With -role responder it polls the pending dashboard instead.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"GreenCorridor/internal/correlation"
	"GreenCorridor/internal/matching"
	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/cache"
	"GreenCorridor/pkg/config"
	"GreenCorridor/pkg/logger"
	"GreenCorridor/pkg/scheduler"
	"GreenCorridor/pkg/util"

	"go.uber.org/zap"
)

func main() {
	_ = util.LoadEnv(util.GetEnvOr("APP_ENV", "development"))

	server := flag.String("server", util.GetEnvOr("SERVER_URL", "http://127.0.0.1:8080/api/v1"), "alert API base URL")
	driver := flag.String("driver", util.GetEnv("DRIVER_NAME"), "driver name used as the correlation key")
	role := flag.String("role", "driver", "driver or responder")
	interval := flag.Duration("interval", 0, "poll interval (default 2s for drivers, 3s for responders)")
	flag.Parse()

	if err := logger.Init(&logger.LogConfig{Level: util.GetEnv("LOG_LEVEL")}, util.GetEnvOr("MODE", "debug")); err != nil {
		log.Fatal("logger init failed: ", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sched := scheduler.New(ctx)
	fetcher := &correlation.HTTPFetcher{BaseURL: *server}

	if *role == "responder" {
		every := *interval
		if every <= 0 {
			every = correlation.ResponderPollInterval
		}
		dash, err := correlation.NewDashboardPoller(fetcher, correlation.DefaultProcessedSize, func(a models.Alert) {
			logger.Info("pending alert",
				zap.Int64("id", int64(a.ID)),
				zap.String("driver", a.DriverName),
				zap.String("police", a.PoliceID),
				zap.String("from", a.StartAddress),
				zap.String("to", a.EndAddress))
		})
		if err != nil {
			logger.Error("dashboard init failed", zap.Error(err))
			os.Exit(1)
		}
		sched.Every(every, true, dash)
		logger.Info("polling pending alerts", zap.String("server", *server), zap.Duration("every", every))
		<-ctx.Done()
		sched.Stop()
		return
	}

	if *driver == "" {
		logger.Error("driver name is required (-driver or DRIVER_NAME)")
		os.Exit(2)
	}

	engine := matching.NewEngine(config.DefaultPolicy(), cache.NewGoCache(cache.DefaultLocalConfig()))
	corr, err := correlation.New(*driver, correlation.DefaultProcessedSize,
		correlation.WithEngine(engine),
		correlation.WithHooks(correlation.Hooks{
			OnRejected: func(ctx context.Context, ev correlation.ResponseEvent) {
				logger.Warn("route rejected, reroute needed",
					zap.String("responseId", ev.ResponseID), zap.String("message", ev.Message))
			},
		}),
	)
	if err != nil {
		logger.Error("correlator init failed", zap.Error(err))
		os.Exit(1)
	}

	poller := correlation.NewPoller(fetcher, corr, func(ev correlation.ResponseEvent) {
		logger.Info("response received",
			zap.String("responseId", ev.ResponseID),
			zap.String("trafficStatus", string(ev.Outcome)),
			zap.Bool("inferred", ev.Inferred),
			zap.String("message", ev.Message),
			zap.Int("cleared", len(ev.Cleared)))
	})

	every := *interval
	if every <= 0 {
		every = correlation.DriverPollInterval
	}
	sched.Every(every, true, poller)
	logger.Info("polling", zap.String("server", *server), zap.String("driver", *driver), zap.Duration("every", every))

	<-ctx.Done()
	sched.Stop()
}
