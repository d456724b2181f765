package config

import (
	"GreenCorridor/pkg/logger"
	"GreenCorridor/pkg/util"
	"log"
	"os"
	"time"
)

// Policy holds the alert volume and lifecycle thresholds.
type Policy struct {
	AlertExpiry            time.Duration `env:"ALERT_EXPIRY"`
	MatchRadiusKm          float64       `env:"MATCH_RADIUS_KM"`
	MaxPendingTotal        int           `env:"MAX_PENDING_TOTAL"`
	MaxPendingPerResponder int           `env:"MAX_PENDING_PER_RESPONDER"`
	ResponderCooldown      time.Duration `env:"RESPONDER_COOLDOWN"`
	AcceptCooldown         time.Duration `env:"ACCEPT_COOLDOWN"`
	AllowOverwrite         bool          `env:"ALERT_ALLOW_OVERWRITE"`
	CorridorBufferMeters   float64       `env:"CORRIDOR_BUFFER_METERS"`
}

// DefaultPolicy returns the thresholds the field deployment runs with.
func DefaultPolicy() Policy {
	return Policy{
		AlertExpiry:            15 * time.Minute,
		MatchRadiusKm:          2,
		MaxPendingTotal:        5,
		MaxPendingPerResponder: 3,
		ResponderCooldown:      2 * time.Minute,
		AcceptCooldown:         5 * time.Minute,
		AllowOverwrite:         true,
		CorridorBufferMeters:   100,
	}
}

type BroadcastConfig struct {
	QueueSize int `env:"BROADCAST_QUEUE_SIZE"`
	Workers   int `env:"BROADCAST_WORKERS"`
}

type RateLimitConfig struct {
	Enabled bool   `env:"RATE_LIMIT_ENABLED"`
	Rate    string `env:"RATE_LIMIT_RATE"`
}

type PushConfig struct {
	Enabled      bool   `env:"PUSH_ENABLED"`
	AppKey       string `env:"PUSH_APP_KEY"`
	MasterSecret string `env:"PUSH_MASTER_SECRET"`
}

type CacheConfig struct {
	Type          string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
}

// BackupConfig controls responder directory snapshots; an empty Schedule disables them.
type BackupConfig struct {
	Schedule string `env:"BACKUP_SCHEDULE"`
	Path     string `env:"BACKUP_PATH"`
	Keep     int    `env:"BACKUP_KEEP"`
}

type Config struct {
	DBDriver        string        `env:"DB_DRIVER"`
	DSN             string        `env:"DSN"`
	Log             logger.LogConfig
	Addr            string        `env:"ADDR"`
	Mode            string        `env:"MODE"`
	APIPrefix       string        `env:"API_PREFIX"`
	MetricsPath     string        `env:"METRICS_PATH"`
	DefaultLanguage string        `env:"DEFAULT_LANGUAGE"`
	SweepSchedule   string        `env:"SWEEP_SCHEDULE"`
	SSEPingInterval time.Duration `env:"SSE_PING_INTERVAL"`
	LocalesDir      string        `env:"LOCALES_DIR"`
	ResponderMaxAge time.Duration `env:"RESPONDER_MAX_AGE"`
	Policy          Policy
	Broadcast       BroadcastConfig
	RateLimit       RateLimitConfig
	Push            PushConfig
	Cache           CacheConfig
	Backup          BackupConfig
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	def := DefaultPolicy()
	GlobalConfig = &Config{
		DBDriver:  util.GetEnvOr("DB_DRIVER", "sqlite"),
		DSN:       util.GetEnv("DSN"),
		Addr:      util.GetEnvOr("ADDR", ":8080"),
		Mode:      util.GetEnvOr("MODE", "debug"),
		APIPrefix: util.GetEnvOr("API_PREFIX", "/api/v1"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		MetricsPath:     util.GetEnvOr("METRICS_PATH", "/metrics"),
		DefaultLanguage: util.GetEnvOr("DEFAULT_LANGUAGE", "en"),
		SweepSchedule:   util.GetEnvOr("SWEEP_SCHEDULE", "@every 1m"),
		SSEPingInterval: util.GetDurationEnvOr("SSE_PING_INTERVAL", 30*time.Second),
		LocalesDir:      util.GetEnv("LOCALES_DIR"),
		ResponderMaxAge: util.GetDurationEnvOr("RESPONDER_MAX_AGE", 10*time.Minute),
		Policy: Policy{
			AlertExpiry:            util.GetDurationEnvOr("ALERT_EXPIRY", def.AlertExpiry),
			MatchRadiusKm:          util.GetFloatEnvOr("MATCH_RADIUS_KM", def.MatchRadiusKm),
			MaxPendingTotal:        int(util.GetIntEnvOr("MAX_PENDING_TOTAL", int64(def.MaxPendingTotal))),
			MaxPendingPerResponder: int(util.GetIntEnvOr("MAX_PENDING_PER_RESPONDER", int64(def.MaxPendingPerResponder))),
			ResponderCooldown:      util.GetDurationEnvOr("RESPONDER_COOLDOWN", def.ResponderCooldown),
			AcceptCooldown:         util.GetDurationEnvOr("ACCEPT_COOLDOWN", def.AcceptCooldown),
			AllowOverwrite:         util.GetBoolEnvOr("ALERT_ALLOW_OVERWRITE", def.AllowOverwrite),
			CorridorBufferMeters:   util.GetFloatEnvOr("CORRIDOR_BUFFER_METERS", def.CorridorBufferMeters),
		},
		Broadcast: BroadcastConfig{
			QueueSize: int(util.GetIntEnvOr("BROADCAST_QUEUE_SIZE", 1024)),
			Workers:   int(util.GetIntEnvOr("BROADCAST_WORKERS", 4)),
		},
		RateLimit: RateLimitConfig{
			Enabled: util.GetBoolEnvOr("RATE_LIMIT_ENABLED", true),
			Rate:    util.GetEnvOr("RATE_LIMIT_RATE", "60-M"),
		},
		Cache: CacheConfig{
			Type:          util.GetEnvOr("CACHE_TYPE", "gocache"),
			RedisAddr:     util.GetEnvOr("REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: util.GetEnv("REDIS_PASSWORD"),
			RedisDB:       int(util.GetIntEnv("REDIS_DB")),
		},
		Backup: BackupConfig{
			Schedule: util.GetEnv("BACKUP_SCHEDULE"),
			Path:     util.GetEnvOr("BACKUP_PATH", "./backups"),
			Keep:     int(util.GetIntEnvOr("BACKUP_KEEP", 5)),
		},
		Push: PushConfig{
			Enabled:      util.GetBoolEnv("PUSH_ENABLED"),
			AppKey:       util.GetEnv("PUSH_APP_KEY"),
			MasterSecret: util.GetEnv("PUSH_MASTER_SECRET"),
		},
	}
	return nil
}
