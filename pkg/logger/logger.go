package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls level and file rotation. An empty Filename logs to stdout only.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL"`
	Filename   string `env:"LOG_FILENAME"`
	MaxSize    int    `env:"LOG_MAX_SIZE"`
	MaxAge     int    `env:"LOG_MAX_AGE"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
}

var (
	mu  sync.RWMutex
	lg  = zap.NewNop()
	lvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the process logger. Safe to call more than once.
func Init(cfg *LogConfig, mode string) error {
	if cfg == nil {
		cfg = &LogConfig{}
	}
	if err := lvl.UnmarshalText([]byte(strings.ToLower(defaultStr(cfg.Level, "info")))); err != nil {
		return err
	}

	var encCfg zapcore.EncoderConfig
	if mode == "release" || mode == "production" {
		encCfg = zap.NewProductionEncoderConfig()
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), lvl),
	}
	if cfg.Filename != "" {
		w := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    defaultInt(cfg.MaxSize, 100),
			MaxAge:     defaultInt(cfg.MaxAge, 7),
			MaxBackups: defaultInt(cfg.MaxBackups, 5),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	mu.Lock()
	lg = l
	mu.Unlock()
	return nil
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return lg
}

func Sync() { _ = L().Sync() }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
