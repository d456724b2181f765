package util

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env and then .env.<env> on top of it. Missing files are not an error.
func LoadEnv(env string) error {
	files := []string{".env"}
	if env != "" {
		files = append(files, fmt.Sprintf(".env.%s", env))
	}
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) == 0 {
		return nil
	}
	// godotenv.Overload lets the env specific file win over .env
	return godotenv.Overload(loaded...)
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func GetEnvOr(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetIntEnvOr(key string, def int64) int64 {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return def
	}
	return n
}

func GetFloatEnvOr(key string, def float64) float64 {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

func GetBoolEnvOr(key string, def bool) bool {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// GetDurationEnvOr accepts Go duration strings ("90s", "15m"); bare numbers are seconds.
func GetDurationEnvOr(key string, def time.Duration) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return def
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := cast.ToDurationE(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
