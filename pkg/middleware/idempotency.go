package middleware

import (
	"net/http"
	"strings"
	"time"

	"GreenCorridor/pkg/cache"

	"github.com/gin-gonic/gin"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Store      cache.Cache
}

// IdempotencyMiddleware rejects a repeated Idempotency-Key on the same route with 409.
// Requests without the header pass through. A request that ends in an error
// status releases its key so the client can retry with it.
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewGoCache(cache.DefaultLocalConfig())
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		scoped := "idem:" + c.Request.Method + ":" + c.FullPath() + ":" + key
		if !cfg.Store.SetNX(c.Request.Context(), scoped, true, cfg.TTL) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "message": "duplicate request"})
			return
		}
		c.Next()
		if c.Writer.Status() >= http.StatusBadRequest {
			_ = cfg.Store.Delete(c.Request.Context(), scoped)
		}
	}
}
