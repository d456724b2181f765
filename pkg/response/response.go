package response

import (
	"net/http"

	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Success writes {"success": true, ...fields} with status.
func Success(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Fail writes {"success": false, "message": msg}.
func Fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

// Error maps err to its HTTP status. Internal errors hide their message.
func Error(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	msg := errors.GetMessage(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	Fail(c, status, msg)
}
