package middleware

import (
	"fmt"
	"runtime/debug"

	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"
	"pvjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns handler panics into InternalServerError responses.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "handler panic",
					zap.String("panic", fmt.Sprint(r)),
					zap.ByteString("stack", debug.Stack()),
				)
				response.AbortWithErrorCode(c, appErr.InternalServerError, "")
			}
		}()
		c.Next()
	}
}
