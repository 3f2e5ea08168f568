package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Michael--/modular-runtime/errors"
	"github.com/Michael--/modular-runtime/logger"
)

// Recovery returns a Gin middleware that recovers from panics, logs the
// stack and answers with a 500 error body.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithContext(c.Request.Context()).Error("Panic recovered", map[string]interface{}{
					logger.FieldError: fmt.Sprintf("%v", rec),
					"stack":           string(debug.Stack()),
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
				})
				appErr := apperrors.Internal(fmt.Errorf("panic: %v", rec))
				c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}
