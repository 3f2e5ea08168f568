package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Michael--/modular-runtime/logger"
)

var quietPaths = map[string]bool{
	"/health": true,
	"/alive":  true,
}

// RequestLogger logs every request with method, path, status and duration.
// Health probes are skipped. Level follows the status: 5xx error, 4xx warn,
// everything else debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":             c.Request.Method,
			"path":               c.FullPath(),
			logger.FieldStatus:   status,
			logger.FieldDuration: time.Since(start).Milliseconds(),
			"client":             c.ClientIP(),
		}
		if fields["path"] == "" {
			fields["path"] = c.Request.URL.Path
		}
		if len(c.Errors) > 0 {
			fields[logger.FieldError] = c.Errors.String()
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			reqLog.Error("Request completed", fields)
		case status >= 400:
			reqLog.Warn("Request completed", fields)
		default:
			reqLog.Debug("Request completed", fields)
		}
	}
}
