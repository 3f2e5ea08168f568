package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Michael--/modular-runtime/observability"
)

// Metrics records request count, duration and the active gauge per route.
func Metrics(service string, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		m.RecordRequestStart(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequestEnd(ctx, service, c.Request.Method+" "+route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
