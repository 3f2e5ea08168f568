package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Michael--/modular-runtime/component"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// HealthExtra contributes additional top-level fields to the health body.
type HealthExtra func(ctx context.Context) map[string]any

// Health returns a handler that reports service health including component
// statuses. Any unhealthy component turns the answer into a 503.
func Health(serviceName string, checker HealthChecker, extras ...HealthExtra) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var components []component.Health
		if checker != nil {
			components = checker(ctx)
		}
		status := component.Overall(components)

		httpStatus := http.StatusOK
		if status == component.StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status":    status,
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if len(components) > 0 {
			body["components"] = components
		}
		for _, extra := range extras {
			for k, v := range extra(ctx) {
				body[k] = v
			}
		}
		c.JSON(httpStatus, body)
	}
}
