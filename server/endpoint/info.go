package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Michael--/modular-runtime/version"
)

var started = time.Now()

// Liveness answers 200 for as long as the process can serve HTTP at all.
func Liveness(serviceName string) gin.HandlerFunc {
	body := gin.H{"status": "alive", "service": serviceName}
	return func(c *gin.Context) { c.JSON(http.StatusOK, body) }
}

// Version reports the build the process runs and how long it has been up.
func Version(serviceName string) gin.HandlerFunc {
	info := version.GetVersionInfo()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":    serviceName,
			"version":    info.Version,
			"git_commit": info.GitCommit,
			"go_version": info.GoVersion,
			"dirty":      info.IsDirty,
			"uptime":     time.Since(started).Truncate(time.Second).String(),
		})
	}
}
