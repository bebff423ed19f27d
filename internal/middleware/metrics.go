package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/service"
)

// Metrics observes method, route template, status, and latency for every
// request. The route template keeps path parameters out of the label set;
// unmatched routes fall back to the raw path.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
