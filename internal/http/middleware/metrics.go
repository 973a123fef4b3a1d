package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/observability"
)

// MetricsPath is where the router exposes the Prometheus handler.
const MetricsPath = "/metrics"

const unmatchedRoute = "no_route"

// Metrics records latency and status per matched route. Scrapes of
// MetricsPath are not counted, and requests no route matched share one label
// so arbitrary paths cannot grow the series count.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == MetricsPath {
			c.Next()
			return
		}
		m.ApiInflightInc()
		defer m.ApiInflightDec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveAPI(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
