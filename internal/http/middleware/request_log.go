package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// RequestLogger writes one line per API request once the handler is done.
// 5xx logs at error, 4xx at warn. The last handler error and its domain code
// are attached so a failed confirm can be traced to the gateway response.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("middleware", "RequestLogger")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if probeRoutes[route] {
			return
		}
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "resource_id", id)
		}
		ctx := c.Request.Context()
		if td := ctxutil.GetTraceData(ctx); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if uid := ctxutil.UserID(ctx); uid != "" {
			fields = append(fields, "user_id", uid)
		}
		if last := c.Errors.Last(); last != nil {
			fields = append(fields, "error", last.Error())
			if code := domainagg.CodeOf(last.Err); code != "" {
				fields = append(fields, "error_code", string(code))
			}
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
