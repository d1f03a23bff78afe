package server

import (
	"strings"
	"time"

	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing. Event streams are
// logged when the client disconnects, so their latency is the session length.
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"route":   c.FullPath(),
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if len(c.Errors) > 0 {
		fields["errors"] = c.Errors.String()
	}

	switch {
	case c.Writer.Status() >= 500:
		utils.Error("HTTP Request", fields)
	case strings.HasSuffix(c.FullPath(), "/events"):
		utils.Debug("HTTP Request", fields)
	default:
		utils.Info("HTTP Request", fields)
	}
}
