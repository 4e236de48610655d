package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/sheetwatch/internal/logger"
)

// RequestTimeout bounds every API call with a context deadline. Handlers that
// wait on a resource (lock probe, store lock) must honor ctx.Done(); the
// middleware never interrupts them.
//
// A handler that gave up without writing gets a 504 naming the resource.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Writer.Written() {
			return
		}
		resource := c.Param("name")
		logger.WithComponent("http").WithField("resource", resource).
			Warnf("%s %s gave up after %v", c.Request.Method, c.FullPath(), d)
		body := gin.H{"error": "request timeout", "timeout": d.String()}
		if resource != "" {
			body["resource"] = resource
		}
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, body)
	}
}
