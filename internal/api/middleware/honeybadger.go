package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/sirupsen/logrus"

	"github.com/bassista/sheetwatch/internal/alert"
)

// HoneybadgerMiddleware reports panics and server errors to Honeybadger.
// On panic, it notifies Honeybadger and re-panics to allow gin.Recovery to handle the response.
// 4xx answers and 503 (a workbook held by another process) are expected and only logged.
func HoneybadgerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	if !alert.Configure(logger) {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				honeybadger.Notify(fmt.Sprintf("Panic: %s %s", c.Request.Method, route(c)),
					c.Request, honeybadger.Context{"stack": string(debug.Stack())}, honeybadger.Tags{"panic", "http"})
				logger.Error("Recovered from panic, notified Honeybadger: ", rec)
				panic(rec)
			}
		}()

		c.Next()

		status := c.Writer.Status()
		switch {
		case status >= 500 && status != http.StatusServiceUnavailable:
			honeybadger.Notify(fmt.Sprintf("Error: HTTP %d: %s %s", status, c.Request.Method, route(c)),
				c.Request, honeybadger.Context{"resource": c.Param("name")}, honeybadger.Tags{"5XX", "http"})
			logger.Warnf("Honeybadger reported HTTP %d for %s %s", status, c.Request.Method, c.Request.URL.Path)
		case status >= 400:
			logger.Debugf("HTTP %d for %s %s", status, c.Request.Method, c.Request.URL.Path)
		}
	}
}

// route prefers the matched pattern so reports group by endpoint, not by resource name.
func route(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
