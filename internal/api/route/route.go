package route

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bassista/sheetwatch/internal/api/middleware"
	"github.com/bassista/sheetwatch/internal/app"
)

// SetupRoutes builds the engine serving the status and control API.
func SetupRoutes(appCtx *app.App, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		status := "UP"
		if !appCtx.Watcher.Running() {
			status = "DOWN"
		}
		c.JSON(http.StatusOK, gin.H{
			"message":     status,
			"trigger":     appCtx.Trigger.Kind(),
			"resources":   len(appCtx.Watcher.Resources()),
			"last_update": appCtx.Cache.GetLastUpdate(),
		})
	})

	api := r.Group("/api")
	NewResourceRouter(appCtx.Config.Server.RequestTimeout, api, appCtx)

	return r
}
