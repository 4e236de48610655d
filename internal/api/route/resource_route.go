package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/sheetwatch/internal/api/controller"
	"github.com/bassista/sheetwatch/internal/api/middleware"
	"github.com/bassista/sheetwatch/internal/app"
)

func NewResourceRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	group.Use(middleware.RequestTimeout(timeout))

	rc := controller.NewResourceController(appCtx.Cache, appCtx.Watcher, appCtx.Backend, appCtx.Callback())

	group.GET("resources", rc.AllResources)
	group.GET("resources/:name", rc.Resource)
	group.GET("resources/:name/snapshot", rc.Snapshot)
	group.GET("resources/:name/events", rc.Events)
	group.GET("resources/:name/lock", rc.Lock)
	group.POST("resources/:name/notify", rc.Notify)
	group.POST("resources/:name/modified", rc.Modified)
}
