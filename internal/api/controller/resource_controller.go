package controller

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/bassista/sheetwatch/internal/cache"
	"github.com/bassista/sheetwatch/internal/logger"
	"github.com/bassista/sheetwatch/internal/trigger"
)

// MaxEventsLimit caps the limit query parameter of the events endpoint.
const MaxEventsLimit = 1000

var validate = validator.New()

// ModifiedRequest is the body of POST /resources/:name/modified.
// Sheet names are limited to 31 characters by the workbook format.
type ModifiedRequest struct {
	Sheet string `json:"sheet" validate:"max=31"`
}

// ResourceController exposes the watched resources.
type ResourceController struct {
	store    cache.ReadOnlyStore
	notifier trigger.Notifier
	prober   trigger.Prober
	callback *trigger.CallbackAdapter
}

// NewResourceController creates a ResourceController. callback is nil unless the
// active trigger is the callback adapter.
func NewResourceController(store cache.ReadOnlyStore, notifier trigger.Notifier, prober trigger.Prober, callback *trigger.CallbackAdapter) *ResourceController {
	return &ResourceController{store: store, notifier: notifier, prober: prober, callback: callback}
}

// AllResources handles GET /resources.
func (rc *ResourceController) AllResources(c *gin.Context) {
	logger.WithComponent("resource-controller").Debugf("GET /resources handler called")
	c.JSON(http.StatusOK, rc.store.List())
}

// Resource handles GET /resources/:name.
func (rc *ResourceController) Resource(c *gin.Context) {
	name := c.Param("name")
	state, err := rc.store.Get(name)
	if err != nil {
		rc.fail(c, name, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Snapshot handles GET /resources/:name/snapshot.
func (rc *ResourceController) Snapshot(c *gin.Context) {
	name := c.Param("name")
	snap, err := rc.store.SnapshotOf(name)
	if err != nil {
		rc.fail(c, name, err)
		return
	}
	state, err := rc.store.Get(name)
	if err != nil {
		rc.fail(c, name, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        name,
		"baseline":    snap != nil,
		"fingerprint": state.Fingerprint,
		"sheets":      snap,
	})
}

// Events handles GET /resources/:name/events?limit=N.
func (rc *ResourceController) Events(c *gin.Context) {
	name := c.Param("name")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = min(n, MaxEventsLimit)
	}

	events, err := rc.store.Events(name, limit)
	if err != nil {
		rc.fail(c, name, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// Lock handles GET /resources/:name/lock - reports whether another process holds the file.
func (rc *ResourceController) Lock(c *gin.Context) {
	name := c.Param("name")
	id, err := rc.store.ResolveID(name)
	if err != nil {
		rc.fail(c, name, err)
		return
	}
	if rc.prober == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "lock probe not available"})
		return
	}
	locked, err := rc.prober.Probe(id)
	if err != nil {
		logger.WithComponent("resource-controller").Debugf("probe %s: %v", name, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "locked": locked})
}

// Notify handles POST /resources/:name/notify - enqueues a pass for the resource.
func (rc *ResourceController) Notify(c *gin.Context) {
	name := c.Param("name")
	id, err := rc.store.ResolveID(name)
	if err != nil {
		rc.fail(c, name, err)
		return
	}
	rc.notifier.Notify(id)
	logger.WithComponent("resource-controller").Debugf("pass requested for %s", name)
	c.JSON(http.StatusAccepted, gin.H{"message": "queued", "name": name})
}

// Modified handles POST /resources/:name/modified - the host application hook
// of the callback trigger. It answers 404 when that trigger is not active.
func (rc *ResourceController) Modified(c *gin.Context) {
	if rc.callback == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "callback trigger not active"})
		return
	}
	name := c.Param("name")
	id, err := rc.store.ResolveID(name)
	if err != nil {
		rc.fail(c, name, err)
		return
	}

	var req ModifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := rc.callback.Modified(id, req.Sheet); err != nil {
		if errors.Is(err, trigger.ErrNotStarted) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		rc.fail(c, name, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "queued", "name": name, "sheet": req.Sheet})
}

func (rc *ResourceController) fail(c *gin.Context, name string, err error) {
	if errors.Is(err, cache.ErrNotFound) || errors.Is(err, trigger.ErrUnknownResource) {
		logger.WithComponent("resource-controller").Debugf("resource %s: not found", name)
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	logger.WithComponent("resource-controller").Errorf("resource %s: %v", name, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
