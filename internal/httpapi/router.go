package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"

	"wallpaperdb/internal/monitoring"
)

// tracePropagator extracts an inbound W3C traceparent header so a trace
// started by a caller carries through to the wallpaper.uploaded event this
// request eventually publishes (spec §4.I).
var tracePropagator = propagation.TraceContext{}

// Router wires the upload endpoint and the health group behind gin, and
// tracks a draining flag so /ready flips over during the shutdown grace
// window (spec §4.H, §5) without waiting for every health checker to
// observe the closed listener.
type Router struct {
	engine   *gin.Engine
	draining int32
}

// NewRouter builds the gin engine. ginMode is passed straight to
// gin.SetMode (teacher's `cfg.Server.GinMode` convention).
func NewRouter(ginMode string, upload *UploadHandler, health *monitoring.HealthHandler) *Router {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	router := &Router{engine: engine}

	engine.POST("/upload", ginWrap(upload.Upload))

	root := engine.Group("/")
	health.RegisterRoutes(root)

	engine.GET("/ready", router.readiness(health))

	return router
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

// Drain marks the router as shutting down; subsequent /ready calls report
// unavailable regardless of underlying component health, so a load
// balancer stops routing new requests before the grace window expires.
func (r *Router) Drain() {
	atomic.StoreInt32(&r.draining, 1)
}

func (r *Router) readiness(health *monitoring.HealthHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if atomic.LoadInt32(&r.draining) == 1 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		health.Readiness(c)
	}
}

// ginWrap adapts a plain http.HandlerFunc onto gin, mirroring the
// teacher's internal/common.GinWrap so handlers stay framework-agnostic
// and path params still flow onto the request context.
func ginWrap(fn http.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tracePropagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		for _, param := range c.Params {
			ctx = context.WithValue(ctx, pathParamKey(param.Key), param.Value)
		}
		c.Request = c.Request.WithContext(ctx)
		fn(c.Writer, c.Request)
	}
}

type pathParamKey string
