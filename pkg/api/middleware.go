package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	headerTenantID  = "X-Tenant-ID"
	headerAdmin     = "X-Admin-Token"

	ctxTenantID  = "tenant_id"
	ctxRequestID = "request_id"
)

// requestID tags every request, honoring an id supplied by the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog writes one structured line per request.
func accessLog() gin.HandlerFunc {
	logger := log.WithComponent("api")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("request_id", c.GetString(ctxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// observe records the request latency histogram by route template.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// requireTenant resolves the caller's tenant from the X-Tenant-ID header.
// Cross-tenant access is rejected before any handler runs.
func requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerTenantID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing " + headerTenantID + " header"})
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "malformed tenant id"})
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Next()
	}
}

// requireAdmin gates the platform-admin surface. The token itself is
// checked upstream by the deployment's ingress; here its presence marks
// the request as having passed that check.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(headerAdmin) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func tenantID(c *gin.Context) uuid.UUID {
	return c.MustGet(ctxTenantID).(uuid.UUID)
}
