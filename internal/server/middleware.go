package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/gin-gonic/gin"
)

var tenantHeaders = []string{"x-tenant", "x-asaas-tenant"}

// TenantMiddleware resolves the tenant from header, query param or body and
// stores it in the request context. Requests without a resolvable tenant are
// rejected.
func (s *Server) TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := resolveTenantID(c)
		if !ok {
			AbortWithError(c, newValidationError("tenant", "missing_tenant", "tenant could not be resolved"))
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimitMiddleware throttles per tenant; runs after tenant resolution.
func (s *Server) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
		if ok && !s.limiter.Allow(c.Request.Context(), tenantID) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func resolveTenantID(c *gin.Context) (int64, bool) {
	for _, header := range tenantHeaders {
		if raw := c.GetHeader(header); raw != "" {
			return parseTenantValue(raw)
		}
	}
	if raw := c.Query("tenant"); raw != "" {
		return parseTenantValue(raw)
	}
	return tenantFromBody(c)
}

// tenantFromBody peeks into JSON bodies for a tenant field, restoring the
// body so handlers can still read it.
func tenantFromBody(c *gin.Context) (int64, bool) {
	if c.Request.Body == nil || !strings.Contains(c.ContentType(), "application/json") {
		return 0, false
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return 0, false
	}

	var probe struct {
		Tenant   json.Number `json:"tenant"`
		TenantID json.Number `json:"tenant_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0, false
	}
	if probe.Tenant != "" {
		return parseTenantValue(probe.Tenant.String())
	}
	if probe.TenantID != "" {
		return parseTenantValue(probe.TenantID.String())
	}
	return 0, false
}

func parseTenantValue(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
