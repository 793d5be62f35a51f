package server

import (
	"encoding/json"
	"io"
	"net/http"

	billingdomain "github.com/beneflow/beneflow/internal/billing/domain"
	"github.com/beneflow/beneflow/internal/gateway"
	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var signatureHeaders = []string{
	"x-signature",
	"asaas-signature",
	"x-asaas-signature",
	"x-hub-signature",
}

// HandleWebhook verifies the provider signature against the tenant's secret
// and applies the event. Verified requests always answer 200, whether or not
// a receivable matched.
func (s *Server) HandleWebhook(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	signature := ""
	for _, header := range signatureHeaders {
		if signature = c.GetHeader(header); signature != "" {
			break
		}
	}

	creds, err := s.credsRepo.FindByTenant(c.Request.Context(), s.db, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if creds == nil || creds.WebhookSecret == "" || signature == "" ||
		!gateway.VerifyWebhookSignature(creds.WebhookSecret, raw, signature) {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var event billingdomain.WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		AbortWithError(c, billingdomain.ErrInvalidEvent)
		return
	}

	// Providers send event types beyond the payment lifecycle (subscription
	// updates, account notices). Acknowledge those so the provider does not
	// retry; only unparseable bodies are rejected.
	if _, known := billingdomain.StatusForEvent(event.Event); !known || event.Payment == nil || event.Payment.ID == "" {
		s.log.Info("ignoring webhook event without payment mapping",
			zap.Int64("tenant_id", tenantID.Int64()),
			zap.String("event", event.Event))
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if _, err := s.billingSvc.ApplyWebhook(c.Request.Context(), event); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
