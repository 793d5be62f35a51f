package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/beneflow/beneflow/internal/audit/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) RefreshReceivable(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid receivable id"))
		return
	}

	result, err := s.billingSvc.RefreshPaymentStatus(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionReceivableRefresh, "receivable", id.String(), map[string]any{
		"matched": result.Matched,
		"status":  result.To,
	})
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) EnsureReceivablePayment(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid receivable id"))
		return
	}

	force := strings.EqualFold(c.Query("force"), "true")
	billingType := strings.TrimSpace(c.Query("billing_type"))

	rec, err := s.billingSvc.EnsurePayment(c.Request.Context(), id, billingType, force)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionPaymentEnsure, "receivable", id.String(), map[string]any{
		"force":        force,
		"billing_type": billingType,
	})
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (s *Server) SettleReceivable(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid receivable id"))
		return
	}

	result, err := s.billingSvc.SettleManually(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionReceivableSettle, "receivable", id.String(), map[string]any{
		"from": result.From,
	})
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ChargebackReceivable(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid receivable id"))
		return
	}

	result, err := s.billingSvc.Chargeback(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionReceivableChargeback, "receivable", id.String(), nil)
	c.JSON(http.StatusOK, gin.H{"data": result})
}
