package server

import (
	"net/http"
	"strconv"

	auditdomain "github.com/beneflow/beneflow/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditRec == nil {
		c.JSON(http.StatusOK, gin.H{"data": []auditdomain.Entry{}})
		return
	}

	filter := auditdomain.ListFilter{
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
	}
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		filter.Limit = parsed
	}

	entries, err := s.auditRec.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}
