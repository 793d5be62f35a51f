package server

import (
	"net/http"
	"strconv"

	"github.com/beneflow/beneflow/pkg/tenantctx"
	"github.com/gin-gonic/gin"
)

func (s *Server) RunPlanSync(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	batchSize := 0
	if raw := c.Query("batch_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("batch_size", "invalid_batch_size", "invalid batch_size"))
			return
		}
		batchSize = parsed
	}

	result, err := s.plansyncSvc.SyncAllInBatches(c.Request.Context(), tenantID, batchSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
