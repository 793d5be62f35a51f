package server

import (
	"net/http"
	"strconv"
	"strings"

	auditdomain "github.com/beneflow/beneflow/internal/audit/domain"
	notificationdomain "github.com/beneflow/beneflow/internal/notification/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) NotificationDashboard(c *gin.Context) {
	dashboard, err := s.notificationSvc.Dashboard(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dashboard})
}

func (s *Server) DispatchNotifications(c *gin.Context) {
	force := strings.EqualFold(c.Query("force"), "true")

	result, err := s.notificationSvc.DispatchDue(c.Request.Context(), force)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) UpdateNotificationSchedule(c *gin.Context) {
	var req notificationdomain.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	schedule, err := s.notificationSvc.UpdateSchedule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionScheduleUpdate, "schedule", schedule.ID.String(), map[string]any{
		"frequency_minutes": schedule.FrequencyMinutes,
		"channel":           schedule.Channel,
		"active":            schedule.Active,
	})
	c.JSON(http.StatusOK, gin.H{"data": schedule})
}

func (s *Server) UpdateNotificationBlock(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid customer id"))
		return
	}

	var req struct {
		Blocked *bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Blocked == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.notificationSvc.UpdateCustomerBlock(c.Request.Context(), id, *req.Blocked); err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionCustomerBlock, "customer", id.String(), map[string]any{
		"blocked": *req.Blocked,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) UpdateNotificationChannel(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid customer id"))
		return
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.notificationSvc.UpdateCustomerChannel(c.Request.Context(), id, req.Channel); err != nil {
		AbortWithError(c, err)
		return
	}
	s.audit(c.Request.Context(), auditdomain.ActionCustomerChannel, "customer", id.String(), map[string]any{
		"channel": req.Channel,
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) ListNotificationLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	logs, err := s.notificationSvc.GetLogs(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}
