package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// AuditHandler exposes the audit trail and the derived security and activity
// reports.
type AuditHandler struct {
	audit *usecase.AuditService
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes binds audit query routes. The caller gates the group with an
// audit:read permission check.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/events", h.ListEvents)
	r.GET("/reports/security", h.SecurityReport)
	r.GET("/reports/users/:user_id", h.UserActivityReport)
}

// ListEvents queries the audit trail with optional user, type, since, and
// limit filters. Results are newest first.
func (h *AuditHandler) ListEvents(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service unavailable"))
		return
	}

	filter := port.AuditFilter{
		UserID: c.Query("user_id"),
		Type:   domain.EventType(c.Query("type")),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "since must be RFC 3339"))
			return
		}
		filter.Since = since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	events, err := h.audit.Events(c.Request.Context(), filter)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to query audit events")
		return
	}

	payload := make([]AuditEventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, newAuditEventPayload(event))
	}
	c.JSON(http.StatusOK, gin.H{"events": payload})
}

// SecurityReport aggregates failure counts and retained alerts over the
// requested window (default 24h).
func (h *AuditHandler) SecurityReport(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service unavailable"))
		return
	}

	window, ok := parseWindow(c, 24*time.Hour)
	if !ok {
		return
	}

	report, err := h.audit.ReportSecurity(c.Request.Context(), window)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to build security report")
		return
	}

	alerts := make([]gin.H, 0, len(report.Alerts))
	for _, alert := range report.Alerts {
		alerts = append(alerts, gin.H{
			"id":        alert.ID,
			"type":      alert.Type,
			"severity":  string(alert.Severity),
			"message":   alert.Message,
			"details":   alert.Details,
			"raised_at": alert.RaisedAt,
		})
	}

	bySeverity := make(map[string]int, len(report.AlertsBySev))
	for severity, count := range report.AlertsBySev {
		bySeverity[string(severity)] = count
	}

	c.JSON(http.StatusOK, gin.H{
		"window_seconds":     int(report.Window.Seconds()),
		"report_at":          report.ReportAt,
		"failed_logins":      report.FailedLogins,
		"access_denials":     report.AccessDenials,
		"rate_limit_hits":    report.RateLimitHits,
		"alerts":             alerts,
		"alerts_by_severity": bySeverity,
	})
}

// UserActivityReport returns recent audit events and the in-memory activity
// summary for a user.
func (h *AuditHandler) UserActivityReport(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "audit service unavailable"))
		return
	}

	userID := c.Param("user_id")
	window, ok := parseWindow(c, 24*time.Hour)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	report, err := h.audit.ReportUserActivity(c.Request.Context(), userID, window, limit)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to build activity report")
		return
	}

	events := make([]AuditEventPayload, 0, len(report.Events))
	for _, event := range report.Events {
		events = append(events, newAuditEventPayload(event))
	}

	recent := make([]gin.H, 0, len(report.Recent))
	for _, activity := range report.Recent {
		recent = append(recent, gin.H{
			"type":        activity.Type,
			"occurred_at": activity.OccurredAt,
			"details":     activity.Details,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":        report.UserID,
		"window_seconds": int(report.Window.Seconds()),
		"report_at":      report.ReportAt,
		"events":         events,
		"recent":         recent,
		"summary": gin.H{
			"total":   report.Summary.Total,
			"by_type": report.Summary.ByType,
			"first":   report.Summary.First,
			"last":    report.Summary.Last,
			"tracked": report.Summary.TrackedN,
		},
	})
}

// parseWindow reads the window_hours query parameter, falling back to the
// supplied default. Returns false after writing an error response.
func parseWindow(c *gin.Context, fallback time.Duration) (time.Duration, bool) {
	raw := c.Query("window_hours")
	if raw == "" {
		return fallback, true
	}

	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "window_hours must be a positive integer"))
		return 0, false
	}
	return time.Duration(hours) * time.Hour, true
}
