package domain

import "time"

// EventType enumerates the audit event taxonomy.
type EventType string

const (
	// Authentication events
	EventLoginSuccess   EventType = "login_success"
	EventLoginFailed    EventType = "login_failed"
	EventLogout         EventType = "logout"
	EventPasswordChange EventType = "password_change"
	EventAccountLocked  EventType = "account_locked"

	// Authorization events
	EventAccessGranted    EventType = "access_granted"
	EventAccessDenied     EventType = "access_denied"
	EventPermissionChange EventType = "permission_change"
	EventRoleChange       EventType = "role_change"

	// Data events
	EventDataCreate EventType = "data_create"
	EventDataRead   EventType = "data_read"
	EventDataUpdate EventType = "data_update"
	EventDataDelete EventType = "data_delete"

	// System events
	EventSystemStart  EventType = "system_start"
	EventSystemStop   EventType = "system_stop"
	EventConfigChange EventType = "config_change"

	// Security events
	EventSecurityViolation  EventType = "security_violation"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventSuspiciousActivity EventType = "suspicious_activity"

	// Admin events
	EventUserCreate  EventType = "user_create"
	EventUserUpdate  EventType = "user_update"
	EventUserDelete  EventType = "user_delete"
	EventAdminAction EventType = "admin_action"
)

// Severity grades audit events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AuditEvent is an immutable, append-only record of a security-relevant
// action. Rows are never updated or deleted by normal operation.
type AuditEvent struct {
	ID           string
	Type         EventType
	Severity     Severity
	UserID       *string
	SessionID    *string
	IP           *string
	UserAgent    *string
	Resource     *string
	Action       *string
	Details      map[string]any
	Success      bool
	ErrorMessage *string
	CreatedAt    time.Time
}

// SecurityAlert is a derived signal emitted when a monitored counter crosses
// its configured threshold. Alerts are in-memory and log-only; they are not a
// first-class persisted entity.
type SecurityAlert struct {
	ID       string
	Type     string
	Severity Severity
	Message  string
	Details  map[string]any
	RaisedAt time.Time
}

// Activity is a single entry in a user's bounded recent-activity window.
type Activity struct {
	Type       string
	OccurredAt time.Time
	Details    map[string]any
}
