package domain

import "time"

// SecurityAlertEvent is published when the security monitor raises an alert.
type SecurityAlertEvent struct {
	EventID   string
	AlertID   string
	AlertType string
	Severity  Severity
	Message   string
	Details   map[string]any
	RaisedAt  time.Time
}

// SessionRevokedEvent is published when one or more sessions are terminated
// before their natural expiry.
type SessionRevokedEvent struct {
	EventID   string
	UserID    string
	SessionID string
	Reason    string
	Count     int
	RevokedAt time.Time
}

// PasswordResetCompletedEvent is published after a reset token is consumed and
// the account password replaced.
type PasswordResetCompletedEvent struct {
	EventID         string
	UserID          string
	SessionsRevoked int
	CompletedAt     time.Time
}

// RoleAssignmentChangedEvent is published when a user gains or loses a role.
type RoleAssignmentChangedEvent struct {
	EventID   string
	UserID    string
	RoleName  string
	Assigned  bool
	ActorID   string
	ChangedAt time.Time
}
