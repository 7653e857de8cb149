package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/monitor"
)

func TestAuditServiceLogEvent(t *testing.T) {
	repo := &auditRepoMock{}
	svc := NewAuditService(repo, nil, nil, nil, nil)

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	event := svc.LogEvent(context.Background(), AuditEntry{
		Type:    domain.EventLoginSuccess,
		UserID:  "alice",
		IP:      "10.0.0.1",
		Success: true,
	})

	if event.ID == "" {
		t.Fatalf("event id not assigned")
	}
	if event.Severity != domain.SeverityLow {
		t.Fatalf("severity = %q, want low", event.Severity)
	}
	if !event.CreatedAt.Equal(fixed) {
		t.Fatalf("created at = %v, want %v", event.CreatedAt, fixed)
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(repo.events))
	}
	stored := repo.events[0]
	if stored.UserID == nil || *stored.UserID != "alice" {
		t.Fatalf("user id not persisted")
	}
	if stored.SessionID != nil {
		t.Fatalf("empty session id should persist as NULL")
	}
}

func TestAuditServiceDefaultSeverity(t *testing.T) {
	cases := []struct {
		eventType domain.EventType
		success   bool
		want      domain.Severity
	}{
		{domain.EventLoginSuccess, true, domain.SeverityLow},
		{domain.EventLoginFailed, false, domain.SeverityMedium},
		{domain.EventAccessDenied, false, domain.SeverityMedium},
		{domain.EventRoleChange, true, domain.SeverityMedium},
		{domain.EventSecurityViolation, false, domain.SeverityHigh},
		{domain.EventSuspiciousActivity, false, domain.SeverityHigh},
		{domain.EventAccountLocked, false, domain.SeverityHigh},
		{domain.EventDataRead, true, domain.SeverityLow},
		{domain.EventDataRead, false, domain.SeverityMedium},
	}
	for _, tc := range cases {
		if got := defaultSeverity(tc.eventType, tc.success); got != tc.want {
			t.Errorf("defaultSeverity(%s, %v) = %q, want %q", tc.eventType, tc.success, got, tc.want)
		}
	}
}

func TestAuditServiceLogEventSurvivesRepoFailure(t *testing.T) {
	repo := &auditRepoMock{insertErr: errStoreDown}
	svc := NewAuditService(repo, nil, nil, nil, nil)

	event := svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLogout, UserID: "alice", Success: true})
	if event.ID == "" {
		t.Fatalf("event should still be built when persistence fails")
	}
}

func TestAuditServiceFeedsActivityTracker(t *testing.T) {
	tracker := monitor.NewActivityTracker(10)
	svc := NewAuditService(&auditRepoMock{}, tracker, nil, nil, nil)

	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginSuccess, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventDataRead, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginFailed, Success: false})

	recent := tracker.Recent("alice", 10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 tracked activities, got %d", len(recent))
	}
	// Newest first.
	if recent[0].Type != string(domain.EventDataRead) {
		t.Fatalf("unexpected activity order: %+v", recent)
	}
}

func TestAuditServiceFailedLoginsRaiseAlert(t *testing.T) {
	repo := &auditRepoMock{}
	events := &publisherMock{}
	secmon := monitor.NewSecurityMonitor(monitor.Config{
		FailedLoginThreshold:  3,
		FailedLoginWindow:     5 * time.Minute,
		SuspiciousIPThreshold: 10,
		AlertHistorySize:      10,
	}, nil)
	svc := NewAuditService(repo, nil, secmon, events, nil)

	for i := 0; i < 3; i++ {
		svc.LogEvent(context.Background(), AuditEntry{
			Type:    domain.EventLoginFailed,
			UserID:  "alice",
			IP:      "10.0.0.1",
			Success: false,
		})
	}

	// Three failed logins plus the alert's own audit row.
	if len(repo.events) != 4 {
		t.Fatalf("expected 4 persisted events, got %d", len(repo.events))
	}

	alerts := repo.byType(domain.EventSuspiciousActivity)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert audit row, got %d", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityHigh {
		t.Fatalf("alert severity = %q, want high", alerts[0].Severity)
	}
	if alerts[0].UserID == nil || *alerts[0].UserID != "alice" {
		t.Fatalf("alert should carry the identifier: %+v", alerts[0])
	}

	if len(events.alerts) != 1 {
		t.Fatalf("expected 1 published alert, got %d", len(events.alerts))
	}
	if events.alerts[0].AlertType != "failed_login_burst" {
		t.Fatalf("unexpected alert type %q", events.alerts[0].AlertType)
	}
}

func TestAuditServiceHooks(t *testing.T) {
	svc := NewAuditService(&auditRepoMock{}, nil, nil, nil, nil)

	var seen []domain.AuditEvent
	svc.RegisterHook(func(event domain.AuditEvent) {
		seen = append(seen, event)
	})
	svc.RegisterHook(func(domain.AuditEvent) {
		panic("hook gone wrong")
	})

	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLogout, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLogout, UserID: "alice", Success: true})

	// The panicking hook must not stop delivery to the healthy one.
	if len(seen) != 2 {
		t.Fatalf("hook saw %d events, want 2", len(seen))
	}
}

func TestAuditServiceReportUserActivity(t *testing.T) {
	repo := &auditRepoMock{}
	tracker := monitor.NewActivityTracker(10)
	svc := NewAuditService(repo, tracker, nil, nil, nil)

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginSuccess, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventDataRead, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginSuccess, UserID: "bob", Success: true})

	report, err := svc.ReportUserActivity(context.Background(), "alice", time.Hour, 50)
	if err != nil {
		t.Fatalf("ReportUserActivity returned error: %v", err)
	}
	if len(report.Events) != 2 {
		t.Fatalf("expected 2 events for alice, got %d", len(report.Events))
	}
	if len(report.Recent) != 2 {
		t.Fatalf("expected 2 recent activities, got %d", len(report.Recent))
	}
	if report.Summary.Total != 2 {
		t.Fatalf("summary total = %d, want 2", report.Summary.Total)
	}
	if !report.ReportAt.Equal(fixed) {
		t.Fatalf("report at = %v, want %v", report.ReportAt, fixed)
	}

	if _, err := svc.ReportUserActivity(context.Background(), "", time.Hour, 50); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestAuditServiceReportSecurity(t *testing.T) {
	repo := &auditRepoMock{}
	secmon := monitor.NewSecurityMonitor(monitor.Config{
		FailedLoginThreshold:  2,
		FailedLoginWindow:     5 * time.Minute,
		SuspiciousIPThreshold: 10,
		AlertHistorySize:      10,
	}, nil)
	svc := NewAuditService(repo, nil, secmon, nil, nil)

	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginFailed, UserID: "alice", Success: false})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginFailed, UserID: "alice", Success: false})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventAccessDenied, UserID: "bob", Resource: "reports", Action: "delete", Success: false})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventRateLimitExceeded, UserID: "carol", Success: false})

	report, err := svc.ReportSecurity(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("ReportSecurity returned error: %v", err)
	}
	if report.FailedLogins != 2 {
		t.Fatalf("failed logins = %d, want 2", report.FailedLogins)
	}
	if report.AccessDenials != 1 {
		t.Fatalf("access denials = %d, want 1", report.AccessDenials)
	}
	if report.RateLimitHits != 1 {
		t.Fatalf("rate limit hits = %d, want 1", report.RateLimitHits)
	}
	if len(report.Alerts) != 1 {
		t.Fatalf("expected 1 retained alert, got %d", len(report.Alerts))
	}
	if report.AlertsBySev[domain.SeverityHigh] != 1 {
		t.Fatalf("unexpected severity summary: %+v", report.AlertsBySev)
	}
}

func TestAuditServiceEventsFilter(t *testing.T) {
	repo := &auditRepoMock{}
	svc := NewAuditService(repo, nil, nil, nil, nil)

	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginSuccess, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLogout, UserID: "alice", Success: true})
	svc.LogEvent(context.Background(), AuditEntry{Type: domain.EventLoginSuccess, UserID: "bob", Success: true})

	events, err := svc.Events(context.Background(), port.AuditFilter{UserID: "alice", Type: domain.EventLoginSuccess})
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(events))
	}
}
