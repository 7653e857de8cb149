package monitor

import (
	"testing"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

func TestSecurityMonitor_FailedLoginThreshold(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewSecurityMonitor(Config{
		FailedLoginThreshold: 3,
		FailedLoginWindow:    5 * time.Minute,
	}, nil).WithClock(func() time.Time { return current })

	if alert := m.RecordFailedLogin("user-1", "203.0.113.9"); alert != nil {
		t.Fatalf("first failure must not alert")
	}
	if alert := m.RecordFailedLogin("user-1", "203.0.113.9"); alert != nil {
		t.Fatalf("second failure must not alert")
	}

	alert := m.RecordFailedLogin("user-1", "203.0.113.9")
	if alert == nil {
		t.Fatalf("third failure must raise an alert")
	}
	if alert.Type != "failed_login_burst" || alert.Severity != domain.SeverityHigh {
		t.Fatalf("unexpected alert: %+v", alert)
	}

	throttled, retryAfter := m.IsThrottled("user-1")
	if !throttled {
		t.Fatalf("expected identifier to be throttled")
	}
	if retryAfter <= 0 || retryAfter > 5*time.Minute {
		t.Fatalf("unexpected retry-after: %v", retryAfter)
	}

	if throttled, _ := m.IsThrottled("user-2"); throttled {
		t.Fatalf("other identifiers must not be throttled")
	}
}

func TestSecurityMonitor_WindowEviction(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewSecurityMonitor(Config{
		FailedLoginThreshold: 3,
		FailedLoginWindow:    5 * time.Minute,
	}, nil).WithClock(func() time.Time { return current })

	m.RecordFailedLogin("user-1", "")
	m.RecordFailedLogin("user-1", "")
	m.RecordFailedLogin("user-1", "")

	if throttled, _ := m.IsThrottled("user-1"); !throttled {
		t.Fatalf("expected throttle after threshold")
	}

	current = current.Add(6 * time.Minute)

	if throttled, _ := m.IsThrottled("user-1"); throttled {
		t.Fatalf("expected throttle to lapse after window")
	}
}

func TestSecurityMonitor_ClearFailures(t *testing.T) {
	m := NewSecurityMonitor(Config{FailedLoginThreshold: 2, FailedLoginWindow: time.Minute}, nil)

	m.RecordFailedLogin("user-1", "")
	m.RecordFailedLogin("user-1", "")

	if throttled, _ := m.IsThrottled("user-1"); !throttled {
		t.Fatalf("expected throttle before clear")
	}

	m.ClearFailures("user-1")

	if throttled, _ := m.IsThrottled("user-1"); throttled {
		t.Fatalf("expected throttle cleared")
	}
}

func TestSecurityMonitor_SuspiciousIP(t *testing.T) {
	m := NewSecurityMonitor(Config{SuspiciousIPThreshold: 3}, nil)

	for i := 0; i < 2; i++ {
		if alert := m.RecordSuspiciousIP("198.51.100.7", "scanning"); alert != nil {
			t.Fatalf("alert raised before threshold")
		}
	}

	alert := m.RecordSuspiciousIP("198.51.100.7", "scanning")
	if alert == nil {
		t.Fatalf("expected alert at threshold")
	}
	if alert.Severity != domain.SeverityCritical {
		t.Fatalf("unexpected severity: %s", alert.Severity)
	}

	// Counter resets after the alert fires.
	if alert := m.RecordSuspiciousIP("198.51.100.7", "scanning"); alert != nil {
		t.Fatalf("counter must reset after alert")
	}
}

func TestSecurityMonitor_AlertRingAndSummary(t *testing.T) {
	m := NewSecurityMonitor(Config{AlertHistorySize: 2}, nil)

	var seen []domain.SecurityAlert
	m.OnAlert(func(alert domain.SecurityAlert) {
		seen = append(seen, alert)
	})

	m.RecordRateLimitExceeded("user-1", "")
	m.RecordRateLimitExceeded("user-2", "")
	m.RecordRateLimitExceeded("user-3", "")

	alerts := m.RecentAlerts(0)
	if len(alerts) != 2 {
		t.Fatalf("expected ring capped at two alerts, got %d", len(alerts))
	}
	if alerts[0].Details["identifier"] != "user-3" {
		t.Fatalf("expected newest alert first, got %+v", alerts[0])
	}

	if len(seen) != 3 {
		t.Fatalf("expected callback for every alert, got %d", len(seen))
	}

	summary := m.AlertSummary()
	if summary[domain.SeverityMedium] != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestActivityTracker_WindowAndSummary(t *testing.T) {
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker := NewActivityTracker(3).WithClock(func() time.Time {
		current = current.Add(time.Minute)
		return current
	})

	tracker.Record("user-1", "login", nil)
	tracker.Record("user-1", "report_view", map[string]any{"report": "r-1"})
	tracker.Record("user-1", "report_view", nil)
	tracker.Record("user-1", "logout", nil)

	recent := tracker.Recent("user-1", 0)
	if len(recent) != 3 {
		t.Fatalf("expected window of three entries, got %d", len(recent))
	}
	if recent[0].Type != "logout" {
		t.Fatalf("expected newest entry first, got %s", recent[0].Type)
	}

	summary := tracker.Summary("user-1")
	if summary.Total != 3 {
		t.Fatalf("expected three tracked entries, got %d", summary.Total)
	}
	if summary.ByType["report_view"] != 2 || summary.ByType["login"] != 0 {
		t.Fatalf("unexpected summary: %+v", summary.ByType)
	}
	if !summary.Last.After(summary.First) {
		t.Fatalf("expected ordered window bounds")
	}

	if got := tracker.Recent("user-2", 0); got != nil {
		t.Fatalf("expected no activity for unknown user")
	}
}
