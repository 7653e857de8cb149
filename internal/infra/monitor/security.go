package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// Config tunes the security monitor thresholds.
type Config struct {
	// FailedLoginThreshold raises an alert and throttles once this many
	// failures land inside FailedLoginWindow for one identifier.
	FailedLoginThreshold int
	FailedLoginWindow    time.Duration
	// SuspiciousIPThreshold raises an alert once a single address
	// accumulates this many suspicion marks.
	SuspiciousIPThreshold int
	// AlertHistorySize bounds the in-memory alert ring.
	AlertHistorySize int
}

// DefaultConfig mirrors the platform production thresholds.
func DefaultConfig() Config {
	return Config{
		FailedLoginThreshold:  5,
		FailedLoginWindow:     5 * time.Minute,
		SuspiciousIPThreshold: 10,
		AlertHistorySize:      1000,
	}
}

// SecurityMonitor watches authentication failure patterns in process and
// raises alerts when thresholds are crossed. State is per instance and not
// shared across replicas; the Redis attempt store provides the durable
// cross-replica counters.
type SecurityMonitor struct {
	mu sync.Mutex

	cfg      Config
	failures map[string][]time.Time
	ipMarks  map[string]int
	alerts   []domain.SecurityAlert

	now     func() time.Time
	onAlert func(domain.SecurityAlert)
	logger  *zap.Logger
}

func NewSecurityMonitor(cfg Config, logger *zap.Logger) *SecurityMonitor {
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = DefaultConfig().FailedLoginThreshold
	}
	if cfg.FailedLoginWindow <= 0 {
		cfg.FailedLoginWindow = DefaultConfig().FailedLoginWindow
	}
	if cfg.SuspiciousIPThreshold <= 0 {
		cfg.SuspiciousIPThreshold = DefaultConfig().SuspiciousIPThreshold
	}
	if cfg.AlertHistorySize <= 0 {
		cfg.AlertHistorySize = DefaultConfig().AlertHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SecurityMonitor{
		cfg:      cfg,
		failures: make(map[string][]time.Time),
		ipMarks:  make(map[string]int),
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source. Test hook.
func (m *SecurityMonitor) WithClock(now func() time.Time) *SecurityMonitor {
	if now != nil {
		m.now = now
	}
	return m
}

// OnAlert registers a callback invoked synchronously for every raised alert.
// Callbacks must not call back into the monitor.
func (m *SecurityMonitor) OnAlert(fn func(domain.SecurityAlert)) {
	m.mu.Lock()
	m.onAlert = fn
	m.mu.Unlock()
}

// RecordFailedLogin notes a failed attempt for the identifier. When the
// window threshold is crossed an alert is raised and returned; callers feed
// it into the audit pipeline.
func (m *SecurityMonitor) RecordFailedLogin(identifier, ip string) *domain.SecurityAlert {
	now := m.now()

	m.mu.Lock()
	attempts := m.evictLocked(identifier, now)
	attempts = append(attempts, now)
	m.failures[identifier] = attempts
	crossed := len(attempts) == m.cfg.FailedLoginThreshold
	m.mu.Unlock()

	if !crossed {
		return nil
	}

	alert := m.raise("failed_login_burst", domain.SeverityHigh,
		fmt.Sprintf("%d failed logins within %s", m.cfg.FailedLoginThreshold, m.cfg.FailedLoginWindow),
		map[string]any{
			"identifier": identifier,
			"ip":         ip,
			"window":     m.cfg.FailedLoginWindow.String(),
		})
	return &alert
}

// RecordSuspiciousIP marks an address as suspicious. Once the mark count
// crosses the threshold an alert is raised and the counter resets.
func (m *SecurityMonitor) RecordSuspiciousIP(ip, reason string) *domain.SecurityAlert {
	if ip == "" {
		return nil
	}

	m.mu.Lock()
	m.ipMarks[ip]++
	crossed := m.ipMarks[ip] >= m.cfg.SuspiciousIPThreshold
	if crossed {
		delete(m.ipMarks, ip)
	}
	m.mu.Unlock()

	if !crossed {
		return nil
	}

	alert := m.raise("suspicious_ip", domain.SeverityCritical,
		fmt.Sprintf("address exceeded %d suspicion marks", m.cfg.SuspiciousIPThreshold),
		map[string]any{
			"ip":     ip,
			"reason": reason,
		})
	return &alert
}

// RecordRateLimitExceeded raises a medium alert for an identifier that hit
// a hard rate limit.
func (m *SecurityMonitor) RecordRateLimitExceeded(identifier, ip string) domain.SecurityAlert {
	return m.raise("rate_limit_exceeded", domain.SeverityMedium,
		"request rejected by rate limiter",
		map[string]any{
			"identifier": identifier,
			"ip":         ip,
		})
}

// IsThrottled reports whether the identifier has reached the failure
// threshold inside the active window, and how long until the oldest failure
// leaves the window.
func (m *SecurityMonitor) IsThrottled(identifier string) (bool, time.Duration) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := m.evictLocked(identifier, now)
	if len(attempts) < m.cfg.FailedLoginThreshold {
		return false, 0
	}

	retryAfter := attempts[0].Add(m.cfg.FailedLoginWindow).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return true, retryAfter
}

// ClearFailures forgets the identifier's failure history, typically after a
// successful authentication.
func (m *SecurityMonitor) ClearFailures(identifier string) {
	m.mu.Lock()
	delete(m.failures, identifier)
	m.mu.Unlock()
}

// RecentAlerts returns up to limit alerts, newest first. limit <= 0 returns
// all retained alerts.
func (m *SecurityMonitor) RecentAlerts(limit int) []domain.SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.alerts) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}

	out := make([]domain.SecurityAlert, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.alerts[len(m.alerts)-1-i]
	}
	return out
}

// AlertSummary counts retained alerts by severity.
func (m *SecurityMonitor) AlertSummary() map[domain.Severity]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := make(map[domain.Severity]int, 4)
	for _, alert := range m.alerts {
		summary[alert.Severity]++
	}
	return summary
}

// evictLocked drops failures outside the window. Callers hold m.mu.
func (m *SecurityMonitor) evictLocked(identifier string, now time.Time) []time.Time {
	attempts := m.failures[identifier]
	cutoff := now.Add(-m.cfg.FailedLoginWindow)

	idx := 0
	for idx < len(attempts) && !attempts[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		attempts = attempts[idx:]
		if len(attempts) == 0 {
			delete(m.failures, identifier)
		} else {
			m.failures[identifier] = attempts
		}
	}
	return attempts
}

func (m *SecurityMonitor) raise(alertType string, severity domain.Severity, message string, details map[string]any) domain.SecurityAlert {
	alert := domain.SecurityAlert{
		ID:       ulid.Make().String(),
		Type:     alertType,
		Severity: severity,
		Message:  message,
		Details:  details,
		RaisedAt: m.now(),
	}

	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	if len(m.alerts) > m.cfg.AlertHistorySize {
		m.alerts = m.alerts[len(m.alerts)-m.cfg.AlertHistorySize:]
	}
	callback := m.onAlert
	m.mu.Unlock()

	m.logger.Warn("security alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", alert.Type),
		zap.String("severity", string(alert.Severity)),
	)

	if callback != nil {
		callback(alert)
	}
	return alert
}
