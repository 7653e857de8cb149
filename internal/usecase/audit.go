package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/logger"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/monitor"
)

// AuditHook observes audit events after they are recorded. Hooks run
// synchronously; a panicking hook is recovered and logged, never propagated.
type AuditHook func(event domain.AuditEvent)

// AuditEntry is the write-side input to the audit pipeline. Zero-value
// optional fields are stored as NULL.
type AuditEntry struct {
	Type         domain.EventType
	Severity     domain.Severity
	UserID       string
	SessionID    string
	IP           string
	UserAgent    string
	Resource     string
	Action       string
	Details      map[string]any
	Success      bool
	ErrorMessage string
}

// AuditService records security-relevant events and feeds the in-process
// trackers. Recording is best-effort end to end: a failing audit write is
// logged and swallowed so it can never break the business operation that
// produced it.
type AuditService struct {
	repo    port.AuditRepository
	tracker *monitor.ActivityTracker
	secmon  *monitor.SecurityMonitor
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time

	hooksMu sync.RWMutex
	hooks   []AuditHook
}

// NewAuditService constructs the audit pipeline. tracker, secmon, and events
// are optional; a nil component simply drops out of the pipeline.
func NewAuditService(repo port.AuditRepository, tracker *monitor.ActivityTracker, secmon *monitor.SecurityMonitor, events port.EventPublisher, log *zap.Logger) *AuditService {
	if log == nil {
		log = zap.NewNop()
	}

	s := &AuditService{
		repo:    repo,
		tracker: tracker,
		secmon:  secmon,
		events:  events,
		logger:  log,
		now:     time.Now,
	}

	if secmon != nil {
		secmon.OnAlert(func(alert domain.SecurityAlert) {
			s.recordAlert(context.Background(), alert)
		})
	}

	return s
}

// WithClock allows tests to override the clock used by the service.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RegisterHook adds an observer invoked for every recorded event.
func (s *AuditService) RegisterHook(hook AuditHook) {
	if hook == nil {
		return
	}
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hooksMu.Unlock()
}

// LogEvent records an audit event. It never returns an error; persistence
// failures degrade to a log line so auth flows stay available when the audit
// store is not.
func (s *AuditService) LogEvent(ctx context.Context, entry AuditEntry) domain.AuditEvent {
	event := s.buildEvent(entry)

	s.persist(ctx, event)
	s.track(event)
	s.runHooks(event)
	return event
}

// buildEvent fills identifiers and defaults. ULIDs keep insertion order
// sortable without a database sequence.
func (s *AuditService) buildEvent(entry AuditEntry) domain.AuditEvent {
	severity := entry.Severity
	if severity == "" {
		severity = defaultSeverity(entry.Type, entry.Success)
	}

	return domain.AuditEvent{
		ID:           ulid.Make().String(),
		Type:         entry.Type,
		Severity:     severity,
		UserID:       stringPtrOrNil(entry.UserID),
		SessionID:    stringPtrOrNil(entry.SessionID),
		IP:           stringPtrOrNil(entry.IP),
		UserAgent:    stringPtrOrNil(entry.UserAgent),
		Resource:     stringPtrOrNil(entry.Resource),
		Action:       stringPtrOrNil(entry.Action),
		Details:      metadataCopy(entry.Details),
		Success:      entry.Success,
		ErrorMessage: stringPtrOrNil(entry.ErrorMessage),
		CreatedAt:    s.now().UTC(),
	}
}

func (s *AuditService) persist(ctx context.Context, event domain.AuditEvent) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger.Error("audit event write failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// track feeds the in-memory trackers. Failed logins and security events
// advance the monitor counters; the alert callback wired in the constructor
// closes the loop back into the audit log.
func (s *AuditService) track(event domain.AuditEvent) {
	if s.tracker != nil && event.UserID != nil {
		s.tracker.Record(*event.UserID, string(event.Type), event.Details)
	}

	if s.secmon == nil {
		return
	}

	ip := ""
	if event.IP != nil {
		ip = *event.IP
	}

	switch event.Type {
	case domain.EventLoginFailed:
		identifier := ""
		if event.UserID != nil {
			identifier = *event.UserID
		}
		if identifier == "" {
			identifier = ip
		}
		if identifier != "" {
			s.secmon.RecordFailedLogin(identifier, ip)
		}
	case domain.EventSecurityViolation, domain.EventSuspiciousActivity:
		s.secmon.RecordSuspiciousIP(ip, string(event.Type))
	}
}

func (s *AuditService) runHooks(event domain.AuditEvent) {
	s.hooksMu.RLock()
	hooks := s.hooks
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("audit hook panicked",
						zap.String("event_id", event.ID),
						zap.Any("panic", r),
					)
				}
			}()
			hook(event)
		}()
	}
}

// recordAlert turns a monitor alert into an audit row and an outbound event.
// It writes through persist directly, bypassing track, so an alert can never
// retrigger the monitor.
func (s *AuditService) recordAlert(ctx context.Context, alert domain.SecurityAlert) {
	details := metadataCopy(alert.Details)
	if details == nil {
		details = make(map[string]any, 2)
	}
	details["alert_id"] = alert.ID
	details["alert_type"] = alert.Type

	event := domain.AuditEvent{
		ID:           ulid.Make().String(),
		Type:         domain.EventSuspiciousActivity,
		Severity:     alert.Severity,
		Details:      details,
		Success:      false,
		ErrorMessage: stringPtrOrNil(alert.Message),
		CreatedAt:    s.now().UTC(),
	}
	if identifier, ok := alert.Details["identifier"].(string); ok {
		event.UserID = stringPtrOrNil(identifier)
	}
	if ip, ok := alert.Details["ip"].(string); ok {
		event.IP = stringPtrOrNil(ip)
	}

	s.persist(ctx, event)
	s.runHooks(event)

	if s.events != nil {
		err := s.events.PublishSecurityAlert(ctx, domain.SecurityAlertEvent{
			EventID:   uuid.NewString(),
			AlertID:   alert.ID,
			AlertType: alert.Type,
			Severity:  alert.Severity,
			Message:   alert.Message,
			Details:   metadataCopy(alert.Details),
			RaisedAt:  alert.RaisedAt,
		})
		if err != nil {
			s.logger.Warn("publish security alert failed", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	s.logger.Warn("security alert recorded",
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", alert.Type),
		zap.String("severity", string(alert.Severity)),
		zap.String("ip", logger.MaskIP(valueOrEmpty(event.IP))),
	)
}

// Events queries the audit log.
func (s *AuditService) Events(ctx context.Context, filter port.AuditFilter) ([]domain.AuditEvent, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit repository not configured")
	}
	return s.repo.List(ctx, filter)
}

// UserActivityReport combines the durable audit trail with the in-memory
// activity window for one user.
type UserActivityReport struct {
	UserID   string
	Events   []domain.AuditEvent
	Recent   []domain.Activity
	Summary  monitor.ActivitySummary
	Window   time.Duration
	ReportAt time.Time
}

// ReportUserActivity builds an activity report for the user covering the
// supplied window.
func (s *AuditService) ReportUserActivity(ctx context.Context, userID string, window time.Duration, limit int) (*UserActivityReport, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}

	now := s.now().UTC()
	events, err := s.Events(ctx, port.AuditFilter{
		UserID: userID,
		Since:  now.Add(-window),
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list user events: %w", err)
	}

	report := &UserActivityReport{
		UserID:   userID,
		Events:   events,
		Window:   window,
		ReportAt: now,
	}
	if s.tracker != nil {
		report.Recent = s.tracker.Recent(userID, limit)
		report.Summary = s.tracker.Summary(userID)
	}
	return report, nil
}

// SecurityReport summarizes security posture over a window.
type SecurityReport struct {
	Window        time.Duration
	ReportAt      time.Time
	FailedLogins  int
	AccessDenials int
	RateLimitHits int
	Alerts        []domain.SecurityAlert
	AlertsBySev   map[domain.Severity]int
}

// ReportSecurity aggregates failure counts from the audit log and the
// retained alert history.
func (s *AuditService) ReportSecurity(ctx context.Context, window time.Duration) (*SecurityReport, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	now := s.now().UTC()
	report := &SecurityReport{
		Window:   window,
		ReportAt: now,
	}

	counts := []struct {
		eventType domain.EventType
		target    *int
	}{
		{domain.EventLoginFailed, &report.FailedLogins},
		{domain.EventAccessDenied, &report.AccessDenials},
		{domain.EventRateLimitExceeded, &report.RateLimitHits},
	}
	for _, c := range counts {
		events, err := s.Events(ctx, port.AuditFilter{Type: c.eventType, Since: now.Add(-window)})
		if err != nil {
			return nil, fmt.Errorf("list %s events: %w", c.eventType, err)
		}
		*c.target = len(events)
	}

	if s.secmon != nil {
		report.Alerts = s.secmon.RecentAlerts(0)
		report.AlertsBySev = s.secmon.AlertSummary()
	}
	return report, nil
}

func defaultSeverity(eventType domain.EventType, success bool) domain.Severity {
	switch eventType {
	case domain.EventSecurityViolation, domain.EventSuspiciousActivity, domain.EventAccountLocked:
		return domain.SeverityHigh
	case domain.EventLoginFailed, domain.EventAccessDenied, domain.EventRateLimitExceeded:
		return domain.SeverityMedium
	case domain.EventPermissionChange, domain.EventRoleChange, domain.EventUserDelete, domain.EventAdminAction, domain.EventConfigChange:
		return domain.SeverityMedium
	default:
		if !success {
			return domain.SeverityMedium
		}
		return domain.SeverityLow
	}
}

func valueOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
