package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/monitor"
)

// LoginRateLimit bounds login attempts per user identifier.
type LoginRateLimit struct {
	Window      time.Duration
	MaxAttempts int
}

// AuthService orchestrates the login flow: throttling, credential
// verification, session issuance, and the audit trail around all of it.
type AuthService struct {
	passwords *PasswordService
	sessions  *SessionService
	secmon    *monitor.SecurityMonitor
	limiter   port.RateLimitStore
	audit     *AuditService
	logger    *zap.Logger
	rateLimit LoginRateLimit
	now       func() time.Time
}

func NewAuthService(passwords *PasswordService, sessions *SessionService, secmon *monitor.SecurityMonitor, limiter port.RateLimitStore, audit *AuditService, rateLimit LoginRateLimit, log *zap.Logger) *AuthService {
	if rateLimit.Window <= 0 {
		rateLimit.Window = 5 * time.Minute
	}
	if rateLimit.MaxAttempts <= 0 {
		rateLimit.MaxAttempts = 5
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		passwords: passwords,
		sessions:  sessions,
		secmon:    secmon,
		limiter:   limiter,
		audit:     audit,
		logger:    log,
		rateLimit: rateLimit,
		now:       time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// LoginInput carries the credentials and request context for Login.
type LoginInput struct {
	UserID    string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is returned on a successful login. The session token appears
// here exactly once.
type LoginResult struct {
	User      *domain.User
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// Login authenticates and issues a session. Throttling applies before
// credential verification: a locked-out identifier is rejected even when the
// password is correct, so lockouts cannot be probed away.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.checkThrottle(ctx, userID, input); err != nil {
		return nil, err
	}

	user, err := s.passwords.Authenticate(ctx, AuthenticateInput{
		UserID:    userID,
		Password:  input.Password,
		IP:        input.IP,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		// Failed-login accounting happens inside the audit pipeline; the
		// durable counter is recorded here.
		s.recordAttempt(ctx, userID)
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, CreateSessionInput{
		UserID:    user.ID,
		IP:        input.IP,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.clearFailures(ctx, userID)

	s.audit.LogEvent(ctx, AuditEntry{
		Type:      domain.EventLoginSuccess,
		UserID:    user.ID,
		SessionID: session.SessionID,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Success:   true,
	})

	return &LoginResult{
		User:      user,
		SessionID: session.SessionID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout revokes the session behind the token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	_, err := s.sessions.InvalidateSession(ctx, token, "logout")
	return err
}

// checkThrottle consults both the in-process monitor and the durable counter.
// Either one tripping blocks the attempt.
func (s *AuthService) checkThrottle(ctx context.Context, userID string, input LoginInput) error {
	if s.secmon != nil {
		if throttled, retryAfter := s.secmon.IsThrottled(userID); throttled {
			s.auditThrottled(ctx, userID, input, retryAfter)
			return &RateLimitExceededError{Scope: "login", RetryAfter: retryAfter}
		}
	}

	if s.limiter == nil {
		return nil
	}

	now := s.now().UTC()
	key := s.loginKey(userID)
	if err := s.limiter.TrimWindow(ctx, key, s.rateLimit.Window, now); err != nil {
		s.logger.Warn("login rate limit trim failed", zap.Error(err))
		return nil
	}
	count, err := s.limiter.CountAttempts(ctx, key, s.rateLimit.Window, now)
	if err != nil {
		s.logger.Warn("login rate limit count failed", zap.Error(err))
		return nil
	}
	if count < s.rateLimit.MaxAttempts {
		return nil
	}

	retryAfter := s.rateLimit.Window
	if oldest, ok, err := s.limiter.OldestAttempt(ctx, key, s.rateLimit.Window, now); err == nil && ok {
		retryAfter = oldest.Add(s.rateLimit.Window).Sub(now)
	}
	s.auditThrottled(ctx, userID, input, retryAfter)
	return &RateLimitExceededError{Scope: "login", RetryAfter: retryAfter}
}

func (s *AuthService) auditThrottled(ctx context.Context, userID string, input LoginInput, retryAfter time.Duration) {
	if s.secmon != nil {
		s.secmon.RecordRateLimitExceeded(userID, input.IP)
	}
	s.audit.LogEvent(ctx, AuditEntry{
		Type:      domain.EventRateLimitExceeded,
		UserID:    userID,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Details:   map[string]any{"scope": "login", "retry_after_seconds": int(retryAfter.Seconds())},
		Success:   false,
	})
}

func (s *AuthService) recordAttempt(ctx context.Context, userID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordAttempt(ctx, s.loginKey(userID), s.now().UTC()); err != nil {
		s.logger.Warn("login rate limit record failed", zap.Error(err))
	}
}

func (s *AuthService) clearFailures(ctx context.Context, userID string) {
	if s.secmon != nil {
		s.secmon.ClearFailures(userID)
	}
	if s.limiter != nil {
		if err := s.limiter.ClearAttempts(ctx, s.loginKey(userID)); err != nil {
			s.logger.Warn("login rate limit clear failed", zap.Error(err))
		}
	}
}

func (s *AuthService) loginKey(userID string) string {
	return "login:" + userID
}
