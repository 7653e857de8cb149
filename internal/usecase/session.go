package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/security"
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

var (
	// ErrSessionInvalid is returned for unknown or revoked session tokens.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired is returned when the token resolves to a session past
	// its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// DefaultSessionTTL applies when configuration does not override it.
const DefaultSessionTTL = 24 * time.Hour

// SessionService issues and validates opaque bearer session tokens.
type SessionService struct {
	sessions port.SessionRepository
	events   port.EventPublisher
	audit    *AuditService
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionService(sessions port.SessionRepository, events port.EventPublisher, audit *AuditService, ttl time.Duration, log *zap.Logger) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &SessionService{
		sessions: sessions,
		events:   events,
		audit:    audit,
		logger:   log,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateSessionInput carries request context for CreateSession.
type CreateSessionInput struct {
	UserID    string
	IP        string
	UserAgent string
}

// CreateSessionResult returns the raw token exactly once. Only its hash is
// stored.
type CreateSessionResult struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// CreateSession mints a new opaque token and persists its hash.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*CreateSessionResult, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	token, err := security.GenerateSecureToken(security.SessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		TokenHash:    security.HashToken(token),
		CreatedAt:    now,
		LastAccessed: now,
		ExpiresAt:    now.Add(s.ttl),
		IsActive:     true,
		IP:           stringPtrOrNil(input.IP),
		UserAgent:    stringPtrOrNil(input.UserAgent),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &CreateSessionResult{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// ValidateSession resolves a raw token to its session context. Valid lookups
// slide the last-accessed stamp; expiry stays fixed.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*domain.SessionContext, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	now := s.now().UTC()
	if !session.IsActive {
		return nil, ErrSessionInvalid
	}
	if !session.Usable(now) {
		return nil, ErrSessionExpired
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		s.logger.Warn("session touch failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	return &domain.SessionContext{
		SessionID:    session.ID,
		UserID:       session.UserID,
		ExpiresAt:    session.ExpiresAt,
		LastAccessed: now,
	}, nil
}

// RefreshSession extends a still-valid session by a full TTL measured from
// now, not from the previous expiry.
func (s *SessionService) RefreshSession(ctx context.Context, token string) (*CreateSessionResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	now := s.now().UTC()
	if !session.IsActive {
		return nil, ErrSessionInvalid
	}
	if !session.Usable(now) {
		return nil, ErrSessionExpired
	}

	expiresAt := now.Add(s.ttl)
	if err := s.sessions.UpdateExpiry(ctx, session.ID, expiresAt, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	return &CreateSessionResult{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// InvalidateSession revokes the session behind the token and reports whether
// a live session was actually revoked. Revoking an already inactive or
// unknown token is not an error.
func (s *SessionService) InvalidateSession(ctx context.Context, token, reason string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, ErrSessionInvalid
	}

	tokenHash := security.HashToken(token)
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup session: %w", err)
	}

	revoked, err := s.sessions.Deactivate(ctx, tokenHash)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	if revoked {
		s.publishRevoked(ctx, session.UserID, session.ID, reason, 1)
		if s.audit != nil {
			s.audit.LogEvent(ctx, AuditEntry{
				Type:      domain.EventLogout,
				UserID:    session.UserID,
				SessionID: session.ID,
				Details:   map[string]any{"reason": reason},
				Success:   true,
			})
		}
	}
	return revoked, nil
}

// InvalidateAllForUser revokes every active session the user holds and
// returns how many were revoked.
func (s *SessionService) InvalidateAllForUser(ctx context.Context, userID, reason string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	count, err := s.sessions.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", err)
	}
	if count > 0 {
		s.publishRevoked(ctx, userID, "", reason, count)
	}
	return count, nil
}

// CleanupExpired deactivates sessions whose expiry has passed. Intended for a
// periodic background sweep.
func (s *SessionService) CleanupExpired(ctx context.Context) (int, error) {
	count, err := s.sessions.DeactivateExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	if count > 0 {
		s.logger.Info("expired sessions deactivated", zap.Int("count", count))
	}
	return count, nil
}

// ListUserSessions returns the user's active, unexpired sessions, most
// recently used first.
func (s *SessionService) ListUserSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, userID, sessionID, reason string, count int) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
		Count:     count,
		RevokedAt: s.now().UTC(),
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked event failed", zap.String("user_id", userID), zap.Error(err))
	}
}
