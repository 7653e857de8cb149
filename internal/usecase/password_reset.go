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
	// ErrResetTokenInvalid is returned for unknown or already-used tokens.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrResetTokenExpired is returned for tokens past their expiry.
	ErrResetTokenExpired = errors.New("reset token expired")
)

// DefaultResetTokenTTL applies when configuration does not override it.
const DefaultResetTokenTTL = time.Hour

// ResetRateLimit bounds reset token issuance per user.
type ResetRateLimit struct {
	Window      time.Duration
	MaxAttempts int
}

// ResetService manages the password reset token lifecycle. Tokens are
// single-use and at most one unused token exists per user at a time.
type ResetService struct {
	tokens    port.TokenRepository
	users     port.UserRepository
	uow       port.UnitOfWork
	sessions  *SessionService
	passwords *PasswordService
	limiter   port.RateLimitStore
	events    port.EventPublisher
	audit     *AuditService
	logger    *zap.Logger
	ttl       time.Duration
	rateLimit ResetRateLimit
	now       func() time.Time
}

func NewResetService(
	tokens port.TokenRepository,
	users port.UserRepository,
	uow port.UnitOfWork,
	sessions *SessionService,
	passwords *PasswordService,
	limiter port.RateLimitStore,
	events port.EventPublisher,
	audit *AuditService,
	ttl time.Duration,
	rateLimit ResetRateLimit,
	log *zap.Logger,
) *ResetService {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	if rateLimit.Window <= 0 {
		rateLimit.Window = 5 * time.Minute
	}
	if rateLimit.MaxAttempts <= 0 {
		rateLimit.MaxAttempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &ResetService{
		tokens:    tokens,
		users:     users,
		uow:       uow,
		sessions:  sessions,
		passwords: passwords,
		limiter:   limiter,
		events:    events,
		audit:     audit,
		logger:    log,
		ttl:       ttl,
		rateLimit: rateLimit,
		now:       time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *ResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateResetTokenResult returns the raw token exactly once; only its hash is
// stored.
type CreateResetTokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// CreateResetToken issues a fresh reset token for the user, invalidating any
// prior unused token first.
func (s *ResetService) CreateResetToken(ctx context.Context, userID string) (*CreateResetTokenResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now().UTC()
	if err := s.enforceRateLimit(ctx, userID, now); err != nil {
		return nil, err
	}

	token, err := security.GenerateSecureToken(security.SessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	record := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: security.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	// Rotation is atomic: a failed insert must not leave the user with the
	// prior token destroyed.
	var invalidated int
	err = s.uow.WithinTx(ctx, func(tx port.RepositorySet) error {
		count, err := tx.Tokens.InvalidateUnusedForUser(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("invalidate prior tokens: %w", err)
		}
		invalidated = count
		if err := tx.Tokens.Create(ctx, record); err != nil {
			return fmt.Errorf("store reset token: %w", err)
		}
		return nil
	})
	if err != nil {
		s.audit.LogEvent(ctx, AuditEntry{
			Type:         domain.EventPasswordChange,
			UserID:       userID,
			Details:      map[string]any{"via": "reset_request"},
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, fmt.Errorf("rotate reset token: %w", err)
	}
	if invalidated > 0 {
		s.logger.Info("prior reset tokens invalidated", zap.String("user_id", userID), zap.Int("count", invalidated))
	}

	s.recordRateLimitAttempt(ctx, userID, now)

	return &CreateResetTokenResult{Token: token, ExpiresAt: record.ExpiresAt}, nil
}

// ValidateResetToken checks a token without consuming it and returns the
// owning user id.
func (s *ResetService) ValidateResetToken(ctx context.Context, token string) (string, error) {
	record, err := s.lookup(ctx, token)
	if err != nil {
		return "", err
	}
	return record.UserID, nil
}

// CompleteResetInput carries request context for CompleteReset.
type CompleteResetInput struct {
	Token       string
	NewPassword string
	IP          string
	UserAgent   string
}

// CompleteReset consumes the token, replaces the password, and revokes every
// session the user holds. Token consumption is atomic; concurrent redeemers
// cannot both succeed.
func (s *ResetService) CompleteReset(ctx context.Context, input CompleteResetInput) error {
	record, err := s.lookup(ctx, input.Token)
	if err != nil {
		return err
	}

	hash, err := s.passwords.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	consumed, err := s.tokens.MarkUsed(ctx, record.TokenHash, now)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !consumed {
		// Lost the race, or the token aged out between lookup and consume.
		return ErrResetTokenInvalid
	}

	if err := s.users.UpdatePasswordHash(ctx, record.UserID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.sessions.InvalidateAllForUser(ctx, record.UserID, "password_reset")
	if err != nil {
		s.logger.Warn("session revocation after reset failed", zap.String("user_id", record.UserID), zap.Error(err))
	}

	s.audit.LogEvent(ctx, AuditEntry{
		Type:      domain.EventPasswordChange,
		UserID:    record.UserID,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Details:   map[string]any{"via": "reset_token", "sessions_revoked": revoked},
		Success:   true,
	})

	s.publishCompleted(ctx, record.UserID, revoked, now)
	return nil
}

// CleanupExpired deletes reset tokens past expiry. Intended for a periodic
// background sweep.
func (s *ResetService) CleanupExpired(ctx context.Context) (int, error) {
	count, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup reset tokens: %w", err)
	}
	if count > 0 {
		s.logger.Info("expired reset tokens deleted", zap.Int("count", count))
	}
	return count, nil
}

func (s *ResetService) lookup(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrResetTokenInvalid
	}

	record, err := s.tokens.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}

	now := s.now().UTC()
	if record.IsUsed {
		return nil, ErrResetTokenInvalid
	}
	if !record.Redeemable(now) {
		return nil, ErrResetTokenExpired
	}
	return record, nil
}

func (s *ResetService) rateLimitKey(userID string) string {
	return "reset:" + userID
}

// enforceRateLimit applies the issuance limit. Store failures degrade to a
// warning so the reset flow stays available when the counter store is not.
func (s *ResetService) enforceRateLimit(ctx context.Context, userID string, now time.Time) error {
	if s.limiter == nil {
		return nil
	}

	key := s.rateLimitKey(userID)
	if err := s.limiter.TrimWindow(ctx, key, s.rateLimit.Window, now); err != nil {
		s.logger.Warn("reset rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.limiter.CountAttempts(ctx, key, s.rateLimit.Window, now)
	if err != nil {
		s.logger.Warn("reset rate limit count failed", zap.Error(err))
		return nil
	}
	if count < s.rateLimit.MaxAttempts {
		return nil
	}

	retryAfter := s.rateLimit.Window
	if oldest, ok, err := s.limiter.OldestAttempt(ctx, key, s.rateLimit.Window, now); err == nil && ok {
		retryAfter = oldest.Add(s.rateLimit.Window).Sub(now)
	}

	s.audit.LogEvent(ctx, AuditEntry{
		Type:    domain.EventRateLimitExceeded,
		UserID:  userID,
		Details: map[string]any{"scope": "password_reset", "attempts": count},
		Success: false,
	})
	return &RateLimitExceededError{Scope: "password_reset", RetryAfter: retryAfter}
}

func (s *ResetService) recordRateLimitAttempt(ctx context.Context, userID string, now time.Time) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordAttempt(ctx, s.rateLimitKey(userID), now); err != nil {
		s.logger.Warn("reset rate limit record failed", zap.Error(err))
	}
}

func (s *ResetService) publishCompleted(ctx context.Context, userID string, revoked int, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.PasswordResetCompletedEvent{
		UserID:          userID,
		SessionsRevoked: revoked,
		CompletedAt:     at,
	}
	if err := s.events.PublishPasswordResetCompleted(ctx, event); err != nil {
		s.logger.Warn("publish reset completed event failed", zap.String("user_id", userID), zap.Error(err))
	}
}
