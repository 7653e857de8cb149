package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/security"
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

var (
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned for any authentication failure.
	// Callers never learn whether the account or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account exists but may not sign in.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrCurrentPasswordInvalid indicates the supplied current password does not match.
	ErrCurrentPasswordInvalid = errors.New("current password invalid")
	// ErrNewPasswordInvalid indicates the proposed password violates policy.
	ErrNewPasswordInvalid = errors.New("new password invalid")
)

// PasswordService owns credential hashing, verification, and the transparent
// migration of legacy hashes to the current scheme.
type PasswordService struct {
	users     port.UserRepository
	audit     *AuditService
	validator *security.PasswordValidator
	logger    *zap.Logger
	now       func() time.Time
}

func NewPasswordService(users port.UserRepository, audit *AuditService, validator *security.PasswordValidator, log *zap.Logger) *PasswordService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &PasswordService{
		users:     users,
		audit:     audit,
		validator: validator,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// HashPassword validates the password against policy and produces an
// Argon2id hash suitable for storage.
func (s *PasswordService) HashPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrNewPasswordInvalid)
	}

	if err := s.validator.Validate(password); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword checks the password against a stored credential of any
// supported generation. It reports no detail about the stored scheme.
func (s *PasswordService) VerifyPassword(password, stored string) (bool, error) {
	ok, _, err := security.VerifyPassword(password, stored)
	if err != nil {
		if errors.Is(err, security.ErrUnknownCredential) {
			// An unreadable stored hash behaves as a mismatch; the detail
			// stays in the log.
			s.logger.Warn("stored credential unreadable")
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// AuthenticateInput carries request context for Authenticate.
type AuthenticateInput struct {
	UserID    string
	Password  string
	IP        string
	UserAgent string
}

// Authenticate verifies credentials for the user and, on success, upgrades
// any legacy hash in place and stamps the last login. Verification failures
// are audited and collapse to ErrInvalidCredentials.
func (s *PasswordService) Authenticate(ctx context.Context, input AuthenticateInput) (*domain.User, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.auditLoginFailure(ctx, userID, input, "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.CanAuthenticate() {
		s.auditLoginFailure(ctx, userID, input, "account disabled")
		return nil, ErrAccountDisabled
	}

	ok, rehash, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		if errors.Is(err, security.ErrUnknownCredential) {
			s.auditLoginFailure(ctx, userID, input, "unreadable credential")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.auditLoginFailure(ctx, userID, input, "password mismatch")
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()

	// Legacy hashes upgrade only here, where the plaintext is available
	// and already proven correct. An upgrade failure is not fatal; the
	// old hash keeps working.
	if rehash {
		if upgraded, err := security.HashPassword(input.Password); err != nil {
			s.logger.Warn("credential upgrade hash failed", zap.String("user_id", user.ID), zap.Error(err))
		} else if err := s.users.UpdatePasswordHash(ctx, user.ID, upgraded, now); err != nil {
			s.logger.Warn("credential upgrade store failed", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			user.PasswordHash = upgraded
			s.logger.Info("legacy credential upgraded", zap.String("user_id", user.ID))
		}
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLogin = &now
	}

	return user, nil
}

// ChangePasswordInput captures the context for an authenticated password change.
type ChangePasswordInput struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	IP              string
	UserAgent       string
}

// ChangePassword replaces the password after verifying the current one. The
// caller is responsible for revoking sessions afterwards.
func (s *PasswordService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, _, err := security.VerifyPassword(input.CurrentPassword, user.PasswordHash)
	if err != nil && !errors.Is(err, security.ErrUnknownCredential) {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		s.audit.LogEvent(ctx, AuditEntry{
			Type:         domain.EventPasswordChange,
			UserID:       userID,
			IP:           input.IP,
			UserAgent:    input.UserAgent,
			Success:      false,
			ErrorMessage: "current password invalid",
		})
		return ErrCurrentPasswordInvalid
	}

	newPassword := strings.TrimSpace(input.NewPassword)
	if err := security.NewPasswordValidator(security.RequireDifferentFrom(input.CurrentPassword)).Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}
	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.audit.LogEvent(ctx, AuditEntry{
		Type:      domain.EventPasswordChange,
		UserID:    userID,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Success:   true,
	})

	return nil
}

func (s *PasswordService) auditLoginFailure(ctx context.Context, userID string, input AuthenticateInput, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, AuditEntry{
		Type:         domain.EventLoginFailed,
		UserID:       userID,
		IP:           input.IP,
		UserAgent:    input.UserAgent,
		Details:      map[string]any{"reason": reason},
		Success:      false,
		ErrorMessage: reason,
	})
}
