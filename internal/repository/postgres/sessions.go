package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance scoped to the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{exec: tx, builder: r.builder}
}

// Create persists a new session record.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	sql, args, err := r.builder.Insert("auth.sessions").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"created_at",
			"last_accessed",
			"expires_at",
			"is_active",
			"ip",
			"user_agent",
		).
		Values(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.CreatedAt,
			session.LastAccessed,
			session.ExpiresAt,
			session.IsActive,
			session.IP,
			session.UserAgent,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByTokenHash returns the session holding the supplied token hash.
// Expiry and activity are evaluated by the caller so that clock handling
// stays in one place.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	sql, args, err := r.builder.
		Select("id", "user_id", "token_hash", "created_at", "last_accessed", "expires_at", "is_active", "ip", "user_agent").
		From("auth.sessions").
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, sql, args...)

	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.CreatedAt,
		&session.LastAccessed,
		&session.ExpiresAt,
		&session.IsActive,
		&session.IP,
		&session.UserAgent,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &session, nil
}

// Touch updates last-accessed without moving expiry.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	sql, args, err := r.builder.
		Update("auth.sessions").
		Set("last_accessed", at).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// UpdateExpiry moves expiry and last-accessed on refresh.
func (r *SessionRepository) UpdateExpiry(ctx context.Context, sessionID string, expiresAt, at time.Time) error {
	sql, args, err := r.builder.
		Update("auth.sessions").
		Set("expires_at", expiresAt).
		Set("last_accessed", at).
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build refresh session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate flips the active flag for the session holding the token hash.
// Deactivating an already-inactive session is a no-op.
func (r *SessionRepository) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	sql, args, err := r.builder.
		Update("auth.sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"token_hash": tokenHash, "is_active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build deactivate session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("deactivate session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeactivateAllForUser terminates every active session owned by the user.
func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	sql, args, err := r.builder.
		Update("auth.sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build deactivate user sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate user sessions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// DeactivateExpired batch-deactivates sessions whose expiry has passed.
func (r *SessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	sql, args, err := r.builder.
		Update("auth.sessions").
		Set("is_active", false).
		Where(squirrel.LtOrEq{"expires_at": now}).
		Where(squirrel.Eq{"is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ListActiveByUser returns non-expired active sessions for the user, most
// recently used first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	sql, args, err := r.builder.
		Select("id", "user_id", "token_hash", "created_at", "last_accessed", "expires_at", "is_active", "ip", "user_agent").
		From("auth.sessions").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("last_accessed DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.TokenHash,
			&session.CreatedAt,
			&session.LastAccessed,
			&session.ExpiresAt,
			&session.IsActive,
			&session.IP,
			&session.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
