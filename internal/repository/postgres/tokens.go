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

// TokenRepository implements port.TokenRepository backed by PostgreSQL.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance scoped to the supplied transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{exec: tx, builder: r.builder}
}

func (r *TokenRepository) Create(ctx context.Context, token domain.PasswordResetToken) error {
	sql, args, err := r.builder.Insert("auth.password_reset_tokens").
		Columns("id", "user_id", "token_hash", "created_at", "expires_at", "is_used", "used_at").
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.CreatedAt,
			token.ExpiresAt,
			token.IsUsed,
			token.UsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

func (r *TokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	sql, args, err := r.builder.
		Select("id", "user_id", "token_hash", "created_at", "expires_at", "is_used", "used_at").
		From("auth.password_reset_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset token sql: %w", err)
	}

	var token domain.PasswordResetToken
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.IsUsed,
		&token.UsedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset token: %w", err)
	}

	return &token, nil
}

// InvalidateUnusedForUser marks every outstanding token for the user as used
// so that only the newest issued token can be redeemed.
func (r *TokenRepository) InvalidateUnusedForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	sql, args, err := r.builder.
		Update("auth.password_reset_tokens").
		Set("is_used", true).
		Set("used_at", at).
		Where(squirrel.Eq{"user_id": userID, "is_used": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate reset tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate reset tokens: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// MarkUsed consumes the token atomically. The WHERE clause carries the
// unused and unexpired conditions so two concurrent redeemers cannot both
// succeed.
func (r *TokenRepository) MarkUsed(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	sql, args, err := r.builder.
		Update("auth.password_reset_tokens").
		Set("is_used", true).
		Set("used_at", at).
		Where(squirrel.Eq{"token_hash": tokenHash, "is_used": false}).
		Where(squirrel.Gt{"expires_at": at}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume reset token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	sql, args, err := r.builder.
		Delete("auth.password_reset_tokens").
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
