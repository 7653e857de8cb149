package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups the concrete PostgreSQL repository implementations and
// provides the transaction boundary for multi-step mutations.
type Repositories struct {
	pool        *pgxpool.Pool
	Users       *UserRepository
	Roles       *RoleRepository
	Permissions *PermissionRepository
	Sessions    *SessionRepository
	Tokens      *TokenRepository
	Audit       *AuditRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		pool:        pool,
		Users:       NewUserRepository(pool),
		Roles:       NewRoleRepository(pool),
		Permissions: NewPermissionRepository(pool),
		Sessions:    NewSessionRepository(pool),
		Tokens:      NewTokenRepository(pool),
		Audit:       NewAuditRepository(pool),
	}
}

// Ports returns the repository set as port interfaces.
func (r *Repositories) Ports() port.RepositorySet {
	return port.RepositorySet{
		Users:       r.Users,
		Roles:       r.Roles,
		Permissions: r.Permissions,
		Sessions:    r.Sessions,
		Tokens:      r.Tokens,
		Audit:       r.Audit,
	}
}

// WithinTx executes fn against transaction-scoped repositories. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repositories) WithinTx(ctx context.Context, fn func(tx port.RepositorySet) error) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	set := port.RepositorySet{
		Users:       r.Users.WithTx(tx),
		Roles:       r.Roles.WithTx(tx),
		Permissions: r.Permissions.WithTx(tx),
		Sessions:    r.Sessions.WithTx(tx),
		Tokens:      r.Tokens.WithTx(tx),
		Audit:       r.Audit.WithTx(tx),
	}

	if err := fn(set); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

var _ port.UnitOfWork = (*Repositories)(nil)
