package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

// RoleRepository implements port.RoleRepository backed by PostgreSQL.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance scoped to the supplied transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder}
}

// Create inserts a role and returns its generated identifier. A name
// collision surfaces as repository.ErrConflict.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) (int64, error) {
	sql, args, err := r.builder.Insert("auth.roles").
		Columns("name", "description", "is_active", "created_at").
		Values(role.Name, role.Description, role.IsActive, role.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert role sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, repository.ErrConflict
		}
		return 0, fmt.Errorf("insert role: %w", err)
	}

	return id, nil
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

func (r *RoleRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.Role, error) {
	sql, args, err := r.builder.
		Select("id", "name", "description", "is_active", "created_at").
		From("auth.roles").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	var role domain.Role
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsActive,
		&role.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	return &role, nil
}

// List returns roles ordered by name. Inactive roles are excluded unless
// requested.
func (r *RoleRepository) List(ctx context.Context, includeInactive bool) ([]domain.Role, error) {
	q := r.builder.
		Select("id", "name", "description", "is_active", "created_at").
		From("auth.roles").
		OrderBy("name ASC")
	if !includeInactive {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// SetActive flips the role's active flag. Deactivation disables every grant
// and assignment flowing through the role without deleting history.
func (r *RoleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	sql, args, err := r.builder.
		Update("auth.roles").
		Set("is_active", active).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByUser returns the active roles held through active assignments.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	sql, args, err := r.builder.
		Select("r.id", "r.name", "r.description", "r.is_active", "r.created_at").
		From("auth.roles r").
		Join("auth.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID, "ur.is_active": true, "r.is_active": true}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// AssignToUser records an assignment. Re-assigning reactivates a previously
// removed row; a live duplicate reports false.
func (r *RoleRepository) AssignToUser(ctx context.Context, userID string, roleID int64, at time.Time) (bool, error) {
	sql := `INSERT INTO auth.user_roles (user_id, role_id, is_active, assigned_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET is_active = TRUE, assigned_at = EXCLUDED.assigned_at
		WHERE auth.user_roles.is_active = FALSE`

	tag, err := r.exec.Exec(ctx, sql, userID, roleID, at)
	if err != nil {
		return false, fmt.Errorf("assign role: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RemoveFromUser deactivates an assignment, preserving the row for audit.
func (r *RoleRepository) RemoveFromUser(ctx context.Context, userID string, roleID int64) (bool, error) {
	sql, args, err := r.builder.
		Update("auth.user_roles").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "role_id": roleID, "is_active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build remove role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("remove role: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// UserHasRole reports an active assignment of an active role with the name.
func (r *RoleRepository) UserHasRole(ctx context.Context, userID, roleName string) (bool, error) {
	sql, args, err := r.builder.
		Select("1").
		From("auth.user_roles ur").
		Join("auth.roles r ON r.id = ur.role_id").
		Where(squirrel.Eq{"ur.user_id": userID, "r.name": roleName, "ur.is_active": true, "r.is_active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build has role sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("query has role: %w", err)
	}

	return true, nil
}

func scanRoles(rows pgx.Rows) ([]domain.Role, error) {
	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
