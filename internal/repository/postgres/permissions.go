package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

// PermissionRepository implements port.PermissionRepository backed by
// PostgreSQL.
type PermissionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewPermissionRepository(exec pgExecutor) *PermissionRepository {
	return &PermissionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance scoped to the supplied transaction.
func (r *PermissionRepository) WithTx(tx pgx.Tx) *PermissionRepository {
	if tx == nil {
		return r
	}
	return &PermissionRepository{exec: tx, builder: r.builder}
}

// Create inserts a permission and returns its generated identifier. A
// duplicate (resource, action) pair surfaces as repository.ErrConflict.
func (r *PermissionRepository) Create(ctx context.Context, permission domain.Permission) (int64, error) {
	sql, args, err := r.builder.Insert("auth.permissions").
		Columns("name", "resource", "action", "description", "is_active", "created_at").
		Values(
			permission.Name,
			permission.Resource,
			permission.Action,
			permission.Description,
			permission.IsActive,
			permission.CreatedAt,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert permission sql: %w", err)
	}

	var id int64
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, repository.ErrConflict
		}
		return 0, fmt.Errorf("insert permission: %w", err)
	}

	return id, nil
}

func (r *PermissionRepository) GetByResourceAction(ctx context.Context, resource, action string) (*domain.Permission, error) {
	sql, args, err := r.builder.
		Select("id", "name", "resource", "action", "description", "is_active", "created_at").
		From("auth.permissions").
		Where(squirrel.Eq{"resource": resource, "action": action}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select permission sql: %w", err)
	}

	var p domain.Permission
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(
		&p.ID,
		&p.Name,
		&p.Resource,
		&p.Action,
		&p.Description,
		&p.IsActive,
		&p.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}

	return &p, nil
}

func (r *PermissionRepository) List(ctx context.Context, includeInactive bool) ([]domain.Permission, error) {
	q := r.builder.
		Select("id", "name", "resource", "action", "description", "is_active", "created_at").
		From("auth.permissions").
		OrderBy("resource ASC", "action ASC")
	if !includeInactive {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

func (r *PermissionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	sql, args, err := r.builder.
		Update("auth.permissions").
		Set("is_active", active).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update permission sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UserHasPermission walks assignment, role, grant and permission in one
// query. Every link must be active for access to hold.
func (r *PermissionRepository) UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	sql, args, err := r.builder.
		Select("1").
		From("auth.permissions p").
		Join("auth.role_permissions rp ON rp.permission_id = p.id").
		Join("auth.roles r ON r.id = rp.role_id").
		Join("auth.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{
			"ur.user_id":   userID,
			"p.resource":   resource,
			"p.action":     action,
			"p.is_active":  true,
			"rp.is_active": true,
			"r.is_active":  true,
			"ur.is_active": true,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build has permission sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("query has permission: %w", err)
	}

	return true, nil
}

// ListByUser projects the effective permission set through the same join.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Permission, error) {
	sql, args, err := r.builder.
		Select("DISTINCT p.id", "p.name", "p.resource", "p.action", "p.description", "p.is_active", "p.created_at").
		From("auth.permissions p").
		Join("auth.role_permissions rp ON rp.permission_id = p.id").
		Join("auth.roles r ON r.id = rp.role_id").
		Join("auth.user_roles ur ON ur.role_id = r.id").
		Where(squirrel.Eq{
			"ur.user_id":   userID,
			"p.is_active":  true,
			"rp.is_active": true,
			"r.is_active":  true,
			"ur.is_active": true,
		}).
		OrderBy("p.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query user permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

func (r *PermissionRepository) ListByRole(ctx context.Context, roleID int64) ([]domain.Permission, error) {
	sql, args, err := r.builder.
		Select("p.id", "p.name", "p.resource", "p.action", "p.description", "p.is_active", "p.created_at").
		From("auth.permissions p").
		Join("auth.role_permissions rp ON rp.permission_id = p.id").
		Where(squirrel.Eq{"rp.role_id": roleID, "rp.is_active": true, "p.is_active": true}).
		OrderBy("p.resource ASC", "p.action ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list role permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// GrantToRole records a grant, reactivating a revoked one if present.
func (r *PermissionRepository) GrantToRole(ctx context.Context, roleID, permissionID int64) (bool, error) {
	sql := `INSERT INTO auth.role_permissions (role_id, permission_id, is_active, granted_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (role_id, permission_id)
		DO UPDATE SET is_active = TRUE
		WHERE auth.role_permissions.is_active = FALSE`

	tag, err := r.exec.Exec(ctx, sql, roleID, permissionID)
	if err != nil {
		return false, fmt.Errorf("grant permission: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanPermissions(rows pgx.Rows) ([]domain.Permission, error) {
	var permissions []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return permissions, nil
}

var _ port.PermissionRepository = (*PermissionRepository)(nil)
