package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
)

// AuditRepository implements port.AuditRepository backed by PostgreSQL. The
// table is append-only; no update or delete statements exist here.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance scoped to the supplied transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	if tx == nil {
		return r
	}
	return &AuditRepository{exec: tx, builder: r.builder}
}

func (r *AuditRepository) Insert(ctx context.Context, event domain.AuditEvent) error {
	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	sql, args, err := r.builder.Insert("auth.audit_events").
		Columns(
			"id",
			"event_type",
			"severity",
			"user_id",
			"session_id",
			"ip",
			"user_agent",
			"resource",
			"action",
			"details",
			"success",
			"error_message",
			"created_at",
		).
		Values(
			event.ID,
			event.Type,
			event.Severity,
			event.UserID,
			event.SessionID,
			event.IP,
			event.UserAgent,
			event.Resource,
			event.Action,
			details,
			event.Success,
			event.ErrorMessage,
			event.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

// List returns events newest first. ULID identifiers sort chronologically,
// so ordering by id matches ordering by creation time.
func (r *AuditRepository) List(ctx context.Context, filter port.AuditFilter) ([]domain.AuditEvent, error) {
	q := r.builder.
		Select(
			"id",
			"event_type",
			"severity",
			"user_id",
			"session_id",
			"ip",
			"user_agent",
			"resource",
			"action",
			"details",
			"success",
			"error_message",
			"created_at",
		).
		From("auth.audit_events").
		OrderBy("id DESC")

	if filter.UserID != "" {
		q = q.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.Type != "" {
		q = q.Where(squirrel.Eq{"event_type": filter.Type})
	}
	if !filter.Since.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": filter.Since})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event   domain.AuditEvent
			details []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.Severity,
			&event.UserID,
			&event.SessionID,
			&event.IP,
			&event.UserAgent,
			&event.Resource,
			&event.Action,
			&details,
			&event.Success,
			&event.ErrorMessage,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
