package port

import "context"

// RepositorySet groups the repositories that participate in transactions.
type RepositorySet struct {
	Users       UserRepository
	Roles       RoleRepository
	Permissions PermissionRepository
	Sessions    SessionRepository
	Tokens      TokenRepository
	Audit       AuditRepository
}

// UnitOfWork runs repository operations within a single atomic transaction:
// either every write in fn lands or none do.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx RepositorySet) error) error
}
