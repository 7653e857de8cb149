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
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

var (
	// ErrRoleNotFound indicates the referenced role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists indicates a role with the same name already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrPermissionNotFound indicates the referenced permission does not exist.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrPermissionExists indicates a permission with the same resource and
	// action pair already exists.
	ErrPermissionExists = errors.New("permission already exists")
)

// RBACService evaluates role-based access and manages the role and permission
// catalog. Checks always read the store; revocations apply on the next check.
type RBACService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	users       port.UserRepository
	uow         port.UnitOfWork
	events      port.EventPublisher
	audit       *AuditService
	logger      *zap.Logger
	now         func() time.Time
}

func NewRBACService(roles port.RoleRepository, permissions port.PermissionRepository, users port.UserRepository, uow port.UnitOfWork, events port.EventPublisher, audit *AuditService, log *zap.Logger) *RBACService {
	if log == nil {
		log = zap.NewNop()
	}

	return &RBACService{
		roles:       roles,
		permissions: permissions,
		users:       users,
		uow:         uow,
		events:      events,
		audit:       audit,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *RBACService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CheckInput carries request context for an authorization check.
type CheckInput struct {
	UserID    string
	Resource  string
	Action    string
	IP        string
	UserAgent string
	SessionID string
}

// CheckPermission evaluates whether the user may perform the action on the
// resource. Every decision, granted or denied, lands in the audit trail.
func (s *RBACService) CheckPermission(ctx context.Context, input CheckInput) (bool, error) {
	userID := strings.TrimSpace(input.UserID)
	resource := strings.TrimSpace(input.Resource)
	action := strings.TrimSpace(input.Action)
	if userID == "" || resource == "" || action == "" {
		return false, fmt.Errorf("user id, resource, and action are required")
	}

	allowed, err := s.permissions.UserHasPermission(ctx, userID, resource, action)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}

	s.auditDecision(ctx, input, allowed, "")
	return allowed, nil
}

// HasAdminRole reports whether the user holds the admin role. Admin checks
// run on a dedicated path so they can be audited as such.
func (s *RBACService) HasAdminRole(ctx context.Context, input CheckInput) (bool, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return false, fmt.Errorf("user id is required")
	}

	isAdmin, err := s.roles.UserHasRole(ctx, userID, domain.AdminRoleName)
	if err != nil {
		return false, fmt.Errorf("check admin role: %w", err)
	}

	input.Resource = "admin"
	input.Action = "access"
	s.auditDecision(ctx, input, isAdmin, "admin role check")
	return isAdmin, nil
}

// GetUserRoles returns the active roles the user holds.
func (s *RBACService) GetUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

// GetUserPermissions returns the distinct permissions the user holds through
// roles. Informational; authorization decisions use CheckPermission.
func (s *RBACService) GetUserPermissions(ctx context.Context, userID string) ([]domain.Permission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	permissions, err := s.permissions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return permissions, nil
}

// AssignmentInput carries context for role assignment changes.
type AssignmentInput struct {
	UserID    string
	RoleName  string
	ActorID   string
	IP        string
	UserAgent string
}

// AssignRole grants the named role to the user. The assignment and its audit
// record commit in one transaction. Assigning an already-held role is a
// no-op.
func (s *RBACService) AssignRole(ctx context.Context, input AssignmentInput) error {
	return s.changeAssignment(ctx, input, true)
}

// RemoveRole revokes the named role from the user. Removing a role the user
// does not hold is a no-op.
func (s *RBACService) RemoveRole(ctx context.Context, input AssignmentInput) error {
	return s.changeAssignment(ctx, input, false)
}

func (s *RBACService) changeAssignment(ctx context.Context, input AssignmentInput, assign bool) error {
	userID := strings.TrimSpace(input.UserID)
	roleName := strings.TrimSpace(input.RoleName)
	if userID == "" || roleName == "" {
		return fmt.Errorf("user id and role name are required")
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	verb := "remove"
	if assign {
		verb = "assign"
	}

	var changed bool
	now := s.now().UTC()
	err = s.uow.WithinTx(ctx, func(tx port.RepositorySet) error {
		if assign {
			changed, err = tx.Roles.AssignToUser(ctx, userID, role.ID, now)
		} else {
			changed, err = tx.Roles.RemoveFromUser(ctx, userID, role.ID)
		}
		if err != nil {
			return fmt.Errorf("%s role: %w", verb, err)
		}
		if !changed {
			return nil
		}

		// The audit row rides the same transaction so the assignment can
		// never land without its trail.
		return tx.Audit.Insert(ctx, s.audit.buildEvent(AuditEntry{
			Type:      domain.EventRoleChange,
			UserID:    userID,
			IP:        input.IP,
			UserAgent: input.UserAgent,
			Details: map[string]any{
				"role":     role.Name,
				"change":   verb,
				"actor_id": input.ActorID,
			},
			Success: true,
		}))
	})
	if err != nil {
		s.audit.LogEvent(ctx, AuditEntry{
			Type:         domain.EventRoleChange,
			UserID:       userID,
			IP:           input.IP,
			UserAgent:    input.UserAgent,
			Details:      map[string]any{"role": role.Name, "change": verb},
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return err
	}

	if changed {
		s.publishAssignmentChanged(ctx, userID, role.Name, assign, input.ActorID)
	}
	return nil
}

// CreateRole adds a role to the catalog.
func (s *RBACService) CreateRole(ctx context.Context, name, description string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	role := domain.Role{
		Name:        name,
		Description: stringPtrOrNil(description),
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
	}

	id, err := s.roles.Create(ctx, role)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	role.ID = id
	return &role, nil
}

// CreatePermission adds a permission to the catalog. Uniqueness is on the
// (resource, action) pair.
func (s *RBACService) CreatePermission(ctx context.Context, name, resource, action, description string) (*domain.Permission, error) {
	name = strings.TrimSpace(name)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if name == "" || resource == "" || action == "" {
		return nil, fmt.Errorf("permission name, resource, and action are required")
	}

	permission := domain.Permission{
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: stringPtrOrNil(description),
		IsActive:    true,
		CreatedAt:   s.now().UTC(),
	}

	id, err := s.permissions.Create(ctx, permission)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrPermissionExists
		}
		return nil, fmt.Errorf("create permission: %w", err)
	}
	permission.ID = id
	return &permission, nil
}

// ListRoles returns the role catalog.
func (s *RBACService) ListRoles(ctx context.Context, includeInactive bool) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns the permission catalog.
func (s *RBACService) ListPermissions(ctx context.Context, includeInactive bool) ([]domain.Permission, error) {
	permissions, err := s.permissions.List(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return permissions, nil
}

// GetRolePermissions returns the permissions granted to the named role.
func (s *RBACService) GetRolePermissions(ctx context.Context, roleName string) ([]domain.Permission, error) {
	role, err := s.roles.GetByName(ctx, strings.TrimSpace(roleName))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	permissions, err := s.permissions.ListByRole(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return permissions, nil
}

// GrantPermissionToRole links a permission to a role. Granting an existing
// link is a no-op.
func (s *RBACService) GrantPermissionToRole(ctx context.Context, roleName, resource, action string) error {
	role, err := s.roles.GetByName(ctx, strings.TrimSpace(roleName))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	permission, err := s.permissions.GetByResourceAction(ctx, strings.TrimSpace(resource), strings.TrimSpace(action))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("lookup permission: %w", err)
	}

	granted, err := s.permissions.GrantToRole(ctx, role.ID, permission.ID)
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	if granted {
		s.audit.LogEvent(ctx, AuditEntry{
			Type: domain.EventPermissionChange,
			Details: map[string]any{
				"role":       role.Name,
				"permission": permission.Name,
				"resource":   permission.Resource,
				"action":     permission.Action,
			},
			Success: true,
		})
	}
	return nil
}

// SetRoleActive toggles a role. Deactivating a role suspends every grant and
// assignment that flows through it without deleting history.
func (s *RBACService) SetRoleActive(ctx context.Context, roleName string, active bool) error {
	role, err := s.roles.GetByName(ctx, strings.TrimSpace(roleName))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	if err := s.roles.SetActive(ctx, role.ID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("set role active: %w", err)
	}

	s.audit.LogEvent(ctx, AuditEntry{
		Type:    domain.EventRoleChange,
		Details: map[string]any{"role": role.Name, "active": active},
		Success: true,
	})
	return nil
}

// SetPermissionActive toggles a permission catalog entry.
func (s *RBACService) SetPermissionActive(ctx context.Context, resource, action string, active bool) error {
	permission, err := s.permissions.GetByResourceAction(ctx, strings.TrimSpace(resource), strings.TrimSpace(action))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("lookup permission: %w", err)
	}

	if err := s.permissions.SetActive(ctx, permission.ID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("set permission active: %w", err)
	}

	s.audit.LogEvent(ctx, AuditEntry{
		Type:    domain.EventPermissionChange,
		Details: map[string]any{"resource": permission.Resource, "action": permission.Action, "active": active},
		Success: true,
	})
	return nil
}

type seedPermission struct {
	name        string
	resource    string
	action      string
	description string
}

var defaultPermissions = []seedPermission{
	{"users:read", "users", "read", "View user accounts and profiles"},
	{"users:write", "users", "write", "Create and update user accounts"},
	{"users:delete", "users", "delete", "Delete user accounts"},
	{"users:manage", "users", "manage", "Full user administration"},
	{"reports:read", "reports", "read", "View medical reports"},
	{"reports:write", "reports", "write", "Create and update medical reports"},
	{"reports:delete", "reports", "delete", "Delete medical reports"},
	{"reports:diagnose", "reports", "diagnose", "Record diagnoses on reports"},
	{"reports:manage", "reports", "manage", "Full report administration"},
	{"comments:read", "comments", "read", "View report comments"},
	{"comments:write", "comments", "write", "Add report comments"},
	{"comments:delete", "comments", "delete", "Delete report comments"},
	{"roles:manage", "roles", "manage", "Manage roles and permissions"},
	{"audit:read", "audit", "read", "View audit trails and reports"},
	{"admin:access", "admin", "access", "Access administrative interfaces"},
	{"admin:user_manage", "admin", "user_manage", "Administer user lifecycle"},
	{"admin:system_config", "admin", "system_config", "Change system configuration"},
}

var defaultRoles = []struct {
	name        string
	description string
	permissions []string
}{
	{
		name:        "admin",
		description: "Platform administrator with unrestricted access",
		permissions: []string{
			"users:read", "users:write", "users:delete", "users:manage",
			"reports:read", "reports:write", "reports:delete", "reports:diagnose", "reports:manage",
			"comments:read", "comments:write", "comments:delete",
			"roles:manage", "audit:read",
			"admin:access", "admin:user_manage", "admin:system_config",
		},
	},
	{
		name:        "doctor",
		description: "Physician reviewing and diagnosing reports",
		permissions: []string{
			"users:read",
			"reports:read", "reports:write", "reports:diagnose",
			"comments:read", "comments:write",
		},
	},
	{
		name:        "patient",
		description: "Patient accessing their own reports",
		permissions: []string{
			"reports:read", "reports:write",
			"comments:read",
		},
	},
}

// InitializeDefaults seeds the baseline roles and permissions. Safe to run on
// every startup; existing rows are left untouched.
func (s *RBACService) InitializeDefaults(ctx context.Context) error {
	permissionIDs := make(map[string]int64, len(defaultPermissions))
	now := s.now().UTC()

	for _, seed := range defaultPermissions {
		id, err := s.permissions.Create(ctx, domain.Permission{
			Name:        seed.name,
			Resource:    seed.resource,
			Action:      seed.action,
			Description: stringPtr(seed.description),
			IsActive:    true,
			CreatedAt:   now,
		})
		if err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("seed permission %s: %w", seed.name, err)
			}
			existing, err := s.permissions.GetByResourceAction(ctx, seed.resource, seed.action)
			if err != nil {
				return fmt.Errorf("load permission %s: %w", seed.name, err)
			}
			id = existing.ID
		}
		permissionIDs[seed.name] = id
	}

	for _, seed := range defaultRoles {
		roleID, err := s.roles.Create(ctx, domain.Role{
			Name:        seed.name,
			Description: stringPtr(seed.description),
			IsActive:    true,
			CreatedAt:   now,
		})
		if err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("seed role %s: %w", seed.name, err)
			}
			existing, err := s.roles.GetByName(ctx, seed.name)
			if err != nil {
				return fmt.Errorf("load role %s: %w", seed.name, err)
			}
			roleID = existing.ID
		}

		for _, permissionName := range seed.permissions {
			permissionID, ok := permissionIDs[permissionName]
			if !ok {
				return fmt.Errorf("seed role %s: unknown permission %s", seed.name, permissionName)
			}
			if _, err := s.permissions.GrantToRole(ctx, roleID, permissionID); err != nil {
				return fmt.Errorf("seed grant %s to %s: %w", permissionName, seed.name, err)
			}
		}
	}

	s.logger.Info("rbac defaults initialized",
		zap.Int("permissions", len(defaultPermissions)),
		zap.Int("roles", len(defaultRoles)))
	return nil
}

func (s *RBACService) auditDecision(ctx context.Context, input CheckInput, allowed bool, note string) {
	if s.audit == nil {
		return
	}

	eventType := domain.EventAccessDenied
	if allowed {
		eventType = domain.EventAccessGranted
	}

	var details map[string]any
	if note != "" {
		details = map[string]any{"note": note}
	}

	s.audit.LogEvent(ctx, AuditEntry{
		Type:      eventType,
		UserID:    input.UserID,
		SessionID: input.SessionID,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Resource:  input.Resource,
		Action:    input.Action,
		Details:   details,
		Success:   allowed,
	})
}

func (s *RBACService) publishAssignmentChanged(ctx context.Context, userID, roleName string, assigned bool, actorID string) {
	if s.events == nil {
		return
	}
	event := domain.RoleAssignmentChangedEvent{
		UserID:    userID,
		RoleName:  roleName,
		Assigned:  assigned,
		ActorID:   actorID,
		ChangedAt: s.now().UTC(),
	}
	if err := s.events.PublishRoleAssignmentChanged(ctx, event); err != nil {
		s.logger.Warn("publish role assignment event failed", zap.String("user_id", userID), zap.Error(err))
	}
}
