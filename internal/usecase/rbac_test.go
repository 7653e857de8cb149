package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
)

func newRBACFixture(roles *roleRepoMock, permissions *permissionRepoMock, audit *auditRepoMock, events *publisherMock) *RBACService {
	uow := &uowMock{set: port.RepositorySet{
		Roles:       roles,
		Permissions: permissions,
		Audit:       audit,
	}}
	users := newUserRepoMock(
		domain.User{ID: "alice", IsActive: true},
		domain.User{ID: "root", IsActive: true},
	)
	return NewRBACService(roles, permissions, users, uow, events, newTestAudit(audit), nil)
}

func TestRBACServiceCheckPermission(t *testing.T) {
	permissions := newPermissionRepoMock()
	permissions.allow("alice", "reports", "read")
	audit := &auditRepoMock{}
	svc := newRBACFixture(newRoleRepoMock(), permissions, audit, nil)

	allowed, err := svc.CheckPermission(context.Background(), CheckInput{UserID: "alice", Resource: "reports", Action: "read"})
	if err != nil {
		t.Fatalf("CheckPermission returned error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected grant")
	}

	denied, err := svc.CheckPermission(context.Background(), CheckInput{UserID: "alice", Resource: "reports", Action: "delete"})
	if err != nil {
		t.Fatalf("CheckPermission returned error: %v", err)
	}
	if denied {
		t.Fatalf("expected denial")
	}

	if got := len(audit.byType(domain.EventAccessGranted)); got != 1 {
		t.Fatalf("expected 1 access_granted event, got %d", got)
	}
	denials := audit.byType(domain.EventAccessDenied)
	if len(denials) != 1 {
		t.Fatalf("expected 1 access_denied event, got %d", len(denials))
	}
	if denials[0].Resource == nil || *denials[0].Resource != "reports" {
		t.Fatalf("denial missing resource: %+v", denials[0])
	}
	if denials[0].Success {
		t.Fatalf("denial recorded as success")
	}
}

func TestRBACServiceCheckPermissionRequiresInput(t *testing.T) {
	svc := newRBACFixture(newRoleRepoMock(), newPermissionRepoMock(), &auditRepoMock{}, nil)

	if _, err := svc.CheckPermission(context.Background(), CheckInput{UserID: "alice"}); err == nil {
		t.Fatalf("expected error for missing resource and action")
	}
}

func TestRBACServiceHasAdminRole(t *testing.T) {
	roles := newRoleRepoMock(domain.Role{ID: 1, Name: "admin", IsActive: true})
	roles.assignments["root"] = map[int64]bool{1: true}
	audit := &auditRepoMock{}
	svc := newRBACFixture(roles, newPermissionRepoMock(), audit, nil)

	isAdmin, err := svc.HasAdminRole(context.Background(), CheckInput{UserID: "root"})
	if err != nil {
		t.Fatalf("HasAdminRole returned error: %v", err)
	}
	if !isAdmin {
		t.Fatalf("expected admin")
	}

	isAdmin, err = svc.HasAdminRole(context.Background(), CheckInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("HasAdminRole returned error: %v", err)
	}
	if isAdmin {
		t.Fatalf("alice must not be admin")
	}

	// Deactivating the role suspends the escape hatch without touching
	// assignments.
	if err := svc.SetRoleActive(context.Background(), "admin", false); err != nil {
		t.Fatalf("SetRoleActive returned error: %v", err)
	}
	isAdmin, err = svc.HasAdminRole(context.Background(), CheckInput{UserID: "root"})
	if err != nil {
		t.Fatalf("HasAdminRole returned error: %v", err)
	}
	if isAdmin {
		t.Fatalf("inactive admin role must not grant access")
	}
}

func TestRBACServiceAssignAndRemoveRole(t *testing.T) {
	roles := newRoleRepoMock(domain.Role{ID: 7, Name: "doctor", IsActive: true})
	audit := &auditRepoMock{}
	events := &publisherMock{}
	svc := newRBACFixture(roles, newPermissionRepoMock(), audit, events)

	input := AssignmentInput{UserID: "alice", RoleName: "doctor", ActorID: "root"}

	if err := svc.AssignRole(context.Background(), input); err != nil {
		t.Fatalf("AssignRole returned error: %v", err)
	}
	if !roles.assignments["alice"][7] {
		t.Fatalf("assignment not recorded")
	}
	if len(events.roles) != 1 || !events.roles[0].Assigned {
		t.Fatalf("unexpected role events: %+v", events.roles)
	}
	if events.roles[0].ActorID != "root" {
		t.Fatalf("actor not propagated: %+v", events.roles[0])
	}

	// Re-assigning is a no-op: no second audit row, no second event.
	if err := svc.AssignRole(context.Background(), input); err != nil {
		t.Fatalf("repeat AssignRole returned error: %v", err)
	}
	if got := len(audit.byType(domain.EventRoleChange)); got != 1 {
		t.Fatalf("expected 1 role_change event, got %d", got)
	}
	if len(events.roles) != 1 {
		t.Fatalf("no-op assignment published an event")
	}

	if err := svc.RemoveRole(context.Background(), input); err != nil {
		t.Fatalf("RemoveRole returned error: %v", err)
	}
	if roles.assignments["alice"][7] {
		t.Fatalf("assignment not removed")
	}
	if len(events.roles) != 2 || events.roles[1].Assigned {
		t.Fatalf("unexpected role events after removal: %+v", events.roles)
	}

	if err := svc.AssignRole(context.Background(), AssignmentInput{UserID: "alice", RoleName: "ghost"}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestRBACServiceAssignRoleAuditsTransactionFailure(t *testing.T) {
	roles := newRoleRepoMock(domain.Role{ID: 7, Name: "doctor", IsActive: true})
	txAudit := &auditRepoMock{insertErr: errStoreDown}
	outerAudit := &auditRepoMock{}
	uow := &uowMock{set: port.RepositorySet{Roles: roles, Audit: txAudit}}
	users := newUserRepoMock(domain.User{ID: "alice", IsActive: true})
	svc := NewRBACService(roles, newPermissionRepoMock(), users, uow, nil, newTestAudit(outerAudit), nil)

	err := svc.AssignRole(context.Background(), AssignmentInput{UserID: "alice", RoleName: "doctor"})
	if err == nil {
		t.Fatalf("expected error when the audit row cannot be written")
	}

	// The failure itself is audited outside the transaction.
	failures := outerAudit.byType(domain.EventRoleChange)
	if len(failures) != 1 || failures[0].Success {
		t.Fatalf("expected one failed role_change event, got %+v", failures)
	}
}

func TestRBACServiceAssignRoleUnknownUser(t *testing.T) {
	roles := newRoleRepoMock(domain.Role{ID: 7, Name: "doctor", IsActive: true})
	audit := &auditRepoMock{}
	events := &publisherMock{}
	svc := newRBACFixture(roles, newPermissionRepoMock(), audit, events)

	err := svc.AssignRole(context.Background(), AssignmentInput{UserID: "ghost", RoleName: "doctor", ActorID: "root"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := svc.RemoveRole(context.Background(), AssignmentInput{UserID: "ghost", RoleName: "doctor"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on removal, got %v", err)
	}

	// A rejected assignment leaves no audit trail and emits nothing.
	if got := audit.byType(domain.EventRoleChange); len(got) != 0 {
		t.Fatalf("expected no role_change events, got %+v", got)
	}
	if len(events.roles) != 0 {
		t.Fatalf("expected no role events, got %+v", events.roles)
	}
}

func TestRBACServiceCatalog(t *testing.T) {
	roles := newRoleRepoMock()
	permissions := newPermissionRepoMock()
	audit := &auditRepoMock{}
	svc := newRBACFixture(roles, permissions, audit, nil)

	role, err := svc.CreateRole(context.Background(), "auditor", "Reads audit trails")
	if err != nil {
		t.Fatalf("CreateRole returned error: %v", err)
	}
	if role.ID == 0 || !role.IsActive {
		t.Fatalf("unexpected role: %+v", role)
	}
	if _, err := svc.CreateRole(context.Background(), "auditor", ""); !errors.Is(err, ErrRoleExists) {
		t.Fatalf("expected ErrRoleExists, got %v", err)
	}

	permission, err := svc.CreatePermission(context.Background(), "audit:read", "audit", "read", "")
	if err != nil {
		t.Fatalf("CreatePermission returned error: %v", err)
	}
	if permission.ID == 0 {
		t.Fatalf("permission id not assigned")
	}
	if _, err := svc.CreatePermission(context.Background(), "other-name", "audit", "read", ""); !errors.Is(err, ErrPermissionExists) {
		t.Fatalf("expected ErrPermissionExists on duplicate pair, got %v", err)
	}

	if err := svc.GrantPermissionToRole(context.Background(), "auditor", "audit", "read"); err != nil {
		t.Fatalf("GrantPermissionToRole returned error: %v", err)
	}
	if !permissions.grants[role.ID][permission.ID] {
		t.Fatalf("grant not recorded")
	}
	if got := len(audit.byType(domain.EventPermissionChange)); got != 1 {
		t.Fatalf("expected 1 permission_change event, got %d", got)
	}

	// Granting again is a no-op and stays silent.
	if err := svc.GrantPermissionToRole(context.Background(), "auditor", "audit", "read"); err != nil {
		t.Fatalf("repeat grant returned error: %v", err)
	}
	if got := len(audit.byType(domain.EventPermissionChange)); got != 1 {
		t.Fatalf("no-op grant produced an event")
	}

	if err := svc.GrantPermissionToRole(context.Background(), "ghost", "audit", "read"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := svc.GrantPermissionToRole(context.Background(), "auditor", "audit", "purge"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestRBACServiceInitializeDefaults(t *testing.T) {
	roles := newRoleRepoMock()
	permissions := newPermissionRepoMock()
	svc := newRBACFixture(roles, permissions, &auditRepoMock{}, nil)

	if err := svc.InitializeDefaults(context.Background()); err != nil {
		t.Fatalf("InitializeDefaults returned error: %v", err)
	}

	if len(permissions.permissions) != len(defaultPermissions) {
		t.Fatalf("seeded %d permissions, want %d", len(permissions.permissions), len(defaultPermissions))
	}
	for _, name := range []string{"admin", "doctor", "patient"} {
		if _, ok := roles.roles[name]; !ok {
			t.Fatalf("role %q not seeded", name)
		}
	}

	adminID := roles.roles["admin"].ID
	if len(permissions.grants[adminID]) != len(defaultPermissions) {
		t.Fatalf("admin holds %d grants, want all %d", len(permissions.grants[adminID]), len(defaultPermissions))
	}

	// Running again against the populated catalog must not error or
	// duplicate anything.
	if err := svc.InitializeDefaults(context.Background()); err != nil {
		t.Fatalf("second InitializeDefaults returned error: %v", err)
	}
	if len(permissions.permissions) != len(defaultPermissions) {
		t.Fatalf("reseeding duplicated permissions")
	}
}

func TestRBACServiceSetPermissionActive(t *testing.T) {
	permissions := newPermissionRepoMock(domain.Permission{ID: 3, Name: "audit:read", Resource: "audit", Action: "read", IsActive: true})
	audit := &auditRepoMock{}
	svc := newRBACFixture(newRoleRepoMock(), permissions, audit, nil)

	if err := svc.SetPermissionActive(context.Background(), "audit", "read", false); err != nil {
		t.Fatalf("SetPermissionActive returned error: %v", err)
	}
	if permissions.permissions[permissionKey{"audit", "read"}].IsActive {
		t.Fatalf("permission still active")
	}

	if err := svc.SetPermissionActive(context.Background(), "audit", "purge", false); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestRBACServiceCatalogListing(t *testing.T) {
	roles := newRoleRepoMock()
	permissions := newPermissionRepoMock()
	svc := newRBACFixture(roles, permissions, &auditRepoMock{}, nil)

	if _, err := svc.CreateRole(context.Background(), "auditor", "read-only audit access"); err != nil {
		t.Fatalf("CreateRole returned error: %v", err)
	}
	if _, err := svc.CreatePermission(context.Background(), "audit:read", "audit", "read", ""); err != nil {
		t.Fatalf("CreatePermission returned error: %v", err)
	}
	if err := svc.GrantPermissionToRole(context.Background(), "auditor", "audit", "read"); err != nil {
		t.Fatalf("GrantPermissionToRole returned error: %v", err)
	}
	if err := svc.SetRoleActive(context.Background(), "auditor", false); err != nil {
		t.Fatalf("SetRoleActive returned error: %v", err)
	}

	active, err := svc.ListRoles(context.Background(), false)
	if err != nil {
		t.Fatalf("ListRoles returned error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active roles, got %d", len(active))
	}

	all, err := svc.ListRoles(context.Background(), true)
	if err != nil {
		t.Fatalf("ListRoles returned error: %v", err)
	}
	if len(all) != 1 || all[0].Name != "auditor" {
		t.Fatalf("unexpected role listing: %+v", all)
	}

	perms, err := svc.ListPermissions(context.Background(), true)
	if err != nil {
		t.Fatalf("ListPermissions returned error: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("expected 1 permission, got %d", len(perms))
	}

	granted, err := svc.GetRolePermissions(context.Background(), "auditor")
	if err != nil {
		t.Fatalf("GetRolePermissions returned error: %v", err)
	}
	if len(granted) != 1 || granted[0].Resource != "audit" || granted[0].Action != "read" {
		t.Fatalf("unexpected role permissions: %+v", granted)
	}

	if _, err := svc.GetRolePermissions(context.Background(), "ghost"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
