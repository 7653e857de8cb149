package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/repository"
)

// Shared in-memory fakes for the service tests. Each fake keeps just enough
// state to observe the calls the services are expected to make.

type userRepoMock struct {
	users       map[string]domain.User
	getErr      error
	updateErr   error
	updatedHash string
	updatedID   string
	lastLoginID string
	lastLoginAt time.Time
}

func newUserRepoMock(users ...domain.User) *userRepoMock {
	m := &userRepoMock{users: make(map[string]domain.User)}
	for _, user := range users {
		m.users[user.ID] = user
	}
	return m
}

func (m *userRepoMock) GetByID(_ context.Context, userID string) (*domain.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if user, ok := m.users[userID]; ok {
		u := user
		return &u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *userRepoMock) UpdatePasswordHash(_ context.Context, userID, passwordHash string, _ time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	user, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	m.users[userID] = user
	m.updatedID = userID
	m.updatedHash = passwordHash
	return nil
}

func (m *userRepoMock) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	if _, ok := m.users[userID]; !ok {
		return repository.ErrNotFound
	}
	m.lastLoginID = userID
	m.lastLoginAt = at
	return nil
}

type sessionRepoMock struct {
	mu       sync.Mutex
	byHash   map[string]domain.Session
	touched  []string
	cres     []domain.Session
	touchErr error
}

func newSessionRepoMock() *sessionRepoMock {
	return &sessionRepoMock{byHash: make(map[string]domain.Session)}
}

func (m *sessionRepoMock) Create(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHash[session.TokenHash] = session
	m.cres = append(m.cres, session)
	return nil
}

func (m *sessionRepoMock) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.byHash[tokenHash]; ok {
		s := session
		return &s, nil
	}
	return nil, repository.ErrNotFound
}

func (m *sessionRepoMock) Touch(_ context.Context, sessionID string, _ time.Time) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, sessionID)
	return nil
}

func (m *sessionRepoMock) UpdateExpiry(_ context.Context, sessionID string, expiresAt, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, session := range m.byHash {
		if session.ID == sessionID {
			session.ExpiresAt = expiresAt
			session.LastAccessed = at
			m.byHash[hash] = session
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *sessionRepoMock) Deactivate(_ context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byHash[tokenHash]
	if !ok || !session.IsActive {
		return false, nil
	}
	session.IsActive = false
	m.byHash[tokenHash] = session
	return true, nil
}

func (m *sessionRepoMock) DeactivateAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for hash, session := range m.byHash {
		if session.UserID == userID && session.IsActive {
			session.IsActive = false
			m.byHash[hash] = session
			count++
		}
	}
	return count, nil
}

func (m *sessionRepoMock) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for hash, session := range m.byHash {
		if session.IsActive && !now.Before(session.ExpiresAt) {
			session.IsActive = false
			m.byHash[hash] = session
			count++
		}
	}
	return count, nil
}

func (m *sessionRepoMock) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []domain.Session
	for _, session := range m.byHash {
		if session.UserID == userID && session.Usable(now) {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

type roleRepoMock struct {
	roles       map[string]domain.Role
	assignments map[string]map[int64]bool
	createErr   error
}

func newRoleRepoMock(roles ...domain.Role) *roleRepoMock {
	m := &roleRepoMock{
		roles:       make(map[string]domain.Role),
		assignments: make(map[string]map[int64]bool),
	}
	for _, role := range roles {
		m.roles[role.Name] = role
	}
	return m
}

func (m *roleRepoMock) Create(_ context.Context, role domain.Role) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	if _, ok := m.roles[role.Name]; ok {
		return 0, repository.ErrConflict
	}
	role.ID = int64(len(m.roles) + 1)
	m.roles[role.Name] = role
	return role.ID, nil
}

func (m *roleRepoMock) GetByID(_ context.Context, id int64) (*domain.Role, error) {
	for _, role := range m.roles {
		if role.ID == id {
			r := role
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoMock) GetByName(_ context.Context, name string) (*domain.Role, error) {
	if role, ok := m.roles[name]; ok {
		r := role
		return &r, nil
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoMock) List(_ context.Context, includeInactive bool) ([]domain.Role, error) {
	var roles []domain.Role
	for _, role := range m.roles {
		if role.IsActive || includeInactive {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *roleRepoMock) SetActive(_ context.Context, id int64, active bool) error {
	for name, role := range m.roles {
		if role.ID == id {
			role.IsActive = active
			m.roles[name] = role
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *roleRepoMock) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	var roles []domain.Role
	for roleID, active := range m.assignments[userID] {
		if !active {
			continue
		}
		for _, role := range m.roles {
			if role.ID == roleID && role.IsActive {
				roles = append(roles, role)
			}
		}
	}
	return roles, nil
}

func (m *roleRepoMock) AssignToUser(_ context.Context, userID string, roleID int64, _ time.Time) (bool, error) {
	if m.assignments[userID] == nil {
		m.assignments[userID] = make(map[int64]bool)
	}
	if m.assignments[userID][roleID] {
		return false, nil
	}
	m.assignments[userID][roleID] = true
	return true, nil
}

func (m *roleRepoMock) RemoveFromUser(_ context.Context, userID string, roleID int64) (bool, error) {
	if !m.assignments[userID][roleID] {
		return false, nil
	}
	m.assignments[userID][roleID] = false
	return true, nil
}

func (m *roleRepoMock) UserHasRole(_ context.Context, userID, roleName string) (bool, error) {
	role, ok := m.roles[roleName]
	if !ok || !role.IsActive {
		return false, nil
	}
	return m.assignments[userID][role.ID], nil
}

type permissionKey struct {
	resource string
	action   string
}

type permissionRepoMock struct {
	permissions map[permissionKey]domain.Permission
	grants      map[int64]map[int64]bool
	userGrants  map[string]map[permissionKey]bool
	checkErr    error
}

func newPermissionRepoMock(permissions ...domain.Permission) *permissionRepoMock {
	m := &permissionRepoMock{
		permissions: make(map[permissionKey]domain.Permission),
		grants:      make(map[int64]map[int64]bool),
		userGrants:  make(map[string]map[permissionKey]bool),
	}
	for _, permission := range permissions {
		m.permissions[permissionKey{permission.Resource, permission.Action}] = permission
	}
	return m
}

func (m *permissionRepoMock) allow(userID, resource, action string) {
	if m.userGrants[userID] == nil {
		m.userGrants[userID] = make(map[permissionKey]bool)
	}
	m.userGrants[userID][permissionKey{resource, action}] = true
}

func (m *permissionRepoMock) Create(_ context.Context, permission domain.Permission) (int64, error) {
	key := permissionKey{permission.Resource, permission.Action}
	if _, ok := m.permissions[key]; ok {
		return 0, repository.ErrConflict
	}
	permission.ID = int64(len(m.permissions) + 1)
	m.permissions[key] = permission
	return permission.ID, nil
}

func (m *permissionRepoMock) GetByResourceAction(_ context.Context, resource, action string) (*domain.Permission, error) {
	if permission, ok := m.permissions[permissionKey{resource, action}]; ok {
		p := permission
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

func (m *permissionRepoMock) List(_ context.Context, includeInactive bool) ([]domain.Permission, error) {
	var permissions []domain.Permission
	for _, permission := range m.permissions {
		if permission.IsActive || includeInactive {
			permissions = append(permissions, permission)
		}
	}
	return permissions, nil
}

func (m *permissionRepoMock) SetActive(_ context.Context, id int64, active bool) error {
	for key, permission := range m.permissions {
		if permission.ID == id {
			permission.IsActive = active
			m.permissions[key] = permission
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *permissionRepoMock) UserHasPermission(_ context.Context, userID, resource, action string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	return m.userGrants[userID][permissionKey{resource, action}], nil
}

func (m *permissionRepoMock) ListByUser(_ context.Context, userID string) ([]domain.Permission, error) {
	var permissions []domain.Permission
	for key, granted := range m.userGrants[userID] {
		if !granted {
			continue
		}
		if permission, ok := m.permissions[key]; ok {
			permissions = append(permissions, permission)
		}
	}
	return permissions, nil
}

func (m *permissionRepoMock) ListByRole(_ context.Context, roleID int64) ([]domain.Permission, error) {
	var permissions []domain.Permission
	for _, permission := range m.permissions {
		if m.grants[roleID][permission.ID] {
			permissions = append(permissions, permission)
		}
	}
	return permissions, nil
}

func (m *permissionRepoMock) GrantToRole(_ context.Context, roleID, permissionID int64) (bool, error) {
	if m.grants[roleID] == nil {
		m.grants[roleID] = make(map[int64]bool)
	}
	if m.grants[roleID][permissionID] {
		return false, nil
	}
	m.grants[roleID][permissionID] = true
	return true, nil
}

type tokenRepoMock struct {
	byHash      map[string]domain.PasswordResetToken
	createErr   error
	markUsedErr error
}

func newTokenRepoMock() *tokenRepoMock {
	return &tokenRepoMock{byHash: make(map[string]domain.PasswordResetToken)}
}

func (m *tokenRepoMock) Create(_ context.Context, token domain.PasswordResetToken) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byHash[token.TokenHash] = token
	return nil
}

func (m *tokenRepoMock) GetByTokenHash(_ context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	if token, ok := m.byHash[tokenHash]; ok {
		t := token
		return &t, nil
	}
	return nil, repository.ErrNotFound
}

func (m *tokenRepoMock) InvalidateUnusedForUser(_ context.Context, userID string, at time.Time) (int, error) {
	count := 0
	for hash, token := range m.byHash {
		if token.UserID == userID && !token.IsUsed {
			token.IsUsed = true
			usedAt := at
			token.UsedAt = &usedAt
			m.byHash[hash] = token
			count++
		}
	}
	return count, nil
}

func (m *tokenRepoMock) MarkUsed(_ context.Context, tokenHash string, at time.Time) (bool, error) {
	if m.markUsedErr != nil {
		return false, m.markUsedErr
	}
	token, ok := m.byHash[tokenHash]
	if !ok || token.IsUsed || !at.Before(token.ExpiresAt) {
		return false, nil
	}
	token.IsUsed = true
	usedAt := at
	token.UsedAt = &usedAt
	m.byHash[tokenHash] = token
	return true, nil
}

func (m *tokenRepoMock) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	count := 0
	for hash, token := range m.byHash {
		if !now.Before(token.ExpiresAt) {
			delete(m.byHash, hash)
			count++
		}
	}
	return count, nil
}

type auditRepoMock struct {
	mu        sync.Mutex
	events    []domain.AuditEvent
	insertErr error
}

func (m *auditRepoMock) Insert(_ context.Context, event domain.AuditEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *auditRepoMock) List(_ context.Context, filter port.AuditFilter) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		event := m.events[i]
		if filter.UserID != "" && (event.UserID == nil || *event.UserID != filter.UserID) {
			continue
		}
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		if !filter.Since.IsZero() && event.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// byType returns recorded events of the given type, oldest first.
func (m *auditRepoMock) byType(eventType domain.EventType) []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, event := range m.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type rateLimitStoreMock struct {
	attempts map[string][]time.Time
	failErr  error
	cleared  []string
}

func newRateLimitStoreMock() *rateLimitStoreMock {
	return &rateLimitStoreMock{attempts: make(map[string][]time.Time)}
}

func (m *rateLimitStoreMock) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *rateLimitStoreMock) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if m.failErr != nil {
		return 0, m.failErr
	}
	count := 0
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) {
			count++
		}
	}
	return count, nil
}

func (m *rateLimitStoreMock) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if m.failErr != nil {
		return m.failErr
	}
	cutoff := reference.Add(-window)
	var kept []time.Time
	for _, at := range m.attempts[identifier] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *rateLimitStoreMock) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if m.failErr != nil {
		return time.Time{}, false, m.failErr
	}
	cutoff := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range m.attempts[identifier] {
		if at.Before(cutoff) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

func (m *rateLimitStoreMock) ClearAttempts(_ context.Context, identifier string) error {
	if m.failErr != nil {
		return m.failErr
	}
	delete(m.attempts, identifier)
	m.cleared = append(m.cleared, identifier)
	return nil
}

type publisherMock struct {
	mu         sync.Mutex
	alerts     []domain.SecurityAlertEvent
	revoked    []domain.SessionRevokedEvent
	resets     []domain.PasswordResetCompletedEvent
	roles      []domain.RoleAssignmentChangedEvent
	publishErr error
}

func (m *publisherMock) PublishSecurityAlert(_ context.Context, event domain.SecurityAlertEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, event)
	return nil
}

func (m *publisherMock) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, event)
	return nil
}

func (m *publisherMock) PublishPasswordResetCompleted(_ context.Context, event domain.PasswordResetCompletedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, event)
	return nil
}

func (m *publisherMock) PublishRoleAssignmentChanged(_ context.Context, event domain.RoleAssignmentChangedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = append(m.roles, event)
	return nil
}

// uowMock runs the supplied function against the same repository set as
// direct calls; transactional atomicity itself is covered by the repository
// integration tests.
type uowMock struct {
	set      port.RepositorySet
	beginErr error
}

func (m *uowMock) WithinTx(_ context.Context, fn func(tx port.RepositorySet) error) error {
	if m.beginErr != nil {
		return m.beginErr
	}
	return fn(m.set)
}

var errStoreDown = errors.New("store down")
