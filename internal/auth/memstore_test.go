package auth

import (
	"context"
	"sort"
	"sync"

	"reviewhub.org/internal/ids"
)

// memStore is an in-memory Store used by tests.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*User
	roles       map[string]*Role
	permissions map[PermissionRef]Permission
	assignments []RoleAssignment
	rolePerms   map[string]map[PermissionRef]struct{}
	projects    map[string]*Project
	members     map[string][]ProjectMembership // key user|project, one entry per role
	gitConns    map[string]*GitConnection      // key user|provider
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		permissions: make(map[PermissionRef]Permission),
		rolePerms:   make(map[string]map[PermissionRef]struct{}),
		projects:    make(map[string]*Project),
		members:     make(map[string][]ProjectMembership),
		gitConns:    make(map[string]*GitConnection),
	}
}

func (m *memStore) Users() UserStore                   { return (*memUsers)(m) }
func (m *memStore) Roles() RoleStore                   { return (*memRoles)(m) }
func (m *memStore) Permissions() PermissionStore       { return (*memPerms)(m) }
func (m *memStore) Projects() ProjectStore             { return (*memProjects)(m) }
func (m *memStore) GitConnections() GitConnectionStore { return (*memGit)(m) }

// addRole is a test helper: creates the role and grants it the refs.
func (m *memStore) addRole(name string, refs ...PermissionRef) *Role {
	role := &Role{ID: ids.New(), Name: name}
	m.roles[role.ID] = role
	grants := make(map[PermissionRef]struct{}, len(refs))
	for _, ref := range refs {
		grants[ref] = struct{}{}
	}
	m.rolePerms[role.ID] = grants
	return role
}

func (m *memStore) assign(userID, roleID string, projectID *string) {
	m.assignments = append(m.assignments, RoleAssignment{
		UserID: userID, RoleID: roleID, ProjectID: projectID,
	})
}

type memUsers memStore

func (m *memUsers) Create(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memRoles memStore

func (m *memRoles) Create(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	m.roles[role.ID] = role
	return nil
}

func (m *memRoles) Find(ctx context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *memRoles) FindByName(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRoles) Assign(ctx context.Context, assignment RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, assignment)
	return nil
}

func (m *memRoles) AssignmentsFor(ctx context.Context, userID string, projectID *string) ([]RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []RoleAssignment
	for _, a := range m.assignments {
		if a.UserID != userID {
			continue
		}
		if a.ProjectID == nil {
			res = append(res, a)
			continue
		}
		if projectID != nil && *a.ProjectID == *projectID {
			res = append(res, a)
		}
	}
	return res, nil
}

func (m *memRoles) HasGlobalRole(ctx context.Context, userID, roleName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.UserID != userID || a.ProjectID != nil {
			continue
		}
		if r, ok := m.roles[a.RoleID]; ok && r.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

type memPerms memStore

func (m *memPerms) Ensure(ctx context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		m.permissions[PermissionRef{Resource: p.Resource, Action: p.Action}] = p
	}
	return nil
}

func (m *memPerms) List(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		res = append(res, p)
	}
	return res, nil
}

func (m *memPerms) SetForRole(ctx context.Context, roleID string, refs []PermissionRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	grants := make(map[PermissionRef]struct{}, len(refs))
	for _, ref := range refs {
		grants[ref] = struct{}{}
	}
	m.rolePerms[roleID] = grants
	return nil
}

func (m *memPerms) AnyRoleHas(ctx context.Context, roleIDs []string, ref PermissionRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range roleIDs {
		if _, ok := m.rolePerms[id][ref]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPerms) ForRoles(ctx context.Context, roleIDs []string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[PermissionRef]struct{})
	var res []Permission
	for _, id := range roleIDs {
		for ref := range m.rolePerms[id] {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			if p, ok := m.permissions[ref]; ok {
				res = append(res, p)
			} else {
				res = append(res, Permission{Resource: ref.Resource, Action: ref.Action})
			}
		}
	}
	return res, nil
}

type memProjects memStore

func (m *memProjects) Find(ctx context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *memProjects) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[userID+"|"+projectID]
	return ok, nil
}

func (m *memProjects) MemberRoles(ctx context.Context, userID, projectID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Role
	for _, membership := range m.members[userID+"|"+projectID] {
		if role, ok := m.roles[membership.RoleID]; ok {
			res = append(res, *role)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

type memGit memStore

func (m *memGit) Upsert(ctx context.Context, conn *GitConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conn
	m.gitConns[conn.UserID+"|"+conn.Provider] = &cp
	return nil
}

func (m *memGit) Find(ctx context.Context, userID, provider string) (*GitConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.gitConns[userID+"|"+provider]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (m *memGit) ListProviders(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []string
	for _, conn := range m.gitConns {
		if conn.UserID == userID {
			res = append(res, conn.Provider)
		}
	}
	return res, nil
}

func (m *memGit) Delete(ctx context.Context, userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "|" + provider
	if _, ok := m.gitConns[key]; !ok {
		return ErrNotFound
	}
	delete(m.gitConns, key)
	return nil
}
