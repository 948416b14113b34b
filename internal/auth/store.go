package auth

import "context"

// Store describes the relational persistence this subsystem consumes. Any
// backend with equality lookups and uniqueness enforcement suffices.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Projects() ProjectStore
	GitConnections() GitConnectionStore
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RoleStore manages the role catalog and role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	Assign(ctx context.Context, assignment RoleAssignment) error
	// AssignmentsFor returns the user's applicable assignments: with a
	// project id, rows scoped to that project plus global rows; without,
	// only global rows.
	AssignmentsFor(ctx context.Context, userID string, projectID *string) ([]RoleAssignment, error)
	// HasGlobalRole reports whether the user holds an unscoped grant of
	// the named role.
	HasGlobalRole(ctx context.Context, userID, roleName string) (bool, error)
}

// PermissionStore manages the permission catalog and role-permission links.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, refs []PermissionRef) error
	// AnyRoleHas reports whether any of the roles carries the permission.
	AnyRoleHas(ctx context.Context, roleIDs []string, ref PermissionRef) (bool, error)
	ForRoles(ctx context.Context, roleIDs []string) ([]Permission, error)
}

// ProjectStore exposes the project fields this subsystem reads.
type ProjectStore interface {
	Find(ctx context.Context, id string) (*Project, error)
	IsMember(ctx context.Context, userID, projectID string) (bool, error)
	// MemberRoles returns every role the user holds through project
	// membership, ordered by role name. Empty when not a member.
	MemberRoles(ctx context.Context, userID, projectID string) ([]Role, error)
}

// GitConnectionStore manages linked code-hosting credentials.
type GitConnectionStore interface {
	Upsert(ctx context.Context, conn *GitConnection) error
	Find(ctx context.Context, userID, provider string) (*GitConnection, error)
	ListProviders(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, userID, provider string) error
}
