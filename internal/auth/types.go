package auth

import "time"

// User is the identity record. Created on register or first OAuth login;
// never deleted by this subsystem.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named permission bundle from the global catalog.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a (resource, action) pair with a display name.
type Permission struct {
	ID       string   `json:"id"`
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
	Name     string   `json:"name"`
}

// RoleAssignment grants a role to a user. A nil ProjectID is a global grant
// that applies everywhere, including inside every project.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	ProjectID *string   `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectMembership records participation in a project with a specific role.
// Distinct from RoleAssignment: used for coarse membership checks.
type ProjectMembership struct {
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Project carries the fields this subsystem reads; full project CRUD lives
// outside the core.
type Project struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

// GitConnection stores the linked code-hosting credentials for a
// (user, provider) pair. Written by the repo-connect OAuth branch.
type GitConnection struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is the ephemeral login record kept in the key-value store under an
// opaque session id.
type Session struct {
	ID           string    `json:"-"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// ClientMeta carries request metadata recorded on the session.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
