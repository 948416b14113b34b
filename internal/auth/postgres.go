package auth

import (
	"context"
	"database/sql"

	"reviewhub.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore                   { return &userStore{db: s.db} }
func (s *PGStore) Roles() RoleStore                   { return &roleStore{db: s.db} }
func (s *PGStore) Permissions() PermissionStore       { return &permissionStore{db: s.db} }
func (s *PGStore) Projects() ProjectStore             { return &projectStore{db: s.db} }
func (s *PGStore) GitConnections() GitConnectionStore { return &gitConnectionStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash) values($1,$2,$3)`,
		u.ID, u.Email, u.PasswordHash,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, email, password_hash, created_at, updated_at from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, email, password_hash, created_at, updated_at from users where email=$1`, email))
}

func (s *userStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, name, description) values($1,$2,$3)
		 on conflict (name) do update set description=excluded.description`,
		role.ID, role.Name, role.Description,
	)
	return err
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from roles where id=$1`, id))
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from roles where name=$1`, name))
}

func (s *roleStore) scanOne(row *sql.Row) (*Role, error) {
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) Assign(ctx context.Context, assignment RoleAssignment) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id, project_id) values($1,$2,$3)
		 on conflict do nothing`,
		assignment.UserID, assignment.RoleID, assignment.ProjectID,
	)
	return err
}

func (s *roleStore) AssignmentsFor(ctx context.Context, userID string, projectID *string) ([]RoleAssignment, error) {
	// Global rows (null project) always apply; project rows only in scope.
	query := `select user_id, role_id, project_id, created_at from user_roles
		 where user_id=$1 and project_id is null`
	args := []any{userID}
	if projectID != nil {
		query = `select user_id, role_id, project_id, created_at from user_roles
		 where user_id=$1 and (project_id=$2 or project_id is null)`
		args = append(args, *projectID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.ProjectID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *roleStore) HasGlobalRole(ctx context.Context, userID, roleName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
			select 1 from user_roles ur
			join roles r on r.id = ur.role_id
			where ur.user_id=$1 and r.name=$2 and ur.project_id is null
		 )`, userID, roleName,
	).Scan(&exists)
	return exists, err
}

// Permission store ---------------------------------------------------------
type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx,
			`insert into permissions(id, resource, action, name) values($1,$2,$3,$4)
			 on conflict (resource, action) do update set name=excluded.name`,
			id, p.Resource, p.Action, p.Name,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, resource, action, name from permissions order by resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.Name); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, refs []PermissionRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions(role_id, permission_id)
			 select $1, id from permissions where resource=$2 and action=$3`,
			roleID, ref.Resource, ref.Action,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) AnyRoleHas(ctx context.Context, roleIDs []string, ref PermissionRef) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
			select 1 from role_permissions rp
			join permissions p on p.id = rp.permission_id
			where rp.role_id = any($1) and p.resource=$2 and p.action=$3
		 )`, roleIDs, ref.Resource, ref.Action,
	).Scan(&exists)
	return exists, err
}

func (s *permissionStore) ForRoles(ctx context.Context, roleIDs []string) ([]Permission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`select distinct p.id, p.resource, p.action, p.name
		 from role_permissions rp
		 join permissions p on p.id = rp.permission_id
		 where rp.role_id = any($1)
		 order by p.resource, p.action`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.Name); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// Project store ------------------------------------------------------------
type projectStore struct{ db *sql.DB }

func (s *projectStore) Find(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`select id, owner_id, name from projects where id=$1`, id,
	).Scan(&p.ID, &p.OwnerID, &p.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *projectStore) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
			select 1 from project_members where user_id=$1 and project_id=$2
		 )`, userID, projectID,
	).Scan(&exists)
	return exists, err
}

func (s *projectStore) MemberRoles(ctx context.Context, userID, projectID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.id, r.name, r.description, r.created_at
		 from project_members pm
		 join roles r on r.id = pm.role_id
		 where pm.user_id=$1 and pm.project_id=$2
		 order by r.name`, userID, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// Git connection store -----------------------------------------------------
type gitConnectionStore struct{ db *sql.DB }

func (s *gitConnectionStore) Upsert(ctx context.Context, conn *GitConnection) error {
	var expires any
	if !conn.ExpiresAt.IsZero() {
		expires = conn.ExpiresAt
	}
	_, err := s.db.ExecContext(ctx,
		`insert into git_connections(user_id, provider, access_token, refresh_token, expires_at)
		 values($1,$2,$3,$4,$5)
		 on conflict (user_id, provider) do update set
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_at=excluded.expires_at,
			updated_at=now()`,
		conn.UserID, conn.Provider, conn.AccessToken, conn.RefreshToken, expires,
	)
	return err
}

func (s *gitConnectionStore) Find(ctx context.Context, userID, provider string) (*GitConnection, error) {
	var (
		conn    GitConnection
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`select user_id, provider, access_token, refresh_token, expires_at, created_at, updated_at
		 from git_connections where user_id=$1 and provider=$2`, userID, provider,
	).Scan(&conn.UserID, &conn.Provider, &conn.AccessToken, &conn.RefreshToken, &expires, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expires.Valid {
		conn.ExpiresAt = expires.Time
	}
	return &conn, nil
}

func (s *gitConnectionStore) ListProviders(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select provider from git_connections where user_id=$1 order by provider`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var provider string
		if err := rows.Scan(&provider); err != nil {
			return nil, err
		}
		res = append(res, provider)
	}
	return res, rows.Err()
}

func (s *gitConnectionStore) Delete(ctx context.Context, userID, provider string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from git_connections where user_id=$1 and provider=$2`, userID, provider)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
