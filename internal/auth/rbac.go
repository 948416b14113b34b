package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"reviewhub.org/internal/obs"
)

// PermissionResolver answers resource/action permission checks, globally or
// within a project. Store errors always propagate so callers fail closed.
type PermissionResolver struct {
	store          Store
	overrideSecret []byte
	log            *slog.Logger
	audit          func(ctx context.Context, event string, fields map[string]any)
}

// ResolverOption configures PermissionResolver.
type ResolverOption func(*PermissionResolver)

// WithAdminOverride enables the break-glass pre-shared secret. Empty
// disables the escape hatch entirely.
func WithAdminOverride(secret string) ResolverOption {
	return func(r *PermissionResolver) {
		if secret = strings.TrimSpace(secret); secret != "" {
			r.overrideSecret = []byte(secret)
		}
	}
}

// WithResolverLogger sets the logger used for override audit lines.
func WithResolverLogger(log *slog.Logger) ResolverOption {
	return func(r *PermissionResolver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithResolverAuditHook attaches a sink for break-glass override events.
func WithResolverAuditHook(fn func(ctx context.Context, event string, fields map[string]any)) ResolverOption {
	return func(r *PermissionResolver) {
		r.audit = fn
	}
}

// NewPermissionResolver constructs a PermissionResolver.
func NewPermissionResolver(store Store, opts ...ResolverOption) (*PermissionResolver, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	r := &PermissionResolver{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HasPermission resolves whether the user holds the permission. An empty
// projectID checks the global scope only; a project id includes global
// grants, which apply everywhere. The global admin role short-circuits.
func (r *PermissionResolver) HasPermission(ctx context.Context, userID string, ref PermissionRef, projectID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := ValidateRef(ref); err != nil {
		return false, err
	}

	admin, err := r.store.Roles().HasGlobalRole(ctx, userID, RoleAdmin)
	if err != nil {
		return false, err
	}
	if admin {
		obs.PermissionChecksTotal.WithLabelValues("granted").Inc()
		return true, nil
	}

	assignments, err := r.store.Roles().AssignmentsFor(ctx, userID, scope(projectID))
	if err != nil {
		return false, err
	}
	if len(assignments) == 0 {
		obs.PermissionChecksTotal.WithLabelValues("denied").Inc()
		return false, nil
	}
	roleIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roleIDs = append(roleIDs, a.RoleID)
	}
	ok, err := r.store.Permissions().AnyRoleHas(ctx, roleIDs, ref)
	if err != nil {
		return false, err
	}
	if ok {
		obs.PermissionChecksTotal.WithLabelValues("granted").Inc()
	} else {
		obs.PermissionChecksTotal.WithLabelValues("denied").Inc()
	}
	return ok, nil
}

// Require is HasPermission in error form, for callers gating an operation.
func (r *PermissionResolver) Require(ctx context.Context, userID string, ref PermissionRef, projectID string) error {
	ok, err := r.HasPermission(ctx, userID, ref, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, ref)
	}
	return nil
}

// HasAny reports whether the user holds at least one of the permissions,
// exiting on the first satisfying check.
func (r *PermissionResolver) HasAny(ctx context.Context, userID string, refs []PermissionRef, projectID string) (bool, error) {
	for _, ref := range refs {
		ok, err := r.HasPermission(ctx, userID, ref, projectID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every permission, exiting on the
// first failing check.
func (r *PermissionResolver) HasAll(ctx context.Context, userID string, refs []PermissionRef, projectID string) (bool, error) {
	for _, ref := range refs {
		ok, err := r.HasPermission(ctx, userID, ref, projectID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsAdmin reports whether the user holds the global admin role.
func (r *PermissionResolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return r.store.Roles().HasGlobalRole(ctx, userID, RoleAdmin)
}

// IsProjectOwner compares the project's owner id. Ownership checks sit
// alongside the permission matrix on purpose: some operations are
// owner-or-admin gated rather than matrix gated.
func (r *PermissionResolver) IsProjectOwner(ctx context.Context, userID, projectID string) (bool, error) {
	project, err := r.store.Projects().Find(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return project.OwnerID == userID, nil
}

// IsProjectMember reports whether a membership row exists.
func (r *PermissionResolver) IsProjectMember(ctx context.Context, userID, projectID string) (bool, error) {
	return r.store.Projects().IsMember(ctx, userID, projectID)
}

// ProjectRoles returns the roles the user holds through project membership,
// ordered by name. A user may hold several roles in the same project.
func (r *PermissionResolver) ProjectRoles(ctx context.Context, userID, projectID string) ([]Role, error) {
	return r.store.Projects().MemberRoles(ctx, userID, projectID)
}

// PermissionSummary describes a user's resolved access in one scope.
type PermissionSummary struct {
	UserID      string       `json:"user_id"`
	Roles       []string     `json:"roles"`
	Permissions []Permission `json:"permissions"`
	IsAdmin     bool         `json:"is_admin"`
}

// Summary resolves the user's roles and deduplicated permissions for the
// given scope.
func (r *PermissionResolver) Summary(ctx context.Context, userID, projectID string) (PermissionSummary, error) {
	assignments, err := r.store.Roles().AssignmentsFor(ctx, userID, scope(projectID))
	if err != nil {
		return PermissionSummary{}, err
	}
	summary := PermissionSummary{UserID: userID}
	if len(assignments) == 0 {
		return summary, nil
	}
	roleIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roleIDs = append(roleIDs, a.RoleID)
	}
	seenRoles := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		if _, ok := seenRoles[id]; ok {
			continue
		}
		seenRoles[id] = struct{}{}
		role, err := r.store.Roles().Find(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return PermissionSummary{}, err
		}
		summary.Roles = append(summary.Roles, role.Name)
		if role.Name == RoleAdmin && assignmentIsGlobal(assignments, id) {
			summary.IsAdmin = true
		}
	}
	perms, err := r.store.Permissions().ForRoles(ctx, roleIDs)
	if err != nil {
		return PermissionSummary{}, err
	}
	seen := make(map[PermissionRef]struct{}, len(perms))
	for _, p := range perms {
		ref := PermissionRef{Resource: p.Resource, Action: p.Action}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		summary.Permissions = append(summary.Permissions, p)
	}
	return summary, nil
}

// AllowOverride compares the presented break-glass secret in constant time.
// Every successful use is logged; this is an operational escape hatch, not a
// normal authorization path.
func (r *PermissionResolver) AllowOverride(ctx context.Context, presented string) bool {
	if len(r.overrideSecret) == 0 || presented == "" {
		return false
	}
	if subtle.ConstantTimeCompare(r.overrideSecret, []byte(presented)) != 1 {
		return false
	}
	actor := "unknown"
	if id, ok := UserIDFromContext(ctx); ok {
		actor = id
	}
	r.log.Warn("admin override secret used", "actor", actor)
	if r.audit != nil {
		r.audit(ctx, "admin.override", map[string]any{"actor": actor})
	}
	return true
}

// OverrideEnabled reports whether a break-glass secret is configured.
func (r *PermissionResolver) OverrideEnabled() bool {
	return len(r.overrideSecret) > 0
}

func scope(projectID string) *string {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil
	}
	return &projectID
}

func assignmentIsGlobal(assignments []RoleAssignment, roleID string) bool {
	for _, a := range assignments {
		if a.RoleID == roleID && a.ProjectID == nil {
			return true
		}
	}
	return false
}
