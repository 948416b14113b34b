package auth

import (
	"context"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestHasPermissionAdminShortCircuit(t *testing.T) {
	store := newMemStore()
	admin := store.addRole(RoleAdmin)
	store.assign("user-admin", admin.ID, nil)

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := context.Background()

	// Global admin passes every check, even for permissions no role holds.
	for _, ref := range []PermissionRef{
		{ResourceProject, ActionDelete},
		{ResourceSystem, ActionAdmin},
		{ResourceReview, ActionApprove},
	} {
		ok, err := resolver.HasPermission(ctx, "user-admin", ref, "")
		if err != nil {
			t.Fatalf("HasPermission(%s): %v", ref, err)
		}
		if !ok {
			t.Fatalf("admin denied %s", ref)
		}
	}
}

func TestHasPermissionNoRoles(t *testing.T) {
	store := newMemStore()
	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}

	ok, err := resolver.HasPermission(context.Background(), "user-nobody",
		PermissionRef{ResourceProject, ActionRead}, "")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Fatal("user with no roles granted permission")
	}
}

func TestHasPermissionScoping(t *testing.T) {
	store := newMemStore()
	reviewer := store.addRole("reviewer",
		PermissionRef{ResourceReview, ActionApprove},
		PermissionRef{ResourceReview, ActionRead},
	)
	viewer := store.addRole("viewer", PermissionRef{ResourceProject, ActionRead})

	// Project-scoped reviewer grant, global viewer grant.
	store.assign("user-1", reviewer.ID, strPtr("proj-a"))
	store.assign("user-1", viewer.ID, nil)

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := context.Background()
	approve := PermissionRef{ResourceReview, ActionApprove}

	ok, err := resolver.HasPermission(ctx, "user-1", approve, "proj-a")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatal("scoped grant not visible inside its project")
	}

	// The scoped grant must not leak into other projects or global scope.
	ok, err = resolver.HasPermission(ctx, "user-1", approve, "proj-b")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Fatal("scoped grant leaked into another project")
	}
	ok, err = resolver.HasPermission(ctx, "user-1", approve, "")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Fatal("scoped grant leaked into global scope")
	}

	// The global viewer grant applies inside every project.
	ok, err = resolver.HasPermission(ctx, "user-1", PermissionRef{ResourceProject, ActionRead}, "proj-b")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatal("global grant not visible inside project")
	}
}

func TestRequire(t *testing.T) {
	store := newMemStore()
	viewer := store.addRole("viewer", PermissionRef{ResourceProject, ActionRead})
	store.assign("user-1", viewer.ID, nil)

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := context.Background()

	if err := resolver.Require(ctx, "user-1", PermissionRef{ResourceProject, ActionRead}, ""); err != nil {
		t.Fatalf("Require: %v", err)
	}
	err = resolver.Require(ctx, "user-1", PermissionRef{ResourceProject, ActionDelete}, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestHasPermissionRejectsUnknownRef(t *testing.T) {
	store := newMemStore()
	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	if _, err := resolver.HasPermission(context.Background(), "user-1",
		PermissionRef{"bogus", "nope"}, ""); err == nil {
		t.Fatal("expected error for unknown permission ref")
	}
}

func TestHasAnyHasAll(t *testing.T) {
	store := newMemStore()
	viewer := store.addRole("viewer",
		PermissionRef{ResourceProject, ActionRead},
		PermissionRef{ResourceReview, ActionRead},
	)
	store.assign("user-1", viewer.ID, nil)

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := context.Background()

	refs := []PermissionRef{
		{ResourceReview, ActionApprove},
		{ResourceProject, ActionRead},
	}
	ok, err := resolver.HasAny(ctx, "user-1", refs, "")
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if !ok {
		t.Fatal("HasAny should pass with one held permission")
	}
	ok, err = resolver.HasAll(ctx, "user-1", refs, "")
	if err != nil {
		t.Fatalf("HasAll: %v", err)
	}
	if ok {
		t.Fatal("HasAll should fail with one missing permission")
	}
	ok, err = resolver.HasAll(ctx, "user-1", []PermissionRef{
		{ResourceProject, ActionRead},
		{ResourceReview, ActionRead},
	}, "")
	if err != nil {
		t.Fatalf("HasAll: %v", err)
	}
	if !ok {
		t.Fatal("HasAll should pass when every permission is held")
	}
}

func TestProjectOwnershipAndMembership(t *testing.T) {
	store := newMemStore()
	store.projects["proj-a"] = &Project{ID: "proj-a", OwnerID: "user-owner", Name: "alpha"}
	maintainer := store.addRole("maintainer")
	store.members["user-member|proj-a"] = []ProjectMembership{
		{UserID: "user-member", ProjectID: "proj-a", RoleID: maintainer.ID},
	}

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := context.Background()

	ok, err := resolver.IsProjectOwner(ctx, "user-owner", "proj-a")
	if err != nil {
		t.Fatalf("IsProjectOwner: %v", err)
	}
	if !ok {
		t.Fatal("owner not recognized")
	}
	ok, err = resolver.IsProjectOwner(ctx, "user-member", "proj-a")
	if err != nil {
		t.Fatalf("IsProjectOwner: %v", err)
	}
	if ok {
		t.Fatal("member reported as owner")
	}
	// A missing project is a clean negative, not an error.
	ok, err = resolver.IsProjectOwner(ctx, "user-owner", "proj-missing")
	if err != nil {
		t.Fatalf("IsProjectOwner: %v", err)
	}
	if ok {
		t.Fatal("missing project reported owned")
	}

	ok, err = resolver.IsProjectMember(ctx, "user-member", "proj-a")
	if err != nil {
		t.Fatalf("IsProjectMember: %v", err)
	}
	if !ok {
		t.Fatal("member not recognized")
	}

	roles, err := resolver.ProjectRoles(ctx, "user-member", "proj-a")
	if err != nil {
		t.Fatalf("ProjectRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "maintainer" {
		t.Fatalf("unexpected project roles: %v", roles)
	}
}

func TestProjectRolesMultiple(t *testing.T) {
	store := newMemStore()
	store.projects["proj-a"] = &Project{ID: "proj-a", OwnerID: "user-owner", Name: "alpha"}
	reviewer := store.addRole("reviewer")
	maintainer := store.addRole("maintainer")
	store.members["user-1|proj-a"] = []ProjectMembership{
		{UserID: "user-1", ProjectID: "proj-a", RoleID: reviewer.ID},
		{UserID: "user-1", ProjectID: "proj-a", RoleID: maintainer.ID},
	}

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := context.Background()

	roles, err := resolver.ProjectRoles(ctx, "user-1", "proj-a")
	if err != nil {
		t.Fatalf("ProjectRoles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected both roles, got %v", roles)
	}
	if roles[0].Name != "maintainer" || roles[1].Name != "reviewer" {
		t.Fatalf("roles not ordered by name: %v", roles)
	}

	roles, err = resolver.ProjectRoles(ctx, "user-1", "proj-other")
	if err != nil {
		t.Fatalf("ProjectRoles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("non-member should have no project roles, got %v", roles)
	}
}

func TestSummary(t *testing.T) {
	store := newMemStore()
	viewer := store.addRole("viewer", PermissionRef{ResourceProject, ActionRead})
	store.assign("user-1", viewer.ID, nil)

	resolver, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}

	summary, err := resolver.Summary(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.IsAdmin {
		t.Fatal("viewer flagged as admin")
	}
	if len(summary.Roles) != 1 || summary.Roles[0] != "viewer" {
		t.Fatalf("unexpected roles: %v", summary.Roles)
	}
	if len(summary.Permissions) != 1 {
		t.Fatalf("unexpected permissions: %v", summary.Permissions)
	}
}

func TestAllowOverride(t *testing.T) {
	store := newMemStore()
	var events []string
	var actors []string
	resolver, err := NewPermissionResolver(store,
		WithAdminOverride("break-glass"),
		WithResolverAuditHook(func(ctx context.Context, event string, fields map[string]any) {
			events = append(events, event)
			if actor, ok := fields["actor"].(string); ok {
				actors = append(actors, actor)
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	ctx := ContextWithUser(context.Background(), "user-ops")

	if !resolver.AllowOverride(ctx, "break-glass") {
		t.Fatal("correct secret rejected")
	}
	if resolver.AllowOverride(ctx, "wrong") {
		t.Fatal("wrong secret accepted")
	}
	if resolver.AllowOverride(ctx, "") {
		t.Fatal("empty secret accepted")
	}
	// Only the successful use reaches the audit sink, with the actor.
	if len(events) != 1 || events[0] != "admin.override" {
		t.Fatalf("unexpected audit events: %v", events)
	}
	if len(actors) != 1 || actors[0] != "user-ops" {
		t.Fatalf("unexpected audit actors: %v", actors)
	}

	unconfigured, err := NewPermissionResolver(store)
	if err != nil {
		t.Fatalf("NewPermissionResolver: %v", err)
	}
	if unconfigured.AllowOverride(ctx, "break-glass") {
		t.Fatal("override accepted without configuration")
	}
}
