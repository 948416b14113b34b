package auth

import "fmt"

// Resource identifies a protected resource class in the permission matrix.
type Resource string

// Action identifies an operation on a resource.
type Action string

const (
	ResourceProject    Resource = "project"
	ResourceReview     Resource = "review"
	ResourceComment    Resource = "comment"
	ResourceUser       Resource = "user"
	ResourceRole       Resource = "role"
	ResourcePermission Resource = "permission"
	ResourceSystem     Resource = "system"
)

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionManage        Action = "manage"
	ActionManageMembers Action = "manage_members"
	ActionAdmin         Action = "admin"
)

// RoleAdmin is the role name whose global grant short-circuits every
// permission check.
const RoleAdmin = "admin"

// PermissionRef is a (resource, action) pair used in permission checks.
// Refs are validated against the catalog so typos surface at boot, not at
// request time.
type PermissionRef struct {
	Resource Resource
	Action   Action
}

func (r PermissionRef) String() string {
	return string(r.Resource) + ":" + string(r.Action)
}

// BuiltinPermissions is the static permission catalog. It is configuration,
// not user-editable at runtime.
var BuiltinPermissions = []Permission{
	{Resource: ResourceProject, Action: ActionRead, Name: "View Project"},
	{Resource: ResourceProject, Action: ActionCreate, Name: "Create Project"},
	{Resource: ResourceProject, Action: ActionUpdate, Name: "Update Project"},
	{Resource: ResourceProject, Action: ActionDelete, Name: "Delete Project"},
	{Resource: ResourceProject, Action: ActionManageMembers, Name: "Manage Project Members"},

	{Resource: ResourceReview, Action: ActionRead, Name: "View Review"},
	{Resource: ResourceReview, Action: ActionCreate, Name: "Create Review"},
	{Resource: ResourceReview, Action: ActionUpdate, Name: "Update Review"},
	{Resource: ResourceReview, Action: ActionDelete, Name: "Delete Review"},
	{Resource: ResourceReview, Action: ActionApprove, Name: "Approve Review"},
	{Resource: ResourceReview, Action: ActionReject, Name: "Reject Review"},

	{Resource: ResourceComment, Action: ActionRead, Name: "View Comment"},
	{Resource: ResourceComment, Action: ActionCreate, Name: "Create Comment"},
	{Resource: ResourceComment, Action: ActionUpdate, Name: "Update Comment"},
	{Resource: ResourceComment, Action: ActionDelete, Name: "Delete Comment"},

	{Resource: ResourceUser, Action: ActionRead, Name: "View User"},
	{Resource: ResourceUser, Action: ActionUpdate, Name: "Update User"},
	{Resource: ResourceUser, Action: ActionDelete, Name: "Delete User"},
	{Resource: ResourceUser, Action: ActionManage, Name: "Manage Users"},

	{Resource: ResourceRole, Action: ActionRead, Name: "View Role"},
	{Resource: ResourceRole, Action: ActionCreate, Name: "Create Role"},
	{Resource: ResourceRole, Action: ActionUpdate, Name: "Update Role"},
	{Resource: ResourceRole, Action: ActionDelete, Name: "Delete Role"},
	{Resource: ResourceRole, Action: ActionManage, Name: "Manage Roles"},

	{Resource: ResourcePermission, Action: ActionRead, Name: "View Permission"},
	{Resource: ResourcePermission, Action: ActionManage, Name: "Manage Permissions"},

	{Resource: ResourceSystem, Action: ActionAdmin, Name: "System Administration"},
}

var catalogIndex = func() map[PermissionRef]struct{} {
	idx := make(map[PermissionRef]struct{}, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		idx[PermissionRef{Resource: p.Resource, Action: p.Action}] = struct{}{}
	}
	return idx
}()

// ValidateRef reports whether ref exists in the catalog.
func ValidateRef(ref PermissionRef) error {
	if _, ok := catalogIndex[ref]; !ok {
		return fmt.Errorf("%w: unknown permission %s", ErrInvalidInput, ref)
	}
	return nil
}

// ValidateRefs checks a set of refs against the catalog. Run at startup over
// every ref the application wires so typos fail the boot, not the request.
func ValidateRefs(refs ...PermissionRef) error {
	for _, ref := range refs {
		if err := ValidateRef(ref); err != nil {
			return err
		}
	}
	return nil
}
