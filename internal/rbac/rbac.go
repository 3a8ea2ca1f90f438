// Package rbac defines document roles and the actions they allow.
package rbac

const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
)

type Action string

const (
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionRename Action = "rename"
	ActionInvite Action = "invite"
	ActionDelete Action = "delete"
)

var rolePermissions = map[string]map[Action]bool{
	RoleOwner: {
		ActionView:   true,
		ActionEdit:   true,
		ActionRename: true,
		ActionInvite: true,
		ActionDelete: true,
	},
	RoleEditor: {
		ActionView: true,
		ActionEdit: true,
	},
}

// Can reports whether a role permits an action. Unknown roles permit
// nothing.
func Can(role string, action Action) bool {
	return rolePermissions[role][action]
}
