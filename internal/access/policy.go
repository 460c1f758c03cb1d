// Package access holds the static role/action policy table.
package access

import "anoa.com/studentrecords/internal/entity"

type Action string

const (
	ActionManageStaff       Action = "manage_staff"
	ActionUploadFiles       Action = "upload_files"
	ActionEditStudents      Action = "edit_students"
	ActionManagePermissions Action = "manage_permissions"
	ActionResolveEdits      Action = "resolve_edits"
	ActionViewAuditLog      Action = "view_audit_log"
	ActionBypassGrants      Action = "bypass_grants"
	ActionRequestEdit       Action = "request_edit"
	ActionReceiveGrants     Action = "receive_grants"
	ActionViewStudents      Action = "view_students"
	ActionPostAnnouncements Action = "post_announcements"
)

var allActions = []Action{
	ActionManageStaff,
	ActionUploadFiles,
	ActionEditStudents,
	ActionManagePermissions,
	ActionResolveEdits,
	ActionViewAuditLog,
	ActionBypassGrants,
	ActionRequestEdit,
	ActionReceiveGrants,
	ActionViewStudents,
	ActionPostAnnouncements,
}

var policy = map[Action]map[entity.Role]bool{
	ActionManageStaff:       {entity.RoleAdmin: true},
	ActionUploadFiles:       {entity.RoleAdmin: true},
	ActionEditStudents:      {entity.RoleAdmin: true},
	ActionManagePermissions: {entity.RoleAdmin: true},
	ActionResolveEdits:      {entity.RoleAdmin: true},
	ActionViewAuditLog:      {entity.RoleAdmin: true},
	ActionBypassGrants:      {entity.RoleAdmin: true, entity.RoleHOD: true},
	ActionRequestEdit:       {entity.RoleHOD: true, entity.RoleTeacher: true, entity.RoleGuardian: true},
	ActionReceiveGrants:     {entity.RoleTeacher: true, entity.RoleGuardian: true},
	ActionPostAnnouncements: {entity.RoleAdmin: true, entity.RoleHOD: true},
	ActionViewStudents: {
		entity.RoleAdmin:    true,
		entity.RoleHOD:      true,
		entity.RoleTeacher:  true,
		entity.RoleGuardian: true,
	},
}

// Can reports whether role may perform action. Unknown roles and actions are denied.
func Can(role entity.Role, action Action) bool {
	return policy[action][role]
}

// RolesFor lists the roles allowed to perform action, in a stable order.
func RolesFor(action Action) []entity.Role {
	var roles []entity.Role
	for _, r := range []entity.Role{entity.RoleAdmin, entity.RoleHOD, entity.RoleTeacher, entity.RoleGuardian} {
		if Can(r, action) {
			roles = append(roles, r)
		}
	}
	return roles
}

// ActionsFor lists every action role may perform.
func ActionsFor(role entity.Role) []Action {
	actions := []Action{}
	for _, a := range allActions {
		if Can(role, a) {
			actions = append(actions, a)
		}
	}
	return actions
}
