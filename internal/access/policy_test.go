package access

import (
	"testing"

	"anoa.com/studentrecords/internal/entity"
	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role   entity.Role
		action Action
		want   bool
	}{
		{entity.RoleAdmin, ActionResolveEdits, true},
		{entity.RoleHOD, ActionResolveEdits, false},
		{entity.RoleAdmin, ActionRequestEdit, false},
		{entity.RoleHOD, ActionRequestEdit, true},
		{entity.RoleTeacher, ActionRequestEdit, true},
		{entity.RoleGuardian, ActionRequestEdit, true},
		{entity.RoleHOD, ActionBypassGrants, true},
		{entity.RoleTeacher, ActionBypassGrants, false},
		{entity.RoleHOD, ActionReceiveGrants, false},
		{entity.RoleGuardian, ActionReceiveGrants, true},
		{entity.RoleTeacher, ActionManagePermissions, false},
		{entity.RoleHOD, ActionPostAnnouncements, true},
		{entity.RoleTeacher, ActionPostAnnouncements, false},
		{entity.Role("student"), ActionViewStudents, false},
		{entity.RoleAdmin, Action("launch_rockets"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.role, tt.action))
		})
	}
}

func TestRolesFor(t *testing.T) {
	assert.Equal(t, []entity.Role{entity.RoleAdmin, entity.RoleHOD}, RolesFor(ActionBypassGrants))
	assert.Equal(t, []entity.Role{entity.RoleHOD, entity.RoleTeacher, entity.RoleGuardian}, RolesFor(ActionRequestEdit))
	assert.Nil(t, RolesFor(Action("nothing")))
}

func TestActionsFor(t *testing.T) {
	assert.Equal(t, []Action{ActionBypassGrants, ActionRequestEdit, ActionViewStudents, ActionPostAnnouncements}, ActionsFor(entity.RoleHOD))
	assert.Equal(t, []Action{ActionRequestEdit, ActionReceiveGrants, ActionViewStudents}, ActionsFor(entity.RoleGuardian))
	assert.Empty(t, ActionsFor(entity.Role("student")))
	assert.NotContains(t, ActionsFor(entity.RoleAdmin), ActionRequestEdit)
}

func TestAnnouncementVisibility(t *testing.T) {
	tests := []struct {
		role       entity.Role
		visibility entity.AnnouncementVisibility
		see        bool
		target     bool
	}{
		{entity.RoleAdmin, entity.VisibilityHOD, true, true},
		{entity.RoleAdmin, entity.VisibilityGuardian, true, true},
		{entity.RoleHOD, entity.VisibilityHOD, true, false},
		{entity.RoleHOD, entity.VisibilityTeacher, false, true},
		{entity.RoleHOD, entity.VisibilityStaff, true, true},
		{entity.RoleTeacher, entity.VisibilityAll, true, false},
		{entity.RoleTeacher, entity.VisibilityGuardian, false, false},
		{entity.RoleGuardian, entity.VisibilityGuardian, true, false},
		{entity.Role("student"), entity.VisibilityAll, false, false},
		{entity.RoleAdmin, entity.AnnouncementVisibility("parents"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.visibility), func(t *testing.T) {
			assert.Equal(t, tt.see, CanSee(tt.role, tt.visibility))
			assert.Equal(t, tt.target, CanTarget(tt.role, tt.visibility))
		})
	}
}
