package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Guardian ")
	require.NoError(t, err)
	assert.Equal(t, RoleGuardian, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)

	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestRoleDashboardPath(t *testing.T) {
	assert.Equal(t, "/admin-panel/", RoleAdmin.DashboardPath())
	assert.Equal(t, "/hod-panel/", RoleHOD.DashboardPath())
	assert.Equal(t, "/teacher-panel/", RoleTeacher.DashboardPath())
	assert.Equal(t, "/guardian-panel/", RoleGuardian.DashboardPath())
	assert.Equal(t, "Teacher Guardian", RoleGuardian.Label())
}

func TestEditFieldValid(t *testing.T) {
	assert.True(t, EditFieldPRN.Valid())
	assert.Equal(t, "Parent Phone", EditFieldParentPhone.Label())
	assert.False(t, EditField("salary").Valid())
}
