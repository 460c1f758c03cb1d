package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHOD      Role = "hod"
	RoleTeacher  Role = "teacher"
	RoleGuardian Role = "guardian"
)

var roleLabels = map[Role]string{
	RoleAdmin:    "Admin",
	RoleHOD:      "HOD",
	RoleTeacher:  "Teacher",
	RoleGuardian: "Teacher Guardian",
}

var roleDashboards = map[Role]string{
	RoleAdmin:    "/admin-panel/",
	RoleHOD:      "/hod-panel/",
	RoleTeacher:  "/teacher-panel/",
	RoleGuardian: "/guardian-panel/",
}

// ParseRole converts user input into a Role, rejecting anything outside the enum.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

// DashboardPath is the post-login redirect target for the role.
func (r Role) DashboardPath() string {
	if p, ok := roleDashboards[r]; ok {
		return p
	}
	return "/dashboard/"
}

// StaffRoles are the non-admin roles that request edits and receive file grants.
func StaffRoles() []Role {
	return []Role{RoleHOD, RoleTeacher, RoleGuardian}
}

type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"size:254;index" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FullName     string     `gorm:"size:255;not null" json:"full_name"`
	Phone        string     `gorm:"size:15" json:"phone"`
	Department   string     `gorm:"size:100;index" json:"department"`
	Role         Role       `gorm:"size:20;index;not null" json:"role"`
	PhotoURL     *string    `gorm:"type:text" json:"photo_url,omitempty"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	CreatedByID  *uuid.UUID `gorm:"type:uuid" json:"created_by_id,omitempty"`
	CreatedBy    *User      `gorm:"foreignKey:CreatedByID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
