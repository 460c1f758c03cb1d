package entity

import (
	"time"

	"github.com/google/uuid"
)

// LoginAttempt is written once per login submission and never changed.
type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;not null;index" json:"username"`
	IPAddress string    `gorm:"size:45;not null" json:"ip_address"`
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	Success   bool      `gorm:"not null" json:"success"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

// AccountLockout holds the failed-attempt counter for one submitted username.
type AccountLockout struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Username       string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	FailedAttempts int        `gorm:"not null;default:0" json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until"`
	LastFailed     *time.Time `json:"last_failed"`
}

type SecurityAction string

const (
	ActionLogin               SecurityAction = "login"
	ActionLogout              SecurityAction = "logout"
	ActionLoginFailed         SecurityAction = "login_failed"
	ActionPasswordChange      SecurityAction = "password_change"
	ActionUserCreate          SecurityAction = "user_create"
	ActionUserEdit            SecurityAction = "user_edit"
	ActionUserDelete          SecurityAction = "user_delete"
	ActionFileUpload          SecurityAction = "file_upload"
	ActionFileDelete          SecurityAction = "file_delete"
	ActionStudentEdit         SecurityAction = "student_edit"
	ActionStudentDelete       SecurityAction = "student_delete"
	ActionPermissionChange    SecurityAction = "permission_change"
	ActionMarkEdit            SecurityAction = "mark_edit"
	ActionResolveEdit         SecurityAction = "resolve_edit"
	ActionDismissNotification SecurityAction = "dismiss_notification"
	ActionUnauthorizedAccess  SecurityAction = "unauthorized_access"
	ActionAnnouncementCreate  SecurityAction = "announcement_create"
	ActionAnnouncementEdit    SecurityAction = "announcement_edit"
	ActionAnnouncementDelete  SecurityAction = "announcement_delete"
)

var securityActions = map[SecurityAction]struct{}{
	ActionLogin: {}, ActionLogout: {}, ActionLoginFailed: {}, ActionPasswordChange: {},
	ActionUserCreate: {}, ActionUserEdit: {}, ActionUserDelete: {}, ActionFileUpload: {},
	ActionFileDelete: {}, ActionStudentEdit: {}, ActionStudentDelete: {},
	ActionPermissionChange: {}, ActionMarkEdit: {}, ActionResolveEdit: {},
	ActionDismissNotification: {}, ActionUnauthorizedAccess: {},
	ActionAnnouncementCreate: {}, ActionAnnouncementEdit: {}, ActionAnnouncementDelete: {},
}

func (a SecurityAction) Valid() bool {
	_, ok := securityActions[a]
	return ok
}

// SecurityLog is an append-only audit row. UserID is a weak reference.
type SecurityLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	User      *User          `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"user,omitempty"`
	Action    SecurityAction `gorm:"size:50;not null;index" json:"action"`
	IPAddress *string        `gorm:"size:45" json:"ip_address"`
	UserAgent string         `gorm:"type:text" json:"user_agent"`
	Details   string         `gorm:"type:text" json:"details"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
}
