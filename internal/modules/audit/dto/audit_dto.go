package dto

import (
	"time"

	"anoa.com/studentrecords/internal/entity"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
)

// Entry is one event to append to the security log.
type Entry struct {
	UserID  *uuid.UUID
	Action  entity.SecurityAction
	Meta    commonDto.RequestMeta
	Details string
}

type AuditLogFilter struct {
	commonDto.PaginationQuery
	Action string `form:"action"`
	UserID string `form:"user_id" binding:"omitempty,uuid"`
	From   string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To     string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	Search string `form:"search"`
}

type AuditLogResponse struct {
	ID        uint                  `json:"id"`
	UserID    *uuid.UUID            `json:"user_id"`
	Username  string                `json:"username,omitempty"`
	Action    entity.SecurityAction `json:"action"`
	IPAddress *string               `json:"ip_address"`
	UserAgent string                `json:"user_agent"`
	Details   string                `json:"details"`
	Timestamp time.Time             `json:"timestamp"`
}

type LoginAttemptResponse struct {
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

type AuditLogListResponse struct {
	Data           []AuditLogResponse       `json:"data"`
	Meta           commonDto.PaginationMeta `json:"meta"`
	RecentAttempts []LoginAttemptResponse   `json:"recent_login_attempts"`
}
