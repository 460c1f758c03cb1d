package dto

import (
	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	userDto "anoa.com/studentrecords/internal/modules/user/dto"
)

// DashboardView is everything a role dashboard renders on first load.
type DashboardView struct {
	User                userDto.UserResponse `json:"user"`
	Role                entity.Role          `json:"role"`
	RoleLabel           string               `json:"role_label"`
	RedirectTo          string               `json:"redirect_to"`
	Capabilities        []access.Action      `json:"capabilities"`
	PendingEditRequests int64                `json:"pending_edit_requests"`
	UnreadNotifications int64                `json:"unread_notifications"`
	AccessibleFiles     int64                `json:"accessible_files"`
	UnreadAnnouncements int64                `json:"unread_announcements"`
}
