package dto

import (
	"time"

	"anoa.com/studentrecords/internal/entity"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
)

type AnnouncementRequest struct {
	Title      string     `json:"title" binding:"required,max=255"`
	Content    string     `json:"content" binding:"required,max=10000"`
	Category   string     `json:"category" binding:"omitempty,oneof=general exam holiday event urgent academic"`
	Priority   string     `json:"priority" binding:"omitempty,oneof=low normal high"`
	Visibility string     `json:"visibility" binding:"omitempty,oneof=all hod teacher guardian staff"`
	IsPinned   bool       `json:"is_pinned"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type AnnouncementFilter struct {
	commonDto.PaginationQuery
	Category string `form:"category" binding:"omitempty,oneof=general exam holiday event urgent academic"`
	Search   string `form:"search"`
}

type AuthorSummary struct {
	ID       uuid.UUID   `json:"id"`
	FullName string      `json:"full_name"`
	Role     entity.Role `json:"role"`
}

type AnnouncementResponse struct {
	ID            uuid.UUID                     `json:"id"`
	Title         string                        `json:"title"`
	Content       string                        `json:"content"`
	Category      entity.AnnouncementCategory   `json:"category"`
	CategoryLabel string                        `json:"category_label"`
	Priority      entity.AnnouncementPriority   `json:"priority"`
	Visibility    entity.AnnouncementVisibility `json:"visibility"`
	IsPinned      bool                          `json:"is_pinned"`
	IsRead        bool                          `json:"is_read"`
	IsExpired     bool                          `json:"is_expired"`
	Author        *AuthorSummary                `json:"author,omitempty"`
	ExpiresAt     *time.Time                    `json:"expires_at,omitempty"`
	CreatedAt     time.Time                     `json:"created_at"`
	UpdatedAt     time.Time                     `json:"updated_at"`
}

type AnnouncementListResponse struct {
	Data        []AnnouncementResponse   `json:"data"`
	Meta        commonDto.PaginationMeta `json:"meta"`
	UnreadCount int64                    `json:"unread_count"`
}

func NewAnnouncementResponse(a *entity.Announcement, read bool, now time.Time) AnnouncementResponse {
	resp := AnnouncementResponse{
		ID:            a.ID,
		Title:         a.Title,
		Content:       a.Content,
		Category:      a.Category,
		CategoryLabel: a.Category.Label(),
		Priority:      a.Priority,
		Visibility:    a.Visibility,
		IsPinned:      a.IsPinned,
		IsRead:        read,
		IsExpired:     a.Expired(now),
		ExpiresAt:     a.ExpiresAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Author != nil {
		resp.Author = &AuthorSummary{ID: a.Author.ID, FullName: a.Author.FullName, Role: a.Author.Role}
	}
	return resp
}
