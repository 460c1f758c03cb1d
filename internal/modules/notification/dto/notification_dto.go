package dto

import (
	"anoa.com/studentrecords/internal/entity"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
)

// Message is the content of one activity notification.
type Message struct {
	Type      entity.NotificationType
	Title     string
	Body      string
	Link      string
	CreatedBy *uuid.UUID
}

type NotificationListResponse struct {
	Data        []entity.Notification    `json:"data"`
	Meta        commonDto.PaginationMeta `json:"meta"`
	UnreadCount int64                    `json:"unread_count"`
}
