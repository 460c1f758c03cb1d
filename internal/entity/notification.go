package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationFileAssigned      NotificationType = "file_assigned"
	NotificationFileUploaded      NotificationType = "file_uploaded"
	NotificationAnnouncement      NotificationType = "announcement"
	NotificationPermissionGranted NotificationType = "permission_granted"
	NotificationPermissionRevoked NotificationType = "permission_revoked"
	NotificationEditRequested     NotificationType = "edit_requested"
	NotificationEditResolved      NotificationType = "edit_resolved"
	NotificationStaffCreated      NotificationType = "staff_created"
	NotificationPasswordChanged   NotificationType = "password_changed"
	NotificationGeneral           NotificationType = "general"
)

// Notification is an in-app activity message for a single recipient.
type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_recipient_read,priority:1" json:"recipient_id"`
	Recipient   *User            `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
	Type        NotificationType `gorm:"size:30;not null;index" json:"type"`
	Title       string           `gorm:"size:255;not null" json:"title"`
	Message     string           `gorm:"type:text" json:"message"`
	Link        string           `gorm:"size:255" json:"link"`
	IsRead      bool             `gorm:"not null;index:idx_notifications_recipient_read,priority:2" json:"is_read"`
	// SenderID is stored as created_by_id. The Go name must differ from
	// User.CreatedByID or gorm reads CreatedBy as a has-one from users.
	SenderID  *uuid.UUID `gorm:"type:uuid;column:created_by_id" json:"created_by_id,omitempty"`
	CreatedBy *User      `gorm:"foreignKey:SenderID;constraint:OnDelete:SET NULL" json:"created_by,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
