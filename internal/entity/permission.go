package entity

import (
	"time"

	"github.com/google/uuid"
)

// FilePermission grants one user read access to one student file.
type FilePermission struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	UserID        uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_file_permissions_user_file,priority:1" json:"user_id"`
	User          *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	StudentFileID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_file_permissions_user_file,priority:2;index" json:"student_file_id"`
	StudentFile   *StudentFile `gorm:"foreignKey:StudentFileID;constraint:OnDelete:CASCADE" json:"student_file,omitempty"`
	GrantedByID   *uuid.UUID   `gorm:"type:uuid" json:"granted_by_id"`
	GrantedBy     *User        `gorm:"foreignKey:GrantedByID;constraint:OnDelete:SET NULL" json:"-"`
	GrantedAt     time.Time    `gorm:"autoCreateTime" json:"granted_at"`
}
