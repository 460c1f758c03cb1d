package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnnouncementCategory string

const (
	AnnouncementGeneral  AnnouncementCategory = "general"
	AnnouncementExam     AnnouncementCategory = "exam"
	AnnouncementHoliday  AnnouncementCategory = "holiday"
	AnnouncementEvent    AnnouncementCategory = "event"
	AnnouncementUrgent   AnnouncementCategory = "urgent"
	AnnouncementAcademic AnnouncementCategory = "academic"
)

var announcementCategoryLabels = map[AnnouncementCategory]string{
	AnnouncementGeneral:  "General",
	AnnouncementExam:     "Exam",
	AnnouncementHoliday:  "Holiday",
	AnnouncementEvent:    "Event",
	AnnouncementUrgent:   "Urgent",
	AnnouncementAcademic: "Academic",
}

func (c AnnouncementCategory) Valid() bool {
	_, ok := announcementCategoryLabels[c]
	return ok
}

func (c AnnouncementCategory) Label() string {
	if label, ok := announcementCategoryLabels[c]; ok {
		return label
	}
	return string(c)
}

type AnnouncementPriority string

const (
	PriorityLow    AnnouncementPriority = "low"
	PriorityNormal AnnouncementPriority = "normal"
	PriorityHigh   AnnouncementPriority = "high"
)

// AnnouncementVisibility selects the audience of an announcement. Admins see every visibility.
type AnnouncementVisibility string

const (
	VisibilityAll      AnnouncementVisibility = "all"
	VisibilityHOD      AnnouncementVisibility = "hod"
	VisibilityTeacher  AnnouncementVisibility = "teacher"
	VisibilityGuardian AnnouncementVisibility = "guardian"
	VisibilityStaff    AnnouncementVisibility = "staff"
)

// TargetRole returns the single role a role-scoped visibility addresses.
func (v AnnouncementVisibility) TargetRole() (Role, bool) {
	switch v {
	case VisibilityHOD:
		return RoleHOD, true
	case VisibilityTeacher:
		return RoleTeacher, true
	case VisibilityGuardian:
		return RoleGuardian, true
	}
	return "", false
}

type Announcement struct {
	ID         uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	Title      string                 `gorm:"size:255;not null" json:"title"`
	Content    string                 `gorm:"type:text;not null" json:"content"`
	Category   AnnouncementCategory   `gorm:"size:20;not null;index" json:"category"`
	Priority   AnnouncementPriority   `gorm:"size:10;not null" json:"priority"`
	Visibility AnnouncementVisibility `gorm:"size:20;not null;index" json:"visibility"`
	IsPinned   bool                   `gorm:"not null;index" json:"is_pinned"`
	IsActive   bool                   `gorm:"not null;default:true" json:"is_active"`
	AuthorID   *uuid.UUID             `gorm:"type:uuid;index" json:"author_id"`
	Author     *User                  `gorm:"foreignKey:AuthorID;constraint:OnDelete:SET NULL" json:"author,omitempty"`
	ExpiresAt  *time.Time             `json:"expires_at"`
	CreatedAt  time.Time              `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (a *Announcement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Announcement) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// AnnouncementRead records the first time a user opened an announcement.
type AnnouncementRead struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	AnnouncementID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_announcement_reads_user,priority:1" json:"announcement_id"`
	Announcement   *Announcement `gorm:"foreignKey:AnnouncementID;constraint:OnDelete:CASCADE" json:"-"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_announcement_reads_user,priority:2;index" json:"user_id"`
	User           *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	ReadAt         time.Time     `gorm:"not null" json:"read_at"`
}
