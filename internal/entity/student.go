package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StudentStatus string

const (
	StudentStatusNormal   StudentStatus = "normal"
	StudentStatusMarked   StudentStatus = "marked"
	StudentStatusResolved StudentStatus = "resolved"
)

// StudentFile is one uploaded class roster.
type StudentFile struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FileName      string     `gorm:"size:255;not null" json:"file_name"`
	ClassName     string     `gorm:"size:100;not null;index" json:"class_name"`
	Division      string     `gorm:"size:10;not null;index" json:"division"`
	Year          string     `gorm:"size:50;not null;index" json:"year"`
	AcademicYear  string     `gorm:"size:20;not null;index" json:"academic_year"`
	Section       string     `gorm:"size:50" json:"section"`
	TotalStudents int        `gorm:"not null;default:0" json:"total_students"`
	UploadedByID  *uuid.UUID `gorm:"type:uuid" json:"uploaded_by_id"`
	UploadedBy    *User      `gorm:"foreignKey:UploadedByID;constraint:OnDelete:SET NULL" json:"-"`
	UploadDate    time.Time  `gorm:"autoCreateTime" json:"upload_date"`
	IsActive      bool       `gorm:"not null;index" json:"is_active"`
}

func (f *StudentFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

type Student struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	FileID      uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_students_file_roll,priority:1" json:"file_id"`
	File        *StudentFile  `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"file,omitempty"`
	RollNo      string        `gorm:"size:10;not null;uniqueIndex:idx_students_file_roll,priority:2" json:"roll_no"`
	PRN         string        `gorm:"column:prn;size:30;index" json:"prn"`
	FullName    string        `gorm:"size:255;not null;index" json:"full_name"`
	Phone       string        `gorm:"size:15" json:"phone"`
	Email       string        `gorm:"size:254" json:"email"`
	ParentName  string        `gorm:"size:255" json:"parent_name"`
	ParentPhone string        `gorm:"size:15" json:"parent_phone"`
	Address     string        `gorm:"type:text" json:"address"`
	ClassName   string        `gorm:"size:100" json:"class_name"`
	Division    string        `gorm:"size:10" json:"division"`
	Year        string        `gorm:"size:50" json:"year"`
	Status      StudentStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = StudentStatusNormal
	}
	return nil
}
