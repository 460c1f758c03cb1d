package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EditRequestStatus string

const (
	EditRequestPending   EditRequestStatus = "pending"
	EditRequestResolved  EditRequestStatus = "resolved"
	EditRequestDismissed EditRequestStatus = "dismissed"
)

func (s EditRequestStatus) Valid() bool {
	switch s {
	case EditRequestPending, EditRequestResolved, EditRequestDismissed:
		return true
	}
	return false
}

// EditField names the student field a staff member asks to change.
type EditField string

const (
	EditFieldFullName    EditField = "full_name"
	EditFieldPhone       EditField = "phone"
	EditFieldEmail       EditField = "email"
	EditFieldParentName  EditField = "parent_name"
	EditFieldParentPhone EditField = "parent_phone"
	EditFieldAddress     EditField = "address"
	EditFieldRollNo      EditField = "roll_no"
	EditFieldPRN         EditField = "prn"
	EditFieldOther       EditField = "other"
)

var editFieldLabels = map[EditField]string{
	EditFieldFullName:    "Full Name",
	EditFieldPhone:       "Phone Number",
	EditFieldEmail:       "Email Address",
	EditFieldParentName:  "Parent Name",
	EditFieldParentPhone: "Parent Phone",
	EditFieldAddress:     "Address",
	EditFieldRollNo:      "Roll Number",
	EditFieldPRN:         "PRN Number",
	EditFieldOther:       "Other",
}

func (f EditField) Valid() bool {
	_, ok := editFieldLabels[f]
	return ok
}

func (f EditField) Label() string {
	if label, ok := editFieldLabels[f]; ok {
		return label
	}
	return string(f)
}

// EditRequest is a staff proposal to change a student field, resolved by an admin.
type EditRequest struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"student_id"`
	Student        *Student          `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE" json:"student,omitempty"`
	StudentFileID  uuid.UUID         `gorm:"type:uuid;not null" json:"student_file_id"`
	StudentFile    *StudentFile      `gorm:"foreignKey:StudentFileID;constraint:OnDelete:CASCADE" json:"student_file,omitempty"`
	RequestedByID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"requested_by_id"`
	RequestedBy    *User             `gorm:"foreignKey:RequestedByID;constraint:OnDelete:CASCADE" json:"requested_by,omitempty"`
	FieldToEdit    EditField         `gorm:"size:100;not null" json:"field_to_edit"`
	Remark         string            `gorm:"type:text;not null" json:"remark"`
	Status         EditRequestStatus `gorm:"size:20;not null;index" json:"status"`
	IsRead         bool              `gorm:"not null" json:"is_read"`
	ResolvedByID   *uuid.UUID        `gorm:"type:uuid" json:"resolved_by_id"`
	ResolvedBy     *User             `gorm:"foreignKey:ResolvedByID;constraint:OnDelete:SET NULL" json:"resolved_by,omitempty"`
	ResolutionNote string            `gorm:"type:text" json:"resolution_note"`
	ResolvedAt     *time.Time        `json:"resolved_at"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
}

func (r *EditRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = EditRequestPending
	}
	return nil
}
