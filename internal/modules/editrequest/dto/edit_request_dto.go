package dto

import (
	"time"

	"anoa.com/studentrecords/internal/entity"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
)

type CreateEditRequest struct {
	StudentID   string `json:"student_id" binding:"required,uuid"`
	FieldToEdit string `json:"field_to_edit" binding:"required"`
	Remark      string `json:"remark" binding:"required,max=2000"`
}

type ResolveEditRequest struct {
	ResolutionNote string `json:"resolution_note" binding:"max=2000"`
}

type EditRequestFilter struct {
	commonDto.PaginationQuery
	Status string `form:"status" binding:"omitempty,oneof=pending resolved dismissed all"`
	Search string `form:"search"`
}

type StudentSummary struct {
	ID       uuid.UUID            `json:"id"`
	FullName string               `json:"full_name"`
	RollNo   string               `json:"roll_no"`
	Status   entity.StudentStatus `json:"status"`
}

type FileSummary struct {
	ID       uuid.UUID `json:"id"`
	FileName string    `json:"file_name"`
}

type UserSummary struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	FullName string      `json:"full_name"`
	Role     entity.Role `json:"role"`
}

type EditRequestResponse struct {
	ID             uuid.UUID                `json:"id"`
	Student        *StudentSummary          `json:"student,omitempty"`
	File           *FileSummary             `json:"file,omitempty"`
	RequestedBy    *UserSummary             `json:"requested_by,omitempty"`
	FieldToEdit    entity.EditField         `json:"field_to_edit"`
	FieldLabel     string                   `json:"field_label"`
	Remark         string                   `json:"remark"`
	Status         entity.EditRequestStatus `json:"status"`
	IsRead         bool                     `json:"is_read"`
	ResolvedBy     *UserSummary             `json:"resolved_by,omitempty"`
	ResolutionNote string                   `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time               `json:"resolved_at,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

type StatusCounts struct {
	Pending   int64 `json:"pending"`
	Resolved  int64 `json:"resolved"`
	Dismissed int64 `json:"dismissed"`
	Unread    int64 `json:"unread"`
}

type EditRequestListResponse struct {
	Data   []EditRequestResponse    `json:"data"`
	Meta   commonDto.PaginationMeta `json:"meta"`
	Counts StatusCounts             `json:"counts"`
}

func NewEditRequestResponse(r *entity.EditRequest) EditRequestResponse {
	resp := EditRequestResponse{
		ID:             r.ID,
		FieldToEdit:    r.FieldToEdit,
		FieldLabel:     r.FieldToEdit.Label(),
		Remark:         r.Remark,
		Status:         r.Status,
		IsRead:         r.IsRead,
		ResolutionNote: r.ResolutionNote,
		ResolvedAt:     r.ResolvedAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.Student != nil {
		resp.Student = &StudentSummary{
			ID:       r.Student.ID,
			FullName: r.Student.FullName,
			RollNo:   r.Student.RollNo,
			Status:   r.Student.Status,
		}
	}
	if r.StudentFile != nil {
		resp.File = &FileSummary{ID: r.StudentFile.ID, FileName: r.StudentFile.FileName}
	}
	if r.RequestedBy != nil {
		resp.RequestedBy = userSummary(r.RequestedBy)
	}
	if r.ResolvedBy != nil {
		resp.ResolvedBy = userSummary(r.ResolvedBy)
	}
	return resp
}

func userSummary(u *entity.User) *UserSummary {
	return &UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}
