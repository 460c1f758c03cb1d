package dto

import (
	"time"

	userDto "anoa.com/studentrecords/internal/modules/user/dto"
	"github.com/google/uuid"
)

type GrantSetRequest struct {
	FileIDs []string `json:"file_ids" binding:"omitempty,dive,uuid"`
}

// GrantSetResult describes how one full replace changed a user's grants.
type GrantSetResult struct {
	UserID  uuid.UUID   `json:"user_id"`
	Granted []uuid.UUID `json:"granted"`
	Revoked []uuid.UUID `json:"revoked"`
	Current []uuid.UUID `json:"current"`
}

type FileSummary struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"file_name"`
	ClassName    string    `json:"class_name"`
	Division     string    `json:"division"`
	Year         string    `json:"year"`
	AcademicYear string    `json:"academic_year"`
	IsActive     bool      `json:"is_active"`
	GrantedAt    time.Time `json:"granted_at,omitempty"`
}

type UserGrantsResponse struct {
	User  userDto.UserResponse `json:"user"`
	Files []FileSummary        `json:"files"`
}

type MatrixRow struct {
	User    userDto.UserResponse `json:"user"`
	FileIDs []uuid.UUID          `json:"file_ids"`
}

type PermissionMatrixResponse struct {
	Users []MatrixRow   `json:"users"`
	Files []FileSummary `json:"files"`
}
