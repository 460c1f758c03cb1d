package dto

import (
	"time"

	"anoa.com/studentrecords/internal/entity"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
)

type UserResponse struct {
	ID         uuid.UUID   `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name"`
	Phone      string      `json:"phone"`
	Department string      `json:"department"`
	Role       entity.Role `json:"role"`
	RoleLabel  string      `json:"role_label"`
	PhotoURL   *string     `json:"photo_url,omitempty"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
}

func NewUserResponse(u *entity.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Phone:      u.Phone,
		Department: u.Department,
		Role:       u.Role,
		RoleLabel:  u.Role.Label(),
		PhotoURL:   u.PhotoURL,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
	}
}

type CreateStaffRequest struct {
	Username   string `form:"username" binding:"required,min=3,max=150"`
	Email      string `form:"email" binding:"omitempty,email"`
	Password   string `form:"password" binding:"required,min=8"`
	FullName   string `form:"full_name" binding:"required,max=255"`
	Phone      string `form:"phone" binding:"omitempty,max=15"`
	Department string `form:"department" binding:"omitempty,max=100"`
	Role       string `form:"role" binding:"required,oneof=hod teacher guardian"`
}

type UpdateStaffRequest struct {
	Email      *string `form:"email" binding:"omitempty,email"`
	FullName   *string `form:"full_name" binding:"omitempty,max=255"`
	Phone      *string `form:"phone" binding:"omitempty,max=15"`
	Department *string `form:"department" binding:"omitempty,max=100"`
	Role       *string `form:"role" binding:"omitempty,oneof=hod teacher guardian"`
	IsActive   *bool   `form:"is_active"`
	Password   *string `form:"password" binding:"omitempty,min=8"`
}

type StaffFilter struct {
	commonDto.PaginationQuery
	Role   string `form:"role" binding:"omitempty,oneof=hod teacher guardian"`
	Search string `form:"search"`
	Active *bool  `form:"active"`
}

type StaffListResponse struct {
	Data []UserResponse           `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}
