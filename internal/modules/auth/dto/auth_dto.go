package dto

import (
	"time"

	userDto "anoa.com/studentrecords/internal/modules/user/dto"
	"github.com/google/uuid"
)

type LoginRequest struct {
	Username   string `json:"username" binding:"required,max=254"`
	Password   string `json:"password" binding:"required"`
	Role       string `json:"role" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

type LoginResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	ExpiresIn   int64                `json:"expires_in"`
	ExpiresAt   int64                `json:"expires_at"`
	User        userDto.UserResponse `json:"user"`
	RedirectTo  string               `json:"redirect_to"`
	SearchToken string               `json:"search_token,omitempty"`
	Message     string               `json:"message"`
}

// Session identifies the token behind an authenticated request.
type Session struct {
	UserID    uuid.UUID
	TokenID   string
	ExpiresAt time.Time
}
