package service

import (
	"context"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/dashboard/dto"
	userDto "anoa.com/studentrecords/internal/modules/user/dto"
	"github.com/google/uuid"
)

type PendingCounter interface {
	PendingCount(ctx context.Context, user *entity.User) (int64, error)
}

type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type FileCounter interface {
	CountAccessibleFiles(ctx context.Context, user *entity.User) (int64, error)
}

type AnnouncementCounter interface {
	CountUnread(ctx context.Context, user *entity.User) (int64, error)
}

type DashboardService interface {
	GetDashboard(ctx context.Context, user *entity.User) (*dto.DashboardView, error)
}

type dashboardService struct {
	editRequests  PendingCounter
	notifications UnreadCounter
	files         FileCounter
	announcements AnnouncementCounter
}

func NewDashboardService(editRequests PendingCounter, notifications UnreadCounter, files FileCounter, announcements AnnouncementCounter) DashboardService {
	return &dashboardService{
		editRequests:  editRequests,
		notifications: notifications,
		files:         files,
		announcements: announcements,
	}
}

func (s *dashboardService) GetDashboard(ctx context.Context, user *entity.User) (*dto.DashboardView, error) {
	pending, err := s.editRequests.PendingCount(ctx, user)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifications.UnreadCount(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	files, err := s.files.CountAccessibleFiles(ctx, user)
	if err != nil {
		return nil, err
	}
	announcements, err := s.announcements.CountUnread(ctx, user)
	if err != nil {
		return nil, err
	}

	return &dto.DashboardView{
		User:                userDto.NewUserResponse(user),
		Role:                user.Role,
		RoleLabel:           user.Role.Label(),
		RedirectTo:          user.Role.DashboardPath(),
		Capabilities:        access.ActionsFor(user.Role),
		PendingEditRequests: pending,
		UnreadNotifications: unread,
		AccessibleFiles:     files,
		UnreadAnnouncements: announcements,
	}, nil
}
