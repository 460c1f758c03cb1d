package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/notification/dto"
	notifRepo "anoa.com/studentrecords/internal/modules/notification/repository"
	userRepo "anoa.com/studentrecords/internal/modules/user/repository"
	"anoa.com/studentrecords/pkg/apperror"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Dispatcher delivers activity notifications. Delivery is best effort:
// failures are logged and never surfaced to the caller.
type Dispatcher interface {
	Notify(ctx context.Context, recipientID uuid.UUID, msg dto.Message)
	NotifyAdmins(ctx context.Context, msg dto.Message)
	NotifyRole(ctx context.Context, role entity.Role, msg dto.Message)
	// NotifyStaff sends msg to every active hod, teacher and guardian except exclude.
	NotifyStaff(ctx context.Context, msg dto.Message, exclude *uuid.UUID)
}

type NotificationService interface {
	Dispatcher
	GetNotifications(ctx context.Context, userID uuid.UUID, q commonDto.PaginationQuery) (*dto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	userRepo    userRepo.UserRepository
	redisClient *redis.Client
}

func NewNotificationService(repo notifRepo.NotificationRepository, userRepo userRepo.UserRepository, redisClient *redis.Client) NotificationService {
	return &notificationService{
		repo:        repo,
		userRepo:    userRepo,
		redisClient: redisClient,
	}
}

// Channel is the Redis pub/sub channel carrying live notifications for a user.
func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

func (s *notificationService) Notify(ctx context.Context, recipientID uuid.UUID, msg dto.Message) {
	s.deliver(ctx, []uuid.UUID{recipientID}, msg)
}

func (s *notificationService) NotifyAdmins(ctx context.Context, msg dto.Message) {
	s.NotifyRole(ctx, entity.RoleAdmin, msg)
}

func (s *notificationService) NotifyRole(ctx context.Context, role entity.Role, msg dto.Message) {
	ids, err := s.userRepo.ListActiveIDsByRoles(ctx, []entity.Role{role})
	if err != nil {
		log.Printf("❌ Failed to resolve %s recipients for %s notification: %v", role, msg.Type, err)
		return
	}
	s.deliver(ctx, ids, msg)
}

func (s *notificationService) NotifyStaff(ctx context.Context, msg dto.Message, exclude *uuid.UUID) {
	ids, err := s.userRepo.ListActiveIDsByRoles(ctx, entity.StaffRoles())
	if err != nil {
		log.Printf("❌ Failed to resolve staff recipients for %s notification: %v", msg.Type, err)
		return
	}

	recipients := ids[:0]
	for _, id := range ids {
		if exclude != nil && id == *exclude {
			continue
		}
		recipients = append(recipients, id)
	}
	s.deliver(ctx, recipients, msg)
}

func (s *notificationService) deliver(ctx context.Context, recipients []uuid.UUID, msg dto.Message) {
	if len(recipients) == 0 {
		return
	}

	notifications := make([]entity.Notification, 0, len(recipients))
	for _, id := range recipients {
		notifications = append(notifications, entity.Notification{
			RecipientID: id,
			Type:        msg.Type,
			Title:       msg.Title,
			Message:     msg.Body,
			Link:        msg.Link,
			SenderID:    msg.CreatedBy,
		})
	}

	// 1. Save to DB
	if err := s.repo.CreateBatch(ctx, notifications); err != nil {
		log.Printf("❌ Failed to store %s notification for %d recipients: %v", msg.Type, len(recipients), err)
		return
	}

	// 2. Publish to Redis if Redis is available
	if s.redisClient == nil {
		return
	}
	for i := range notifications {
		payload, err := json.Marshal(&notifications[i])
		if err != nil {
			log.Printf("Failed to encode notification %s: %v", notifications[i].ID, err)
			continue
		}
		if err := s.redisClient.Publish(ctx, Channel(notifications[i].RecipientID), payload).Err(); err != nil {
			log.Printf("Failed to publish notification %s: %v", notifications[i].ID, err)
		}
	}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, q commonDto.PaginationQuery) (*dto.NotificationListResponse, error) {
	q.Normalize(20)

	notifications, total, err := s.repo.GetByRecipientID(ctx, userID, q.Limit, q.Offset())
	if err != nil {
		return nil, err
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &dto.NotificationListResponse{
		Data:        notifications,
		Meta:        commonDto.NewPaginationMeta(q, total),
		UnreadCount: unread,
	}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	found, err := s.repo.MarkAsRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !found {
		return apperror.Wrap(apperror.ErrNotFound, "Notification not found.")
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}
