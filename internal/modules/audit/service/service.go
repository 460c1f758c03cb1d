package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/audit/dto"
	"anoa.com/studentrecords/internal/modules/audit/repository"
	authRepo "anoa.com/studentrecords/internal/modules/auth/repository"
	"anoa.com/studentrecords/pkg/apperror"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const recentAttemptsLimit = 20

// AuditService appends security events and serves the admin audit listing.
type AuditService interface {
	// WithTx binds writes to tx so they commit or roll back with the caller's work.
	WithTx(tx *gorm.DB) AuditService
	Log(ctx context.Context, entry dto.Entry) error
	List(ctx context.Context, filter dto.AuditLogFilter) (*dto.AuditLogListResponse, error)
}

type auditService struct {
	repo        repository.SecurityLogRepository
	attemptRepo authRepo.LoginAttemptRepository
	now         func() time.Time
}

func NewAuditService(repo repository.SecurityLogRepository, attemptRepo authRepo.LoginAttemptRepository, now func() time.Time) AuditService {
	if now == nil {
		now = time.Now
	}
	return &auditService{
		repo:        repo,
		attemptRepo: attemptRepo,
		now:         now,
	}
}

func (s *auditService) WithTx(tx *gorm.DB) AuditService {
	return &auditService{
		repo:        s.repo.WithTx(tx),
		attemptRepo: s.attemptRepo.WithTx(tx),
		now:         s.now,
	}
}

func (s *auditService) Log(ctx context.Context, entry dto.Entry) error {
	if !entry.Action.Valid() {
		return fmt.Errorf("unknown security action %q", entry.Action)
	}

	log := &entity.SecurityLog{
		UserID:    entry.UserID,
		Action:    entry.Action,
		UserAgent: entry.Meta.UserAgent,
		Details:   entry.Details,
		Timestamp: s.now(),
	}
	if ip := strings.TrimSpace(entry.Meta.IPAddress); ip != "" {
		log.IPAddress = &ip
	}

	return s.repo.Create(ctx, log)
}

func (s *auditService) List(ctx context.Context, filter dto.AuditLogFilter) (*dto.AuditLogListResponse, error) {
	filter.Normalize(50)

	repoFilter := repository.SecurityLogFilter{
		Action: filter.Action,
		Search: strings.TrimSpace(filter.Search),
		Limit:  filter.Limit,
		Offset: filter.Offset(),
	}

	if filter.Action != "" && !entity.SecurityAction(filter.Action).Valid() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Unknown action filter.")
	}
	if filter.UserID != "" {
		id, err := uuid.Parse(filter.UserID)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "Invalid user filter.")
		}
		repoFilter.UserID = &id
	}
	if filter.From != "" {
		from, err := time.Parse(time.DateOnly, filter.From)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "Invalid from date.")
		}
		repoFilter.From = &from
	}
	if filter.To != "" {
		to, err := time.Parse(time.DateOnly, filter.To)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "Invalid to date.")
		}
		// inclusive of the whole "to" day
		to = to.AddDate(0, 0, 1)
		repoFilter.To = &to
	}

	logs, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	attempts, err := s.attemptRepo.ListRecent(ctx, recentAttemptsLimit)
	if err != nil {
		return nil, err
	}

	resp := &dto.AuditLogListResponse{
		Data:           make([]dto.AuditLogResponse, 0, len(logs)),
		Meta:           commonDto.NewPaginationMeta(filter.PaginationQuery, total),
		RecentAttempts: make([]dto.LoginAttemptResponse, 0, len(attempts)),
	}
	for _, l := range logs {
		item := dto.AuditLogResponse{
			ID:        l.ID,
			UserID:    l.UserID,
			Action:    l.Action,
			IPAddress: l.IPAddress,
			UserAgent: l.UserAgent,
			Details:   l.Details,
			Timestamp: l.Timestamp,
		}
		if l.User != nil {
			item.Username = l.User.Username
		}
		resp.Data = append(resp.Data, item)
	}
	for _, a := range attempts {
		resp.RecentAttempts = append(resp.RecentAttempts, dto.LoginAttemptResponse{
			Username:  a.Username,
			IPAddress: a.IPAddress,
			Success:   a.Success,
			Timestamp: a.Timestamp,
		})
	}

	return resp, nil
}
