package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/announcement/dto"
	"anoa.com/studentrecords/internal/modules/announcement/repository"
	auditDto "anoa.com/studentrecords/internal/modules/audit/dto"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	notifDto "anoa.com/studentrecords/internal/modules/notification/dto"
	notifService "anoa.com/studentrecords/internal/modules/notification/service"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"anoa.com/studentrecords/pkg/sanitize"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const previewLength = 100

// AnnouncementService publishes role-scoped announcements and tracks who read them.
type AnnouncementService interface {
	Create(ctx context.Context, author *entity.User, req dto.AnnouncementRequest, meta commonDto.RequestMeta) (*dto.AnnouncementResponse, error)
	Update(ctx context.Context, actor *entity.User, id uuid.UUID, req dto.AnnouncementRequest, meta commonDto.RequestMeta) (*dto.AnnouncementResponse, error)
	Delete(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) error
	TogglePin(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) (*dto.AnnouncementResponse, error)
	List(ctx context.Context, user *entity.User, filter dto.AnnouncementFilter) (*dto.AnnouncementListResponse, error)
	// Get marks the announcement read for user.
	Get(ctx context.Context, user *entity.User, id uuid.UUID) (*dto.AnnouncementResponse, error)
	MarkAllRead(ctx context.Context, user *entity.User) error
	CountUnread(ctx context.Context, user *entity.User) (int64, error)
}

type announcementService struct {
	transactor database.Transactor
	repo       repository.AnnouncementRepository
	audit      auditService.AuditService
	notifier   notifService.Dispatcher
	now        func() time.Time
}

func NewAnnouncementService(
	transactor database.Transactor,
	repo repository.AnnouncementRepository,
	audit auditService.AuditService,
	notifier notifService.Dispatcher,
	now func() time.Time,
) AnnouncementService {
	if now == nil {
		now = time.Now
	}
	return &announcementService{
		transactor: transactor,
		repo:       repo,
		audit:      audit,
		notifier:   notifier,
		now:        now,
	}
}

func (s *announcementService) audience(user *entity.User) repository.Audience {
	return repository.Audience{Visibilities: access.VisibilitiesFor(user.Role), Now: s.now()}
}

// apply validates req and copies it onto a.
func (s *announcementService) apply(actor *entity.User, a *entity.Announcement, req dto.AnnouncementRequest) error {
	title := sanitize.Text(req.Title)
	content := sanitize.Text(req.Content)
	if title == "" || content == "" {
		return apperror.Wrap(apperror.ErrInvalidInput, "Title and content are required.")
	}

	category := entity.AnnouncementCategory(req.Category)
	if category == "" {
		category = entity.AnnouncementGeneral
	}
	if !category.Valid() {
		return apperror.Wrap(apperror.ErrInvalidInput, "Invalid category.")
	}

	priority := entity.AnnouncementPriority(req.Priority)
	switch priority {
	case "":
		priority = entity.PriorityNormal
	case entity.PriorityLow, entity.PriorityNormal, entity.PriorityHigh:
	default:
		return apperror.Wrap(apperror.ErrInvalidInput, "Invalid priority.")
	}

	visibility := entity.AnnouncementVisibility(req.Visibility)
	if visibility == "" {
		visibility = entity.VisibilityAll
	}
	if !access.CanTarget(actor.Role, visibility) {
		return apperror.Wrap(apperror.ErrPermissionDenied, fmt.Sprintf("You cannot publish announcements with %s visibility.", visibility))
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return apperror.Wrap(apperror.ErrInvalidInput, "Expiry must be in the future.")
	}

	a.Title = title
	a.Content = content
	a.Category = category
	a.Priority = priority
	a.Visibility = visibility
	a.IsPinned = req.IsPinned
	a.ExpiresAt = req.ExpiresAt
	return nil
}

func (s *announcementService) Create(ctx context.Context, author *entity.User, req dto.AnnouncementRequest, meta commonDto.RequestMeta) (*dto.AnnouncementResponse, error) {
	if author == nil || !access.Can(author.Role, access.ActionPostAnnouncements) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators and HODs can publish announcements.")
	}

	now := s.now()
	a := &entity.Announcement{
		IsActive:  true,
		AuthorID:  &author.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apply(author, a, req); err != nil {
		return nil, err
	}

	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, a); err != nil {
			return err
		}
		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &author.ID,
			Action:  entity.ActionAnnouncementCreate,
			Meta:    meta,
			Details: fmt.Sprintf("Created announcement: %s", a.Title),
		})
	})
	if err != nil {
		return nil, err
	}

	s.fanOut(ctx, author, a)

	a.Author = author
	resp := dto.NewAnnouncementResponse(a, false, now)
	return &resp, nil
}

// fanOut notifies the audience of a new announcement.
func (s *announcementService) fanOut(ctx context.Context, author *entity.User, a *entity.Announcement) {
	msg := notifDto.Message{
		Type:      entity.NotificationAnnouncement,
		Title:     fmt.Sprintf("New Announcement: %s", a.Title),
		Body:      fmt.Sprintf("%s announcement by %s: %s", a.Category.Label(), author.FullName, preview(a.Content)),
		Link:      fmt.Sprintf("/announcements/%s", a.ID),
		CreatedBy: &author.ID,
	}

	if role, ok := a.Visibility.TargetRole(); ok {
		s.notifier.NotifyRole(ctx, role, msg)
		return
	}
	s.notifier.NotifyStaff(ctx, msg, &author.ID)
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return strings.TrimSpace(string(runes[:previewLength])) + "..."
}

// editable loads the announcement for a write by actor. HODs may only change their own.
func (s *announcementService) editable(ctx context.Context, repo repository.AnnouncementRepository, actor *entity.User, id uuid.UUID) (*entity.Announcement, error) {
	a, err := repo.FindByIDForUpdate(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Announcement not found.")
	}
	if err != nil {
		return nil, err
	}
	if actor.Role != entity.RoleAdmin && (a.AuthorID == nil || *a.AuthorID != actor.ID) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "You can only change your own announcements.")
	}
	return a, nil
}

func (s *announcementService) Update(ctx context.Context, actor *entity.User, id uuid.UUID, req dto.AnnouncementRequest, meta commonDto.RequestMeta) (*dto.AnnouncementResponse, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionPostAnnouncements) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators and HODs can edit announcements.")
	}

	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		a, err := s.editable(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if err := s.apply(actor, a, req); err != nil {
			return err
		}
		a.UpdatedAt = s.now()
		if err := repo.Update(ctx, a); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionAnnouncementEdit,
			Meta:    meta,
			Details: fmt.Sprintf("Edited announcement: %s", a.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, actor, id)
}

func (s *announcementService) Delete(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) error {
	if actor == nil || !access.Can(actor.Role, access.ActionPostAnnouncements) {
		return apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators and HODs can delete announcements.")
	}

	return s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		a, err := s.editable(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		a.IsActive = false
		a.UpdatedAt = s.now()
		if err := repo.Update(ctx, a); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionAnnouncementDelete,
			Meta:    meta,
			Details: fmt.Sprintf("Deleted announcement: %s", a.Title),
		})
	})
}

func (s *announcementService) TogglePin(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) (*dto.AnnouncementResponse, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionPostAnnouncements) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators and HODs can pin announcements.")
	}

	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		a, err := repo.FindByIDForUpdate(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "Announcement not found.")
		}
		if err != nil {
			return err
		}

		a.IsPinned = !a.IsPinned
		a.UpdatedAt = s.now()
		if err := repo.Update(ctx, a); err != nil {
			return err
		}

		state := "Unpinned"
		if a.IsPinned {
			state = "Pinned"
		}
		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionAnnouncementEdit,
			Meta:    meta,
			Details: fmt.Sprintf("%s announcement: %s", state, a.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, actor, id)
}

func (s *announcementService) List(ctx context.Context, user *entity.User, filter dto.AnnouncementFilter) (*dto.AnnouncementListResponse, error) {
	filter.Normalize(10)
	audience := s.audience(user)

	announcements, total, err := s.repo.List(ctx, repository.AnnouncementFilter{
		Audience: audience,
		Category: entity.AnnouncementCategory(filter.Category),
		Search:   strings.TrimSpace(filter.Search),
		Limit:    filter.Limit,
		Offset:   filter.Offset(),
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(announcements))
	for _, a := range announcements {
		ids = append(ids, a.ID)
	}
	read, err := s.repo.ReadIDs(ctx, user.ID, ids)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, user.ID, audience)
	if err != nil {
		return nil, err
	}

	resp := &dto.AnnouncementListResponse{
		Data:        make([]dto.AnnouncementResponse, 0, len(announcements)),
		Meta:        commonDto.NewPaginationMeta(filter.PaginationQuery, total),
		UnreadCount: unread,
	}
	for i := range announcements {
		resp.Data = append(resp.Data, dto.NewAnnouncementResponse(&announcements[i], read[announcements[i].ID], audience.Now))
	}
	return resp, nil
}

func (s *announcementService) Get(ctx context.Context, user *entity.User, id uuid.UUID) (*dto.AnnouncementResponse, error) {
	a, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Announcement not found.")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if user.Role != entity.RoleAdmin && (!access.CanSee(user.Role, a.Visibility) || a.Expired(now)) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "You do not have permission to view this announcement.")
	}

	if err := s.repo.MarkRead(ctx, user.ID, []uuid.UUID{a.ID}, now); err != nil {
		return nil, err
	}

	resp := dto.NewAnnouncementResponse(a, true, now)
	return &resp, nil
}

func (s *announcementService) MarkAllRead(ctx context.Context, user *entity.User) error {
	audience := s.audience(user)
	ids, err := s.repo.VisibleIDs(ctx, audience)
	if err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, user.ID, ids, audience.Now)
}

func (s *announcementService) CountUnread(ctx context.Context, user *entity.User) (int64, error) {
	return s.repo.CountUnread(ctx, user.ID, s.audience(user))
}

// load re-reads an announcement after a write and reports the actor's read state.
func (s *announcementService) load(ctx context.Context, user *entity.User, id uuid.UUID) (*dto.AnnouncementResponse, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	read, err := s.repo.ReadIDs(ctx, user.ID, []uuid.UUID{a.ID})
	if err != nil {
		return nil, err
	}
	resp := dto.NewAnnouncementResponse(a, read[a.ID], s.now())
	return &resp, nil
}
