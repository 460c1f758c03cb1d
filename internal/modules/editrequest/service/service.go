package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	auditDto "anoa.com/studentrecords/internal/modules/audit/dto"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	"anoa.com/studentrecords/internal/modules/editrequest/dto"
	"anoa.com/studentrecords/internal/modules/editrequest/repository"
	notifDto "anoa.com/studentrecords/internal/modules/notification/dto"
	notifService "anoa.com/studentrecords/internal/modules/notification/service"
	permService "anoa.com/studentrecords/internal/modules/permission/service"
	studentRepo "anoa.com/studentrecords/internal/modules/student/repository"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"anoa.com/studentrecords/pkg/sanitize"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EditRequestService runs the flag-and-resolve workflow. A student is marked
// exactly while at least one pending request references it.
type EditRequestService interface {
	Create(ctx context.Context, requester *entity.User, req dto.CreateEditRequest, meta commonDto.RequestMeta) (*dto.EditRequestResponse, error)
	Resolve(ctx context.Context, admin *entity.User, id uuid.UUID, note string, meta commonDto.RequestMeta) (*dto.EditRequestResponse, error)
	Dismiss(ctx context.Context, admin *entity.User, id uuid.UUID, meta commonDto.RequestMeta) (*dto.EditRequestResponse, error)
	// Get returns any request to admins and only their own requests to staff.
	Get(ctx context.Context, user *entity.User, id uuid.UUID) (*dto.EditRequestResponse, error)
	List(ctx context.Context, filter dto.EditRequestFilter) (*dto.EditRequestListResponse, error)
	ListMine(ctx context.Context, requester *entity.User, filter dto.EditRequestFilter) (*dto.EditRequestListResponse, error)
	MarkAllRead(ctx context.Context, admin *entity.User) error
	// PendingCount is every pending request for admins and the caller's own otherwise.
	PendingCount(ctx context.Context, user *entity.User) (int64, error)
}

type editRequestService struct {
	transactor database.Transactor
	repo       repository.EditRequestRepository
	students   studentRepo.StudentRepository
	registry   permService.Registry
	audit      auditService.AuditService
	notifier   notifService.Dispatcher
	now        func() time.Time
}

func NewEditRequestService(
	transactor database.Transactor,
	repo repository.EditRequestRepository,
	students studentRepo.StudentRepository,
	registry permService.Registry,
	audit auditService.AuditService,
	notifier notifService.Dispatcher,
	now func() time.Time,
) EditRequestService {
	if now == nil {
		now = time.Now
	}
	return &editRequestService{
		transactor: transactor,
		repo:       repo,
		students:   students,
		registry:   registry,
		audit:      audit,
		notifier:   notifier,
		now:        now,
	}
}

func (s *editRequestService) Create(ctx context.Context, requester *entity.User, req dto.CreateEditRequest, meta commonDto.RequestMeta) (*dto.EditRequestResponse, error) {
	if requester == nil || !access.Can(requester.Role, access.ActionRequestEdit) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only staff members can request student edits.")
	}

	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Invalid student id.")
	}
	field := entity.EditField(strings.TrimSpace(req.FieldToEdit))
	if !field.Valid() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Please select a valid field to edit.")
	}
	remark := sanitize.Text(req.Remark)
	if remark == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Please describe the change you need.")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Student not found.")
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.registry.HasAccess(ctx, requester, student.FileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "You don't have permission to access this file.")
	}

	var created *entity.EditRequest
	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		students := s.students.WithTx(tx)
		repo := s.repo.WithTx(tx)

		locked, err := students.FindByIDForUpdate(ctx, studentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "Student not found.")
		}
		if err != nil {
			return err
		}

		exists, err := repo.ExistsPending(ctx, locked.ID, requester.ID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Wrap(apperror.ErrDuplicateRequest, "You already have a pending edit request for this student.")
		}

		created = &entity.EditRequest{
			StudentID:     locked.ID,
			StudentFileID: locked.FileID,
			RequestedByID: requester.ID,
			FieldToEdit:   field,
			Remark:        remark,
			Status:        entity.EditRequestPending,
			CreatedAt:     s.now(),
		}
		if err := repo.Create(ctx, created); err != nil {
			return err
		}

		if err := students.UpdateStatus(ctx, locked.ID, entity.StudentStatusMarked); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &requester.ID,
			Action:  entity.ActionMarkEdit,
			Meta:    meta,
			Details: fmt.Sprintf("Requested edit of %s for %s (Roll %s)", field.Label(), locked.FullName, locked.RollNo),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyAdmins(ctx, notifDto.Message{
		Type:      entity.NotificationEditRequested,
		Title:     fmt.Sprintf("Edit Request: %s", student.FullName),
		Body:      fmt.Sprintf("%s requested a change to %s for %s (Roll %s).", requester.FullName, field.Label(), student.FullName, student.RollNo),
		Link:      fmt.Sprintf("/admin/edit-requests/%s", created.ID),
		CreatedBy: &requester.ID,
	})

	return s.load(ctx, created.ID)
}

func (s *editRequestService) Resolve(ctx context.Context, admin *entity.User, id uuid.UUID, note string, meta commonDto.RequestMeta) (*dto.EditRequestResponse, error) {
	note = sanitize.Text(note)
	req, err := s.close(ctx, admin, id, entity.EditRequestResolved, note, meta)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Your request to change %s has been resolved.", req.FieldToEdit.Label())
	if req.Student != nil {
		body = fmt.Sprintf("Your request to change %s for %s has been resolved.", req.FieldToEdit.Label(), req.Student.FullName)
	}
	if note != "" {
		body += " Note: " + note
	}
	s.notifier.Notify(ctx, req.RequestedByID, notifDto.Message{
		Type:      entity.NotificationEditResolved,
		Title:     "Edit Request Resolved",
		Body:      body,
		Link:      fmt.Sprintf("/edit-requests/%s", req.ID),
		CreatedBy: &admin.ID,
	})

	resp := dto.NewEditRequestResponse(req)
	return &resp, nil
}

func (s *editRequestService) Dismiss(ctx context.Context, admin *entity.User, id uuid.UUID, meta commonDto.RequestMeta) (*dto.EditRequestResponse, error) {
	req, err := s.close(ctx, admin, id, entity.EditRequestDismissed, "", meta)
	if err != nil {
		return nil, err
	}
	resp := dto.NewEditRequestResponse(req)
	return &resp, nil
}

// close moves a pending request into a terminal status and recomputes the
// student's marker from the remaining pending requests.
func (s *editRequestService) close(ctx context.Context, admin *entity.User, id uuid.UUID, status entity.EditRequestStatus, note string, meta commonDto.RequestMeta) (*entity.EditRequest, error) {
	if admin == nil || !access.Can(admin.Role, access.ActionResolveEdits) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can resolve edit requests.")
	}

	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		students := s.students.WithTx(tx)

		peek, err := repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "Edit request not found.")
		}
		if err != nil {
			return err
		}

		student, err := students.FindByIDForUpdate(ctx, peek.StudentID)
		if err != nil {
			return err
		}

		req, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != entity.EditRequestPending {
			return apperror.Wrap(apperror.ErrConflict, fmt.Sprintf("This edit request has already been %s.", req.Status))
		}

		req.Status = status
		req.IsRead = true
		if status == entity.EditRequestResolved {
			now := s.now()
			req.ResolvedByID = &admin.ID
			req.ResolutionNote = note
			req.ResolvedAt = &now
		}
		if err := repo.Update(ctx, req); err != nil {
			return err
		}

		pending, err := repo.CountPendingByStudent(ctx, student.ID)
		if err != nil {
			return err
		}
		next := entity.StudentStatusNormal
		if pending > 0 {
			next = entity.StudentStatusMarked
		}
		if next != student.Status {
			if err := students.UpdateStatus(ctx, student.ID, next); err != nil {
				return err
			}
		}

		action := entity.ActionResolveEdit
		verb := "Resolved"
		if status == entity.EditRequestDismissed {
			action = entity.ActionDismissNotification
			verb = "Dismissed"
		}
		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &admin.ID,
			Action:  action,
			Meta:    meta,
			Details: fmt.Sprintf("%s edit request for %s (%s)", verb, student.FullName, req.FieldToEdit.Label()),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindByID(ctx, id)
}

func (s *editRequestService) Get(ctx context.Context, user *entity.User, id uuid.UUID) (*dto.EditRequestResponse, error) {
	req, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Edit request not found.")
	}
	if err != nil {
		return nil, err
	}
	if user == nil || (!access.Can(user.Role, access.ActionResolveEdits) && req.RequestedByID != user.ID) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Edit request not found.")
	}
	resp := dto.NewEditRequestResponse(req)
	return &resp, nil
}

func (s *editRequestService) List(ctx context.Context, filter dto.EditRequestFilter) (*dto.EditRequestListResponse, error) {
	return s.list(ctx, nil, filter)
}

func (s *editRequestService) ListMine(ctx context.Context, requester *entity.User, filter dto.EditRequestFilter) (*dto.EditRequestListResponse, error) {
	return s.list(ctx, &requester.ID, filter)
}

func (s *editRequestService) list(ctx context.Context, requesterID *uuid.UUID, filter dto.EditRequestFilter) (*dto.EditRequestListResponse, error) {
	filter.Normalize(20)

	repoFilter := repository.EditRequestFilter{
		RequestedBy: requesterID,
		Search:      strings.TrimSpace(filter.Search),
		Limit:       filter.Limit,
		Offset:      filter.Offset(),
	}
	if filter.Status != "" && filter.Status != "all" {
		status := entity.EditRequestStatus(filter.Status)
		if !status.Valid() {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "Invalid status filter.")
		}
		repoFilter.Status = status
	}

	requests, total, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.Counts(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	resp := &dto.EditRequestListResponse{
		Data: make([]dto.EditRequestResponse, 0, len(requests)),
		Meta: commonDto.NewPaginationMeta(filter.PaginationQuery, total),
		Counts: dto.StatusCounts{
			Pending:   counts.Pending,
			Resolved:  counts.Resolved,
			Dismissed: counts.Dismissed,
			Unread:    counts.Unread,
		},
	}
	for i := range requests {
		resp.Data = append(resp.Data, dto.NewEditRequestResponse(&requests[i]))
	}
	return resp, nil
}

func (s *editRequestService) MarkAllRead(ctx context.Context, admin *entity.User) error {
	if admin == nil || !access.Can(admin.Role, access.ActionResolveEdits) {
		return apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can manage edit requests.")
	}
	return s.repo.MarkAllRead(ctx)
}

func (s *editRequestService) PendingCount(ctx context.Context, user *entity.User) (int64, error) {
	var requesterID *uuid.UUID
	if !access.Can(user.Role, access.ActionResolveEdits) {
		requesterID = &user.ID
	}
	counts, err := s.repo.Counts(ctx, requesterID)
	if err != nil {
		return 0, err
	}
	return counts.Pending, nil
}

func (s *editRequestService) load(ctx context.Context, id uuid.UUID) (*dto.EditRequestResponse, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewEditRequestResponse(req)
	return &resp, nil
}
