package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	auditDto "anoa.com/studentrecords/internal/modules/audit/dto"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	notifDto "anoa.com/studentrecords/internal/modules/notification/dto"
	notifService "anoa.com/studentrecords/internal/modules/notification/service"
	"anoa.com/studentrecords/internal/modules/permission/dto"
	"anoa.com/studentrecords/internal/modules/permission/repository"
	studentRepo "anoa.com/studentrecords/internal/modules/student/repository"
	userDto "anoa.com/studentrecords/internal/modules/user/dto"
	userRepo "anoa.com/studentrecords/internal/modules/user/repository"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Registry answers per-file access questions. Admin and HOD see every file
// through a role override; everyone else needs an explicit grant.
type Registry interface {
	HasAccess(ctx context.Context, user *entity.User, fileID uuid.UUID) (bool, error)
	// AccessibleFileIDs returns all=true for roles that bypass grants.
	AccessibleFileIDs(ctx context.Context, user *entity.User) (ids []uuid.UUID, all bool, err error)
}

type PermissionService interface {
	Registry
	GrantSet(ctx context.Context, actor *entity.User, userID uuid.UUID, fileIDs []uuid.UUID, meta commonDto.RequestMeta) (*dto.GrantSetResult, error)
	ListGrants(ctx context.Context, userID uuid.UUID) (*dto.UserGrantsResponse, error)
	Matrix(ctx context.Context, search string) (*dto.PermissionMatrixResponse, error)
}

type permissionService struct {
	transactor database.Transactor
	repo       repository.PermissionRepository
	users      userRepo.UserRepository
	files      studentRepo.StudentFileRepository
	audit      auditService.AuditService
	notifier   notifService.Dispatcher
	now        func() time.Time
}

func NewPermissionService(
	transactor database.Transactor,
	repo repository.PermissionRepository,
	users userRepo.UserRepository,
	files studentRepo.StudentFileRepository,
	audit auditService.AuditService,
	notifier notifService.Dispatcher,
	now func() time.Time,
) PermissionService {
	if now == nil {
		now = time.Now
	}
	return &permissionService{
		transactor: transactor,
		repo:       repo,
		users:      users,
		files:      files,
		audit:      audit,
		notifier:   notifier,
		now:        now,
	}
}

func (s *permissionService) HasAccess(ctx context.Context, user *entity.User, fileID uuid.UUID) (bool, error) {
	if user == nil {
		return false, nil
	}
	if access.Can(user.Role, access.ActionBypassGrants) {
		return true, nil
	}
	return s.repo.Exists(ctx, user.ID, fileID)
}

func (s *permissionService) AccessibleFileIDs(ctx context.Context, user *entity.User) ([]uuid.UUID, bool, error) {
	if access.Can(user.Role, access.ActionBypassGrants) {
		return nil, true, nil
	}
	ids, err := s.repo.ListFileIDsByUser(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	return ids, false, nil
}

// GrantSet replaces the user's whole grant set with fileIDs. Every id must
// reference an active file; otherwise nothing changes.
func (s *permissionService) GrantSet(ctx context.Context, actor *entity.User, userID uuid.UUID, fileIDs []uuid.UUID, meta commonDto.RequestMeta) (*dto.GrantSetResult, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionManagePermissions) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can manage file permissions.")
	}

	wanted := dedupe(fileIDs)

	var (
		target       *entity.User
		result       *dto.GrantSetResult
		grantedFiles []entity.StudentFile
		revokedFiles []entity.StudentFile
	)

	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		target, err = s.users.WithTx(tx).FindByIDForUpdate(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "User not found.")
		}
		if err != nil {
			return err
		}
		if !target.IsActive || !access.Can(target.Role, access.ActionReceiveGrants) {
			return apperror.Wrap(apperror.ErrInvalidInput, "File permissions can only be assigned to active teachers and guardians.")
		}

		files, err := s.files.WithTx(tx).FindActiveByIDs(ctx, wanted)
		if err != nil {
			return err
		}
		if len(files) != len(wanted) {
			return apperror.Wrap(apperror.ErrInvalidInput, "One or more selected files do not exist or are no longer active.")
		}
		filesByID := make(map[uuid.UUID]entity.StudentFile, len(files))
		for _, f := range files {
			filesByID[f.ID] = f
		}

		existing, err := repo.ListByUser(ctx, target.ID)
		if err != nil {
			return err
		}
		old := make(map[uuid.UUID]bool, len(existing))
		for _, p := range existing {
			old[p.StudentFileID] = true
		}
		current := make(map[uuid.UUID]bool, len(wanted))
		for _, id := range wanted {
			current[id] = true
		}

		result = &dto.GrantSetResult{UserID: target.ID, Granted: []uuid.UUID{}, Revoked: []uuid.UUID{}, Current: wanted}
		for _, id := range wanted {
			if !old[id] {
				result.Granted = append(result.Granted, id)
				grantedFiles = append(grantedFiles, filesByID[id])
			}
		}
		for _, p := range existing {
			if !current[p.StudentFileID] {
				result.Revoked = append(result.Revoked, p.StudentFileID)
				if p.StudentFile != nil {
					revokedFiles = append(revokedFiles, *p.StudentFile)
				} else {
					revokedFiles = append(revokedFiles, entity.StudentFile{ID: p.StudentFileID})
				}
			}
		}

		if err := repo.DeleteByUser(ctx, target.ID); err != nil {
			return err
		}

		now := s.now()
		grants := make([]entity.FilePermission, 0, len(wanted))
		for _, id := range wanted {
			grants = append(grants, entity.FilePermission{
				UserID:        target.ID,
				StudentFileID: id,
				GrantedByID:   &actor.ID,
				GrantedAt:     now,
			})
		}
		if err := repo.CreateBatch(ctx, grants); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID: &actor.ID,
			Action: entity.ActionPermissionChange,
			Meta:   meta,
			Details: fmt.Sprintf("Updated file permissions for %s: %d granted, %d revoked, %d total",
				target.Username, len(result.Granted), len(result.Revoked), len(wanted)),
		})
	})
	if err != nil {
		return nil, err
	}

	for _, f := range grantedFiles {
		s.notifier.Notify(ctx, target.ID, notifDto.Message{
			Type:      entity.NotificationFileAssigned,
			Title:     "New File Assigned",
			Body:      fmt.Sprintf("You have been given access to %s.", f.FileName),
			Link:      fmt.Sprintf("/files/%s", f.ID),
			CreatedBy: &actor.ID,
		})
	}
	for _, f := range revokedFiles {
		name := f.FileName
		if name == "" {
			name = "a student file"
		}
		s.notifier.Notify(ctx, target.ID, notifDto.Message{
			Type:      entity.NotificationPermissionRevoked,
			Title:     "File Access Revoked",
			Body:      fmt.Sprintf("Your access to %s has been revoked.", name),
			CreatedBy: &actor.ID,
		})
	}

	return result, nil
}

func (s *permissionService) ListGrants(ctx context.Context, userID uuid.UUID) (*dto.UserGrantsResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "User not found.")
	}
	if err != nil {
		return nil, err
	}

	grants, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &dto.UserGrantsResponse{
		User:  userDto.NewUserResponse(user),
		Files: make([]dto.FileSummary, 0, len(grants)),
	}
	for _, g := range grants {
		if g.StudentFile == nil {
			continue
		}
		summary := fileSummary(*g.StudentFile)
		summary.GrantedAt = g.GrantedAt
		resp.Files = append(resp.Files, summary)
	}
	return resp, nil
}

// Matrix lists every active grant-bearing user next to the files they hold.
func (s *permissionService) Matrix(ctx context.Context, search string) (*dto.PermissionMatrixResponse, error) {
	active := true
	users, _, err := s.users.List(ctx, userRepo.UserFilter{
		Roles:  access.RolesFor(access.ActionReceiveGrants),
		Search: strings.TrimSpace(search),
		Active: &active,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	grants, err := s.repo.ListByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byUser := make(map[uuid.UUID][]uuid.UUID, len(users))
	for _, g := range grants {
		byUser[g.UserID] = append(byUser[g.UserID], g.StudentFileID)
	}

	files, err := s.files.List(ctx, studentRepo.FileFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	resp := &dto.PermissionMatrixResponse{
		Users: make([]dto.MatrixRow, 0, len(users)),
		Files: make([]dto.FileSummary, 0, len(files)),
	}
	for i := range users {
		fileIDs := byUser[users[i].ID]
		if fileIDs == nil {
			fileIDs = []uuid.UUID{}
		}
		resp.Users = append(resp.Users, dto.MatrixRow{
			User:    userDto.NewUserResponse(&users[i]),
			FileIDs: sortIDs(fileIDs),
		})
	}
	for _, f := range files {
		resp.Files = append(resp.Files, fileSummary(f))
	}
	return resp, nil
}

func fileSummary(f entity.StudentFile) dto.FileSummary {
	return dto.FileSummary{
		ID:           f.ID,
		FileName:     f.FileName,
		ClassName:    f.ClassName,
		Division:     f.Division,
		Year:         f.Year,
		AcademicYear: f.AcademicYear,
		IsActive:     f.IsActive,
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return sortIDs(out)
}

func sortIDs(ids []uuid.UUID) []uuid.UUID {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
