package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	auditDto "anoa.com/studentrecords/internal/modules/audit/dto"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	notifDto "anoa.com/studentrecords/internal/modules/notification/dto"
	notifService "anoa.com/studentrecords/internal/modules/notification/service"
	"anoa.com/studentrecords/internal/modules/user/dto"
	"anoa.com/studentrecords/internal/modules/user/repository"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"anoa.com/studentrecords/pkg/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const photoFolder = "staff"

// UserService manages staff accounts and self-service password changes.
type UserService interface {
	CreateStaff(ctx context.Context, actor *entity.User, req dto.CreateStaffRequest, photo *commonDto.PhotoFile, meta commonDto.RequestMeta) (*dto.UserResponse, error)
	ListStaff(ctx context.Context, filter dto.StaffFilter) (*dto.StaffListResponse, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*dto.UserResponse, error)
	UpdateStaff(ctx context.Context, actor *entity.User, id uuid.UUID, req dto.UpdateStaffRequest, photo *commonDto.PhotoFile, meta commonDto.RequestMeta) (*dto.UserResponse, error)
	DeactivateStaff(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error)
	ChangePassword(ctx context.Context, user *entity.User, req dto.ChangePasswordRequest, meta commonDto.RequestMeta) error
}

type userService struct {
	transactor database.Transactor
	repo       repository.UserRepository
	photos     storage.PhotoStorage
	audit      auditService.AuditService
	notifier   notifService.Dispatcher
	hashCost   int
}

func NewUserService(
	transactor database.Transactor,
	repo repository.UserRepository,
	photos storage.PhotoStorage,
	audit auditService.AuditService,
	notifier notifService.Dispatcher,
) UserService {
	return &userService{
		transactor: transactor,
		repo:       repo,
		photos:     photos,
		audit:      audit,
		notifier:   notifier,
		hashCost:   bcrypt.DefaultCost,
	}
}

func (s *userService) CreateStaff(ctx context.Context, actor *entity.User, req dto.CreateStaffRequest, photo *commonDto.PhotoFile, meta commonDto.RequestMeta) (*dto.UserResponse, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionManageStaff) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can manage staff.")
	}

	role, err := staffRole(req.Role)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.ContainsAny(username, " \t") {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Username cannot contain spaces.")
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Full name is required.")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	photoURL, err := s.uploadPhoto(ctx, photo)
	if err != nil {
		return nil, err
	}

	user := &entity.User{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hashed),
		FullName:     fullName,
		Phone:        strings.TrimSpace(req.Phone),
		Department:   strings.TrimSpace(req.Department),
		Role:         role,
		PhotoURL:     photoURL,
		IsActive:     true,
		CreatedByID:  &actor.ID,
	}

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.ExistsByUsername(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Wrap(apperror.ErrConflict, fmt.Sprintf("Username %s is already taken.", username))
		}
		if err := ensureEmailFree(ctx, repo, user.Email, uuid.Nil); err != nil {
			return err
		}

		if err := repo.Create(ctx, user); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionUserCreate,
			Meta:    meta,
			Details: fmt.Sprintf("Created %s account %s", role.Label(), username),
		})
	})
	if err != nil {
		s.discardPhoto(ctx, photoURL)
		return nil, err
	}

	s.notifier.Notify(ctx, user.ID, notifDto.Message{
		Type:      entity.NotificationStaffCreated,
		Title:     "Welcome to Student Records",
		Body:      fmt.Sprintf("Your %s account has been created. Please change your password after signing in.", role.Label()),
		Link:      role.DashboardPath(),
		CreatedBy: &actor.ID,
	})

	resp := dto.NewUserResponse(user)
	return &resp, nil
}

func (s *userService) ListStaff(ctx context.Context, filter dto.StaffFilter) (*dto.StaffListResponse, error) {
	filter.Normalize(20)

	roles := entity.StaffRoles()
	if filter.Role != "" {
		role, err := staffRole(filter.Role)
		if err != nil {
			return nil, err
		}
		roles = []entity.Role{role}
	}

	users, total, err := s.repo.List(ctx, repository.UserFilter{
		Roles:  roles,
		Search: strings.TrimSpace(filter.Search),
		Active: filter.Active,
		Limit:  filter.Limit,
		Offset: filter.Offset(),
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.StaffListResponse{
		Data: make([]dto.UserResponse, 0, len(users)),
		Meta: commonDto.NewPaginationMeta(filter.PaginationQuery, total),
	}
	for i := range users {
		resp.Data = append(resp.Data, dto.NewUserResponse(&users[i]))
	}
	return resp, nil
}

func (s *userService) GetStaff(ctx context.Context, id uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && user.Role == entity.RoleAdmin) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Staff member not found.")
	}
	if err != nil {
		return nil, err
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

func (s *userService) UpdateStaff(ctx context.Context, actor *entity.User, id uuid.UUID, req dto.UpdateStaffRequest, photo *commonDto.PhotoFile, meta commonDto.RequestMeta) (*dto.UserResponse, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionManageStaff) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can manage staff.")
	}

	var newHash *string
	if req.Password != nil && *req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.hashCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hashed)
		newHash = &h
	}

	photoURL, err := s.uploadPhoto(ctx, photo)
	if err != nil {
		return nil, err
	}

	var (
		user     *entity.User
		oldPhoto *string
	)
	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		user, err = repo.FindByIDForUpdate(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && user.Role == entity.RoleAdmin) {
			return apperror.Wrap(apperror.ErrNotFound, "Staff member not found.")
		}
		if err != nil {
			return err
		}

		var changed []string
		if req.Email != nil {
			email := strings.TrimSpace(*req.Email)
			if email != user.Email {
				if err := ensureEmailFree(ctx, repo, email, user.ID); err != nil {
					return err
				}
				user.Email = email
				changed = append(changed, "email")
			}
		}
		if req.FullName != nil {
			name := strings.TrimSpace(*req.FullName)
			if name == "" {
				return apperror.Wrap(apperror.ErrInvalidInput, "Full name is required.")
			}
			if name != user.FullName {
				user.FullName = name
				changed = append(changed, "full_name")
			}
		}
		if req.Phone != nil && strings.TrimSpace(*req.Phone) != user.Phone {
			user.Phone = strings.TrimSpace(*req.Phone)
			changed = append(changed, "phone")
		}
		if req.Department != nil && strings.TrimSpace(*req.Department) != user.Department {
			user.Department = strings.TrimSpace(*req.Department)
			changed = append(changed, "department")
		}
		if req.Role != nil {
			role, err := staffRole(*req.Role)
			if err != nil {
				return err
			}
			if role != user.Role {
				user.Role = role
				changed = append(changed, "role")
			}
		}
		if req.IsActive != nil && *req.IsActive != user.IsActive {
			user.IsActive = *req.IsActive
			changed = append(changed, "is_active")
		}
		if newHash != nil {
			user.PasswordHash = *newHash
			changed = append(changed, "password")
		}
		if photoURL != nil {
			oldPhoto = user.PhotoURL
			user.PhotoURL = photoURL
			changed = append(changed, "photo")
		}

		if len(changed) == 0 {
			return nil
		}
		if err := repo.Update(ctx, user); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionUserEdit,
			Meta:    meta,
			Details: fmt.Sprintf("Updated account %s: %s", user.Username, strings.Join(changed, ", ")),
		})
	})
	if err != nil {
		s.discardPhoto(ctx, photoURL)
		return nil, err
	}
	s.discardPhoto(ctx, oldPhoto)

	resp := dto.NewUserResponse(user)
	return &resp, nil
}

// DeactivateStaff soft-deletes a staff account; history rows keep pointing at it.
func (s *userService) DeactivateStaff(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) error {
	if actor == nil || !access.Can(actor.Role, access.ActionManageStaff) {
		return apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can manage staff.")
	}

	return s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindByIDForUpdate(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && user.Role == entity.RoleAdmin) {
			return apperror.Wrap(apperror.ErrNotFound, "Staff member not found.")
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperror.Wrap(apperror.ErrConflict, "This account is already deactivated.")
		}

		user.IsActive = false
		if err := repo.Update(ctx, user); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionUserDelete,
			Meta:    meta,
			Details: fmt.Sprintf("Deactivated %s account %s", user.Role.Label(), user.Username),
		})
	})
}

func (s *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "User not found.")
	}
	if err != nil {
		return nil, err
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

func (s *userService) ChangePassword(ctx context.Context, user *entity.User, req dto.ChangePasswordRequest, meta commonDto.RequestMeta) error {
	if req.CurrentPassword == req.NewPassword {
		return apperror.Wrap(apperror.ErrInvalidInput, "New password must be different from the current password.")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindByIDForUpdate(ctx, user.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "User not found.")
		}
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(req.CurrentPassword)) != nil {
			return apperror.Wrap(apperror.ErrInvalidInput, "Current password is incorrect.")
		}

		current.PasswordHash = string(hashed)
		if err := repo.Update(ctx, current); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &current.ID,
			Action:  entity.ActionPasswordChange,
			Meta:    meta,
			Details: "Password changed",
		})
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(ctx, user.ID, notifDto.Message{
		Type:  entity.NotificationPasswordChanged,
		Title: "Password Changed",
		Body:  "Your password was changed. If this wasn't you, contact an administrator immediately.",
	})
	return nil
}

func (s *userService) uploadPhoto(ctx context.Context, photo *commonDto.PhotoFile) (*string, error) {
	if photo == nil || photo.Reader == nil {
		return nil, nil
	}
	if s.photos == nil {
		return nil, apperror.Wrap(apperror.ErrBadRequest, "Photo uploads are not available.")
	}
	url, err := s.photos.UploadPhoto(ctx, photo.Reader, photoFolder, photo.FileName)
	if err != nil {
		return nil, err
	}
	return &url, nil
}

func (s *userService) discardPhoto(ctx context.Context, url *string) {
	if url == nil || *url == "" || s.photos == nil {
		return
	}
	if err := s.photos.DeletePhoto(ctx, *url); err != nil {
		log.Printf("Failed to delete photo %s: %v", *url, err)
	}
}

func staffRole(raw string) (entity.Role, error) {
	role, err := entity.ParseRole(raw)
	if err != nil || role == entity.RoleAdmin {
		return "", apperror.Wrap(apperror.ErrInvalidInput, "Role must be HOD, Teacher or Teacher Guardian.")
	}
	return role, nil
}

func ensureEmailFree(ctx context.Context, repo repository.UserRepository, email string, self uuid.UUID) error {
	if email == "" {
		return nil
	}
	other, err := repo.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != self {
		return apperror.Wrap(apperror.ErrConflict, fmt.Sprintf("Email %s is already in use.", email))
	}
	return nil
}
