package repository

import (
	"context"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PermissionRepository interface {
	WithTx(tx *gorm.DB) PermissionRepository
	Exists(ctx context.Context, userID, fileID uuid.UUID) (bool, error)
	ListFileIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.FilePermission, error)
	ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]entity.FilePermission, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	CreateBatch(ctx context.Context, permissions []entity.FilePermission) error
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) WithTx(tx *gorm.DB) PermissionRepository {
	return &permissionRepository{db: tx}
}

func (r *permissionRepository) Exists(ctx context.Context, userID, fileID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.FilePermission{}).
		Where("user_id = ? AND student_file_id = ?", userID, fileID).
		Count(&count).Error
	return count > 0, err
}

func (r *permissionRepository) ListFileIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.FilePermission{}).
		Where("user_id = ?", userID).
		Pluck("student_file_id", &ids).Error
	return ids, err
}

func (r *permissionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.FilePermission, error) {
	var permissions []entity.FilePermission
	err := r.db.WithContext(ctx).
		Preload("StudentFile").
		Where("user_id = ?", userID).
		Order("granted_at asc").
		Find(&permissions).Error
	return permissions, err
}

func (r *permissionRepository) ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]entity.FilePermission, error) {
	var permissions []entity.FilePermission
	if len(userIDs) == 0 {
		return permissions, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&permissions).Error
	return permissions, err
}

func (r *permissionRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&entity.FilePermission{}).Error
}

func (r *permissionRepository) CreateBatch(ctx context.Context, permissions []entity.FilePermission) error {
	if len(permissions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&permissions).Error
}
