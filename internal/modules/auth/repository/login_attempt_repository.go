package repository

import (
	"context"

	"anoa.com/studentrecords/internal/entity"
	"gorm.io/gorm"
)

type LoginAttemptRepository interface {
	WithTx(tx *gorm.DB) LoginAttemptRepository
	Create(ctx context.Context, attempt *entity.LoginAttempt) error
	ListRecent(ctx context.Context, limit int) ([]entity.LoginAttempt, error)
}

type loginAttemptRepository struct {
	db *gorm.DB
}

func NewLoginAttemptRepository(db *gorm.DB) LoginAttemptRepository {
	return &loginAttemptRepository{db: db}
}

func (r *loginAttemptRepository) WithTx(tx *gorm.DB) LoginAttemptRepository {
	return &loginAttemptRepository{db: tx}
}

func (r *loginAttemptRepository) Create(ctx context.Context, attempt *entity.LoginAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *loginAttemptRepository) ListRecent(ctx context.Context, limit int) ([]entity.LoginAttempt, error) {
	var attempts []entity.LoginAttempt
	err := r.db.WithContext(ctx).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}
