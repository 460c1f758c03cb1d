package repository

import (
	"context"

	"anoa.com/studentrecords/internal/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LockoutRepository interface {
	WithTx(tx *gorm.DB) LockoutRepository
	// AcquireForUpdate returns the row for username, creating it when missing,
	// and holds a row lock until the surrounding transaction ends.
	AcquireForUpdate(ctx context.Context, username string) (*entity.AccountLockout, error)
	FindByUsername(ctx context.Context, username string) (*entity.AccountLockout, error)
	Save(ctx context.Context, lockout *entity.AccountLockout) error
	Reset(ctx context.Context, username string) error
}

type lockoutRepository struct {
	db *gorm.DB
}

func NewLockoutRepository(db *gorm.DB) LockoutRepository {
	return &lockoutRepository{db: db}
}

func (r *lockoutRepository) WithTx(tx *gorm.DB) LockoutRepository {
	return &lockoutRepository{db: tx}
}

func (r *lockoutRepository) AcquireForUpdate(ctx context.Context, username string) (*entity.AccountLockout, error) {
	db := r.db.WithContext(ctx)

	seed := &entity.AccountLockout{Username: username}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(seed).Error; err != nil {
		return nil, err
	}

	var lockout entity.AccountLockout
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("username = ?", username).
		First(&lockout).Error
	if err != nil {
		return nil, err
	}
	return &lockout, nil
}

func (r *lockoutRepository) FindByUsername(ctx context.Context, username string) (*entity.AccountLockout, error) {
	var lockout entity.AccountLockout
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&lockout).Error; err != nil {
		return nil, err
	}
	return &lockout, nil
}

func (r *lockoutRepository) Save(ctx context.Context, lockout *entity.AccountLockout) error {
	return r.db.WithContext(ctx).Model(&entity.AccountLockout{}).
		Where("id = ?", lockout.ID).
		Updates(map[string]any{
			"failed_attempts": lockout.FailedAttempts,
			"locked_until":    lockout.LockedUntil,
			"last_failed":     lockout.LastFailed,
		}).Error
}

func (r *lockoutRepository) Reset(ctx context.Context, username string) error {
	return r.db.WithContext(ctx).Model(&entity.AccountLockout{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
		}).Error
}
