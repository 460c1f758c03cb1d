package repository

import (
	"context"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SecurityLogFilter struct {
	Action string
	UserID *uuid.UUID
	From   *time.Time
	To     *time.Time
	Search string
	Limit  int
	Offset int
}

type SecurityLogRepository interface {
	WithTx(tx *gorm.DB) SecurityLogRepository
	Create(ctx context.Context, log *entity.SecurityLog) error
	List(ctx context.Context, filter SecurityLogFilter) ([]entity.SecurityLog, int64, error)
}

type securityLogRepository struct {
	db *gorm.DB
}

func NewSecurityLogRepository(db *gorm.DB) SecurityLogRepository {
	return &securityLogRepository{db: db}
}

func (r *securityLogRepository) WithTx(tx *gorm.DB) SecurityLogRepository {
	return &securityLogRepository{db: tx}
}

func (r *securityLogRepository) Create(ctx context.Context, log *entity.SecurityLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *securityLogRepository) List(ctx context.Context, filter SecurityLogFilter) ([]entity.SecurityLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.SecurityLog{})

	if filter.Action != "" {
		query = query.Where("security_logs.action = ?", filter.Action)
	}
	if filter.UserID != nil {
		query = query.Where("security_logs.user_id = ?", *filter.UserID)
	}
	if filter.From != nil {
		query = query.Where("security_logs.timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("security_logs.timestamp < ?", *filter.To)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.
			Joins("LEFT JOIN users ON users.id = security_logs.user_id").
			Where("LOWER(security_logs.details) LIKE ? OR LOWER(users.username) LIKE ?", term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []entity.SecurityLog
	err := query.
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "full_name", "role")
		}).
		Order("security_logs.timestamp desc, security_logs.id desc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&logs).Error
	return logs, total, err
}
