package repository

import (
	"context"
	"strings"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EditRequestFilter struct {
	Status      entity.EditRequestStatus
	RequestedBy *uuid.UUID
	Search      string
	Limit       int
	Offset      int
}

type StatusCounts struct {
	Pending   int64
	Resolved  int64
	Dismissed int64
	Unread    int64
}

type EditRequestRepository interface {
	WithTx(tx *gorm.DB) EditRequestRepository
	Create(ctx context.Context, req *entity.EditRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.EditRequest, error)
	// FindByIDForUpdate row-locks the request until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.EditRequest, error)
	ExistsPending(ctx context.Context, studentID, requesterID uuid.UUID) (bool, error)
	CountPendingByStudent(ctx context.Context, studentID uuid.UUID) (int64, error)
	Update(ctx context.Context, req *entity.EditRequest) error
	List(ctx context.Context, filter EditRequestFilter) ([]entity.EditRequest, int64, error)
	Counts(ctx context.Context, requesterID *uuid.UUID) (StatusCounts, error)
	MarkAllRead(ctx context.Context) error
}

type editRequestRepository struct {
	db *gorm.DB
}

func NewEditRequestRepository(db *gorm.DB) EditRequestRepository {
	return &editRequestRepository{db: db}
}

func (r *editRequestRepository) WithTx(tx *gorm.DB) EditRequestRepository {
	return &editRequestRepository{db: tx}
}

func (r *editRequestRepository) Create(ctx context.Context, req *entity.EditRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(req).Error
}

func (r *editRequestRepository) withRelations(db *gorm.DB) *gorm.DB {
	userColumns := func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "username", "full_name", "role")
	}
	return db.
		Preload("Student").
		Preload("StudentFile").
		Preload("RequestedBy", userColumns).
		Preload("ResolvedBy", userColumns)
}

func (r *editRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.EditRequest, error) {
	var req entity.EditRequest
	err := r.withRelations(r.db.WithContext(ctx)).Where("id = ?", id).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *editRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.EditRequest, error) {
	var req entity.EditRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *editRequestRepository) ExistsPending(ctx context.Context, studentID, requesterID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.EditRequest{}).
		Where("student_id = ? AND requested_by_id = ? AND status = ?", studentID, requesterID, entity.EditRequestPending).
		Count(&count).Error
	return count > 0, err
}

func (r *editRequestRepository) CountPendingByStudent(ctx context.Context, studentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.EditRequest{}).
		Where("student_id = ? AND status = ?", studentID, entity.EditRequestPending).
		Count(&count).Error
	return count, err
}

func (r *editRequestRepository) Update(ctx context.Context, req *entity.EditRequest) error {
	return r.db.WithContext(ctx).Model(&entity.EditRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]any{
			"status":          req.Status,
			"is_read":         req.IsRead,
			"resolved_by_id":  req.ResolvedByID,
			"resolution_note": req.ResolutionNote,
			"resolved_at":     req.ResolvedAt,
		}).Error
}

func (r *editRequestRepository) List(ctx context.Context, filter EditRequestFilter) ([]entity.EditRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.EditRequest{})

	if filter.Status != "" {
		query = query.Where("edit_requests.status = ?", filter.Status)
	}
	if filter.RequestedBy != nil {
		query = query.Where("edit_requests.requested_by_id = ?", *filter.RequestedBy)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.
			Joins("JOIN students ON students.id = edit_requests.student_id").
			Joins("JOIN users ON users.id = edit_requests.requested_by_id").
			Where("LOWER(students.full_name) LIKE ? OR LOWER(students.roll_no) LIKE ? OR LOWER(users.full_name) LIKE ? OR LOWER(users.username) LIKE ?",
				term, term, term, term)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var requests []entity.EditRequest
	err := r.withRelations(query).
		Order("edit_requests.created_at desc").
		Find(&requests).Error
	return requests, total, err
}

func (r *editRequestRepository) Counts(ctx context.Context, requesterID *uuid.UUID) (StatusCounts, error) {
	type row struct {
		Status entity.EditRequestStatus
		Total  int64
	}

	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&entity.EditRequest{})
		if requesterID != nil {
			q = q.Where("requested_by_id = ?", *requesterID)
		}
		return q
	}

	var rows []row
	if err := base().Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return StatusCounts{}, err
	}

	var counts StatusCounts
	for _, rw := range rows {
		switch rw.Status {
		case entity.EditRequestPending:
			counts.Pending = rw.Total
		case entity.EditRequestResolved:
			counts.Resolved = rw.Total
		case entity.EditRequestDismissed:
			counts.Dismissed = rw.Total
		}
	}

	if err := base().Where("is_read = ?", false).Count(&counts.Unread).Error; err != nil {
		return StatusCounts{}, err
	}
	return counts, nil
}

func (r *editRequestRepository) MarkAllRead(ctx context.Context) error {
	return r.db.WithContext(ctx).Model(&entity.EditRequest{}).
		Where("is_read = ?", false).
		Update("is_read", true).Error
}
