package repository

import (
	"context"
	"strings"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileFilter struct {
	// IDs restricts the listing when Restricted is set; an empty slice yields no rows.
	IDs        []uuid.UUID
	Restricted bool
	ActiveOnly bool
	Search     string
}

type StudentFileRepository interface {
	WithTx(tx *gorm.DB) StudentFileRepository
	Create(ctx context.Context, file *entity.StudentFile) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.StudentFile, error)
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.StudentFile, error)
	ExistsActive(ctx context.Context, className, division, year, academicYear string) (bool, error)
	List(ctx context.Context, filter FileFilter) ([]entity.StudentFile, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	CountActive(ctx context.Context) (int64, error)
	// RecountStudents sets total_students to the number of students left in the file.
	RecountStudents(ctx context.Context, id uuid.UUID) error
}

type studentFileRepository struct {
	db *gorm.DB
}

func NewStudentFileRepository(db *gorm.DB) StudentFileRepository {
	return &studentFileRepository{db: db}
}

func (r *studentFileRepository) WithTx(tx *gorm.DB) StudentFileRepository {
	return &studentFileRepository{db: tx}
}

func (r *studentFileRepository) Create(ctx context.Context, file *entity.StudentFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *studentFileRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.StudentFile, error) {
	var file entity.StudentFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *studentFileRepository) FindActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.StudentFile, error) {
	var files []entity.StudentFile
	if len(ids) == 0 {
		return files, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&files).Error
	return files, err
}

func (r *studentFileRepository) ExistsActive(ctx context.Context, className, division, year, academicYear string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.StudentFile{}).
		Where("class_name = ? AND division = ? AND year = ? AND academic_year = ? AND is_active = ?",
			className, division, year, academicYear, true).
		Count(&count).Error
	return count > 0, err
}

func (r *studentFileRepository) List(ctx context.Context, filter FileFilter) ([]entity.StudentFile, error) {
	var files []entity.StudentFile
	if filter.Restricted && len(filter.IDs) == 0 {
		return files, nil
	}

	query := r.db.WithContext(ctx).Model(&entity.StudentFile{})
	if filter.Restricted {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(file_name) LIKE ? OR LOWER(class_name) LIKE ?", term, term)
	}

	err := query.Order("upload_date desc").Find(&files).Error
	return files, err
}

func (r *studentFileRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&entity.StudentFile{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *studentFileRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.StudentFile{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

func (r *studentFileRepository) RecountStudents(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.Student{}).Where("file_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&entity.StudentFile{}).
		Where("id = ?", id).
		Update("total_students", count).Error
}
