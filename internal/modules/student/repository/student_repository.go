package repository

import (
	"context"
	"strings"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentRepository interface {
	WithTx(tx *gorm.DB) StudentRepository
	CreateBatch(ctx context.Context, students []entity.Student) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Student, error)
	// FindByIDForUpdate row-locks the student until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Student, error)
	ListByFile(ctx context.Context, fileID uuid.UUID, search string) ([]entity.Student, error)
	// RollNoTaken reports whether another student of the file already uses rollNo.
	RollNoTaken(ctx context.Context, fileID uuid.UUID, rollNo string, exclude uuid.UUID) (bool, error)
	Update(ctx context.Context, student *entity.Student) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.StudentStatus) error
	// Delete removes the student together with its edit requests.
	Delete(ctx context.Context, id uuid.UUID) error
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) WithTx(tx *gorm.DB) StudentRepository {
	return &studentRepository{db: tx}
}

func (r *studentRepository) CreateBatch(ctx context.Context, students []entity.Student) error {
	if len(students) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(students, 200).Error
}

func (r *studentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Student, error) {
	var student entity.Student
	err := r.db.WithContext(ctx).
		Preload("File").
		Where("id = ?", id).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Student, error) {
	var student entity.Student
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) ListByFile(ctx context.Context, fileID uuid.UUID, search string) ([]entity.Student, error) {
	query := r.db.WithContext(ctx).Where("file_id = ?", fileID)
	if search != "" {
		term := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR LOWER(roll_no) LIKE ? OR LOWER(prn) LIKE ?", term, term, term)
	}

	var students []entity.Student
	err := query.Order("roll_no asc").Find(&students).Error
	return students, err
}

func (r *studentRepository) RollNoTaken(ctx context.Context, fileID uuid.UUID, rollNo string, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Student{}).
		Where("file_id = ? AND roll_no = ? AND id <> ?", fileID, rollNo, exclude).
		Count(&count).Error
	return count > 0, err
}

func (r *studentRepository) Update(ctx context.Context, student *entity.Student) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(student).Error
}

func (r *studentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.StudentStatus) error {
	return r.db.WithContext(ctx).Model(&entity.Student{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *studentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("student_id = ?", id).Delete(&entity.EditRequest{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&entity.Student{}).Error
}
