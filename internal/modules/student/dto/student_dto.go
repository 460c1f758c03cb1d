package dto

import (
	"time"

	"anoa.com/studentrecords/internal/entity"
	"github.com/google/uuid"
)

type StudentInput struct {
	RollNo      string `json:"roll_no" binding:"required,max=10"`
	PRN         string `json:"prn" binding:"max=30"`
	FullName    string `json:"full_name" binding:"required,max=255"`
	Phone       string `json:"phone" binding:"max=15"`
	Email       string `json:"email" binding:"omitempty,email"`
	ParentName  string `json:"parent_name" binding:"max=255"`
	ParentPhone string `json:"parent_phone" binding:"max=15"`
	Address     string `json:"address"`
}

// ImportRosterRequest is one class roster uploaded by an administrator.
type ImportRosterRequest struct {
	ClassName    string         `json:"class_name" binding:"required,max=100"`
	Division     string         `json:"division" binding:"required,max=10"`
	Year         string         `json:"year" binding:"required,max=50"`
	AcademicYear string         `json:"academic_year" binding:"required,max=20"`
	Section      string         `json:"section" binding:"max=50"`
	Students     []StudentInput `json:"students" binding:"required,min=1,dive"`
}

type UpdateStudentRequest struct {
	RollNo      *string `json:"roll_no" binding:"omitempty,min=1,max=10"`
	PRN         *string `json:"prn" binding:"omitempty,max=30"`
	FullName    *string `json:"full_name" binding:"omitempty,min=1,max=255"`
	Phone       *string `json:"phone" binding:"omitempty,max=15"`
	Email       *string `json:"email" binding:"omitempty,email"`
	ParentName  *string `json:"parent_name" binding:"omitempty,max=255"`
	ParentPhone *string `json:"parent_phone" binding:"omitempty,max=15"`
	Address     *string `json:"address"`
}

type FileResponse struct {
	ID            uuid.UUID `json:"id"`
	FileName      string    `json:"file_name"`
	ClassName     string    `json:"class_name"`
	Division      string    `json:"division"`
	Year          string    `json:"year"`
	AcademicYear  string    `json:"academic_year"`
	Section       string    `json:"section"`
	TotalStudents int       `json:"total_students"`
	UploadDate    time.Time `json:"upload_date"`
	IsActive      bool      `json:"is_active"`
}

type StudentResponse struct {
	ID          uuid.UUID            `json:"id"`
	FileID      uuid.UUID            `json:"file_id"`
	RollNo      string               `json:"roll_no"`
	PRN         string               `json:"prn"`
	FullName    string               `json:"full_name"`
	Phone       string               `json:"phone"`
	Email       string               `json:"email"`
	ParentName  string               `json:"parent_name"`
	ParentPhone string               `json:"parent_phone"`
	Address     string               `json:"address"`
	ClassName   string               `json:"class_name"`
	Division    string               `json:"division"`
	Year        string               `json:"year"`
	Status      entity.StudentStatus `json:"status"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type StudentListResponse struct {
	File FileResponse      `json:"file"`
	Data []StudentResponse `json:"data"`
}

func NewFileResponse(f *entity.StudentFile) FileResponse {
	return FileResponse{
		ID:            f.ID,
		FileName:      f.FileName,
		ClassName:     f.ClassName,
		Division:      f.Division,
		Year:          f.Year,
		AcademicYear:  f.AcademicYear,
		Section:       f.Section,
		TotalStudents: f.TotalStudents,
		UploadDate:    f.UploadDate,
		IsActive:      f.IsActive,
	}
}

func NewStudentResponse(s *entity.Student) StudentResponse {
	return StudentResponse{
		ID:          s.ID,
		FileID:      s.FileID,
		RollNo:      s.RollNo,
		PRN:         s.PRN,
		FullName:    s.FullName,
		Phone:       s.Phone,
		Email:       s.Email,
		ParentName:  s.ParentName,
		ParentPhone: s.ParentPhone,
		Address:     s.Address,
		ClassName:   s.ClassName,
		Division:    s.Division,
		Year:        s.Year,
		Status:      s.Status,
		UpdatedAt:   s.UpdatedAt,
	}
}
