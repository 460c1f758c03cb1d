package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"anoa.com/studentrecords/internal/access"
	"anoa.com/studentrecords/internal/entity"
	auditDto "anoa.com/studentrecords/internal/modules/audit/dto"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	notifDto "anoa.com/studentrecords/internal/modules/notification/dto"
	notifService "anoa.com/studentrecords/internal/modules/notification/service"
	permService "anoa.com/studentrecords/internal/modules/permission/service"
	searchService "anoa.com/studentrecords/internal/modules/search/service"
	"anoa.com/studentrecords/internal/modules/student/dto"
	"anoa.com/studentrecords/internal/modules/student/repository"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StudentService interface {
	ImportRoster(ctx context.Context, actor *entity.User, req dto.ImportRosterRequest, meta commonDto.RequestMeta) (*dto.FileResponse, error)
	DeactivateFile(ctx context.Context, actor *entity.User, fileID uuid.UUID, meta commonDto.RequestMeta) error
	UpdateStudent(ctx context.Context, actor *entity.User, id uuid.UUID, req dto.UpdateStudentRequest, meta commonDto.RequestMeta) (*dto.StudentResponse, error)
	// DeleteStudent removes the student and its edit requests, then recounts the file.
	DeleteStudent(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) error
	ListFiles(ctx context.Context, user *entity.User, search string) ([]dto.FileResponse, error)
	ListStudents(ctx context.Context, user *entity.User, fileID uuid.UUID, search string, meta commonDto.RequestMeta) (*dto.StudentListResponse, error)
	GetStudent(ctx context.Context, user *entity.User, id uuid.UUID, meta commonDto.RequestMeta) (*dto.StudentResponse, error)
	CountAccessibleFiles(ctx context.Context, user *entity.User) (int64, error)
}

type studentService struct {
	transactor database.Transactor
	files      repository.StudentFileRepository
	students   repository.StudentRepository
	registry   permService.Registry
	audit      auditService.AuditService
	notifier   notifService.Dispatcher
	indexer    searchService.StudentIndexer
	now        func() time.Time
}

func NewStudentService(
	transactor database.Transactor,
	files repository.StudentFileRepository,
	students repository.StudentRepository,
	registry permService.Registry,
	audit auditService.AuditService,
	notifier notifService.Dispatcher,
	indexer searchService.StudentIndexer,
	now func() time.Time,
) StudentService {
	if now == nil {
		now = time.Now
	}
	return &studentService{
		transactor: transactor,
		files:      files,
		students:   students,
		registry:   registry,
		audit:      audit,
		notifier:   notifier,
		indexer:    indexer,
		now:        now,
	}
}

// FileName is the display name of a roster: "{year}_{division}_{class}_{academic_year}".
func FileName(year, division, className, academicYear string) string {
	return fmt.Sprintf("%s_%s_%s_%s", year, division, className, academicYear)
}

func (s *studentService) ImportRoster(ctx context.Context, actor *entity.User, req dto.ImportRosterRequest, meta commonDto.RequestMeta) (*dto.FileResponse, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionUploadFiles) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can upload student files.")
	}

	className := strings.TrimSpace(req.ClassName)
	division := strings.ToUpper(strings.TrimSpace(req.Division))
	year := strings.TrimSpace(req.Year)
	academicYear := strings.TrimSpace(req.AcademicYear)
	if className == "" || division == "" || year == "" || academicYear == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "Class, division, year and academic year are required.")
	}
	if len(req.Students) == 0 {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "The roster has no students.")
	}

	seen := make(map[string]bool, len(req.Students))
	for _, in := range req.Students {
		roll := strings.TrimSpace(in.RollNo)
		if roll == "" || strings.TrimSpace(in.FullName) == "" {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "Every student needs a roll number and a name.")
		}
		if seen[roll] {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, fmt.Sprintf("Duplicate roll number %s in roster.", roll))
		}
		seen[roll] = true
	}

	var (
		file     *entity.StudentFile
		students []entity.Student
	)
	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		files := s.files.WithTx(tx)

		exists, err := files.ExistsActive(ctx, className, division, year, academicYear)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Wrap(apperror.ErrConflict, fmt.Sprintf("An active file for %s %s %s (%s) already exists.", year, className, division, academicYear))
		}

		file = &entity.StudentFile{
			FileName:      FileName(year, division, className, academicYear),
			ClassName:     className,
			Division:      division,
			Year:          year,
			AcademicYear:  academicYear,
			Section:       strings.TrimSpace(req.Section),
			TotalStudents: len(req.Students),
			UploadedByID:  &actor.ID,
			UploadDate:    s.now(),
			IsActive:      true,
		}
		if err := files.Create(ctx, file); err != nil {
			return err
		}

		students = make([]entity.Student, 0, len(req.Students))
		for _, in := range req.Students {
			students = append(students, entity.Student{
				FileID:      file.ID,
				RollNo:      strings.TrimSpace(in.RollNo),
				PRN:         strings.TrimSpace(in.PRN),
				FullName:    strings.TrimSpace(in.FullName),
				Phone:       strings.TrimSpace(in.Phone),
				Email:       strings.TrimSpace(in.Email),
				ParentName:  strings.TrimSpace(in.ParentName),
				ParentPhone: strings.TrimSpace(in.ParentPhone),
				Address:     strings.TrimSpace(in.Address),
				ClassName:   className,
				Division:    division,
				Year:        year,
				Status:      entity.StudentStatusNormal,
			})
		}
		if err := s.students.WithTx(tx).CreateBatch(ctx, students); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionFileUpload,
			Meta:    meta,
			Details: fmt.Sprintf("Uploaded %s with %d students", file.FileName, len(students)),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyStaff(ctx, notifDto.Message{
		Type:      entity.NotificationFileUploaded,
		Title:     "New Student File Uploaded",
		Body:      fmt.Sprintf("%s has been uploaded with %d students.", file.FileName, len(students)),
		Link:      fmt.Sprintf("/files/%s", file.ID),
		CreatedBy: &actor.ID,
	}, &actor.ID)

	if err := s.indexer.IndexStudents(file, students); err != nil {
		log.Printf("Failed to index students of %s: %v", file.FileName, err)
	}

	resp := dto.NewFileResponse(file)
	return &resp, nil
}

func (s *studentService) DeactivateFile(ctx context.Context, actor *entity.User, fileID uuid.UUID, meta commonDto.RequestMeta) error {
	if actor == nil || !access.Can(actor.Role, access.ActionUploadFiles) {
		return apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can delete student files.")
	}

	var file *entity.StudentFile
	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		files := s.files.WithTx(tx)

		var err error
		file, err = files.FindByID(ctx, fileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "File not found.")
		}
		if err != nil {
			return err
		}
		if !file.IsActive {
			return apperror.Wrap(apperror.ErrConflict, "This file has already been deleted.")
		}

		if err := files.Deactivate(ctx, file.ID); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionFileDelete,
			Meta:    meta,
			Details: fmt.Sprintf("Deleted file %s", file.FileName),
		})
	})
	if err != nil {
		return err
	}

	students, err := s.students.ListByFile(ctx, file.ID, "")
	if err != nil {
		log.Printf("Failed to list students of %s for de-indexing: %v", file.FileName, err)
		return nil
	}
	ids := make([]uuid.UUID, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	if err := s.indexer.DeleteStudents(ids); err != nil {
		log.Printf("Failed to remove students of %s from search: %v", file.FileName, err)
	}
	return nil
}

func (s *studentService) UpdateStudent(ctx context.Context, actor *entity.User, id uuid.UUID, req dto.UpdateStudentRequest, meta commonDto.RequestMeta) (*dto.StudentResponse, error) {
	if actor == nil || !access.Can(actor.Role, access.ActionEditStudents) {
		return nil, apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can edit student records.")
	}

	var student *entity.Student
	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		students := s.students.WithTx(tx)

		var err error
		student, err = students.FindByIDForUpdate(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "Student not found.")
		}
		if err != nil {
			return err
		}

		changed := applyUpdate(student, req)
		if len(changed) == 0 {
			return nil
		}
		if student.RollNo == "" || student.FullName == "" {
			return apperror.Wrap(apperror.ErrInvalidInput, "Roll number and name cannot be empty.")
		}

		taken, err := students.RollNoTaken(ctx, student.FileID, student.RollNo, student.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperror.Wrap(apperror.ErrConflict, fmt.Sprintf("Roll number %s is already used in this file.", student.RollNo))
		}

		if err := students.Update(ctx, student); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionStudentEdit,
			Meta:    meta,
			Details: fmt.Sprintf("Updated %s (Roll %s): %s", student.FullName, student.RollNo, strings.Join(changed, ", ")),
		})
	})
	if err != nil {
		return nil, err
	}

	if file, err := s.files.FindByID(ctx, student.FileID); err == nil {
		if err := s.indexer.IndexStudents(file, []entity.Student{*student}); err != nil {
			log.Printf("Failed to reindex student %s: %v", student.ID, err)
		}
	}

	resp := dto.NewStudentResponse(student)
	return &resp, nil
}

func (s *studentService) DeleteStudent(ctx context.Context, actor *entity.User, id uuid.UUID, meta commonDto.RequestMeta) error {
	if actor == nil || !access.Can(actor.Role, access.ActionEditStudents) {
		return apperror.Wrap(apperror.ErrPermissionDenied, "Only administrators can delete student records.")
	}

	err := s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		students := s.students.WithTx(tx)

		student, err := students.FindByIDForUpdate(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Wrap(apperror.ErrNotFound, "Student not found.")
		}
		if err != nil {
			return err
		}

		if err := students.Delete(ctx, student.ID); err != nil {
			return err
		}
		if err := s.files.WithTx(tx).RecountStudents(ctx, student.FileID); err != nil {
			return err
		}

		return s.audit.WithTx(tx).Log(ctx, auditDto.Entry{
			UserID:  &actor.ID,
			Action:  entity.ActionStudentDelete,
			Meta:    meta,
			Details: fmt.Sprintf("Deleted student %s (Roll %s)", student.FullName, student.RollNo),
		})
	})
	if err != nil {
		return err
	}

	if err := s.indexer.DeleteStudents([]uuid.UUID{id}); err != nil {
		log.Printf("Failed to remove student %s from search: %v", id, err)
	}
	return nil
}

// applyUpdate copies the supplied fields onto st and returns the names of
// the fields whose value changed.
func applyUpdate(st *entity.Student, req dto.UpdateStudentRequest) []string {
	var changed []string
	set := func(name string, dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = append(changed, name)
		}
	}
	set("roll_no", &st.RollNo, req.RollNo)
	set("prn", &st.PRN, req.PRN)
	set("full_name", &st.FullName, req.FullName)
	set("phone", &st.Phone, req.Phone)
	set("email", &st.Email, req.Email)
	set("parent_name", &st.ParentName, req.ParentName)
	set("parent_phone", &st.ParentPhone, req.ParentPhone)
	set("address", &st.Address, req.Address)
	return changed
}

func (s *studentService) ListFiles(ctx context.Context, user *entity.User, search string) ([]dto.FileResponse, error) {
	if !canView(user) {
		return nil, errNoRecordAccess
	}
	ids, all, err := s.registry.AccessibleFileIDs(ctx, user)
	if err != nil {
		return nil, err
	}

	files, err := s.files.List(ctx, repository.FileFilter{
		IDs:        ids,
		Restricted: !all,
		ActiveOnly: true,
		Search:     strings.TrimSpace(search),
	})
	if err != nil {
		return nil, err
	}

	resp := make([]dto.FileResponse, 0, len(files))
	for i := range files {
		resp = append(resp, dto.NewFileResponse(&files[i]))
	}
	return resp, nil
}

func (s *studentService) CountAccessibleFiles(ctx context.Context, user *entity.User) (int64, error) {
	ids, all, err := s.registry.AccessibleFileIDs(ctx, user)
	if err != nil {
		return 0, err
	}
	if all {
		return s.files.CountActive(ctx)
	}
	files, err := s.files.FindActiveByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	return int64(len(files)), nil
}

func (s *studentService) ListStudents(ctx context.Context, user *entity.User, fileID uuid.UUID, search string, meta commonDto.RequestMeta) (*dto.StudentListResponse, error) {
	if !canView(user) {
		return nil, errNoRecordAccess
	}
	file, err := s.files.FindByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !file.IsActive) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "File not found.")
	}
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, user, file, meta); err != nil {
		return nil, err
	}

	students, err := s.students.ListByFile(ctx, file.ID, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}

	resp := &dto.StudentListResponse{
		File: dto.NewFileResponse(file),
		Data: make([]dto.StudentResponse, 0, len(students)),
	}
	for i := range students {
		resp.Data = append(resp.Data, dto.NewStudentResponse(&students[i]))
	}
	return resp, nil
}

func (s *studentService) GetStudent(ctx context.Context, user *entity.User, id uuid.UUID, meta commonDto.RequestMeta) (*dto.StudentResponse, error) {
	if !canView(user) {
		return nil, errNoRecordAccess
	}
	student, err := s.students.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Wrap(apperror.ErrNotFound, "Student not found.")
	}
	if err != nil {
		return nil, err
	}

	file := student.File
	if file == nil {
		file = &entity.StudentFile{ID: student.FileID}
	}
	if err := s.authorize(ctx, user, file, meta); err != nil {
		return nil, err
	}

	resp := dto.NewStudentResponse(student)
	return &resp, nil
}

var errNoRecordAccess = apperror.Wrap(apperror.ErrPermissionDenied, "You do not have access to student records.")

func canView(user *entity.User) bool {
	return user != nil && access.Can(user.Role, access.ActionViewStudents)
}

// authorize checks the registry and records denied reads in the security log.
func (s *studentService) authorize(ctx context.Context, user *entity.User, file *entity.StudentFile, meta commonDto.RequestMeta) error {
	ok, err := s.registry.HasAccess(ctx, user, file.ID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	name := file.FileName
	if name == "" {
		name = file.ID.String()
	}
	if err := s.audit.Log(ctx, auditDto.Entry{
		UserID:  &user.ID,
		Action:  entity.ActionUnauthorizedAccess,
		Meta:    meta,
		Details: fmt.Sprintf("Attempted to access file %s without permission", name),
	}); err != nil {
		log.Printf("Failed to record unauthorized access by %s: %v", user.Username, err)
	}
	return apperror.Wrap(apperror.ErrPermissionDenied, "You don't have permission to access this file.")
}
