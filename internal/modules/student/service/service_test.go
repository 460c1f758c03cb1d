package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"anoa.com/studentrecords/internal/entity"
	auditRepo "anoa.com/studentrecords/internal/modules/audit/repository"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	authRepo "anoa.com/studentrecords/internal/modules/auth/repository"
	permRepo "anoa.com/studentrecords/internal/modules/permission/repository"
	permService "anoa.com/studentrecords/internal/modules/permission/service"
	"anoa.com/studentrecords/internal/modules/student/dto"
	"anoa.com/studentrecords/internal/modules/student/repository"
	userRepo "anoa.com/studentrecords/internal/modules/user/repository"
	"anoa.com/studentrecords/internal/testutil"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var meta = commonDto.RequestMeta{IPAddress: "192.168.1.20", UserAgent: "test"}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed map[uuid.UUID]entity.Student
	deleted []uuid.UUID
}

func (r *recordingIndexer) IndexStudents(_ *entity.StudentFile, students []entity.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexed == nil {
		r.indexed = map[uuid.UUID]entity.Student{}
	}
	for _, s := range students {
		r.indexed[s.ID] = s
	}
	return nil
}

func (r *recordingIndexer) DeleteStudents(ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

type fixture struct {
	svc      StudentService
	perms    permService.PermissionService
	db       *gorm.DB
	notifier *testutil.RecordingDispatcher
	indexer  *recordingIndexer
	admin    *entity.User
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2025, 8, 4, 8, 30, 0, 0, time.UTC))
	notifier := &testutil.RecordingDispatcher{}
	indexer := &recordingIndexer{}
	transactor := database.NewTransactor(db)
	audit := auditService.NewAuditService(auditRepo.NewSecurityLogRepository(db), authRepo.NewLoginAttemptRepository(db), clock.Now)
	files := repository.NewStudentFileRepository(db)

	perms := permService.NewPermissionService(transactor, permRepo.NewPermissionRepository(db), userRepo.NewUserRepository(db), files, audit, notifier, clock.Now)
	svc := NewStudentService(transactor, files, repository.NewStudentRepository(db), perms, audit, notifier, indexer, clock.Now)

	return &fixture{
		svc:      svc,
		perms:    perms,
		db:       db,
		notifier: notifier,
		indexer:  indexer,
		admin:    testutil.CreateUser(t, db, "admin", entity.RoleAdmin),
	}
}

func roster() dto.ImportRosterRequest {
	return dto.ImportRosterRequest{
		ClassName:    "Computer",
		Division:     "a",
		Year:         "SE",
		AcademicYear: "2025-26",
		Students: []dto.StudentInput{
			{RollNo: "1", FullName: "Asha Patil", PRN: "PRN001", ParentName: "Ravi Patil"},
			{RollNo: "2", FullName: "Kiran Rao", Email: "kiran@example.com"},
		},
	}
}

func (f *fixture) auditCount(t *testing.T, action entity.SecurityAction) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&entity.SecurityLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestImportRoster(t *testing.T) {
	f := newFixture(t)

	file, err := f.svc.ImportRoster(context.Background(), f.admin, roster(), meta)
	require.NoError(t, err)

	assert.Equal(t, "SE_A_Computer_2025-26", file.FileName)
	assert.Equal(t, 2, file.TotalStudents)
	assert.True(t, file.IsActive)

	var students []entity.Student
	require.NoError(t, f.db.Where("file_id = ?", file.ID).Order("roll_no").Find(&students).Error)
	require.Len(t, students, 2)
	assert.Equal(t, "Asha Patil", students[0].FullName)
	assert.Equal(t, "A", students[0].Division)
	assert.Equal(t, entity.StudentStatusNormal, students[0].Status)

	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionFileUpload))
	sent := f.notifier.OfType(entity.NotificationFileUploaded)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Staff)
	assert.Len(t, f.indexer.indexed, 2)
}

func TestImportRosterRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)

	_, err = f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	dup := roster()
	dup.AcademicYear = "2026-27"
	dup.Students = append(dup.Students, dto.StudentInput{RollNo: "2", FullName: "Twin"})
	_, err = f.svc.ImportRoster(ctx, f.admin, dup, meta)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	var files int64
	require.NoError(t, f.db.Model(&entity.StudentFile{}).Count(&files).Error)
	assert.Equal(t, int64(1), files)

	teacher := testutil.CreateUser(t, f.db, "teacher", entity.RoleTeacher)
	_, err = f.svc.ImportRoster(ctx, teacher, roster(), meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestDeactivateFileAllowsReimport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file, err := f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateFile(ctx, f.admin, file.ID, meta))
	assert.ErrorIs(t, f.svc.DeactivateFile(ctx, f.admin, file.ID, meta), apperror.ErrConflict)
	assert.Len(t, f.indexer.deleted, 2)
	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionFileDelete))

	_, err = f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)

	files, err := f.svc.ListFiles(ctx, f.admin, "")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestReadsAreGatedByGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, f.db, "teacher", entity.RoleTeacher)
	hod := testutil.CreateUser(t, f.db, "hod", entity.RoleHOD)

	file, err := f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)
	other := roster()
	other.ClassName = "Mechanical"
	otherFile, err := f.svc.ImportRoster(ctx, f.admin, other, meta)
	require.NoError(t, err)

	_, err = f.svc.ListStudents(ctx, teacher, file.ID, "", meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionUnauthorizedAccess))

	files, err := f.svc.ListFiles(ctx, teacher, "")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = f.perms.GrantSet(ctx, f.admin, teacher.ID, []uuid.UUID{file.ID}, meta)
	require.NoError(t, err)

	list, err := f.svc.ListStudents(ctx, teacher, file.ID, "asha", meta)
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Asha Patil", list.Data[0].FullName)

	files, err = f.svc.ListFiles(ctx, teacher, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, file.ID, files[0].ID)

	n, err := f.svc.CountAccessibleFiles(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.svc.CountAccessibleFiles(ctx, hod)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var otherStudent entity.Student
	require.NoError(t, f.db.Where("file_id = ?", otherFile.ID).First(&otherStudent).Error)
	_, err = f.svc.GetStudent(ctx, teacher, otherStudent.ID, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	got, err := f.svc.GetStudent(ctx, hod, otherStudent.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, otherStudent.ID, got.ID)
}

func TestUpdateStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	file, err := f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)
	list, err := f.svc.ListStudents(ctx, f.admin, file.ID, "", meta)
	require.NoError(t, err)
	asha := list.Data[0]

	phone := " 9876543210 "
	resp, err := f.svc.UpdateStudent(ctx, f.admin, asha.ID, dto.UpdateStudentRequest{Phone: &phone}, meta)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", resp.Phone)
	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionStudentEdit))
	assert.Equal(t, "9876543210", f.indexer.indexed[asha.ID].Phone)

	taken := "2"
	_, err = f.svc.UpdateStudent(ctx, f.admin, asha.ID, dto.UpdateStudentRequest{RollNo: &taken}, meta)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = f.svc.UpdateStudent(ctx, f.admin, uuid.New(), dto.UpdateStudentRequest{Phone: &phone}, meta)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	hod := testutil.CreateUser(t, f.db, "hod", entity.RoleHOD)
	_, err = f.svc.UpdateStudent(ctx, hod, asha.ID, dto.UpdateStudentRequest{Phone: &phone}, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}

func TestDeleteStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, f.db, "teacher", entity.RoleTeacher)

	file, err := f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)
	list, err := f.svc.ListStudents(ctx, f.admin, file.ID, "", meta)
	require.NoError(t, err)
	asha := list.Data[0]

	require.NoError(t, f.db.Create(&entity.EditRequest{
		StudentID:     asha.ID,
		StudentFileID: file.ID,
		RequestedByID: teacher.ID,
		FieldToEdit:   entity.EditFieldPhone,
		Remark:        "New number",
	}).Error)

	hod := testutil.CreateUser(t, f.db, "hod", entity.RoleHOD)
	err = f.svc.DeleteStudent(ctx, hod, asha.ID, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	require.NoError(t, f.svc.DeleteStudent(ctx, f.admin, asha.ID, meta))

	var stored entity.StudentFile
	require.NoError(t, f.db.First(&stored, "id = ?", file.ID).Error)
	assert.Equal(t, 1, stored.TotalStudents)

	var pending int64
	require.NoError(t, f.db.Model(&entity.EditRequest{}).Where("student_id = ?", asha.ID).Count(&pending).Error)
	assert.Zero(t, pending)

	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionStudentDelete))
	assert.Contains(t, f.indexer.deleted, asha.ID)

	err = f.svc.DeleteStudent(ctx, f.admin, asha.ID, meta)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestReadsRequireViewPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auditor := testutil.CreateUser(t, f.db, "auditor", entity.Role("auditor"))

	file, err := f.svc.ImportRoster(ctx, f.admin, roster(), meta)
	require.NoError(t, err)
	list, err := f.svc.ListStudents(ctx, f.admin, file.ID, "", meta)
	require.NoError(t, err)

	_, err = f.svc.ListFiles(ctx, auditor, "")
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = f.svc.ListStudents(ctx, auditor, file.ID, "", meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	_, err = f.svc.GetStudent(ctx, auditor, list.Data[0].ID, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}
