package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/announcement/dto"
	"anoa.com/studentrecords/internal/modules/announcement/repository"
	auditRepo "anoa.com/studentrecords/internal/modules/audit/repository"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	authRepo "anoa.com/studentrecords/internal/modules/auth/repository"
	"anoa.com/studentrecords/internal/testutil"
	"anoa.com/studentrecords/pkg/apperror"
	"anoa.com/studentrecords/pkg/database"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var meta = commonDto.RequestMeta{IPAddress: "10.0.0.9", UserAgent: "test"}

type fixture struct {
	svc      AnnouncementService
	db       *gorm.DB
	clock    *testutil.Clock
	notifier *testutil.RecordingDispatcher
	admin    *entity.User
	hod      *entity.User
	teacher  *entity.User
	guardian *entity.User
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	notifier := &testutil.RecordingDispatcher{}
	audit := auditService.NewAuditService(auditRepo.NewSecurityLogRepository(db), authRepo.NewLoginAttemptRepository(db), clock.Now)

	return &fixture{
		svc:      NewAnnouncementService(database.NewTransactor(db), repository.NewAnnouncementRepository(db), audit, notifier, clock.Now),
		db:       db,
		clock:    clock,
		notifier: notifier,
		admin:    testutil.CreateUser(t, db, "admin", entity.RoleAdmin),
		hod:      testutil.CreateUser(t, db, "hod", entity.RoleHOD),
		teacher:  testutil.CreateUser(t, db, "teacher", entity.RoleTeacher),
		guardian: testutil.CreateUser(t, db, "guardian", entity.RoleGuardian),
	}
}

func (f *fixture) post(t *testing.T, author *entity.User, title string, visibility entity.AnnouncementVisibility) *dto.AnnouncementResponse {
	t.Helper()
	f.clock.Advance(time.Minute)
	resp, err := f.svc.Create(context.Background(), author, dto.AnnouncementRequest{
		Title:      title,
		Content:    "Details for " + title,
		Visibility: string(visibility),
	}, meta)
	require.NoError(t, err)
	return resp
}

func (f *fixture) titles(t *testing.T, user *entity.User) []string {
	t.Helper()
	list, err := f.svc.List(context.Background(), user, dto.AnnouncementFilter{})
	require.NoError(t, err)
	titles := make([]string, 0, len(list.Data))
	for _, a := range list.Data {
		titles = append(titles, a.Title)
	}
	return titles
}

func (f *fixture) auditCount(t *testing.T, action entity.SecurityAction) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&entity.SecurityLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestCreateNotifiesAudience(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Create(context.Background(), f.admin, dto.AnnouncementRequest{
		Title:   "<b>Exam</b> timetable",
		Content: "Semester exams start on the 15th.",
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, "Exam timetable", resp.Title)
	assert.Equal(t, entity.AnnouncementGeneral, resp.Category)
	assert.Equal(t, entity.PriorityNormal, resp.Priority)
	assert.Equal(t, entity.VisibilityAll, resp.Visibility)
	require.NotNil(t, resp.Author)
	assert.Equal(t, f.admin.ID, resp.Author.ID)
	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionAnnouncementCreate))

	sent := f.notifier.OfType(entity.NotificationAnnouncement)
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Staff)
	assert.Equal(t, "/announcements/"+resp.ID.String(), sent[0].Message.Link)
	assert.Equal(t, "New Announcement: Exam timetable", sent[0].Message.Title)
	f.notifier.Reset()

	f.post(t, f.hod, "Guardian meeting", entity.VisibilityGuardian)
	sent = f.notifier.OfType(entity.NotificationAnnouncement)
	require.Len(t, sent, 1)
	assert.False(t, sent[0].Staff)
	assert.Equal(t, entity.RoleGuardian, sent[0].Role)
}

func TestCreateChecksAuthorAndAudience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := dto.AnnouncementRequest{Title: "HOD sync", Content: "Monday", Visibility: string(entity.VisibilityHOD)}

	_, err := f.svc.Create(ctx, f.teacher, req, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	_, err = f.svc.Create(ctx, f.hod, req, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	_, err = f.svc.Create(ctx, f.admin, req, meta)
	assert.NoError(t, err)

	past := f.clock.Now().Add(-time.Hour)
	_, err = f.svc.Create(ctx, f.admin, dto.AnnouncementRequest{Title: "Old", Content: "x", ExpiresAt: &past}, meta)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = f.svc.Create(ctx, f.admin, dto.AnnouncementRequest{Title: "<i></i>", Content: "x"}, meta)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestListFollowsVisibilityAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.post(t, f.admin, "HOD only", entity.VisibilityHOD)
	f.post(t, f.admin, "Guardians", entity.VisibilityGuardian)
	pinned := f.post(t, f.admin, "Staff", entity.VisibilityStaff)
	f.post(t, f.admin, "Everyone", entity.VisibilityAll)

	f.clock.Advance(time.Minute)
	soon := f.clock.Now().Add(time.Hour)
	_, err := f.svc.Create(ctx, f.admin, dto.AnnouncementRequest{Title: "Fire drill", Content: "Today", ExpiresAt: &soon}, meta)
	require.NoError(t, err)

	_, err = f.svc.TogglePin(ctx, f.admin, pinned.ID, meta)
	require.NoError(t, err)

	assert.Equal(t, []string{"Staff", "Fire drill", "Everyone"}, f.titles(t, f.teacher))
	assert.Equal(t, []string{"Staff", "Fire drill", "Everyone", "Guardians"}, f.titles(t, f.guardian))
	assert.Equal(t, []string{"Staff", "Fire drill", "Everyone", "HOD only"}, f.titles(t, f.hod))
	assert.Len(t, f.titles(t, f.admin), 5)
	assert.Empty(t, f.titles(t, &entity.User{ID: uuid.New(), Role: entity.Role("auditor")}))

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, []string{"Staff", "Everyone"}, f.titles(t, f.teacher))

	list, err := f.svc.List(ctx, f.teacher, dto.AnnouncementFilter{Search: "every"})
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Everyone", list.Data[0].Title)
	assert.Equal(t, int64(1), list.Meta.TotalItems)
}

func TestReadTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.post(t, f.admin, "First", entity.VisibilityAll)
	f.post(t, f.admin, "Second", entity.VisibilityTeacher)
	f.post(t, f.admin, "Hidden", entity.VisibilityGuardian)

	n, err := f.svc.CountUnread(ctx, f.teacher)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := f.svc.Get(ctx, f.teacher, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	_, err = f.svc.Get(ctx, f.teacher, first.ID)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, f.teacher, dto.AnnouncementFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.UnreadCount)
	for _, a := range list.Data {
		assert.Equal(t, a.ID == first.ID, a.IsRead, a.Title)
	}

	require.NoError(t, f.svc.MarkAllRead(ctx, f.teacher))
	require.NoError(t, f.svc.MarkAllRead(ctx, f.teacher))
	n, err = f.svc.CountUnread(ctx, f.teacher)
	require.NoError(t, err)
	assert.Zero(t, n)

	var reads int64
	require.NoError(t, f.db.Model(&entity.AnnouncementRead{}).Where("user_id = ?", f.teacher.ID).Count(&reads).Error)
	assert.Equal(t, int64(2), reads)

	n, err = f.svc.CountUnread(ctx, f.guardian)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetHidesOtherAudiences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hidden := f.post(t, f.admin, "Guardians only", entity.VisibilityGuardian)

	_, err := f.svc.Get(ctx, f.teacher, hidden.ID)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)

	_, err = f.svc.Get(ctx, f.admin, hidden.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.teacher, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestHODChangesOnlyOwnAnnouncements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := testutil.CreateUser(t, f.db, "hod2", entity.RoleHOD)

	mine := f.post(t, f.hod, "Lab schedule", entity.VisibilityTeacher)
	theirs := f.post(t, other, "Sports day", entity.VisibilityAll)

	edit := dto.AnnouncementRequest{Title: "Lab schedule (revised)", Content: "Moved to Friday", Visibility: string(entity.VisibilityStaff), Category: string(entity.AnnouncementAcademic)}
	updated, err := f.svc.Update(ctx, f.hod, mine.ID, edit, meta)
	require.NoError(t, err)
	assert.Equal(t, "Lab schedule (revised)", updated.Title)
	assert.Equal(t, entity.VisibilityStaff, updated.Visibility)
	assert.Equal(t, "Academic", updated.CategoryLabel)
	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionAnnouncementEdit))

	_, err = f.svc.Update(ctx, f.hod, theirs.ID, edit, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.hod, theirs.ID, meta), apperror.ErrPermissionDenied)

	_, err = f.svc.Update(ctx, f.admin, theirs.ID, edit, meta)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.hod, mine.ID, meta))
	assert.Equal(t, int64(1), f.auditCount(t, entity.ActionAnnouncementDelete))

	var stored entity.Announcement
	require.NoError(t, f.db.First(&stored, "id = ?", mine.ID).Error)
	assert.False(t, stored.IsActive)

	_, err = f.svc.Get(ctx, f.teacher, mine.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.admin, mine.ID, meta), apperror.ErrNotFound)
	assert.NotContains(t, f.titles(t, f.teacher), "Lab schedule (revised)")

	_, err = f.svc.TogglePin(ctx, f.teacher, theirs.ID, meta)
	assert.ErrorIs(t, err, apperror.ErrPermissionDenied)
}
