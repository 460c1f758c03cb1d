package service

import (
	"context"
	"testing"

	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/notification/dto"
	notifRepo "anoa.com/studentrecords/internal/modules/notification/repository"
	userRepo "anoa.com/studentrecords/internal/modules/user/repository"
	"anoa.com/studentrecords/internal/testutil"
	"anoa.com/studentrecords/pkg/apperror"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (NotificationService, *gorm.DB) {
	db := testutil.NewTestDB(t)
	svc := NewNotificationService(notifRepo.NewNotificationRepository(db), userRepo.NewUserRepository(db), nil)
	return svc, db
}

func recipients(t *testing.T, db *gorm.DB, typ entity.NotificationType) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	require.NoError(t, db.Model(&entity.Notification{}).Where("type = ?", typ).Pluck("recipient_id", &ids).Error)
	return ids
}

func TestNotifyAdminsSkipsInactiveAdmins(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	a1 := testutil.CreateUser(t, db, "admin1", entity.RoleAdmin)
	a2 := testutil.CreateUser(t, db, "admin2", entity.RoleAdmin)
	retired := testutil.CreateUser(t, db, "admin3", entity.RoleAdmin)
	require.NoError(t, db.Model(retired).Update("is_active", false).Error)
	testutil.CreateUser(t, db, "teacher", entity.RoleTeacher)

	svc.NotifyAdmins(ctx, dto.Message{Type: entity.NotificationEditRequested, Title: "Edit requested"})

	assert.ElementsMatch(t, []uuid.UUID{a1.ID, a2.ID}, recipients(t, db, entity.NotificationEditRequested))
}

func TestNotifyStaffExcludesActorAndAdmins(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, db, "admin", entity.RoleAdmin)
	hod := testutil.CreateUser(t, db, "hod", entity.RoleHOD)
	teacher := testutil.CreateUser(t, db, "teacher", entity.RoleTeacher)
	guardian := testutil.CreateUser(t, db, "guardian", entity.RoleGuardian)

	svc.NotifyStaff(ctx, dto.Message{Type: entity.NotificationFileUploaded, Title: "New file", CreatedBy: &admin.ID}, &hod.ID)

	assert.ElementsMatch(t, []uuid.UUID{teacher.ID, guardian.ID}, recipients(t, db, entity.NotificationFileUploaded))
}

func TestNotifyRole(t *testing.T) {
	svc, db := newService(t)
	g := testutil.CreateUser(t, db, "guardian", entity.RoleGuardian)
	testutil.CreateUser(t, db, "teacher", entity.RoleTeacher)

	svc.NotifyRole(context.Background(), entity.RoleGuardian, dto.Message{Type: entity.NotificationAnnouncement, Title: "Meeting"})

	assert.Equal(t, []uuid.UUID{g.ID}, recipients(t, db, entity.NotificationAnnouncement))
}

func TestReadTracking(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner", entity.RoleTeacher)
	other := testutil.CreateUser(t, db, "other", entity.RoleTeacher)

	svc.Notify(ctx, owner.ID, dto.Message{Type: entity.NotificationGeneral, Title: "one"})
	svc.Notify(ctx, owner.ID, dto.Message{Type: entity.NotificationGeneral, Title: "two"})

	list, err := svc.GetNotifications(ctx, owner.ID, commonDto.PaginationQuery{})
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, int64(2), list.UnreadCount)

	err = svc.MarkAsRead(ctx, other.ID, list.Data[0].ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, svc.MarkAsRead(ctx, owner.ID, list.Data[0].ID))
	count, err := svc.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.MarkAllAsRead(ctx, owner.ID))
	count, err = svc.UnreadCount(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
