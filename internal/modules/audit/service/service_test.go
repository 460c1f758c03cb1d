package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/audit/dto"
	"anoa.com/studentrecords/internal/modules/audit/repository"
	authRepo "anoa.com/studentrecords/internal/modules/auth/repository"
	"anoa.com/studentrecords/internal/testutil"
	"anoa.com/studentrecords/pkg/apperror"
	commonDto "anoa.com/studentrecords/pkg/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T) (AuditService, *gorm.DB, *testutil.Clock) {
	db := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := NewAuditService(
		repository.NewSecurityLogRepository(db),
		authRepo.NewLoginAttemptRepository(db),
		clock.Now,
	)
	return svc, db, clock
}

func TestLogWritesRow(t *testing.T) {
	svc, db, clock := newService(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin", entity.RoleAdmin)

	err := svc.Log(ctx, dto.Entry{
		UserID:  &admin.ID,
		Action:  entity.ActionFileUpload,
		Meta:    commonDto.RequestMeta{IPAddress: "10.0.0.1", UserAgent: "curl/8"},
		Details: "Uploaded FE_A_CS_2025-26",
	})
	require.NoError(t, err)

	var logs []entity.SecurityLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.ActionFileUpload, logs[0].Action)
	require.NotNil(t, logs[0].IPAddress)
	assert.Equal(t, "10.0.0.1", *logs[0].IPAddress)
	assert.True(t, logs[0].Timestamp.Equal(clock.Now()))
}

func TestLogAllowsAnonymousAndMissingIP(t *testing.T) {
	svc, db, _ := newService(t)

	require.NoError(t, svc.Log(context.Background(), dto.Entry{
		Action:  entity.ActionLoginFailed,
		Details: "Account locked for 15 minutes",
	}))

	var log entity.SecurityLog
	require.NoError(t, db.First(&log).Error)
	assert.Nil(t, log.UserID)
	assert.Nil(t, log.IPAddress)
}

func TestLogRejectsUnknownAction(t *testing.T) {
	svc, db, _ := newService(t)

	err := svc.Log(context.Background(), dto.Entry{Action: "reboot"})
	assert.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&entity.SecurityLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLogWithTxRollsBack(t *testing.T) {
	svc, db, _ := newService(t)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.WithTx(tx).Log(context.Background(), dto.Entry{Action: entity.ActionLogout}))
		return assert.AnError
	})

	var count int64
	require.NoError(t, db.Model(&entity.SecurityLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, db, clock := newService(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice", entity.RoleTeacher)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Log(ctx, dto.Entry{UserID: &alice.ID, Action: entity.ActionLogin, Details: "Successful login"}))
		clock.Advance(time.Minute)
	}
	require.NoError(t, svc.Log(ctx, dto.Entry{Action: entity.ActionLoginFailed, Details: "locked"}))
	require.NoError(t, db.Create(&entity.LoginAttempt{Username: "alice", IPAddress: "1.1.1.1", Success: true, Timestamp: clock.Now()}).Error)

	resp, err := svc.List(ctx, dto.AuditLogFilter{
		Action:          string(entity.ActionLogin),
		PaginationQuery: commonDto.PaginationQuery{Page: 1, Limit: 2},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, int64(3), resp.Meta.TotalItems)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	assert.Equal(t, "alice", resp.Data[0].Username)
	assert.Len(t, resp.RecentAttempts, 1)

	resp, err = svc.List(ctx, dto.AuditLogFilter{Search: "ALICE"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Meta.TotalItems)

	resp, err = svc.List(ctx, dto.AuditLogFilter{From: "2025-06-01", To: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Meta.TotalItems)

	_, err = svc.List(ctx, dto.AuditLogFilter{Action: "reboot"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
