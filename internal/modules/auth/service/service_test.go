package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/studentrecords/internal/entity"
	auditRepo "anoa.com/studentrecords/internal/modules/audit/repository"
	auditService "anoa.com/studentrecords/internal/modules/audit/service"
	"anoa.com/studentrecords/internal/modules/auth/dto"
	"anoa.com/studentrecords/internal/modules/auth/repository"
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

type authFixture struct {
	svc    AuthService
	db     *gorm.DB
	clock  *testutil.Clock
	tokens *TokenIssuer
}

var meta = commonDto.RequestMeta{IPAddress: "192.0.2.10", UserAgent: "test-agent"}

func newAuthFixture(t *testing.T) *authFixture {
	db := testutil.NewTestDB(t)
	clock := testutil.NewClock(epoch)
	transactor := database.NewTransactor(db)
	attempts := repository.NewLoginAttemptRepository(db)

	tracker := NewLockoutTracker(repository.NewLockoutRepository(db), transactor,
		WithMaxAttempts(5), WithLockoutDuration(15*time.Minute), WithClock(clock.Now))
	audit := auditService.NewAuditService(auditRepo.NewSecurityLogRepository(db), attempts, clock.Now)
	tokens := NewTokenIssuer("test-secret", clock.Now)

	svc := NewAuthService(transactor, userRepo.NewUserRepository(db), attempts, tracker, audit, tokens,
		NewRedisRevocationStore(nil), nil, SessionConfig{
			SessionTTL:    30 * time.Minute,
			RememberMeTTL: 14 * 24 * time.Hour,
			Now:           clock.Now,
		})

	return &authFixture{svc: svc, db: db, clock: clock, tokens: tokens}
}

func (f *authFixture) login(username, password, role string) (*dto.LoginResponse, error) {
	return f.svc.Login(context.Background(), dto.LoginRequest{Username: username, Password: password, Role: role}, meta)
}

func (f *authFixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (f *authFixture) lockout(t *testing.T, username string) entity.AccountLockout {
	t.Helper()
	var row entity.AccountLockout
	require.NoError(t, f.db.Where("username = ?", username).First(&row).Error)
	return row
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	user := testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	resp, err := f.login("tina", testutil.DefaultPassword, "teacher")
	require.NoError(t, err)

	assert.Equal(t, "/teacher-panel/", resp.RedirectTo)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(30*60), resp.ExpiresIn)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := f.tokens.Parse(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)

	assert.Equal(t, int64(1), f.count(t, &entity.LoginAttempt{}, "success = ?", true))
	assert.Equal(t, int64(1), f.count(t, &entity.SecurityLog{}, "action = ? AND user_id = ?", entity.ActionLogin, user.ID))
	assert.Zero(t, f.lockout(t, "tina").FailedAttempts)
}

func TestLoginRememberMeExtendsSession(t *testing.T) {
	f := newAuthFixture(t)
	testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	resp, err := f.svc.Login(context.Background(), dto.LoginRequest{
		Username: "tina", Password: testutil.DefaultPassword, Role: "teacher", RememberMe: true,
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, int64(14*24*3600), resp.ExpiresIn)
}

func TestLoginByEmail(t *testing.T) {
	f := newAuthFixture(t)
	testutil.CreateUser(t, f.db, "gina", entity.RoleGuardian)

	resp, err := f.login("gina@college.local", testutil.DefaultPassword, "guardian")
	require.NoError(t, err)
	assert.Equal(t, "/guardian-panel/", resp.RedirectTo)
	assert.Equal(t, "gina", resp.User.Username)
}

func TestLoginRejectsUnknownRoleWithoutWrites(t *testing.T) {
	f := newAuthFixture(t)
	testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	_, err := f.login("tina", testutil.DefaultPassword, "superuser")
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	assert.Zero(t, f.count(t, &entity.LoginAttempt{}, ""))
	assert.Zero(t, f.count(t, &entity.AccountLockout{}, ""))
}

func TestLoginWrongPasswordReportsAttemptsRemaining(t *testing.T) {
	f := newAuthFixture(t)
	testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	_, err := f.login("tina", "wrong", "teacher")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	assert.Equal(t, "Invalid username or password. 4 attempts remaining.", err.Error())

	assert.Equal(t, int64(1), f.count(t, &entity.LoginAttempt{}, "success = ?", false))
	assert.Zero(t, f.count(t, &entity.SecurityLog{}, ""))
	assert.Equal(t, 1, f.lockout(t, "tina").FailedAttempts)
}

func TestLoginInactiveUserFails(t *testing.T) {
	f := newAuthFixture(t)
	u := testutil.CreateUser(t, f.db, "olivia", entity.RoleTeacher)
	require.NoError(t, f.db.Model(u).Update("is_active", false).Error)

	_, err := f.login("olivia", testutil.DefaultPassword, "teacher")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	assert.Equal(t, 1, f.lockout(t, "olivia").FailedAttempts)
}

func TestLoginUnknownUserStillTracked(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.login("nobody", "whatever", "teacher")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	assert.Equal(t, 1, f.lockout(t, "nobody").FailedAttempts)
}

func TestRoleMismatchCountsTowardLockout(t *testing.T) {
	f := newAuthFixture(t)
	testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	for i := 1; i <= 4; i++ {
		_, err := f.login("tina", testutil.DefaultPassword, "hod")
		require.ErrorIs(t, err, apperror.ErrRoleMismatch)
		assert.Equal(t, "Invalid role selected. You are not registered as HOD.", err.Error())
		assert.Equal(t, i, f.lockout(t, "tina").FailedAttempts)
	}

	_, err := f.login("tina", testutil.DefaultPassword, "hod")
	require.ErrorIs(t, err, apperror.ErrRoleMismatch)
	assert.Contains(t, err.Error(), "Account locked for 15 minutes")

	_, err = f.login("tina", testutil.DefaultPassword, "teacher")
	assert.ErrorIs(t, err, apperror.ErrAccountLocked)
	assert.Equal(t, 5, f.lockout(t, "tina").FailedAttempts)
}

func TestSuccessResetsPriorFailures(t *testing.T) {
	f := newAuthFixture(t)
	testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	for i := 0; i < 3; i++ {
		_, err := f.login("tina", "wrong", "teacher")
		require.Error(t, err)
	}
	_, err := f.login("tina", testutil.DefaultPassword, "teacher")
	require.NoError(t, err)

	row := f.lockout(t, "tina")
	assert.Zero(t, row.FailedAttempts)
	assert.Nil(t, row.LockedUntil)
}

func TestLockoutScenario(t *testing.T) {
	f := newAuthFixture(t)
	alice := testutil.CreateUser(t, f.db, "alice", entity.RoleTeacher)

	for i := 1; i <= 4; i++ {
		_, err := f.login("alice", "bad-password", "teacher")
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	}

	_, err := f.login("alice", "bad-password", "teacher")
	require.ErrorIs(t, err, apperror.ErrAccountLocked)
	assert.Equal(t, "Account locked for 15 minutes due to too many failed attempts.", err.Error())

	row := f.lockout(t, "alice")
	require.NotNil(t, row.LockedUntil)
	assert.WithinDuration(t, f.clock.Now().Add(15*time.Minute), *row.LockedUntil, time.Second)
	assert.Equal(t, int64(1), f.count(t, &entity.SecurityLog{}, "action = ?", entity.ActionLoginFailed))

	// correct password while locked is still rejected and does not count
	_, err = f.login("alice", testutil.DefaultPassword, "teacher")
	require.ErrorIs(t, err, apperror.ErrAccountLocked)
	assert.Equal(t, "Account is locked. Try again in 15 minutes.", err.Error())
	assert.Equal(t, 5, f.lockout(t, "alice").FailedAttempts)

	f.clock.Advance(16 * time.Minute)

	resp, err := f.login("alice", testutil.DefaultPassword, "teacher")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, resp.User.ID)

	row = f.lockout(t, "alice")
	assert.Zero(t, row.FailedAttempts)
	assert.Nil(t, row.LockedUntil)

	// one attempt row per call: 5 failures, 1 locked rejection, 1 success
	assert.Equal(t, int64(7), f.count(t, &entity.LoginAttempt{}, "username = ?", "alice"))
	assert.Equal(t, int64(1), f.count(t, &entity.LoginAttempt{}, "username = ? AND success = ?", "alice", true))
}

func TestLogoutWritesAuditLog(t *testing.T) {
	f := newAuthFixture(t)
	user := testutil.CreateUser(t, f.db, "tina", entity.RoleTeacher)

	err := f.svc.Logout(context.Background(), dto.Session{
		UserID:    user.ID,
		TokenID:   "jti-1",
		ExpiresAt: f.clock.Now().Add(10 * time.Minute),
	}, meta)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.count(t, &entity.SecurityLog{}, "action = ? AND user_id = ?", entity.ActionLogout, user.ID))
}

func TestTokenIssuerRejectsExpiredAndForeignTokens(t *testing.T) {
	clock := testutil.NewClock(epoch)
	issuer := NewTokenIssuer("secret-a", clock.Now)

	token, _, err := issuer.Issue(uuid.New(), time.Minute)
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", clock.Now).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	clock.Advance(2 * time.Minute)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
