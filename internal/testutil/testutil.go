// Package testutil provides sqlite-backed fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"anoa.com/studentrecords/internal/bootstrap"
	"anoa.com/studentrecords/internal/entity"
	notifDto "anoa.com/studentrecords/internal/modules/notification/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultPassword = "pass1234"

// NewTestDB opens a migrated sqlite database in the test's temp dir.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, bootstrap.Migrate(db))
	return db
}

// CreateUser inserts an active user whose password is DefaultPassword.
func CreateUser(t *testing.T, db *gorm.DB, username string, role entity.Role) *entity.User {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	require.NoError(t, err)

	u := &entity.User{
		Username:     username,
		Email:        username + "@college.local",
		PasswordHash: string(hashed),
		FullName:     username,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateFile inserts an active student file with the given number of students.
func CreateFile(t *testing.T, db *gorm.DB, className string, students int) (*entity.StudentFile, []entity.Student) {
	t.Helper()

	f := &entity.StudentFile{
		FileName:      "FE_A_" + className + "_2025-26",
		ClassName:     className,
		Division:      "A",
		Year:          "FE",
		AcademicYear:  "2025-26",
		TotalStudents: students,
		IsActive:      true,
	}
	require.NoError(t, db.Create(f).Error)

	out := make([]entity.Student, 0, students)
	for i := 1; i <= students; i++ {
		s := entity.Student{
			FileID:    f.ID,
			RollNo:    uuid.NewString()[:8],
			FullName:  className + " student",
			ClassName: className,
			Division:  "A",
			Year:      "FE",
			Status:    entity.StudentStatusNormal,
		}
		require.NoError(t, db.Create(&s).Error)
		out = append(out, s)
	}
	return f, out
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sent is one message captured by RecordingDispatcher.
type Sent struct {
	Recipient uuid.UUID
	Role      entity.Role
	Staff     bool
	Message   notifDto.Message
}

// RecordingDispatcher captures notifications instead of delivering them.
type RecordingDispatcher struct {
	mu   sync.Mutex
	sent []Sent
}

func (d *RecordingDispatcher) Notify(_ context.Context, recipientID uuid.UUID, msg notifDto.Message) {
	d.record(Sent{Recipient: recipientID, Message: msg})
}

func (d *RecordingDispatcher) NotifyAdmins(_ context.Context, msg notifDto.Message) {
	d.record(Sent{Role: entity.RoleAdmin, Message: msg})
}

func (d *RecordingDispatcher) NotifyRole(_ context.Context, role entity.Role, msg notifDto.Message) {
	d.record(Sent{Role: role, Message: msg})
}

func (d *RecordingDispatcher) NotifyStaff(_ context.Context, msg notifDto.Message, _ *uuid.UUID) {
	d.record(Sent{Staff: true, Message: msg})
}

func (d *RecordingDispatcher) record(s Sent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, s)
}

// Sent returns a copy of everything captured so far.
func (d *RecordingDispatcher) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

// OfType filters captured messages by notification type.
func (d *RecordingDispatcher) OfType(typ entity.NotificationType) []Sent {
	var out []Sent
	for _, s := range d.Sent() {
		if s.Message.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}
