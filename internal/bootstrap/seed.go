package bootstrap

import (
	"errors"
	"fmt"
	"log"

	"anoa.com/studentrecords/internal/entity"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.LoginAttempt{},
		&entity.AccountLockout{},
		&entity.SecurityLog{},
		&entity.StudentFile{},
		&entity.Student{},
		&entity.FilePermission{},
		&entity.EditRequest{},
		&entity.Notification{},
		&entity.Announcement{},
		&entity.AnnouncementRead{},
	)
}

// AdminSeed describes the first administrator account.
type AdminSeed struct {
	Username string
	Email    string
	Password string
	FullName string
}

// ErrAdminExists is returned by CreateAdmin when the username is already taken.
var ErrAdminExists = errors.New("user already exists")

// CreateAdmin inserts an active admin account.
func CreateAdmin(db *gorm.DB, seed AdminSeed) (*entity.User, error) {
	if seed.Username == "" || seed.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	var count int64
	if err := db.Model(&entity.User{}).Where("username = ?", seed.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAdminExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	fullName := seed.FullName
	if fullName == "" {
		fullName = "Administrator"
	}

	admin := &entity.User{
		Username:     seed.Username,
		Email:        seed.Email,
		PasswordHash: string(hashed),
		FullName:     fullName,
		Role:         entity.RoleAdmin,
		IsActive:     true,
	}
	if err := db.Create(admin).Error; err != nil {
		return nil, err
	}
	return admin, nil
}

// SeedAdminUser creates the development admin when no admin exists yet.
func SeedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&entity.User{}).
		Where("role = ?", entity.RoleAdmin).
		Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("Admin user already exists, skipping seed")
		return nil
	}

	_, err := CreateAdmin(db, AdminSeed{
		Username: "admin",
		Email:    "admin@college.local",
		Password: "admin123",
		FullName: "Administrator",
	})
	if err != nil {
		return err
	}

	log.Println("✅ Admin user seeded successfully")
	log.Println("   Username: admin")
	log.Println("   Password: admin123")

	return nil
}
