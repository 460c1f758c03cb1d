package database

import (
	"log"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB   *gorm.DB
	once sync.Once
)

// Connect opens the shared PostgreSQL connection once per process.
func Connect(dsn string, debug bool) *gorm.DB {
	once.Do(func() {
		gormConfig := &gorm.Config{}
		if !debug {
			gormConfig.Logger = logger.Default.LogMode(logger.Warn)
		}

		db, err := gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}

		DB = db
	})

	return DB
}

func GetDB() *gorm.DB {
	if DB == nil {
		log.Fatal("database used before Connect")
	}
	return DB
}
