// Command create_admin inserts an admin account into the configured database.
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"anoa.com/studentrecords/internal/bootstrap"
	"anoa.com/studentrecords/internal/config"
	"anoa.com/studentrecords/pkg/database"
)

func main() {
	username := flag.String("username", "", "admin username")
	email := flag.String("email", "", "admin email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (defaults to $ADMIN_PASSWORD)")
	fullName := flag.String("full-name", "Administrator", "display name")
	flag.Parse()

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := database.Connect(cfg.DatabaseURL, false)
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	admin, err := bootstrap.CreateAdmin(db, bootstrap.AdminSeed{
		Username: *username,
		Email:    *email,
		Password: *password,
		FullName: *fullName,
	})
	if errors.Is(err, bootstrap.ErrAdminExists) {
		log.Fatalf("❌ user %q already exists", *username)
	}
	if err != nil {
		log.Fatalf("❌ failed to create admin: %v", err)
	}

	log.Printf("✅ Admin %s created (id %s)", admin.Username, admin.ID)
}
