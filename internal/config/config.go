package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	JWTSecret      string
	SessionTimeout time.Duration
	RememberMeTTL  time.Duration

	MaxLoginAttempts int
	LockoutDuration  time.Duration

	LoginRateLimit rateLimit
}

type rateLimit struct {
	PerMinute int
	Burst     int
}

func (r rateLimit) PerSecond() float64 {
	return float64(r.PerMinute) / 60
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres dbname=student_records port=5432 sslmode=disable"),
		RedisURL:    os.Getenv("REDIS_URL"),

		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryCloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:       os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:    os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "student_records"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
	}

	var err error
	cfg.SessionTimeout, err = parseDuration(getEnv("SESSION_TIMEOUT", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
	}
	cfg.RememberMeTTL, err = parseDuration(getEnv("REMEMBER_ME_TTL", "336h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMEMBER_ME_TTL: %w", err)
	}

	cfg.MaxLoginAttempts, err = getEnvInt("MAX_LOGIN_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	if cfg.MaxLoginAttempts < 1 {
		return nil, fmt.Errorf("invalid MAX_LOGIN_ATTEMPTS: must be at least 1")
	}

	lockoutMinutes, err := getEnvInt("LOCKOUT_DURATION_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	if lockoutMinutes < 1 {
		return nil, fmt.Errorf("invalid LOCKOUT_DURATION_MINUTES: must be at least 1")
	}
	cfg.LockoutDuration = time.Duration(lockoutMinutes) * time.Minute

	cfg.LoginRateLimit.PerMinute, err = getEnvInt("LOGIN_RATE_LIMIT_PER_MINUTE", 20)
	if err != nil {
		return nil, err
	}
	cfg.LoginRateLimit.Burst, err = getEnvInt("LOGIN_RATE_LIMIT_BURST", 5)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
