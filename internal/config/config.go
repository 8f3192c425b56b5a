package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Dan9191/bank-cards/internal/models"
)

// Config holds application configuration
type Config struct {
	Port             string
	DBDriver         string
	DBConn           string
	LogLevel         string
	JWTSecret        string
	EncryptionKey    string
	CardBIN          string
	TransferPolicy   models.TransferPolicy
	LockTimeout      time.Duration
	SweepCron        string
	SweepRecheckCron string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	AuditStream      string
	SMTPHost         string
	SMTPPort         string
	SMTPUsername     string
	SMTPPassword     string
	SenderEmail      string
}

// LoadDotEnv reads a .env file into the environment. A missing file is not fatal
// for callers; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBDriver:         getEnv("DB_DRIVER", "postgres"),
		DBConn:           getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		CardBIN:          getEnv("CARD_BIN", "400000"),
		TransferPolicy:   models.TransferPolicy(getEnv("TRANSFER_POLICY", string(models.PolicyOwnToOwnOnly))),
		SweepCron:        getEnv("SWEEP_CRON", "0 1 0 * * *"),
		SweepRecheckCron: getEnv("SWEEP_RECHECK_CRON", "0 5 */6 * * *"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		AuditStream:      getEnv("AUDIT_STREAM", "audit:events"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@bank.local"),
	}

	var err error
	if cfg.LockTimeout, err = time.ParseDuration(getEnv("LOCK_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if !cfg.TransferPolicy.Valid() {
		return nil, fmt.Errorf("unknown TRANSFER_POLICY %q", cfg.TransferPolicy)
	}

	return cfg, nil
}

// EmailEnabled reports whether SMTP notifications are configured
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
