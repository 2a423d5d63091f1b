package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseDriver        string // postgres or sqlite
	DatabaseURL           string
	LogLevel              string
	Environment           string
	OperatingZoneOffset   int // hours east of UTC
	CronSpecEvaluation    string
	CatalogFile           string
	IgnoreNotificationHr  bool
	WorkerCount           int
	SendTimeout           time.Duration
	StoreTimeout          time.Duration
	StoreFailureThreshold int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailFromName string
	DashboardURL string

	HTTPAddr      string
	AdminAPIToken string

	TelegramToken   string // admin bot is disabled when empty
	AdminTelegramID int64
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", "postgres"))
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: must be postgres or sqlite", cfg.DatabaseDriver)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	if cfg.OperatingZoneOffset, err = getInt("OPERATING_TZ_OFFSET_HOURS", 9); err != nil {
		return nil, err
	}
	if cfg.OperatingZoneOffset < -12 || cfg.OperatingZoneOffset > 14 {
		return nil, fmt.Errorf("invalid OPERATING_TZ_OFFSET_HOURS: %d", cfg.OperatingZoneOffset)
	}

	cfg.CronSpecEvaluation = getEnv("CRON_SPEC_EVALUATION", "0 * * * *") // Default: hourly, on the hour
	cfg.CatalogFile = os.Getenv("CATALOG_FILE")

	if cfg.IgnoreNotificationHr, err = getBool("IGNORE_NOTIFICATION_TIME", false); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = getInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("invalid WORKER_COUNT: %d", cfg.WorkerCount)
	}
	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreFailureThreshold, err = getInt("STORE_FAILURE_THRESHOLD", 5); err != nil {
		return nil, err
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = getEnv("MAIL_FROM", "noreply@merki.jp")
	cfg.MailFromName = getEnv("MAIL_FROM_NAME", "MERKI")
	cfg.DashboardURL = getEnv("DASHBOARD_URL", "https://merki.spacegleam.co.jp/dashboard.html")

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return cfg, nil
}

// MailConfigured reports whether SMTP delivery is set up.
func (c *AppConfig) MailConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
