package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Clinic calendar
	ClinicName         string
	ClinicTimezone     string
	BookingWindowWeeks int

	// Auth
	AdminJWTSecret string
	JWTIssuer      string

	// Telegram bot
	TelegramBotToken string

	// Reminder scheduler defaults; runtime overrides live in Redis.
	ReminderDailyEnabled  bool
	ReminderDailyTime     string
	ReminderWeeklyEnabled bool
	ReminderWeeklyDay     string
	ReminderWeeklyTime    string
	SchedulerTick         time.Duration

	// Staff email notifications
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	StaffEmail     string
	AWSRegion      string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// LoadDotEnv loads a .env file when present. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicName:         getEnv("CLINIC_NAME", "診所"),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "Asia/Taipei"),
		BookingWindowWeeks: getEnvAsInt("BOOKING_WINDOW_WEEKS", 2),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		JWTIssuer:      getEnv("JWT_ISSUER", "clinic-booking"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		ReminderDailyEnabled:  getEnvAsBool("REMINDER_DAILY_ENABLED", true),
		ReminderDailyTime:     getEnv("REMINDER_DAILY_TIME", "09:00"),
		ReminderWeeklyEnabled: getEnvAsBool("REMINDER_WEEKLY_ENABLED", true),
		ReminderWeeklyDay:     strings.ToLower(getEnv("REMINDER_WEEKLY_DAY", "sun")),
		ReminderWeeklyTime:    getEnv("REMINDER_WEEKLY_TIME", "21:00"),
		SchedulerTick:         getEnvAsDuration("SCHEDULER_TICK", time.Minute),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Clinic Booking"),
		StaffEmail:     getEnv("STAFF_EMAIL", ""),
		AWSRegion:      getEnv("AWS_REGION", "ap-northeast-1"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Location resolves the clinic time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: clinic timezone %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.BookingWindowWeeks < 1 {
		return fmt.Errorf("config: BOOKING_WINDOW_WEEKS must be positive, got %d", c.BookingWindowWeeks)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
