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

const devJWTSecret = "tutorcenter-dev-secret"

type Config struct {
	DatabaseURL string
	Store       string // postgres|memory
	Location    *time.Location
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	Release     string

	JWTSecret string
	// DevSecret is set when JWTSecret fell back to the built-in dev value.
	DevSecret bool
	TokenTTL  time.Duration

	BotToken    string
	AdminIDs    []int64
	SendgridKey string
	MailFrom    string
	AppName     string

	UploadDir         string
	DefaultHourlyRate float64
	ReminderEvery     time.Duration
	PayrollCron       string
}

// Load reads the environment, after merging a .env file if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	tz := getenv("TZ", "Asia/Kolkata")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	adminIDs, err := parseIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}
	ttl, err := durationEnv("TOKEN_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}
	every, err := durationEnv("REMINDER_EVERY", time.Minute)
	if err != nil {
		return nil, err
	}
	rate, err := floatEnv("DEFAULT_HOURLY_RATE", 500)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Store:             strings.ToLower(getenv("STORE", "postgres")),
		Location:          loc,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		Env:               strings.ToLower(getenv("ENV", "dev")),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		Release:           getenv("RELEASE", "dev"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		TokenTTL:          ttl,
		BotToken:          os.Getenv("BOT_TOKEN"),
		AdminIDs:          adminIDs,
		SendgridKey:       os.Getenv("SENDGRID_API_KEY"),
		MailFrom:          getenv("MAIL_FROM", "noreply@tutorcenter.local"),
		AppName:           getenv("APP_NAME", "Tutor Center"),
		UploadDir:         getenv("UPLOAD_DIR", "./uploads"),
		DefaultHourlyRate: rate,
		ReminderEvery:     every,
		PayrollCron:       getenv("PAYROLL_CRON", "0 6 1 * *"),
	}

	switch cfg.Store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("STORE: unknown backend %q", cfg.Store)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProd() {
			return nil, errors.New("JWT_SECRET is required in prod")
		}
		cfg.JWTSecret = devJWTSecret
		cfg.DevSecret = true
	}
	return cfg, nil
}

func (c *Config) IsProd() bool { return c.Env == "prod" }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", k)
	}
	return d, nil
}

func floatEnv(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
