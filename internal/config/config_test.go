package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseIDs(t *testing.T) {
	got, err := parseIDs(" 10, 20 30 ")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{10, 20, 30}, got); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if _, err := parseIDs("1,x"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENV", "dev")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TZ", "Asia/Kolkata")
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("REMINDER_EVERY", "")
	t.Setenv("DEFAULT_HOURLY_RATE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.DevSecret || cfg.JWTSecret == "" {
		t.Fatalf("dev secret fallback not applied: %+v", cfg)
	}
	if cfg.TokenTTL != 12*time.Hour || cfg.ReminderEvery != time.Minute {
		t.Fatalf("durations = %v, %v", cfg.TokenTTL, cfg.ReminderEvery)
	}
	if cfg.DefaultHourlyRate != 500 {
		t.Fatalf("rate = %v", cfg.DefaultHourlyRate)
	}
	if cfg.Location.String() != "Asia/Kolkata" {
		t.Fatalf("location = %s", cfg.Location)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without url": {"STORE": "postgres", "DATABASE_URL": ""},
		"unknown store":        {"STORE": "redis"},
		"prod without secret":  {"STORE": "memory", "ENV": "prod", "JWT_SECRET": ""},
		"bad duration":         {"STORE": "memory", "TOKEN_TTL": "soon"},
		"bad rate":             {"STORE": "memory", "DEFAULT_HOURLY_RATE": "lots"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for _, k := range []string{"STORE", "DATABASE_URL", "ENV", "JWT_SECRET", "TOKEN_TTL", "DEFAULT_HOURLY_RATE"} {
				t.Setenv(k, "")
			}
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
