package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func defaults(token string) *Config {
	return &Config{
		TelegramBotToken: token,
		DatabasePath:     "./data/bot.db",
		LogLevel:         "info",
		CourtURLTemplate: "https://www.%s.nrw.de/behoerde/sitzungstermine/index.php",
		RefreshSchedule:  "0 8 * * *",
		Timezone:         "Europe/Berlin",
		CheckInterval:    5 * time.Minute,
		Workers:          4,
		FetchTimeout:     60 * time.Second,
		SendTimeout:      15 * time.Second,
		SendRate:         20,
	}
}

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "DATABASE_PATH", "LOG_LEVEL", "ALLOWED_USERS",
	"COURT_URL_TEMPLATE", "REFRESH_SCHEDULE", "TIMEZONE", "CHECK_INTERVAL",
	"WORKERS", "FETCH_TIMEOUT", "SEND_TIMEOUT", "SEND_RATE",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "test-token"},
			want: func() *Config { return defaults("test-token") },
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"DATABASE_PATH":      "/tmp/bot.db",
				"LOG_LEVEL":          "debug",
				"ALLOWED_USERS":      "111,222,333",
				"COURT_URL_TEMPLATE": "http://localhost:8080/%s/index.php",
				"REFRESH_SCHEDULE":   "30 7 * * 1-5",
				"TIMEZONE":           "UTC",
				"CHECK_INTERVAL":     "1m",
				"WORKERS":            "8",
				"FETCH_TIMEOUT":      "30s",
				"SEND_TIMEOUT":       "5s",
				"SEND_RATE":          "10",
			},
			want: func() *Config {
				return &Config{
					TelegramBotToken: "tok",
					DatabasePath:     "/tmp/bot.db",
					LogLevel:         "debug",
					AllowedUsers:     []int64{111, 222, 333},
					CourtURLTemplate: "http://localhost:8080/%s/index.php",
					RefreshSchedule:  "30 7 * * 1-5",
					Timezone:         "UTC",
					CheckInterval:    time.Minute,
					Workers:          8,
					FetchTimeout:     30 * time.Second,
					SendTimeout:      5 * time.Second,
					SendRate:         10,
				}
			},
		},
		{
			name: "allowed users with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults("tok")
				c.AllowedUsers = []int64{10, 20}
				return c
			},
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
		{
			name: "template without placeholder",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"COURT_URL_TEMPLATE": "https://example.com/index.php",
			},
			wantErr: true,
		},
		{
			name: "invalid interval",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"CHECK_INTERVAL":     "often",
			},
			wantErr: true,
		},
		{
			name: "negative timeout",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"FETCH_TIMEOUT":      "-1s",
			},
			wantErr: true,
		},
		{
			name: "zero workers",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"WORKERS":            "0",
			},
			wantErr: true,
		},
		{
			name: "non-numeric send rate",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"SEND_RATE":          "fast",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear relevant env vars
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
