// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"court_bot/internal/fetcher"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	CourtURLTemplate string
	RefreshSchedule  string
	Timezone         string
	CheckInterval    time.Duration
	Workers          int
	FetchTimeout     time.Duration
	SendTimeout      time.Duration
	SendRate         int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	urlTemplate := envOrDefault("COURT_URL_TEMPLATE", fetcher.DefaultURLTemplate)
	if strings.Count(urlTemplate, "%s") != 1 {
		return nil, fmt.Errorf("COURT_URL_TEMPLATE must contain exactly one %%s")
	}

	checkInterval, err := durationEnv("CHECK_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := durationEnv("FETCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := durationEnv("SEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	workers, err := positiveIntEnv("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	sendRate, err := positiveIntEnv("SEND_RATE", 20)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		CourtURLTemplate: urlTemplate,
		RefreshSchedule:  envOrDefault("REFRESH_SCHEDULE", "0 8 * * *"),
		Timezone:         envOrDefault("TIMEZONE", "Europe/Berlin"),
		CheckInterval:    checkInterval,
		Workers:          workers,
		FetchTimeout:     fetchTimeout,
		SendTimeout:      sendTimeout,
		SendRate:         sendRate,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
