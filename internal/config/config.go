// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Storage drivers accepted in DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	GitHubToken      string
	GitHubAPIURL     string
	DatabaseDriver   string
	DatabasePath     string
	DatabaseURL      string
	LogLevel         string
	AllowedUsers     []int64
	DigestHour       int
	Timezone         string
	SendRate         int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	ghToken := os.Getenv("GITHUB_TOKEN")
	if ghToken == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is required")
	}

	driver := strings.ToLower(envOrDefault("DATABASE_DRIVER", DriverSQLite))
	dbURL := os.Getenv("DATABASE_URL")
	switch driver {
	case DriverSQLite:
	case DriverPostgres:
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q, use: sqlite, postgres", driver)
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

	hour, err := intEnv("DIGEST_HOUR", 9)
	if err != nil {
		return nil, err
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("DIGEST_HOUR must be between 0 and 23, got %d", hour)
	}

	tz := envOrDefault("TIMEZONE", "UTC")
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	sendRate, err := intEnv("SEND_RATE", 20)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramBotToken: token,
		GitHubToken:      ghToken,
		GitHubAPIURL:     strings.TrimRight(envOrDefault("GITHUB_API_URL", "https://api.github.com"), "/"),
		DatabaseDriver:   driver,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		DatabaseURL:      dbURL,
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		AllowedUsers:     allowedUsers,
		DigestHour:       hour,
		Timezone:         tz,
		SendRate:         sendRate,
	}, nil
}

// Location returns the time zone digests are scheduled in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.DatabaseDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
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

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
