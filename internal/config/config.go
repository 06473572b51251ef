package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the RepoPulse server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	GitHub   GitHubConfig
	Auth     AuthConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type GitHubConfig struct {
	APIBaseURL   string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
	CacheTTL     time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// EncryptionKey seals GitHub access tokens stored in job payloads.
	// 32 bytes, hex encoded.
	EncryptionKey string
}

type JobsConfig struct {
	StuckTimeout time.Duration
	MaxAttempts  int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("REPOPULSE_PORT", 8080),
			Env:  envString("REPOPULSE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		GitHub: GitHubConfig{
			APIBaseURL:   envString("GITHUB_API_BASE_URL", "https://api.github.com"),
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
			Timeout:      envDuration("GITHUB_TIMEOUT", 15*time.Second),
			CacheTTL:     envDuration("GITHUB_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:       os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  envDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: envDuration("JWT_REFRESH_TTL", 14*24*time.Hour),
			EncryptionKey:   os.Getenv("TOKEN_ENCRYPTION_KEY"),
		},
		Jobs: JobsConfig{
			StuckTimeout: time.Duration(envInt("JOB_STUCK_TIMEOUT_MINUTES", 30)) * time.Minute,
			MaxAttempts:  envInt("JOB_MAX_ATTEMPTS", 3),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.GitHub.APIBaseURL, "http://") && !strings.HasPrefix(c.GitHub.APIBaseURL, "https://") {
		return fmt.Errorf("GITHUB_API_BASE_URL must start with http:// or https://, got %q", c.GitHub.APIBaseURL)
	}
	if c.GitHub.ClientID == "" {
		return fmt.Errorf("GITHUB_CLIENT_ID is required")
	}
	if c.GitHub.ClientSecret == "" {
		return fmt.Errorf("GITHUB_CLIENT_SECRET is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}

	if c.Jobs.StuckTimeout <= 0 {
		return fmt.Errorf("JOB_STUCK_TIMEOUT_MINUTES must be positive")
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
