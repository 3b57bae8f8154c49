package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Listen            string `yaml:"listen"`
	DBPath            string `yaml:"db_path"`
	RateLimit         int    `yaml:"rate_limit"`          // запросов на окно с одного IP
	RateWindowSeconds int    `yaml:"rate_window_seconds"` // окно rate limiter-а
}

// AuthConfig holds admin authentication settings.
// AdminPasswordHash хранится как bcrypt hash, сам пароль в конфиг не пишется.
type AuthConfig struct {
	AdminUsername     string `yaml:"admin_username"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	JWTSecret         string `yaml:"jwt_secret"`
	TokenTTLSeconds   int    `yaml:"token_ttl_seconds"`
}

// SyncConfig holds reconciliation settings
type SyncConfig struct {
	IntervalSeconds   int     `yaml:"interval_seconds"`
	MinGapHours       float64 `yaml:"min_gap_hours"`
	IncrementalOnly   bool    `yaml:"incremental_only"`
	MaxParallelGroups int     `yaml:"max_parallel_groups"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"` // debug / info / warn / error
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            "0.0.0.0:8080",
			DBPath:            "/var/lib/zfswitness/zfswitness.db",
			RateLimit:         300,
			RateWindowSeconds: 60,
		},
		Auth: AuthConfig{
			AdminUsername:   "admin",
			TokenTTLSeconds: 3600,
		},
		Sync: SyncConfig{
			IntervalSeconds:   3600,
			MinGapHours:       72,
			IncrementalOnly:   true,
			MaxParallelGroups: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a config file and applies ZW_-prefixed environment overrides.
// Пустой path означает дефолты плюс окружение.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"zfswitness.yaml",
		"/etc/zfswitness/zfswitness.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "zfswitness", "zfswitness.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// applyEnv накладывает переменные окружения поверх файла
func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("ZW_LISTEN", &c.Server.Listen)
	setString("ZW_DB_PATH", &c.Server.DBPath)
	setInt("ZW_RATE_LIMIT", &c.Server.RateLimit)

	setString("ZW_ADMIN_USERNAME", &c.Auth.AdminUsername)
	setString("ZW_ADMIN_PASSWORD_HASH", &c.Auth.AdminPasswordHash)
	setString("ZW_JWT_SECRET", &c.Auth.JWTSecret)
	setInt("ZW_TOKEN_TTL_SECONDS", &c.Auth.TokenTTLSeconds)

	setInt("ZW_SYNC_INTERVAL_SECONDS", &c.Sync.IntervalSeconds)
	if v := os.Getenv("ZW_MIN_GAP_HOURS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Sync.MinGapHours = f
		}
	}
	if v := os.Getenv("ZW_INCREMENTAL_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sync.IncrementalOnly = b
		}
	}

	setString("ZW_LOG_LEVEL", &c.Log.Level)
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("server.db_path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set ZW_JWT_SECRET)")
	}
	if c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("auth.admin_password_hash is required (set ZW_ADMIN_PASSWORD_HASH)")
	}
	if c.Sync.MinGapHours < 0 {
		return fmt.Errorf("sync.min_gap_hours must not be negative")
	}
	return nil
}

// LogLevel maps the configured level string to slog.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TokenTTL returns the admin JWT lifetime.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.Auth.TokenTTLSeconds) * time.Second
}

// SyncInterval returns the scheduler tick interval.
func (c *Config) SyncInterval() time.Duration {
	if c.Sync.IntervalSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// RateWindow returns the rate limiter window.
func (c *Config) RateWindow() time.Duration {
	if c.Server.RateWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Server.RateWindowSeconds) * time.Second
}
