// Package config loads the server configuration from a YAML or TOML file,
// .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no path is given on the command line.
const DefaultConfigPath = "config.yaml"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	Auth    AuthConfig    `yaml:"auth" toml:"auth"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr" validate:"required"`                      // Listen address.
	PublicDir       string        `yaml:"public_dir" toml:"public_dir"`                              // Static front-end directory, optional.
	MaxBodyBytes    int64         `yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`     // Request body limit, 0 disables.
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout" validate:"gte=0"`         // http.Server ReadTimeout.
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout" validate:"gte=0"`       // http.Server WriteTimeout.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" validate:"gte=0"` // Graceful shutdown budget.
	Metrics         bool          `yaml:"metrics" toml:"metrics"`                                    // Expose /metrics.
	FrameDeny       bool          `yaml:"frame_deny" toml:"frame_deny"`                              // Send X-Frame-Options: DENY.
}

// StorageConfig selects and configures the kv store driver.
type StorageConfig struct {
	Driver    string         `yaml:"driver" toml:"driver" validate:"oneof=file redis database memory"`
	KeyPrefix string         `yaml:"key_prefix" toml:"key_prefix" validate:"excludesall=/\\"` // Namespace for store keys.
	DataDir   string         `yaml:"data_dir" toml:"data_dir" validate:"required_if=Driver file"`
	Redis     RedisConfig    `yaml:"redis" toml:"redis"`
	Database  DatabaseConfig `yaml:"database" toml:"database"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	URL          string        `yaml:"url" toml:"url"`
	DialTimeout  time.Duration `yaml:"dial_timeout" toml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"`
}

// DatabaseConfig configures the database driver.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level" validate:"oneof=trace debug info warn warning error"`
	Format     string `yaml:"format" toml:"format" validate:"oneof=text json"`
	File       string `yaml:"file" toml:"file"`                 // Optional log file, rotated by size.
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`   // Rotation size.
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`   // Rotated files kept.
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"` // Days rotated files are kept.
	Compress   bool   `yaml:"compress" toml:"compress"`         // Gzip rotated files.
}

// AuthConfig configures the optional admin login guarding mutations.
type AuthConfig struct {
	Enabled      bool          `yaml:"enabled" toml:"enabled"`
	Username     string        `yaml:"username" toml:"username" validate:"required_if=Enabled true"`
	PasswordHash string        `yaml:"password_hash" toml:"password_hash" validate:"required_if=Enabled true"` // bcrypt hash.
	JWTSecret    string        `yaml:"jwt_secret" toml:"jwt_secret" validate:"required_if=Enabled true"`
	TokenTTL     time.Duration `yaml:"token_ttl" toml:"token_ttl" validate:"gte=0"`
	TOTPSecret   string        `yaml:"totp_secret" toml:"totp_secret"` // Base32 secret; empty disables the second factor.
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    10 << 20,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Metrics:         true,
			FrameDeny:       true,
		},
		Storage: StorageConfig{
			Driver:  "file",
			DataDir: "data",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
	}
}

// ResolveConfigPath returns the explicit path or the LUMEN_CONFIG env value
// or DefaultConfigPath.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if env := strings.TrimSpace(os.Getenv("LUMEN_CONFIG")); env != "" {
		return filepath.Clean(env)
	}
	return DefaultConfigPath
}

// ConfigExists reports whether a config file exists at path.
func ConfigExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadDotEnv loads .env and .env.local from the working directory when present.
// Variables already set in the environment are not overridden.
func LoadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, errStat := os.Stat(name); errStat != nil {
			continue
		}
		_ = godotenv.Load(name)
	}
}

// Overrides carries values from command-line flags or LUMEN_* variables.
// Empty fields leave the file value untouched.
type Overrides struct {
	Addr          string
	PublicDir     string
	StorageDriver string
	DataDir       string
	KeyPrefix     string
	LogLevel      string
}

// Load reads the YAML file at path on top of Default, applies platform
// environment variables and overrides, and validates the result.
// A missing file is not an error.
func Load(path string, overrides Overrides) (Config, error) {
	cfg := Default()

	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errDecode := decodeFile(path, data, &cfg); errDecode != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errDecode)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnv(&cfg)
	cfg.apply(overrides)
	cfg.normalize()

	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// decodeFile decodes TOML for .toml files and YAML otherwise.
func decodeFile(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv applies variables set by hosting platforms.
func applyEnv(cfg *Config) {
	if v := firstEnv("PORT"); v != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := firstEnv("KV_URL", "REDIS_URL"); v != "" && cfg.Storage.Redis.URL == "" {
		cfg.Storage.Redis.URL = v
	}
	if v := firstEnv("DATABASE_URL"); v != "" && cfg.Storage.Database.DSN == "" {
		cfg.Storage.Database.DSN = v
	}
	if v := firstEnv("LUMEN_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

// apply copies non-empty overrides into the config.
func (c *Config) apply(o Overrides) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Addr, o.Addr)
	set(&c.Server.PublicDir, o.PublicDir)
	set(&c.Storage.Driver, o.StorageDriver)
	set(&c.Storage.DataDir, o.DataDir)
	set(&c.Storage.KeyPrefix, o.KeyPrefix)
	set(&c.Log.Level, o.LogLevel)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// normalize lower-cases enum-like fields.
func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate caches struct metadata across calls.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and driver-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config: invalid %s (%s %s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("config: %w", err)
	}
	switch c.Storage.Driver {
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.URL) == "" {
			return fmt.Errorf("config: storage.redis.url (or KV_URL) is required for the redis driver")
		}
	case "database":
		if strings.TrimSpace(c.Storage.Database.DSN) == "" {
			return fmt.Errorf("config: storage.database.dsn (or DATABASE_URL) is required for the database driver")
		}
	}
	return nil
}
