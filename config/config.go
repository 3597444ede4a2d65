package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Timezone modes for the reminder eligibility check.
const (
	TimezoneModeFixed   = "fixed"
	TimezoneModePerUser = "per_user"
)

// ErrMissingVAPIDKeys is returned by Validate when either VAPID key is empty.
var ErrMissingVAPIDKeys = errors.New("vapid public and private keys must both be configured")

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Push     PushConfig     `yaml:"push"`
	Reminder ReminderConfig `yaml:"reminder"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	Urgency    string `yaml:"urgency"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port              int     `yaml:"port"`
	RateLimitPerSec   float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst    int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
	CORSAllowedOrigin string  `yaml:"cors_allowed_origin"`
}

// ReminderConfig controls the daily reminder dispatch job.
type ReminderConfig struct {
	Timezone             string        `yaml:"timezone"`
	TimezoneMode         string        `yaml:"timezone_mode"`
	TimePrecisionSeconds int           `yaml:"time_precision_seconds"`
	TimePrecision        time.Duration `yaml:"-"`
	ScheduleEnabled      bool          `yaml:"schedule_enabled"`
	IntervalSeconds      int           `yaml:"interval_seconds"`
	Interval             time.Duration `yaml:"-"`
	TriggerToken         string        `yaml:"trigger_token"`
	Icon                 string        `yaml:"icon"`
	Badge                string        `yaml:"badge"`
	URL                  string        `yaml:"url"`
}

// AuthConfig holds the secret used to verify user bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig selects the application log level.
type LogConfig struct {
	Level    string `yaml:"level"`
	GormMode string `yaml:"gorm_mode"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableConstraints      bool   `yaml:"enable_constraints"`
}

// envOverrides lists the secrets that may be supplied through the environment
// instead of the YAML file. Empty values leave the file setting untouched.
type envOverrides struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `envconfig:"VAPID_SUBJECT"`
	JWTSecret       string `envconfig:"JWT_SECRET"`
	DatabaseDSN     string `envconfig:"DATABASE_DSN"`
	TriggerToken    string `envconfig:"TRIGGER_TOKEN"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
}

// LoadDotEnv loads variables from a .env file if one exists at path.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration from the given path, applies environment
// overrides and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Push.PublicKey, env.VAPIDPublicKey)
	set(&c.Push.PrivateKey, env.VAPIDPrivateKey)
	set(&c.Push.Subject, env.VAPIDSubject)
	set(&c.Auth.JWTSecret, env.JWTSecret)
	set(&c.Database.DSN, env.DatabaseDSN)
	set(&c.Reminder.TriggerToken, env.TriggerToken)
	set(&c.Log.Level, env.LogLevel)
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 60
	}
	if c.Server.CORSAllowedOrigin == "" {
		c.Server.CORSAllowedOrigin = "*"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.Push.Subject == "" {
		c.Push.Subject = "admin@tiffin-tracker.local"
	}

	if c.Reminder.Timezone == "" {
		c.Reminder.Timezone = "UTC"
	}
	if c.Reminder.TimezoneMode == "" {
		c.Reminder.TimezoneMode = TimezoneModeFixed
	}
	if c.Reminder.TimePrecisionSeconds <= 0 {
		c.Reminder.TimePrecisionSeconds = 1
	}
	c.Reminder.TimePrecision = time.Duration(c.Reminder.TimePrecisionSeconds) * time.Second
	if c.Reminder.IntervalSeconds <= 0 {
		c.Reminder.IntervalSeconds = 3600
	}
	c.Reminder.Interval = time.Duration(c.Reminder.IntervalSeconds) * time.Second
	if c.Reminder.Icon == "" {
		c.Reminder.Icon = "/icon-192.png"
	}
	if c.Reminder.Badge == "" {
		c.Reminder.Badge = "/icon-192.png"
	}
	if c.Reminder.URL == "" {
		c.Reminder.URL = "/"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.GormMode == "" {
		c.Log.GormMode = "warn"
	}
}

// Validate checks settings that must be correct before any work starts.
func (c *Config) Validate() error {
	if c.Push.PublicKey == "" || c.Push.PrivateKey == "" {
		return ErrMissingVAPIDKeys
	}
	switch c.Reminder.TimezoneMode {
	case TimezoneModeFixed, TimezoneModePerUser:
	default:
		return fmt.Errorf("unknown reminder.timezone_mode %q", c.Reminder.TimezoneMode)
	}
	if _, err := time.LoadLocation(c.Reminder.Timezone); err != nil {
		return fmt.Errorf("invalid reminder.timezone %q: %w", c.Reminder.Timezone, err)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// Subscriber returns the VAPID contact in the form webpush-go expects: an
// https: URL as is, or a bare e-mail address. webpush-go prefixes anything
// that is not https: with "mailto:" itself.
func (p PushConfig) Subscriber() string {
	s := strings.TrimSpace(p.Subject)
	if len(s) >= len("mailto:") && strings.EqualFold(s[:len("mailto:")], "mailto:") {
		s = s[len("mailto:"):]
	}
	return s
}

// Location returns the configured application timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
