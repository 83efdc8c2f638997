package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"lessonbot/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ops        OpsConfig        `yaml:"ops"`
	Booking    BookingConfig    `yaml:"booking"`
	Reminder   ReminderConfig   `yaml:"reminder"`
	Admins     []int64          `yaml:"admins"`
	Operators  []int64          `yaml:"operators"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type OpsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// BookingConfig tunes the reservation engine.
type BookingConfig struct {
	Timezone          string `yaml:"timezone"`
	WeeklyQuota       int    `yaml:"weekly_quota"`
	PaginationSize    int    `yaml:"pagination_size"`
	RateLimitMessages int    `yaml:"rate_limit_messages"`
	RateLimitWindow   int    `yaml:"rate_limit_window"`
}

// ReminderConfig tunes the dispatcher.
type ReminderConfig struct {
	SweepInterval string `yaml:"sweep_interval"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; the YAML may reference its variables.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid booking timezone %q: %w", c.Booking.Timezone, err)
	}

	if _, err := time.ParseDuration(c.Reminder.SweepInterval); err != nil {
		return fmt.Errorf("invalid reminder sweep interval %q: %w", c.Reminder.SweepInterval, err)
	}

	return nil
}

// Location resolves the configured booking timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SweepInterval resolves the configured dispatcher sweep period.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.Reminder.SweepInterval)
	if err != nil {
		return time.Duration(models.DefaultSweepInterval) * time.Second
	}
	return d
}

func (c *Config) applyDefaults() {
	if c.Ops.Enabled && c.Ops.Port == 0 {
		c.Ops.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Booking.Timezone == "" {
		c.Booking.Timezone = models.DefaultTimezone
	}
	if c.Booking.WeeklyQuota == 0 {
		c.Booking.WeeklyQuota = models.DefaultWeeklyQuota
	}
	if c.Booking.PaginationSize == 0 {
		c.Booking.PaginationSize = models.DefaultPaginationSize
	}
	if c.Booking.RateLimitMessages == 0 {
		c.Booking.RateLimitMessages = models.RateLimitMessages
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.RateLimitWindow
	}

	if c.Reminder.SweepInterval == "" {
		c.Reminder.SweepInterval = fmt.Sprintf("%ds", models.DefaultSweepInterval)
	}
}

// IsAdmin reports whether the user is on the admin allow-list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
