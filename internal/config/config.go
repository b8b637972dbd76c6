package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"korty/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Backup     BackupConfig     `yaml:"backup"`
	Directory  DirectoryConfig  `yaml:"directory"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type AuthConfig struct {
	// JWTSecret verifies credentials issued by the external identity service.
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type PaymentsConfig struct {
	// BoxKey is the hex-encoded 32-byte key sealing merchant credentials.
	BoxKey                string                    `yaml:"box_key"`
	Providers             map[string]ProviderConfig `yaml:"providers"`
	SweepIntervalSeconds  int                       `yaml:"sweep_interval_seconds"`
	UnpaidDeadlineMinutes int                       `yaml:"unpaid_deadline_minutes"`
}

type ProviderConfig struct {
	APIURL         string `yaml:"api_url"`
	MerchantDomain string `yaml:"merchant_domain"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type RealtimeConfig struct {
	StreamBuffer     int `yaml:"stream_buffer"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
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

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	StoragePath   string `yaml:"storage_path"`
	IntervalHours int    `yaml:"interval_hours"`
	RetentionDays int    `yaml:"retention_days"`
}

// DirectoryConfig is the static venue dataset: who owns what and where it is.
type DirectoryConfig struct {
	Organizations []models.Organization `yaml:"organizations"`
	Clubs         []models.Club         `yaml:"clubs"`
	Courts        []models.Court        `yaml:"courts"`
	RootAdmins    []string              `yaml:"root_admins"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Environment references in the YAML are expanded before parsing, so
	// secrets stay out of the file itself.
	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Payments.BoxKey != "" {
		key, err := hex.DecodeString(c.Payments.BoxKey)
		if err != nil {
			return fmt.Errorf("payments box key is not hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("payments box key must be 32 bytes, got %d", len(key))
		}
	}

	return ValidateDirectory(&c.Directory)
}

// ValidateDirectory checks referential integrity of the venue dataset:
// unique ids, courts pointing at known clubs, clubs pointing at known
// organizations.
func ValidateDirectory(d *DirectoryConfig) error {
	orgs := make(map[string]bool, len(d.Organizations))
	for _, org := range d.Organizations {
		if org.ID == "" {
			return fmt.Errorf("organization %q has empty id", org.Name)
		}
		if orgs[org.ID] {
			return fmt.Errorf("duplicate organization id: %s", org.ID)
		}
		orgs[org.ID] = true
	}

	clubs := make(map[string]bool, len(d.Clubs))
	for _, club := range d.Clubs {
		if club.ID == "" {
			return fmt.Errorf("club %q has empty id", club.Name)
		}
		if clubs[club.ID] {
			return fmt.Errorf("duplicate club id: %s", club.ID)
		}
		if !orgs[club.OrganizationID] {
			return fmt.Errorf("club %s references unknown organization %s", club.ID, club.OrganizationID)
		}
		if club.Zone == "" {
			return fmt.Errorf("club %s has no IANA zone", club.ID)
		}
		clubs[club.ID] = true
	}

	courts := make(map[string]bool, len(d.Courts))
	for _, court := range d.Courts {
		if court.ID == "" {
			return fmt.Errorf("court %q has empty id", court.Name)
		}
		if courts[court.ID] {
			return fmt.Errorf("duplicate court id: %s", court.ID)
		}
		if !clubs[court.ClubID] {
			return fmt.Errorf("court %s references unknown club %s", court.ID, court.ClubID)
		}
		if court.PricePerHour < 0 {
			return fmt.Errorf("court %s has negative price", court.ID)
		}
		courts[court.ID] = true
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9091
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "korty.events"
	}
	if c.Realtime.StreamBuffer == 0 {
		c.Realtime.StreamBuffer = models.DefaultStreamBuffer
	}
	if c.Realtime.HeartbeatSeconds == 0 {
		c.Realtime.HeartbeatSeconds = 25
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.Payments.SweepIntervalSeconds == 0 {
		c.Payments.SweepIntervalSeconds = 60
	}
	if c.Payments.UnpaidDeadlineMinutes == 0 {
		c.Payments.UnpaidDeadlineMinutes = 20
	}
	if c.Backup.Enabled {
		if c.Backup.StoragePath == "" {
			c.Backup.StoragePath = "backups"
		}
		if c.Backup.IntervalHours == 0 {
			c.Backup.IntervalHours = 24
		}
	}
	for name, p := range c.Payments.Providers {
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = 8
			c.Payments.Providers[name] = p
		}
	}
}
