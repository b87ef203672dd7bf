package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Graph    GraphConfig    `yaml:"graph" json:"graph"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	SMTP     SMTPConfig     `yaml:"smtp" json:"smtp"`
	Export   ExportConfig   `yaml:"export" json:"export"`
}

type ServerConfig struct {
	Address     string `yaml:"address" json:"address" envconfig:"ADDRESS"`
	HealthCheck bool   `yaml:"healthCheck" json:"healthCheck" envconfig:"HEALTH_CHECK"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" json:"format" envconfig:"FORMAT"`
	Output string `yaml:"output" json:"output" envconfig:"OUTPUT"`
}

type GraphConfig struct {
	TenantID     string `yaml:"tenantId" json:"tenantId" envconfig:"GRAPH_TENANT_ID"`
	ClientID     string `yaml:"clientId" json:"clientId" envconfig:"GRAPH_CLIENT_ID"`
	ClientSecret string `yaml:"clientSecret" json:"clientSecret" envconfig:"GRAPH_CLIENT_SECRET"`

	// BaseURL overrides the Graph endpoint, mainly for sovereign clouds.
	BaseURL string `yaml:"baseUrl" json:"baseUrl" envconfig:"GRAPH_BASE_URL"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" json:"driver" envconfig:"DB_DRIVER"`
	Path     string `yaml:"path" json:"path" envconfig:"DB_PATH"` // sqlite only
	Host     string `yaml:"host" json:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" json:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" json:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" json:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" json:"name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"sslMode" json:"sslMode" envconfig:"DB_SSL_MODE"`
	Encrypt  string `yaml:"encrypt" json:"encrypt" envconfig:"DB_ENCRYPT"`
}

type SyncConfig struct {
	Interval      time.Duration `yaml:"interval" json:"interval" envconfig:"SYNC_INTERVAL"`
	Workers       int           `yaml:"workers" json:"workers" envconfig:"SYNC_WORKERS"`
	RunOnStart    bool          `yaml:"runOnStart" json:"runOnStart" envconfig:"SYNC_RUN_ON_START"`
	LookupBatch   int           `yaml:"lookupBatch" json:"lookupBatch" envconfig:"SYNC_LOOKUP_BATCH"`
	Resources     []string      `yaml:"resources" json:"resources" envconfig:"SYNC_RESOURCES"`
	RetryAttempts int           `yaml:"retryAttempts" json:"retryAttempts" envconfig:"SYNC_RETRY_ATTEMPTS"`
}

type SMTPConfig struct {
	Host     string `yaml:"host" json:"host" envconfig:"SMTP_HOST"`
	Port     int    `yaml:"port" json:"port" envconfig:"SMTP_PORT"`
	Username string `yaml:"username" json:"username" envconfig:"SMTP_USERNAME"`
	Password string `yaml:"password" json:"password" envconfig:"SMTP_PASSWORD"`
	From     string `yaml:"from" json:"from" envconfig:"SMTP_FROM"`
	FromName string `yaml:"fromName" json:"fromName" envconfig:"SMTP_FROM_NAME"`
}

type ExportConfig struct {
	Dir string `yaml:"dir" json:"dir" envconfig:"EXPORT_DIR"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     ":8080",
			HealthCheck: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.microsoft.com/v1.0",
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    "graphmirror.db",
			SSLMode: "disable",
			Encrypt: "disable",
		},
		Sync: SyncConfig{
			Interval:      6 * time.Hour,
			Workers:       5,
			RunOnStart:    true,
			LookupBatch:   20,
			Resources:     []string{"users", "groups", "teams"},
			RetryAttempts: 3,
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "Directory Mirror Reports",
		},
		Export: ExportConfig{
			Dir: "downloads",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql", "sqlserver":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.LookupBatch < 1 || c.Sync.LookupBatch > 20 {
		return fmt.Errorf("sync.lookupBatch must be between 1 and 20, got %d", c.Sync.LookupBatch)
	}
	for _, r := range c.Sync.Resources {
		switch r {
		case "users", "groups", "teams":
		default:
			return fmt.Errorf("unknown sync resource %q", r)
		}
	}
	return nil
}
