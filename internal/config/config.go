// Package config handles application configuration loading from YAML
// files and environment variables using Viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/vaultbridge/importengine/internal/model"
)

// Config is the top-level application configuration for the import
// engine's host process (cmd/server).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Settings SettingsConfig `mapstructure:"settings"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds the local HTTP transport's listen settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address returns the listen address string.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SettingsConfig mirrors the settings keys recognized per spec §6.
type SettingsConfig struct {
	DefaultImportLocation      string `mapstructure:"default_import_location"`
	IsSubfolderCreationEnabled bool   `mapstructure:"is_subfolder_creation_enabled"`
	IsKeepHigherVersionEnabled bool   `mapstructure:"is_keep_higher_version_enabled"`
	IsReimportModalDisabled    bool   `mapstructure:"is_reimport_modal_disabled"`
	BaseCacheLocation          string `mapstructure:"base_cache_location"`
	ThumbnailsCacheLocation    string `mapstructure:"thumbnails_cache_location"`
	MaxCacheSizeMB             int64  `mapstructure:"max_cache_size_mb"`
	DefaultSearchPageSize      int    `mapstructure:"default_search_page_size"`
	SchedulerIntervalMinutes   int    `mapstructure:"scheduler_interval_minutes"`
}

// PostgresConfig holds the optional Postgres mirror's connection
// settings (internal/persist/pgmirror). The mirror is used only when
// Enabled is true.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Enabled  bool   `mapstructure:"enabled"`
}

// DSN returns the PostgreSQL connection string.
func (d PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Neo4jConfig holds the optional graph mirror's connection settings
// (internal/persist/graphmirror).
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
}

// NATSConfig holds the event bus connection settings.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NotifierConfig holds the optional webhook-alerting settings
// (internal/notifier). Empty WebhookURL disables delivery; the
// notifier still evaluates rules (for the logged "rule matched" line)
// but has nowhere to post.
type NotifierConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Enabled    bool   `mapstructure:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration from file and environment variables. It
// searches for config.yaml in ./configs, /etc/import-engine, and
// $HOME/.import-engine.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8085)
	v.SetDefault("settings.is_subfolder_creation_enabled", true)
	v.SetDefault("settings.is_keep_higher_version_enabled", false)
	v.SetDefault("settings.is_reimport_modal_disabled", false)
	v.SetDefault("settings.base_cache_location", ".cache/assets")
	v.SetDefault("settings.thumbnails_cache_location", ".cache/thumbnails")
	v.SetDefault("settings.max_cache_size_mb", 512)
	v.SetDefault("settings.default_search_page_size", 100)
	v.SetDefault("settings.scheduler_interval_minutes", 15)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("notifier.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/import-engine")
	v.AddConfigPath("$HOME/.import-engine")

	v.SetEnvPrefix("IMPORT_ENGINE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine - use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// ImportPath returns the default import root, falling back to the
// current directory when unset.
func (c SettingsConfig) ImportPath() string {
	if c.DefaultImportLocation != "" {
		return c.DefaultImportLocation
	}
	return "."
}

// Effective builds the EffectiveImportSettings a pipeline should use
// absent per-call overrides.
func (c SettingsConfig) Effective() model.EffectiveImportSettings {
	return model.EffectiveImportSettings{
		DefaultImportLocation:      c.DefaultImportLocation,
		IsSubfolderCreationEnabled: c.IsSubfolderCreationEnabled,
		IsKeepHigherVersionEnabled: c.IsKeepHigherVersionEnabled,
		IsReimportModalDisabled:    c.IsReimportModalDisabled,
		ImportPath:                 c.ImportPath(),
	}
}
