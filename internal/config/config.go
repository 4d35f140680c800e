package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blackwhitehere/acme-data-dash/internal/connection"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Check registers one check instance. Params become the defaults of the
// matching parameter definitions.
type Check struct {
	ID          string            `yaml:"id"`
	Type        string            `yaml:"type"`
	Description string            `yaml:"description"`
	Params      map[string]string `yaml:"params"`
}

// AuthConfig protects the configuration endpoints. Empty JWTSecret disables auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address     string     `yaml:"address"`
	CORSOrigins []string   `yaml:"cors_origins"`
	Auth        AuthConfig `yaml:"auth"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the process logger. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SecretsConfig selects the secret backend.
type SecretsConfig struct {
	Backend   string            `yaml:"backend"`
	EnvPrefix string            `yaml:"env_prefix"`
	EnvFile   string            `yaml:"env_file"`
	Values    map[string]string `yaml:"values"`
}

// ConnectionsConfig selects where connection profiles come from.
type ConnectionsConfig struct {
	Source   string               `yaml:"source"`
	Profiles []connection.Profile `yaml:"profiles"`
}

// ExecutionConfig bounds a single check run. Zero Timeout means no limit.
type ExecutionConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
	Secrets     SecretsConfig     `yaml:"secrets"`
	Connections ConnectionsConfig `yaml:"connections"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Checks      []Check           `yaml:"checks"`
}

// Check types known to the checks package.
var validTypes = map[string]bool{
	"example":       true,
	"sql_row_count": true,
	"sql_freshness": true,
	"http_endpoint": true,
	"tcp_port":      true,
}

var (
	validSecretBackends = map[string]bool{"env": true, "store": true, "memory": true}
	validSources        = map[string]bool{"store": true, "static": true}
	validLogLevels      = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats     = map[string]bool{"text": true, "json": true}
)

// envOverrides are read from DATADASH_* variables and win over the file.
type envOverrides struct {
	Address        string `envconfig:"ADDRESS"`
	StoragePath    string `envconfig:"STORAGE_PATH"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	LogFormat      string `envconfig:"LOG_FORMAT"`
	LogFile        string `envconfig:"LOG_FILE"`
	SecretsBackend string `envconfig:"SECRETS_BACKEND"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	WebhookURL     string `envconfig:"WEBHOOK_URL"`
	MetricsEnabled string `envconfig:"METRICS_ENABLED"`
}

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "DATADASH"

// Load reads, parses, and validates the config file at path.
//
// Order: YAML file, then the optional secrets.env_file (which never replaces
// variables already set), then DATADASH_* overrides, then defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Secrets.EnvFile != "" {
		if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %q: %w", cfg.Secrets.EnvFile, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Address, ov.Address)
	set(&cfg.Storage.Path, ov.StoragePath)
	set(&cfg.Log.Level, ov.LogLevel)
	set(&cfg.Log.Format, ov.LogFormat)
	set(&cfg.Log.File, ov.LogFile)
	set(&cfg.Secrets.Backend, ov.SecretsBackend)
	set(&cfg.Server.Auth.JWTSecret, ov.JWTSecret)
	set(&cfg.Alerts.Webhook.URL, ov.WebhookURL)
	if ov.MetricsEnabled != "" {
		b, err := strconv.ParseBool(ov.MetricsEnabled)
		if err != nil {
			return fmt.Errorf("%s_METRICS_ENABLED: %w", EnvPrefix, err)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":3000"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data_dash.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 14
	}
	if cfg.Secrets.Backend == "" {
		cfg.Secrets.Backend = "store"
	}
	if cfg.Connections.Source == "" {
		cfg.Connections.Source = "store"
	}
	if cfg.Alerts.Webhook.Cooldown.Duration == 0 {
		cfg.Alerts.Webhook.Cooldown = Duration{5 * time.Minute}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func (cfg *Config) validate() error {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log: invalid level %q (must be debug, info, warn, or error)", cfg.Log.Level)
	}
	if !validLogFormats[cfg.Log.Format] {
		return fmt.Errorf("log: invalid format %q (must be text or json)", cfg.Log.Format)
	}
	if !validSecretBackends[cfg.Secrets.Backend] {
		return fmt.Errorf("secrets: invalid backend %q (must be env, store, or memory)", cfg.Secrets.Backend)
	}
	if !validSources[cfg.Connections.Source] {
		return fmt.Errorf("connections: invalid source %q (must be store or static)", cfg.Connections.Source)
	}
	if cfg.Execution.Timeout.Duration < 0 {
		return fmt.Errorf("execution: timeout must not be negative")
	}

	profileNames := make(map[string]bool, len(cfg.Connections.Profiles))
	for i, p := range cfg.Connections.Profiles {
		if p.Name == "" {
			return fmt.Errorf("connections.profiles[%d]: name is required", i)
		}
		if profileNames[p.Name] {
			return fmt.Errorf("duplicate connection profile %q", p.Name)
		}
		profileNames[p.Name] = true
		if p.Driver == "" {
			return fmt.Errorf("connection profile %q: driver is required", p.Name)
		}
		if p.Template == "" {
			return fmt.Errorf("connection profile %q: template is required", p.Name)
		}
	}

	if len(cfg.Checks) == 0 {
		return fmt.Errorf("at least one check must be configured")
	}
	ids := make(map[string]bool, len(cfg.Checks))
	for i, c := range cfg.Checks {
		if c.ID == "" {
			return fmt.Errorf("checks[%d]: id is required", i)
		}
		if ids[c.ID] {
			return fmt.Errorf("duplicate check id %q", c.ID)
		}
		ids[c.ID] = true
		if !validTypes[c.Type] {
			return fmt.Errorf("check %q: invalid type %q", c.ID, c.Type)
		}
	}
	return nil
}
