package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig         `yaml:"hue"`
	Telegram        TelegramConfig    `yaml:"telegram"`
	Panel           PanelConfig       `yaml:"panel"`
	Rooms           []RoomConfig      `yaml:"rooms"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"` // Empty = discover over mDNS at startup
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`        // Per-request timeout for light reads/writes
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Max bridge requests per second

	DiscoverRooms    bool     `yaml:"discover_rooms"`    // Build rooms from the bridge's Room groups
	DiscoveryTimeout Duration `yaml:"discovery_timeout"` // mDNS browse duration
}

// TelegramConfig contains bot transport settings
type TelegramConfig struct {
	Token       string        `yaml:"token"`
	Command     string        `yaml:"command"` // Command that opens the panel, without the slash
	Mode        string        `yaml:"mode"`    // "polling" or "webhook"
	PollTimeout Duration      `yaml:"poll_timeout"`
	Webhook     WebhookConfig `yaml:"webhook"`
	Debug       bool          `yaml:"debug"`
}

// WebhookConfig contains settings for receiving updates over HTTP
type WebhookConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	PublicURL string `yaml:"public_url"` // If set, registered with Telegram on start
}

// PanelConfig contains the interactive panel timings
type PanelConfig struct {
	RefreshInterval Duration `yaml:"refresh_interval"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
}

// RoomConfig describes one room of lights
type RoomConfig struct {
	Name   string `yaml:"name"`
	Lights []int  `yaml:"lights"`
	Color  bool   `yaml:"color"` // Offer the hue/saturation palette instead of colour temperature
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"` // Journal entries older than this are pruned at startup
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
	File    string `yaml:"file"` // Optional rotated log file, in addition to stderr
}

// GetLevel returns the configured log level
func (c *LogConfig) GetLevel() string {
	return strings.ToLower(c.Level)
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns host with default
func (c *HealthcheckConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// GetPort returns port with default
func (c *HealthcheckConfig) GetPort() int {
	if c.Port <= 0 {
		return 9090
	}
	return c.Port
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Per-worker queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// GetShutdownTimeout returns the shutdown timeout as a time.Duration
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML, applying env expansion and defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lightpanel.sqlite"
	}
	if cfg.Database.Retention == 0 {
		cfg.Database.Retention = Duration(30 * 24 * time.Hour)
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(5 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}
	if cfg.Hue.DiscoveryTimeout == 0 {
		cfg.Hue.DiscoveryTimeout = Duration(5 * time.Second)
	}

	// Telegram defaults
	if cfg.Telegram.Command == "" {
		cfg.Telegram.Command = "hue"
	}
	cfg.Telegram.Command = strings.TrimPrefix(cfg.Telegram.Command, "/")
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = "polling"
	}
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = Duration(30 * time.Second)
	}
	if cfg.Telegram.Webhook.Host == "" {
		cfg.Telegram.Webhook.Host = "0.0.0.0"
	}
	if cfg.Telegram.Webhook.Port == 0 {
		cfg.Telegram.Webhook.Port = 8443
	}
	if cfg.Telegram.Webhook.Path == "" {
		cfg.Telegram.Webhook.Path = "/telegram"
	}

	// Panel defaults
	if cfg.Panel.RefreshInterval == 0 {
		cfg.Panel.RefreshInterval = Duration(10 * time.Second)
	}
	if cfg.Panel.IdleTimeout == 0 {
		cfg.Panel.IdleTimeout = Duration(60 * time.Second)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks settings that have no sensible default
func (c *Config) Validate() error {
	switch c.Telegram.Mode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("telegram.mode must be \"polling\" or \"webhook\", got %q", c.Telegram.Mode)
	}
	if c.Hue.RateLimitRPS < 0 {
		return fmt.Errorf("hue.rate_limit_rps must be positive")
	}
	if !c.Hue.DiscoverRooms && len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms configured and hue.discover_rooms is disabled")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
