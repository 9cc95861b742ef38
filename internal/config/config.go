package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Collector kinds
const (
	KindMessage  = "message"
	KindReaction = "reaction"
	KindKeyboard = "keyboard"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Database        DatabaseConfig    `yaml:"database"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	HTTP            HTTPConfig        `yaml:"http"`
	Collectors      []CollectorConfig `yaml:"collectors"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Plain JSON lines instead of the console writer
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains session ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1, keeps publish order)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 1
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

// HTTPConfig contains the health/metrics server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CollectorConfig declares one collector started by the app.
// Time "off" disables the lifetime timer; Max -1 disables the item cap.
type CollectorConfig struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`       // message, reaction or keyboard
	ChatID       int64    `yaml:"chat_id"`    // Required for message and reaction
	MessageID    int      `yaml:"message_id"` // Reaction only, 0 = any message
	Time         Duration `yaml:"time"`
	Idle         Duration `yaml:"idle"`
	Max          int      `yaml:"max"`
	MaxProcessed int      `yaml:"max_processed"`
	MaxUsers     int      `yaml:"max_users"` // Keyboard only
	Dispose      bool     `yaml:"dispose"`
	Filter       string   `yaml:"filter"` // Lua predicate, empty = accept all
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// Off disables a timer
const Off = Duration(-1)

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "off" {
		*d = Off
		return nil
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

// Parse expands environment variables in data, decodes it and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./tgcollect.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	for i := range cfg.Collectors {
		c := &cfg.Collectors[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("%s-%d", c.Kind, i+1)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks collector declarations
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Collectors))
	for _, cc := range c.Collectors {
		if seen[cc.Name] {
			errs = append(errs, fmt.Errorf("collector %q: duplicate name", cc.Name))
		}
		seen[cc.Name] = true

		switch cc.Kind {
		case KindMessage, KindReaction:
			if cc.ChatID == 0 {
				errs = append(errs, fmt.Errorf("collector %q: chat_id is required for kind %s", cc.Name, cc.Kind))
			}
		case KindKeyboard:
			if cc.MaxUsers < 0 {
				errs = append(errs, fmt.Errorf("collector %q: max_users must not be negative", cc.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("collector %q: unknown kind %q", cc.Name, cc.Kind))
		}

		if cc.Max < -1 {
			errs = append(errs, fmt.Errorf("collector %q: max must be -1 or more", cc.Name))
		}
		if cc.Time < 0 && cc.Time != Off {
			errs = append(errs, fmt.Errorf("collector %q: time must be positive or \"off\"", cc.Name))
		}
		if cc.MaxProcessed < 0 || cc.Idle < 0 {
			errs = append(errs, fmt.Errorf("collector %q: max_processed and idle must not be negative", cc.Name))
		}
	}
	return errors.Join(errs...)
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
