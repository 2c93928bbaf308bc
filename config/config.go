// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/artpar/roomkit/core/access"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/core/roles"
)

// Config is the root configuration structure.
type Config struct {
	Room     RoomConfig     `yaml:"room"`
	Server   ServerConfig   `yaml:"server"`
	Host     HostConfig     `yaml:"host"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RoomConfig configures the room engine.
type RoomConfig struct {
	// Roles in ascending rank order.
	Roles         []string `yaml:"roles" env:"ROOMKIT_ROOM_ROLES"`
	CommandPrefix string   `yaml:"command_prefix" env:"ROOMKIT_ROOM_COMMAND_PREFIX"`
	EchoCommands  bool     `yaml:"echo_commands" env:"ROOMKIT_ROOM_ECHO_COMMANDS"`
	FailureNotice string   `yaml:"failure_notice" env:"ROOMKIT_ROOM_FAILURE_NOTICE"`

	// Player declares extra player properties. A bare value is shorthand
	// for its default: "afk: false" is "afk: {default: false}".
	Player map[string]PropertyConfig `yaml:"player"`

	// State seeds the shared room state.
	State map[string]any `yaml:"state"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"ROOMKIT_SERVER_HOST"`
	Port         int           `yaml:"port" env:"ROOMKIT_SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"ROOMKIT_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"ROOMKIT_SERVER_WRITE_TIMEOUT"`
}

// HostConfig configures the host runtime websocket. Token also guards /api.
type HostConfig struct {
	Token string `yaml:"token" env:"ROOMKIT_HOST_TOKEN"`
}

// DatabaseConfig configures role persistence.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"ROOMKIT_DATABASE_DSN"`
}

// AuthConfig configures role login.
type AuthConfig struct {
	DefaultRole  string `yaml:"default_role" env:"ROOMKIT_AUTH_DEFAULT_ROLE"`
	ManageAccess string `yaml:"manage_access" env:"ROOMKIT_AUTH_MANAGE_ACCESS"`
	BcryptCost   int    `yaml:"bcrypt_cost" env:"ROOMKIT_AUTH_BCRYPT_COST"`

	// Passwords maps role name to bcrypt hash.
	Passwords map[string]string `yaml:"passwords" env:"ROOMKIT_AUTH_PASSWORDS"`

	// Static maps auth identity to role.
	Static map[string]string `yaml:"static"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"ROOMKIT_LOG_LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"ROOMKIT_LOG_FORMAT"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ROOMKIT_METRICS_ENABLED"`
	Path    string `yaml:"path" env:"ROOMKIT_METRICS_PATH"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Room: RoomConfig{
			Roles:         []string{"player", "admin", "host"},
			CommandPrefix: "!",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{DSN: "roomkit.db"},
		Auth: AuthConfig{
			DefaultRole:  "player",
			ManageAccess: ">=admin",
			BcryptCost:   12,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads configuration from a YAML file layered over Default, then
// applies ROOMKIT_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	data = expandEnv(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFromEnv creates configuration from defaults and environment
// variables only.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	return finish(&cfg)
}

// LoadWithFallback loads path when it exists and falls back to LoadFromEnv.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references only. Bare $ is left alone so
// bcrypt hashes survive.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// setDefaults restores defaults for fields a file or the environment blanked.
func setDefaults(cfg *Config) {
	def := Default()

	if len(cfg.Room.Roles) == 0 {
		cfg.Room.Roles = def.Room.Roles
	}
	if cfg.Room.CommandPrefix == "" {
		cfg.Room.CommandPrefix = def.Room.CommandPrefix
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = def.Database.DSN
	}
	if cfg.Auth.DefaultRole == "" {
		cfg.Auth.DefaultRole = cfg.Room.Roles[0]
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = def.Metrics.Path
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	table, err := roles.New(c.Room.Roles...)
	if err != nil {
		return fmt.Errorf("room.roles: %w", err)
	}

	if strings.TrimSpace(c.Room.CommandPrefix) != c.Room.CommandPrefix {
		return errors.New("room.command_prefix must not contain whitespace")
	}

	for name := range c.Room.Player {
		if players.IsHostField(name) {
			return fmt.Errorf("room.player.%s: %q is a host player field", name, name)
		}
		if name == "role" {
			return errors.New("room.player.role: declared by the auth module")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	if _, ok := table.Lookup(c.Auth.DefaultRole); !ok {
		return fmt.Errorf("auth.default_role: unknown role %q", c.Auth.DefaultRole)
	}
	if c.Auth.ManageAccess != "" {
		if _, err := access.Compile(c.Auth.ManageAccess, table); err != nil {
			return fmt.Errorf("auth.manage_access: %w", err)
		}
	}
	for role, hash := range c.Auth.Passwords {
		if _, ok := table.Lookup(role); !ok {
			return fmt.Errorf("auth.passwords: unknown role %q", role)
		}
		if strings.TrimSpace(hash) == "" {
			return fmt.Errorf("auth.passwords.%s: empty hash", role)
		}
	}
	for auth, role := range c.Auth.Static {
		if _, ok := table.Lookup(role); !ok {
			return fmt.Errorf("auth.static.%s: unknown role %q", auth, role)
		}
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if !slices.Contains([]string{"json", "console"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PropertyOptions converts the configured player properties.
func (c RoomConfig) PropertyOptions() map[string]players.PropertyOptions {
	out := make(map[string]players.PropertyOptions, len(c.Player))
	for name, p := range c.Player {
		out[name] = p.Options()
	}
	return out
}
