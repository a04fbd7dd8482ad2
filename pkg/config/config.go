// Package config provides YAML-based configuration loading for mobishell.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"mobishell/pkg/wire"
)

// Config is the root application configuration shared by the client and
// server entrypoints; each reads the fields relevant to its role and
// ignores the rest.
type Config struct {
	// AppName is the logical process name, used in log fields.
	AppName string `mapstructure:"app_name"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`

	// TransportMode selects which transport(s) a run uses.
	TransportMode TransportMode `mapstructure:"transport_mode"`

	// SharedKey is the base64-encoded pre-shared AEAD key (spec.md's
	// session is treated as an external, already-agreed collaborator;
	// this is how that agreement is threaded through config).
	SharedKey string `mapstructure:"shared_key"`

	// DesiredIP is the server-side bind address. Empty means "wildcard".
	// The client does not read it; it dials the host given by its -host
	// flag.
	DesiredIP string `mapstructure:"desired_ip"`

	// DesiredUDPPortRange is a "low:high" or single-port spec the server
	// tries in turn, and the client uses to choose its outbound port.
	DesiredUDPPortRange string `mapstructure:"desired_udp_port_range"`

	// DesiredTCPPort is the server's TCP listen port. The client does not
	// read it; it dials the port given by its -tcp-port flag.
	DesiredTCPPort uint16 `mapstructure:"desired_tcp_port"`
}

// TransportMode selects which concrete transport(s) a run is allowed to
// use, per spec.md section 4.4's udp/tcp/combined contract.
type TransportMode string

const (
	TransportUDP      TransportMode = "udp"
	TransportTCP      TransportMode = "tcp"
	TransportCombined TransportMode = "combined"
)

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "mobishell",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/mobishell.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		TransportMode:       TransportCombined,
		DesiredUDPPortRange: "60001:60999",
		DesiredTCPPort:      60000,
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix MOBISHELL and `.`/`-` are replaced
// with `_`. Example: MOBISHELL_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MOBISHELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transport_mode", string(cfg.TransportMode))
	v.SetDefault("shared_key", cfg.SharedKey)
	v.SetDefault("desired_ip", cfg.DesiredIP)
	v.SetDefault("desired_udp_port_range", cfg.DesiredUDPPortRange)
	v.SetDefault("desired_tcp_port", cfg.DesiredTCPPort)

	if path == "" {
		if envPath := os.Getenv("MOBISHELL_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mobishell")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".mobishell"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	switch c.TransportMode {
	case TransportUDP, TransportTCP, TransportCombined:
	default:
		return fmt.Errorf("%w: invalid transport_mode %q", wire.ErrInvalidConfig, c.TransportMode)
	}

	if c.DesiredUDPPortRange != "" {
		if _, err := wire.ParsePortRange(c.DesiredUDPPortRange); err != nil {
			return err
		}
	}
	return nil
}

// UDPPortRange parses DesiredUDPPortRange, falling back to the spec's
// default client range if it was left empty.
func (c *Config) UDPPortRange() (wire.PortRange, error) {
	s := c.DesiredUDPPortRange
	if s == "" {
		s = "60001:60999"
	}
	return wire.ParsePortRange(s)
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
