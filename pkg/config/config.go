// Package config provides YAML-based configuration loading for the
// conductor dispatch services.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config is the root application configuration, shared by the conductor
// and the dispatch client tooling.
type Config struct {
    // AppName optional logical name of the process
    AppName string `mapstructure:"app_name"`

    // Hostname is this conductor's stable registry identity; it also pins
    // the host-scoped topic.
    Hostname string `mapstructure:"hostname"`

    // BaseTopic is the shared topic prefix all conductors consume.
    BaseTopic string `mapstructure:"base_topic"`

    // Drivers this conductor advertises in its registry record.
    Drivers []string `mapstructure:"drivers"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Registry tunes the liveness window and heartbeat cadence.
    Registry RegistryConfig `mapstructure:"registry"`

    // RPC tunes the caller side of the bus.
    RPC RPCConfig `mapstructure:"rpc"`

    // Transports list to configure inbound/outbound links
    Transports []TransportConfig `mapstructure:"transports"`
}

// RegistryConfig controls conductor records.
type RegistryConfig struct {
    // LivenessSec is how long a record stays valid without a heartbeat.
    LivenessSec int `mapstructure:"liveness_sec"`
    // HeartbeatSec is the Touch interval; zero derives a third of liveness.
    HeartbeatSec int `mapstructure:"heartbeat_sec"`
}

func (r RegistryConfig) Liveness() time.Duration  { return time.Duration(r.LivenessSec) * time.Second }
func (r RegistryConfig) Heartbeat() time.Duration { return time.Duration(r.HeartbeatSec) * time.Second }

// RPCConfig controls the dispatch client.
type RPCConfig struct {
    // CallTimeoutSec bounds blocking calls without their own deadline.
    CallTimeoutSec int `mapstructure:"call_timeout_sec"`
    // ContentType selects the payload codec.
    ContentType string `mapstructure:"content_type"`
}

func (r RPCConfig) CallTimeout() time.Duration { return time.Duration(r.CallTimeoutSec) * time.Second }

// TransportConfig describes one bus endpoint.
type TransportConfig struct {
    // Kind: tcp, quic, or mem
    Kind string `mapstructure:"kind"`
    // Listen address for serving (conductor side)
    Listen string `mapstructure:"listen"`
    // Dial addresses for connecting out (client side)
    Dial []string `mapstructure:"dial"`
}

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
    host, _ := os.Hostname()
    if host == "" { host = "conductor-1" }
    return &Config{
        AppName:   "ironic-conductor",
        Hostname:  host,
        BaseTopic: "ironic.conductor_manager",
        Drivers:   []string{"ipmi"},
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/ironic.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Registry: RegistryConfig{LivenessSec: 90, HeartbeatSec: 30},
        RPC:      RPCConfig{CallTimeoutSec: 60, ContentType: "application/cbor"},
        Transports: []TransportConfig{
            {Kind: "tcp", Listen: ":6385"},
        },
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix IRONIC and `.`/`-` are replaced with `_`.
// Example: IRONIC_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("IRONIC")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("hostname", cfg.Hostname)
    v.SetDefault("base_topic", cfg.BaseTopic)
    v.SetDefault("drivers", cfg.Drivers)
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
    v.SetDefault("registry.liveness_sec", cfg.Registry.LivenessSec)
    v.SetDefault("registry.heartbeat_sec", cfg.Registry.HeartbeatSec)
    v.SetDefault("rpc.call_timeout_sec", cfg.RPC.CallTimeoutSec)
    v.SetDefault("rpc.content_type", cfg.RPC.ContentType)
    v.SetDefault("transports", cfg.Transports)

    // Choose config file
    if path == "" {
        if envPath := os.Getenv("IRONIC_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        // Search common locations with base name `ironic`
        v.SetConfigName("ironic")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        v.AddConfigPath("/etc/ironic")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".ironic"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
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
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if strings.TrimSpace(c.Hostname) == "" {
        return errors.New("hostname must not be empty")
    }
    if strings.TrimSpace(c.BaseTopic) == "" {
        return errors.New("base_topic must not be empty")
    }
    if c.Registry.LivenessSec <= 0 {
        c.Registry.LivenessSec = 90
    }
    if c.Registry.HeartbeatSec <= 0 {
        c.Registry.HeartbeatSec = c.Registry.LivenessSec / 3
    }
    if c.RPC.CallTimeoutSec <= 0 {
        c.RPC.CallTimeoutSec = 60
    }
    for i := range c.Transports {
        k := strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
        switch k {
        case "tcp", "quic", "mem":
        default:
            return fmt.Errorf("invalid transport kind: %q", c.Transports[i].Kind)
        }
        c.Transports[i].Kind = k
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
