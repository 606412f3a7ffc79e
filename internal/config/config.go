// Package config holds the connection- and codec-level configuration this
// core needs to dial an adapter and drive timeouts, independent of any
// particular debuggee language or launch payload. Adapted from the
// teacher's internal/core/config/config.go DefaultConfig/Load/Save shape,
// trimmed of every database/SSH/process-monitoring section (those
// collaborators are out of scope here) and refocused on the transport and
// engine knobs spec §4.1/§4.5/§5 actually name.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the file this package reads/writes within a given
// directory.
const ConfigFileName = ".dapclient.toml"

// Config holds every tunable the core reads at startup.
type Config struct {
	// Network is the dial network passed to transport.Dial ("tcp" or
	// "unix").
	Network string `toml:"network"`

	// Address is the adapter endpoint to dial.
	Address string `toml:"address"`

	// MaxMessageSize bounds a single decoded DAP message, in bytes
	// (spec §4.1: "Maximum message size is configurable (default: 16 MiB)").
	MaxMessageSize int `toml:"max_message_size"`

	// ClientID is the fixed ASCII client identifier sent in Initialize
	// (spec §6). A langprofile.Profile's ClientIDSuffix is appended to
	// this base at connect time.
	ClientID string `toml:"client_id"`

	// Locale is sent in the Initialize request.
	Locale string `toml:"locale"`

	Timeouts TimeoutConfig `toml:"timeouts"`
}

// TimeoutConfig holds per-phase deadlines (spec §5: "Every command
// exposes an optional deadline").
type TimeoutConfig struct {
	// ConnectSeconds bounds the initial dial.
	ConnectSeconds int `toml:"connect_seconds"`

	// InitializeSeconds bounds the Initialize/Launch-Attach/Initialized
	// handshake (spec §4.5 steps 1-3).
	InitializeSeconds int `toml:"initialize_seconds"`

	// CommandSeconds is the default deadline applied to a command when
	// the caller does not supply one of their own.
	CommandSeconds int `toml:"command_seconds"`

	// ShutdownSeconds bounds the Disconnect round trip during shutdown.
	ShutdownSeconds int `toml:"shutdown_seconds"`
}

// Command returns the configured per-command default deadline as a
// time.Duration.
func (t TimeoutConfig) Command() time.Duration {
	return time.Duration(t.CommandSeconds) * time.Second
}

// Initialize returns the configured handshake deadline.
func (t TimeoutConfig) Initialize() time.Duration {
	return time.Duration(t.InitializeSeconds) * time.Second
}

// Shutdown returns the configured shutdown deadline.
func (t TimeoutConfig) Shutdown() time.Duration {
	return time.Duration(t.ShutdownSeconds) * time.Second
}

// Connect returns the configured dial deadline.
func (t TimeoutConfig) Connect() time.Duration {
	return time.Duration(t.ConnectSeconds) * time.Second
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Network:        "tcp",
		Address:        "127.0.0.1:4711",
		MaxMessageSize: 16 * 1024 * 1024,
		ClientID:       "dapclient",
		Locale:         "en-US",
		Timeouts: TimeoutConfig{
			ConnectSeconds:    10,
			InitializeSeconds: 15,
			CommandSeconds:    10,
			ShutdownSeconds:   5,
		},
	}
}

// Load loads configuration from the given directory, falling back to
// DefaultConfig if no config file is present there.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given directory.
func (c *Config) Save(dir string) error {
	configPath := filepath.Join(dir, ConfigFileName)

	file, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}
