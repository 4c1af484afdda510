// Package config provides configuration management for the BASIC debug
// server.
//
// Configuration controls:
//   - Serving mode (interactive vs dap-only): which transport carries
//     the protocol
//   - Network settings: the TCP listen port for dap-only mode
//   - Permission flags: evaluation and variable modification toggles
//   - Logging: verbosity and wire-level frame logging
//
// Configuration can be loaded from a TOML file or use sensible
// defaults; command-line flags override the file.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Mode selects the transport the protocol is served over.
type Mode string

const (
	ModeInteractive Mode = "interactive" // protocol over stdio
	ModeDAPOnly     Mode = "dap-only"    // protocol over a TCP listener
)

// DefaultPort is the conventional debug adapter port.
const DefaultPort = 4711

// Config holds the server configuration.
type Config struct {
	Mode Mode `toml:"mode"`
	Port int  `toml:"port"`

	// Permission flags
	AllowEvaluate bool `toml:"allow_evaluate"`
	AllowModify   bool `toml:"allow_modify"`

	// Logging
	Verbose bool   `toml:"verbose"`
	LogWire bool   `toml:"log_wire"`
	LogFile string `toml:"log_file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:          ModeInteractive,
		Port:          DefaultPort,
		AllowEvaluate: true,
		AllowModify:   true,
	}
}

// LoadConfig loads configuration from a TOML file. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeInteractive, ModeDAPOnly:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// CanEvaluate returns true if expression evaluation is allowed.
func (c *Config) CanEvaluate() bool {
	return c.AllowEvaluate
}

// CanModifyVariables returns true if variable modification is allowed.
func (c *Config) CanModifyVariables() bool {
	return c.AllowModify
}
