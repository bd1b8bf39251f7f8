// Package config loads the bridge daemon configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/eventlog"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/internal/logging"
	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// SecretEnv supplies the JWT secret when the file does not set one.
const SecretEnv = "RETICULUM_BRIDGE_SECRET"

var (
	// ErrEmptyListenAddress is returned when the HTTP listen address is empty
	ErrEmptyListenAddress = errors.New("listen address cannot be empty")
	// ErrEmptyBaseDir is returned when no base directory is configured
	ErrEmptyBaseDir = errors.New("base directory cannot be empty")
	// ErrMissingSecret is returned when auth is on but no JWT secret is set
	ErrMissingSecret = errors.New("secret key is required unless auth is disabled")
)

// Config is the daemon configuration.
type Config struct {
	// ListenAddress serves the HTTP API, e.g. ":8080"
	ListenAddress string `yaml:"listen"`

	// GRPCAddress serves grpc.health.v1. Empty disables the listener.
	GRPCAddress string `yaml:"grpcListen"`

	// BaseDir is the app-private directory that relative storage paths resolve against
	BaseDir string `yaml:"baseDir"`

	SecretKey string `yaml:"secretKey"`
	NoAuth    bool   `yaml:"noAuth"`

	PollTimeout     time.Duration `yaml:"pollTimeout"`
	HistoryCapacity int           `yaml:"historyCapacity"`

	// AutoStart boots the node with Node as soon as the daemon is up
	AutoStart bool                  `yaml:"autoStart"`
	Node      nativenode.NodeConfig `yaml:"node"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.BaseDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.BaseDir = dir
		} else {
			c.BaseDir = os.TempDir()
		}
	}
	if c.SecretKey == "" {
		c.SecretKey = os.Getenv(SecretEnv)
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 500 * time.Millisecond
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = eventlog.DefaultCapacity
	}
	c.Logging.SetDefaults()
}

// Validate returns an error if the configuration cannot run a daemon.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrEmptyListenAddress
	}
	if c.BaseDir == "" {
		return ErrEmptyBaseDir
	}
	if !c.NoAuth && c.SecretKey == "" {
		return ErrMissingSecret
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	c, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ReadFile reads and decodes a YAML file without validating it, so callers
// can apply overrides first.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode decodes YAML and applies defaults. Unknown keys are rejected.
func Decode(data []byte) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	c.SetDefaults()
	return c, nil
}
