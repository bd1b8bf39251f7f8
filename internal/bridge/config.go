package bridge

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollTimeout bounds each blocking wait for the next native event.
const DefaultPollTimeout = 500 * time.Millisecond

var (
	// ErrEmptyBaseDir is returned when no base directory is configured
	ErrEmptyBaseDir = errors.New("base directory cannot be empty")
	// ErrRelativeBaseDir is returned when the base directory cannot be made absolute
	ErrRelativeBaseDir = errors.New("base directory must be an absolute path")
	// ErrInvalidPollTimeout is returned when the poll timeout is not positive
	ErrInvalidPollTimeout = errors.New("poll timeout must be positive")
	// ErrNilNode is returned when the bridge is constructed without a native node
	ErrNilNode = errors.New("native node cannot be nil")
)

// Config represents configuration for a Bridge
type Config struct {
	// BaseDir anchors relative and empty storage directories.
	// Usually the host's private files directory.
	BaseDir string

	// PollTimeout is passed to every NextEventJSON call
	PollTimeout time.Duration

	// Logger receives bridge and poller logs. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// NewConfig creates a new Bridge configuration with safe defaults
func NewConfig(baseDir string) *Config {
	c := &Config{BaseDir: baseDir}
	c.SetDefaults()
	return c
}

// SetDefaults fills unset fields and resolves a relative BaseDir against the
// working directory.
func (c *Config) SetDefaults() {
	if c.BaseDir != "" && !filepath.IsAbs(c.BaseDir) {
		if abs, err := filepath.Abs(c.BaseDir); err == nil {
			c.BaseDir = abs
		}
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return ErrEmptyBaseDir
	}
	if !filepath.IsAbs(c.BaseDir) {
		return ErrRelativeBaseDir
	}
	if c.PollTimeout <= 0 {
		return ErrInvalidPollTimeout
	}
	return nil
}

// WithPollTimeout sets the poll timeout
func (c *Config) WithPollTimeout(d time.Duration) *Config {
	c.PollTimeout = d
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(l logrus.FieldLogger) *Config {
	c.Logger = l
	return c
}
