// Package config provides configuration management for the composer.
// Values come from environment variables, optionally seeded from a .env
// file, with defaults for everything.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort          = 8788
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".heimdex-composer"
	DefaultExportTimeout = 2 * time.Hour
	DefaultProbeTimeout  = 30 * time.Second
	DefaultEnvFile       = ".env"

	// Environment variable names
	EnvPort          = "HEIMDEX_COMPOSER_PORT"
	EnvLogLevel      = "HEIMDEX_COMPOSER_LOG_LEVEL"
	EnvDataDir       = "HEIMDEX_COMPOSER_DATA_DIR"
	EnvFFmpeg        = "HEIMDEX_COMPOSER_FFMPEG"
	EnvFFprobe       = "HEIMDEX_COMPOSER_FFPROBE"
	EnvExportTimeout = "HEIMDEX_COMPOSER_EXPORT_TIMEOUT"
	EnvHeadless      = "HEIMDEX_COMPOSER_HEADLESS"
	EnvDebugPaths    = "HEIMDEX_COMPOSER_DEBUG_PATHS"

	// Database filename
	DBFilename = "composer.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ExportDir() string
	FFmpegPath() string
	FFprobePath() string
	ProbeTimeout() time.Duration
	ExportTimeout() time.Duration
	Headless() bool
	DebugPaths() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	ffmpegPath    string
	ffprobePath   string
	exportTimeout time.Duration
	headless      bool
	debugPaths    bool
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then builds the config.
func Load(envFile string) (*EnvConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return New()
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		exportTimeout: DefaultExportTimeout,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpeg)
	cfg.ffprobePath = os.Getenv(EnvFFprobe)

	if et := os.Getenv(EnvExportTimeout); et != "" {
		d, err := time.ParseDuration(et)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvExportTimeout, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvExportTimeout)
		}
		cfg.exportTimeout = d
	}

	var err error
	if cfg.headless, err = envBool(EnvHeadless); err != nil {
		return nil, err
	}
	if cfg.debugPaths, err = envBool(EnvDebugPaths); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envBool(name string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ExportDir is where exports land when the caller gives a bare file name.
func (c *EnvConfig) ExportDir() string {
	return filepath.Join(c.dataDir, "exports")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return DefaultProbeTimeout
}

func (c *EnvConfig) ExportTimeout() time.Duration {
	return c.exportTimeout
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) DebugPaths() bool {
	return c.debugPaths
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
