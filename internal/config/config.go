// Package config provides configuration management for the ReelKit Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 9876
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelkit"

	// Environment variable names
	EnvPort     = "REELKIT_PORT"
	EnvLogLevel = "REELKIT_LOG_LEVEL"
	EnvDataDir  = "REELKIT_DATA_DIR"
	EnvHeadless = "REELKIT_HEADLESS"

	// Engine environment variable names
	EnvEngineURL       = "REELKIT_ENGINE_URL"
	EnvEngineAutostart = "REELKIT_ENGINE_AUTOSTART"
	EnvEngineBin       = "REELKIT_ENGINE_BIN"

	// Cloud environment variable names
	EnvCloudBaseURL = "REELKIT_CLOUD_BASE_URL"

	// Recordings
	EnvProjectsDir = "REELKIT_PROJECTS_DIR"

	// Database filename
	DBFilename = "reelkit.db"

	// Engine defaults
	DefaultEngineURL = "http://127.0.0.1:9867"

	// Cloud defaults
	DefaultCloudBaseURL = "https://cap.reelkit.dev"

	// Timeouts (seconds)
	DefaultEngineStartTimeout = 20
	DefaultExportTimeout      = 3600 // full render pass upper bound
	DefaultUploadTimeout      = 1800
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	ProjectsDir() string
	Headless() bool
	EngineURL() string
	EngineAutostart() bool
	EngineBin() string
	EngineStartTimeout() time.Duration
	ExportTimeout() time.Duration
	UploadTimeout() time.Duration
	CloudBaseURL() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	engineURL       string
	engineAutostart bool
	engineBin       string

	cloudBaseURL string
	projectsDir  string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		engineURL:    DefaultEngineURL,
		cloudBaseURL: DefaultCloudBaseURL,
	}

	// Override port from environment
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

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if eu := os.Getenv(EnvEngineURL); eu != "" {
		cfg.engineURL = eu
	}

	if ea := os.Getenv(EnvEngineAutostart); ea != "" {
		autostart, err := strconv.ParseBool(ea)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvEngineAutostart, err)
		}
		cfg.engineAutostart = autostart
	}

	cfg.engineBin = os.Getenv(EnvEngineBin)

	if cb := os.Getenv(EnvCloudBaseURL); cb != "" {
		cfg.cloudBaseURL = cb
	}

	if pd := os.Getenv(EnvProjectsDir); pd != "" {
		cfg.projectsDir = pd
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir returns the directory where rendered export artifacts land
func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

// ProjectsDir returns the directory scanned for recording bundles
func (c *EnvConfig) ProjectsDir() string {
	if c.projectsDir != "" {
		return c.projectsDir
	}
	return filepath.Join(c.dataDir, "recordings")
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// EngineURL returns the rendering engine RPC base URL
func (c *EnvConfig) EngineURL() string {
	return c.engineURL
}

// EngineAutostart reports whether the agent should launch the engine binary
func (c *EnvConfig) EngineAutostart() bool {
	return c.engineAutostart
}

// EngineBin returns the engine binary path for autostart (empty = PATH lookup)
func (c *EnvConfig) EngineBin() string {
	return c.engineBin
}

func (c *EnvConfig) EngineStartTimeout() time.Duration {
	return time.Duration(DefaultEngineStartTimeout) * time.Second
}

func (c *EnvConfig) ExportTimeout() time.Duration {
	return time.Duration(DefaultExportTimeout) * time.Second
}

func (c *EnvConfig) UploadTimeout() time.Duration {
	return time.Duration(DefaultUploadTimeout) * time.Second
}

// CloudBaseURL returns the sharing backend base URL
func (c *EnvConfig) CloudBaseURL() string {
	return c.cloudBaseURL
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
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
