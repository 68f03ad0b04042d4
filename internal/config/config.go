package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Host application whose work is saved
	Host HostConfig `yaml:"host"`

	// Save action configuration
	Save SaveConfig `yaml:"save"`

	// Host lifecycle detection
	Lifecycle LifecycleConfig `yaml:"lifecycle"`

	// Logging configuration
	Logging LogConfig `yaml:"logging"`

	// Save journal configuration
	Database DatabaseConfig `yaml:"database"`

	// Daemon configuration
	Daemon DaemonConfig `yaml:"daemon"`

	// Web server configuration
	Web WebConfig `yaml:"web"`
}

// HostConfig identifies the host process
type HostConfig struct {
	PID     int    `yaml:"pid"`     // Host process id, takes precedence
	Process string `yaml:"process"` // Host process name, resolved at startup
}

// SaveConfig holds the save action configuration
type SaveConfig struct {
	Command []string      `yaml:"command"` // argv, supports {pid} and {window}
	Timeout time.Duration `yaml:"timeout"` // Upper bound for one save
}

// LifecycleConfig holds host shutdown detection settings
type LifecycleConfig struct {
	CloseSignal     bool          `yaml:"close_signal" split_words:"true"`  // Treat SIGUSR1 as "host closing"
	WatchProcess    bool          `yaml:"watch_process" split_words:"true"` // Poll the host process
	PollInterval    time.Duration `yaml:"poll_interval" split_words:"true"`
	MinPollInterval time.Duration `yaml:"-" ignored:"true"`
	MaxPollInterval time.Duration `yaml:"-" ignored:"true"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"` // Log file used by the daemonized process
}

// DatabaseConfig holds save journal configuration
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Empty means ~/.config/panicsave/panicsave.db
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `yaml:"pid_file" split_words:"true"`
}

// WebConfig holds web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Save: SaveConfig{
			Timeout: 10 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			CloseSignal:     true,
			WatchProcess:    true,
			PollInterval:    2 * time.Second,
			MinPollInterval: 250 * time.Millisecond,
			MaxPollInterval: time.Minute,
		},
		Logging: LogConfig{
			Level: "info",
			File:  filepath.Join(os.TempDir(), fmt.Sprintf("panicsave-%d.log", os.Getuid())),
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "",
		},
		Daemon: DaemonConfig{
			PIDFile: filepath.Join(os.TempDir(), fmt.Sprintf("panicsave-%d.pid", os.Getuid())),
		},
		Web: WebConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    17000,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host.PID < 0 {
		return fmt.Errorf("host pid cannot be negative, got %d", c.Host.PID)
	}

	if len(c.Save.Command) == 0 || strings.TrimSpace(c.Save.Command[0]) == "" {
		return fmt.Errorf("save command cannot be empty")
	}

	if c.Save.Timeout <= 0 {
		return fmt.Errorf("save timeout must be positive, got %v", c.Save.Timeout)
	}

	if c.Lifecycle.WatchProcess {
		if c.Lifecycle.PollInterval < c.Lifecycle.MinPollInterval {
			return fmt.Errorf("poll interval (%v) cannot be less than minimum (%v)",
				c.Lifecycle.PollInterval, c.Lifecycle.MinPollInterval)
		}
		if c.Lifecycle.PollInterval > c.Lifecycle.MaxPollInterval {
			return fmt.Errorf("poll interval (%v) cannot be greater than maximum (%v)",
				c.Lifecycle.PollInterval, c.Lifecycle.MaxPollInterval)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Web.Enabled {
		if c.Web.Port < 1 || c.Web.Port > 65535 {
			return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
		}
		if c.Web.Host == "" {
			return fmt.Errorf("web host cannot be empty")
		}
	}

	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// ValidateHost checks that a host process is configured
func (c *Config) ValidateHost() error {
	if c.Host.PID == 0 && c.Host.Process == "" {
		return fmt.Errorf("host pid or host process name is required")
	}
	return nil
}

// SetPollInterval sets the host process poll interval with validation
func (c *Config) SetPollInterval(interval time.Duration) error {
	if interval < c.Lifecycle.MinPollInterval {
		return fmt.Errorf("poll interval cannot be less than %v", c.Lifecycle.MinPollInterval)
	}
	if interval > c.Lifecycle.MaxPollInterval {
		return fmt.Errorf("poll interval cannot be greater than %v", c.Lifecycle.MaxPollInterval)
	}
	c.Lifecycle.PollInterval = interval
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// WebAddress returns host:port of the web server
func (c *Config) WebAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Host:
    PID: %d
    Process: %s
  Save:
    Command: %s
    Timeout: %v
  Lifecycle:
    Close Signal: %v
    Watch Process: %v
    Poll Interval: %v
  Logging:
    Level: %s
    File: %s
  Database:
    Enabled: %v
    Path: %s
  Daemon:
    PID File: %s
  Web:
    Enabled: %v
    Host: %s
    Port: %d`,
		c.Host.PID,
		c.Host.Process,
		strings.Join(c.Save.Command, " "),
		c.Save.Timeout,
		c.Lifecycle.CloseSignal,
		c.Lifecycle.WatchProcess,
		c.Lifecycle.PollInterval,
		c.Logging.Level,
		c.Logging.File,
		c.Database.Enabled,
		c.Database.Path,
		c.Daemon.PIDFile,
		c.Web.Enabled,
		c.Web.Host,
		c.Web.Port,
	)
}
