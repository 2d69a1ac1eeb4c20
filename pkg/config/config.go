// Package config loads the reportoor configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultOutputDir is the default directory for persisted evidence.
	DefaultOutputDir = "./reportoor-results"

	// DefaultScreenshotCommand is the driver command the screenshot bridge
	// listens for.
	DefaultScreenshotCommand = "takeScreenshot"

	// DefaultDatabaseDriver is the default index database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default index database location.
	DefaultSQLitePath = "./reportoor-index.db"

	// DefaultUploadConcurrency bounds parallel S3 uploads.
	DefaultUploadConcurrency = 4
)

// Config is the root configuration for reportoor.
type Config struct {
	Global GlobalConfig  `yaml:"global"`
	Output OutputConfig  `yaml:"output"`
	Driver DriverConfig  `yaml:"driver"`
	Index  *IndexConfig  `yaml:"index,omitempty"`
	Upload *UploadConfig `yaml:"upload,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string            `yaml:"log_level"`
	Labels   map[string]string `yaml:"labels,omitempty"`
}

// OutputConfig contains evidence output settings. The output directory is
// the only configuration the core engine needs.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// DriverConfig contains browser-driver integration settings.
type DriverConfig struct {
	ScreenshotCommand string `yaml:"screenshot_command,omitempty"`
}

// IndexConfig enables the queryable index of persisted results.
type IndexConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig contains index database settings.
type DatabaseConfig struct {
	Driver   string          `yaml:"driver"`
	SQLite   SQLiteConfig    `yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// UploadConfig contains remote storage settings for the evidence directory.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty"`
	Concurrency     int    `yaml:"concurrency,omitempty"`
}

// Default returns a configuration with all defaults applied and no file
// loaded.
func Default() *Config {
	var cfg Config

	cfg.applyDefaults()

	return &cfg
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}

	if c.Driver.ScreenshotCommand == "" {
		c.Driver.ScreenshotCommand = DefaultScreenshotCommand
	}

	if c.Index != nil {
		if c.Index.Database.Driver == "" {
			c.Index.Database.Driver = DefaultDatabaseDriver
		}

		if c.Index.Database.Driver == "sqlite" && c.Index.Database.SQLite.Path == "" {
			c.Index.Database.SQLite.Path = DefaultSQLitePath
		}
	}

	if c.Upload != nil && c.Upload.S3 != nil && c.Upload.S3.Concurrency == 0 {
		c.Upload.S3.Concurrency = DefaultUploadConcurrency
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Output.Dir != "" {
		dir := filepath.Dir(c.Output.Dir)
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory parent %q does not exist", dir)
			}
		}
	}

	if c.Index != nil && c.Index.Enabled {
		switch c.Index.Database.Driver {
		case "sqlite":
			if c.Index.Database.SQLite.Path == "" {
				return fmt.Errorf("index database: sqlite path is required")
			}
		case "postgres":
			if c.Index.Database.Postgres == nil {
				return fmt.Errorf("index database: postgres settings are required")
			}

			if c.Index.Database.Postgres.Host == "" {
				return fmt.Errorf("index database: postgres host is required")
			}
		default:
			return fmt.Errorf("index database: unknown driver %q", c.Index.Database.Driver)
		}
	}

	if c.Upload != nil && c.Upload.S3 != nil && c.Upload.S3.Enabled {
		if c.Upload.S3.Bucket == "" {
			return fmt.Errorf("upload: s3 bucket is required")
		}
	}

	return nil
}
