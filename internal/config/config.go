// Package config holds application configuration for the CLI, loaded from an
// optional YAML file with defaults applied first.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blecentral/session"
	"github.com/srg/blecentral/watcher"
)

// Config holds application configuration.
type Config struct {
	LogLevel         string        `yaml:"log_level" default:"info"`
	OutputFormat     string        `yaml:"output_format" default:"table"` // table, json
	ScanTimeout      time.Duration `yaml:"scan_timeout" default:"20s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" default:"10s"`
}

// Default returns configuration with default values applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// UnmarshalYAML decodes over whatever values the receiver already holds, so
// keys absent from the file keep their defaults. Durations accept the usual
// "20s" / "1m30s" forms.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		LogLevel         string `yaml:"log_level"`
		OutputFormat     string `yaml:"output_format"`
		ScanTimeout      string `yaml:"scan_timeout"`
		ConnectTimeout   string `yaml:"connect_timeout"`
		OperationTimeout string `yaml:"operation_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.LogLevel != "" {
		c.LogLevel = raw.LogLevel
	}
	if raw.OutputFormat != "" {
		c.OutputFormat = raw.OutputFormat
	}
	for _, d := range []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"scan_timeout", raw.ScanTimeout, &c.ScanTimeout},
		{"connect_timeout", raw.ConnectTimeout, &c.ConnectTimeout},
		{"operation_timeout", raw.OperationTimeout, &c.OperationTimeout},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a logger configured from LogLevel.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

// WatcherOptions maps the config onto watcher options.
func (c *Config) WatcherOptions() *watcher.Options {
	opts := watcher.DefaultOptions()
	opts.ScanTimeout = c.ScanTimeout
	return opts
}

// SessionOptions maps the config onto session options.
func (c *Config) SessionOptions() *session.Options {
	opts := session.DefaultOptions()
	opts.ConnectTimeout = c.ConnectTimeout
	opts.OperationTimeout = c.OperationTimeout
	return opts
}
