// Package config loads the daemon configuration from defaults, an optional
// YAML file, a .env file and ROLLOUT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"rollout/internal/security"
	"rollout/internal/webhook"
	"rollout/pkg/cmdutil"
	"rollout/pkg/fileutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename       = "rollout.yaml"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8000
	DefaultLogLevel       = "info"
	DefaultCommandTimeout = 10 * time.Minute
)

// ErrMissingSecret is returned by Validate when no deploy secret is configured.
var ErrMissingSecret = errors.New("deploy secret is not set (use ROLLOUT_SECRET)")

// Config holds the daemon settings.
type Config struct {
	Secret         string        `yaml:"secret"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
	Docker         string        `yaml:"docker"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Modes          []string      `yaml:"modes"`

	// RateLimit is the number of deploy requests allowed per minute for
	// each client IP. Zero disables rate limiting.
	RateLimit int `yaml:"rate_limit"`

	// TrustProxy takes the client IP for rate limiting from X-Forwarded-For
	// or X-Real-IP. Leave it off unless a reverse proxy sets those headers.
	TrustProxy bool `yaml:"trust_proxy"`

	// Path is the config file that was loaded, empty if none.
	Path string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		LogLevel:       DefaultLogLevel,
		Docker:         "docker",
		CommandTimeout: DefaultCommandTimeout,
		Modes:          []string{string(webhook.CommandStack), string(webhook.CommandCompose)},
	}
}

// Load builds a configuration from defaults, the YAML file at path and the
// process environment. When path is empty the default locations are
// searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = fileutil.FindConfigOptional(DefaultFilename)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}

	c.Path = path
	return nil
}

// ApplyEnv overrides fields from ROLLOUT_* variables found through lookup.
// The secret falls back to SECRET when ROLLOUT_SECRET is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		return value, ok && value != ""
	}

	if v, ok := SecretFromEnv(lookup); ok {
		c.Secret = v
	}
	if v, ok := get("ROLLOUT_HOST"); ok {
		c.Host = v
	}
	if v, ok := get("ROLLOUT_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ROLLOUT_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v, ok := get("ROLLOUT_LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := get("ROLLOUT_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("ROLLOUT_DOCKER"); ok {
		c.Docker = v
	}
	if v, ok := get("ROLLOUT_COMMAND_TIMEOUT"); ok {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ROLLOUT_COMMAND_TIMEOUT %q: %w", v, err)
		}
		c.CommandTimeout = timeout
	}
	if v, ok := get("ROLLOUT_MODES"); ok {
		c.Modes = SplitList(v)
	}
	if v, ok := get("ROLLOUT_TRUST_PROXY"); ok {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ROLLOUT_TRUST_PROXY %q: %w", v, err)
		}
		c.TrustProxy = trust
	}
	if v, ok := get("ROLLOUT_RATE_LIMIT"); ok {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ROLLOUT_RATE_LIMIT %q: %w", v, err)
		}
		c.RateLimit = limit
	}

	return nil
}

// SecretFromEnv returns ROLLOUT_SECRET, or SECRET when that is unset or empty.
func SecretFromEnv(lookup func(string) (string, bool)) (string, bool) {
	for _, key := range []string{"ROLLOUT_SECRET", "SECRET"} {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}

	var problems []string

	if _, err := c.ParsedModes(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.CommandTimeout < 0 {
		problems = append(problems, "command_timeout must not be negative")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "rate_limit must not be negative")
	}
	if _, err := c.DockerCommand(); err != nil {
		problems = append(problems, fmt.Sprintf("docker: %v", err))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Warnings reports settings that work but should be fixed.
func (c *Config) Warnings() []string {
	var warnings []string

	if err := security.ValidateSecret(c.Secret); err != nil {
		warnings = append(warnings, fmt.Sprintf("weak deploy secret: %v", err))
	}
	if c.Path != "" {
		if err := security.ValidateSecurePermissions(c.Path); err != nil {
			warnings = append(warnings, fmt.Sprintf("%v (chmod %04o %s)", err, security.PermConfigFile, c.Path))
		}
	}

	return warnings
}

// ParsedModes returns the enabled deploy modes.
func (c *Config) ParsedModes() ([]webhook.Command, error) {
	if len(c.Modes) == 0 {
		return nil, fmt.Errorf("at least one mode must be enabled")
	}

	modes := make([]webhook.Command, 0, len(c.Modes))
	for _, m := range c.Modes {
		cmd, err := webhook.ParseCommand(m)
		if err != nil {
			return nil, fmt.Errorf("modes: %w", err)
		}
		modes = append(modes, cmd)
	}
	return modes, nil
}

// DockerCommand returns the docker binary and its prefix arguments.
func (c *Config) DockerCommand() ([]string, error) {
	return cmdutil.ParseCommandString(c.Docker)
}

// SlogLevel returns the configured log level, info if it does not parse.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel parses debug, info, warn or error.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
