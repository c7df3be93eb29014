package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Reporters that can be named in the reporters list.
var KnownReporters = []string{"console", "json", "junit"}

// Config represents the contractspec configuration
type Config struct {
	BaseURL            string                    `json:"baseUrl,omitempty"`
	DefaultEnvironment string                    `json:"defaultEnvironment,omitempty"`
	Environments       map[string]map[string]any `json:"environments,omitempty"`
	Timeout            int                       `json:"timeout,omitempty"`    // milliseconds, per request
	RunTimeout         int                       `json:"runTimeout,omitempty"` // milliseconds, whole run; 0 means none
	RateLimit          float64                   `json:"rateLimit,omitempty"`  // requests per second; 0 means unlimited
	Seed               int64                     `json:"seed,omitempty"`       // random data seed; 0 means time-based
	FollowRedirects    *bool                     `json:"followRedirects,omitempty"`
	MaxRedirects       int                       `json:"maxRedirects,omitempty"`
	ValidateSSL        *bool                     `json:"validateSSL,omitempty"`
	Proxy              string                    `json:"proxy,omitempty"`
	Headers            map[string]string         `json:"headers,omitempty"` // Default headers for all requests
	Reporters          []string                  `json:"reporters,omitempty"`
	OutputDir          string                    `json:"outputDir,omitempty"` // Directory for json/junit reports
	History            string                    `json:"history,omitempty"`   // sqlite file recording runs
	Bail               *bool                     `json:"bail,omitempty"`
	Verbose            *bool                     `json:"verbose,omitempty"`
	NoColor            *bool                     `json:"noColor,omitempty"`
}

// BoolPtr returns a pointer to b, for building configs in code.
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to false
// so each request is a single round trip and 3xx responses can be asserted.
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, false)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *Config) GetRunTimeout() time.Duration {
	return time.Duration(c.RunTimeout) * time.Millisecond
}

// Validate reports settings no run could use.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("%w: runTimeout must not be negative", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rateLimit must not be negative", ErrInvalidConfig)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("%w: maxRedirects must not be negative", ErrInvalidConfig)
	}
	for _, r := range c.Reporters {
		if !isKnownReporter(r) {
			return fmt.Errorf("%w: unknown reporter %q", ErrInvalidConfig, r)
		}
	}
	if c.DefaultEnvironment != "" && len(c.Environments) > 0 {
		if _, ok := c.Environments[c.DefaultEnvironment]; !ok {
			return fmt.Errorf("%w: default environment %q is not defined", ErrInvalidConfig, c.DefaultEnvironment)
		}
	}
	return nil
}

func isKnownReporter(name string) bool {
	for _, known := range KnownReporters {
		if name == known {
			return true
		}
	}
	return false
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".contractspec.json",
	"contractspec.config.json",
	".contractspecrc",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.DefaultEnvironment != "" {
		result.DefaultEnvironment = other.DefaultEnvironment
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.RunTimeout > 0 {
		result.RunTimeout = other.RunTimeout
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.Seed != 0 {
		result.Seed = other.Seed
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.History != "" {
		result.History = other.History
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	if len(other.Environments) > 0 {
		envs := make(map[string]map[string]any, len(result.Environments)+len(other.Environments))
		for k, v := range result.Environments {
			envs[k] = v
		}
		for k, v := range other.Environments {
			envs[k] = v
		}
		result.Environments = envs
	}

	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(data, '\n'), 0644)
}
