package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	emberrors "github.com/emberboard/emberboard/internal/errors"
)

// Config represents the complete Emberboard configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	DataDir  string         `yaml:"data_dir" json:"data_dir"`
	Locales  []string       `yaml:"locales" json:"locales"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Synonyms SynonymsConfig `yaml:"synonyms" json:"synonyms"`
	Sync     SyncConfig     `yaml:"sync" json:"sync"`
	Forum    ForumConfig    `yaml:"forum" json:"forum"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// SearchConfig configures query handling.
type SearchConfig struct {
	// DefaultLocale is used when a command does not pass --locale.
	DefaultLocale string `yaml:"default_locale" json:"default_locale"`
	// MaxResults caps the number of hits returned per search.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// SynonymsConfig configures synonym rule handling.
type SynonymsConfig struct {
	// Dir is an optional directory of <locale>.txt rule files watched by
	// `emberboard sync --watch`. Empty disables the importer.
	Dir string `yaml:"dir" json:"dir"`
	// WatchDebounce is how long file events are coalesced before import.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	// CacheSize is the number of compiled filter specs kept in the LRU.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SyncConfig configures the index synchronization pipeline.
type SyncConfig struct {
	// Workers is the number of queue workers draining sync tasks.
	Workers int `yaml:"workers" json:"workers"`
	// QueueSize is the pending-task channel capacity.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// Retry configures backoff for transient engine failures.
	Retry SyncRetryConfig `yaml:"retry" json:"retry"`
}

// SyncRetryConfig holds retry tuning as duration strings so it can live
// in YAML; Validate checks they parse.
type SyncRetryConfig struct {
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	InitialDelay string `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string `yaml:"max_delay" json:"max_delay"`
}

// ForumConfig configures thread and post listings.
type ForumConfig struct {
	ThreadsPerPage int `yaml:"threads_per_page" json:"threads_per_page"`
	PostsPerPage   int `yaml:"posts_per_page" json:"posts_per_page"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Locales: []string{"en-US"},
		Search: SearchConfig{
			DefaultLocale: "en-US",
			MaxResults:    20,
		},
		Synonyms: SynonymsConfig{
			Dir:           "",
			WatchDebounce: "500ms",
			CacheSize:     64,
		},
		Sync: SyncConfig{
			Workers:   2,
			QueueSize: 64,
			Retry: SyncRetryConfig{
				MaxRetries:   3,
				InitialDelay: "500ms",
				MaxDelay:     "8s",
			},
		},
		Forum: ForumConfig{
			ThreadsPerPage: 20,
			PostsPerPage:   20,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns the default data directory (~/.emberboard).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".emberboard")
	}
	return filepath.Join(home, ".emberboard")
}

// DatabasePath returns the SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "emberboard.db")
}

// IndexDir returns the directory holding per-locale search indexes.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "index")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/emberboard/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/emberboard/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "emberboard", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "emberboard", "config.yaml")
	}
	return filepath.Join(home, ".config", "emberboard", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/emberboard/config.yaml)
//  3. Project config (.emberboard.yaml in project root)
//  4. Environment variables (EMBERBOARD_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .emberboard.yaml or .emberboard.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".emberboard.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".emberboard.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if len(other.Locales) > 0 {
		c.Locales = other.Locales
	}

	// Search
	if other.Search.DefaultLocale != "" {
		c.Search.DefaultLocale = other.Search.DefaultLocale
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Synonyms
	if other.Synonyms.Dir != "" {
		c.Synonyms.Dir = other.Synonyms.Dir
	}
	if other.Synonyms.WatchDebounce != "" {
		c.Synonyms.WatchDebounce = other.Synonyms.WatchDebounce
	}
	if other.Synonyms.CacheSize != 0 {
		c.Synonyms.CacheSize = other.Synonyms.CacheSize
	}

	// Sync
	if other.Sync.Workers != 0 {
		c.Sync.Workers = other.Sync.Workers
	}
	if other.Sync.QueueSize != 0 {
		c.Sync.QueueSize = other.Sync.QueueSize
	}
	if other.Sync.Retry.MaxRetries != 0 {
		c.Sync.Retry.MaxRetries = other.Sync.Retry.MaxRetries
	}
	if other.Sync.Retry.InitialDelay != "" {
		c.Sync.Retry.InitialDelay = other.Sync.Retry.InitialDelay
	}
	if other.Sync.Retry.MaxDelay != "" {
		c.Sync.Retry.MaxDelay = other.Sync.Retry.MaxDelay
	}

	// Forum
	if other.Forum.ThreadsPerPage != 0 {
		c.Forum.ThreadsPerPage = other.Forum.ThreadsPerPage
	}
	if other.Forum.PostsPerPage != 0 {
		c.Forum.PostsPerPage = other.Forum.PostsPerPage
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies EMBERBOARD_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMBERBOARD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("EMBERBOARD_LOCALES"); v != "" {
		var locales []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				locales = append(locales, l)
			}
		}
		if len(locales) > 0 {
			c.Locales = locales
		}
	}
	if v := os.Getenv("EMBERBOARD_DEFAULT_LOCALE"); v != "" {
		c.Search.DefaultLocale = v
	}
	if v := os.Getenv("EMBERBOARD_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("EMBERBOARD_SYNONYMS_DIR"); v != "" {
		c.Synonyms.Dir = v
	}
	if v := os.Getenv("EMBERBOARD_SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.Workers = n
		}
	}
	if v := os.Getenv("EMBERBOARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EMBERBOARD_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .emberboard.yaml/.yml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".emberboard.yaml")) ||
			fileExists(filepath.Join(currentDir, ".emberboard.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if len(c.Locales) == 0 {
		return fmt.Errorf("locales must list at least one locale")
	}
	seen := make(map[string]bool, len(c.Locales))
	for _, l := range c.Locales {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("locales must not contain empty entries")
		}
		if strings.ContainsAny(l, " \t/\\") {
			return fmt.Errorf("locale %q must not contain whitespace or path separators", l)
		}
		if seen[l] {
			return fmt.Errorf("locale %q listed twice", l)
		}
		seen[l] = true
	}

	if !seen[c.Search.DefaultLocale] {
		return fmt.Errorf("search.default_locale %q is not in locales", c.Search.DefaultLocale)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}

	if _, err := time.ParseDuration(c.Synonyms.WatchDebounce); err != nil {
		return fmt.Errorf("synonyms.watch_debounce is not a duration: %w", err)
	}
	if c.Synonyms.CacheSize <= 0 {
		return fmt.Errorf("synonyms.cache_size must be positive, got %d", c.Synonyms.CacheSize)
	}

	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers)
	}
	if c.Sync.QueueSize <= 0 {
		return fmt.Errorf("sync.queue_size must be positive, got %d", c.Sync.QueueSize)
	}
	if c.Sync.Retry.MaxRetries < 0 {
		return fmt.Errorf("sync.retry.max_retries must be non-negative, got %d", c.Sync.Retry.MaxRetries)
	}
	if _, err := time.ParseDuration(c.Sync.Retry.InitialDelay); err != nil {
		return fmt.Errorf("sync.retry.initial_delay is not a duration: %w", err)
	}
	if _, err := time.ParseDuration(c.Sync.Retry.MaxDelay); err != nil {
		return fmt.Errorf("sync.retry.max_delay is not a duration: %w", err)
	}

	if c.Forum.ThreadsPerPage <= 0 {
		return fmt.Errorf("forum.threads_per_page must be positive, got %d", c.Forum.ThreadsPerPage)
	}
	if c.Forum.PostsPerPage <= 0 {
		return fmt.Errorf("forum.posts_per_page must be positive, got %d", c.Forum.PostsPerPage)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// RetryConfig converts the sync retry tuning into the errors package's
// retry configuration. Validate checks the durations parse; a bad value
// falls back to the default here.
func (c *Config) RetryConfig() emberrors.RetryConfig {
	out := emberrors.DefaultRetryConfig()
	if c.Sync.Retry.MaxRetries > 0 {
		out.MaxRetries = c.Sync.Retry.MaxRetries
	}
	if d, err := time.ParseDuration(c.Sync.Retry.InitialDelay); err == nil && d > 0 {
		out.InitialDelay = d
	}
	if d, err := time.ParseDuration(c.Sync.Retry.MaxDelay); err == nil && d > 0 {
		out.MaxDelay = d
	}
	return out
}

// WatchDebounceDuration returns the parsed debounce interval.
// Call Validate first; a bad value falls back to 500ms here.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Synonyms.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
