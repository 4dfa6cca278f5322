package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, []string{"en-US"}, cfg.Locales)

	assert.Equal(t, "en-US", cfg.Search.DefaultLocale)
	assert.Equal(t, 20, cfg.Search.MaxResults)

	assert.Empty(t, cfg.Synonyms.Dir)
	assert.Equal(t, "500ms", cfg.Synonyms.WatchDebounce)
	assert.Equal(t, 64, cfg.Synonyms.CacheSize)

	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.Equal(t, 64, cfg.Sync.QueueSize)
	assert.Equal(t, 3, cfg.Sync.Retry.MaxRetries)
	assert.Equal(t, "500ms", cfg.Sync.Retry.InitialDelay)
	assert.Equal(t, "8s", cfg.Sync.Retry.MaxDelay)

	assert.Equal(t, 20, cfg.Forum.ThreadsPerPage)
	assert.Equal(t, 20, cfg.Forum.PostsPerPage)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestNewConfig_DefaultsValidate(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.DataDir = "/var/lib/emberboard"

	assert.Equal(t, filepath.Join("/var/lib/emberboard", "emberboard.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/emberboard", "index"), cfg.IndexDir())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a project config with a few overrides
	dir := t.TempDir()
	content := `
data_dir: ` + filepath.Join(dir, "data") + `
locales: [en-US, de, fr]
search:
  default_locale: de
  max_results: 5
sync:
  workers: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".emberboard.yaml"), []byte(content), 0o644))

	// When: loading from that directory
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: overridden values win, untouched values keep defaults
	assert.Equal(t, []string{"en-US", "de", "fr"}, cfg.Locales)
	assert.Equal(t, "de", cfg.Search.DefaultLocale)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, 64, cfg.Sync.QueueSize)
	assert.Equal(t, 20, cfg.Forum.ThreadsPerPage)
}

func TestLoad_YmlFallback(t *testing.T) {
	dir := t.TempDir()
	content := "search:\n  max_results: 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".emberboard.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.MaxResults)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Search.MaxResults)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".emberboard.yaml"), []byte("locales: [unterminated"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoad_EnvOverridesBeatProjectFile(t *testing.T) {
	// Given: a project config and env overrides
	dir := t.TempDir()
	content := "search:\n  default_locale: en-US\nlogging:\n  level: info\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".emberboard.yaml"), []byte(content), 0o644))

	t.Setenv("EMBERBOARD_LOCALES", "en-US, pt-BR")
	t.Setenv("EMBERBOARD_DEFAULT_LOCALE", "pt-BR")
	t.Setenv("EMBERBOARD_LOG_LEVEL", "debug")
	t.Setenv("EMBERBOARD_SYNC_WORKERS", "8")

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: env wins
	assert.Equal(t, []string{"en-US", "pt-BR"}, cfg.Locales)
	assert.Equal(t, "pt-BR", cfg.Search.DefaultLocale)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Sync.Workers)
}

func TestValidate_RejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty locales", func(c *Config) { c.Locales = nil }},
		{"blank locale", func(c *Config) { c.Locales = []string{" "} }},
		{"locale with slash", func(c *Config) { c.Locales = []string{"en/US"} }},
		{"duplicate locale", func(c *Config) { c.Locales = []string{"en-US", "en-US"} }},
		{"default locale not listed", func(c *Config) { c.Search.DefaultLocale = "xx" }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"bad debounce", func(c *Config) { c.Synonyms.WatchDebounce = "soon" }},
		{"zero cache", func(c *Config) { c.Synonyms.CacheSize = 0 }},
		{"zero workers", func(c *Config) { c.Sync.Workers = 0 }},
		{"bad retry delay", func(c *Config) { c.Sync.Retry.InitialDelay = "never" }},
		{"zero threads per page", func(c *Config) { c.Forum.ThreadsPerPage = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatchDebounceDuration_ParsesAndFallsBack(t *testing.T) {
	cfg := NewConfig()
	cfg.Synonyms.WatchDebounce = "250ms"
	assert.Equal(t, 250*time.Millisecond, cfg.WatchDebounceDuration())

	cfg.Synonyms.WatchDebounce = "garbage"
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounceDuration())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	// Given: a customized config written to disk
	dir := t.TempDir()
	path := filepath.Join(dir, ".emberboard.yaml")

	cfg := NewConfig()
	cfg.Locales = []string{"en-US", "ja"}
	cfg.Search.MaxResults = 9
	require.NoError(t, cfg.WriteYAML(path))

	// When: loading it back
	loaded, err := Load(dir)
	require.NoError(t, err)

	// Then: values survive the round trip
	assert.Equal(t, []string{"en-US", "ja"}, loaded.Locales)
	assert.Equal(t, 9, loaded.Search.MaxResults)
}

func TestFindProjectRoot_StopsAtConfigFile(t *testing.T) {
	// Given: root/.emberboard.yaml with a nested working directory
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".emberboard.yaml"), []byte("version: 1\n"), 0o644))

	// When: searching from the nested directory
	got, err := FindProjectRoot(nested)
	require.NoError(t, err)

	// Then: the directory holding the config file is the root
	assert.Equal(t, root, got)
}
