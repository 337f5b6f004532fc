package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mosaicerrors "github.com/Aman-CERP/mosaic/internal/errors"
	"github.com/Aman-CERP/mosaic/internal/logging"
)

// Config represents the complete mosaic configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Paths   PathsConfig   `yaml:"paths" json:"paths"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Plugins PluginsConfig `yaml:"plugins" json:"plugins"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PathsConfig locates the full-text indexes, the parquet metadata and the
// database the metadata tables are built into.
type PathsConfig struct {
	// IndexDir holds one bleve index directory per index name.
	IndexDir string `yaml:"index_dir" json:"index_dir"`
	// ParquetDir holds one directory of parquet files per index name.
	ParquetDir string `yaml:"parquet_dir" json:"parquet_dir"`
	// DBFile is the SQLite database holding the metadata tables.
	DBFile string `yaml:"db_file" json:"db_file"`
}

// StoreConfig configures how metadata tables are built.
type StoreConfig struct {
	// IDColumn keys metadata rows and full-text documents alike.
	IDColumn string `yaml:"id_column" json:"id_column"`
	// NumCharacters truncates plain_text at build time when greater than 1.
	NumCharacters int `yaml:"num_characters" json:"num_characters"`
}

// SearchConfig configures the retrieval loop.
type SearchConfig struct {
	CursorCacheSize int `yaml:"cursor_cache_size" json:"cursor_cache_size"`
	EnrichWorkers   int `yaml:"enrich_workers" json:"enrich_workers"`
	DefaultLimit    int `yaml:"default_limit" json:"default_limit"`
	// MaxLimit is the largest page size a request may ask for.
	MaxLimit      int `yaml:"max_limit" json:"max_limit"`
	SnippetLength int `yaml:"snippet_length" json:"snippet_length"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// BaseURL is the public prefix used for links in the XML feed.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// OpenSearchTemplateURL is advertised by /opensearch.xml.
	OpenSearchTemplateURL string `yaml:"opensearch_template_url" json:"opensearch_template_url"`
	ReadHeaderTimeout     string `yaml:"read_header_timeout" json:"read_header_timeout"`
	IdleTimeout           string `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout       string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	LogLevel              string `yaml:"log_level" json:"log_level"`
}

// PluginsConfig selects the metadata modules and the query extensions.
type PluginsConfig struct {
	// Modules lists metadata modules in registration order. "core" is
	// always active and is prepended when missing.
	Modules []string `yaml:"modules" json:"modules"`
	// Analyzer names the analyzer applied to parsed query clauses.
	Analyzer string `yaml:"analyzer" json:"analyzer"`
	// QueryRewrite names the rewrite applied to q before parsing.
	QueryRewrite string `yaml:"query_rewrite" json:"query_rewrite"`
}

// LoggingConfig configures the optional rotated log file.
type LoggingConfig struct {
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DBFile: filepath.Join(os.TempDir(), "mosaic_db"),
		},
		Store: StoreConfig{
			IDColumn:      "record_id",
			NumCharacters: 0,
		},
		Search: SearchConfig{
			CursorCacheSize: 1000,
			EnrichWorkers:   8,
			DefaultLimit:    20,
			MaxLimit:        1000,
			SnippetLength:   200,
		},
		Server: ServerConfig{
			Addr:                  ":8000",
			BaseURL:               "http://localhost:8000",
			OpenSearchTemplateURL: "http://localhost:8000/searchxml?q={searchTerms}&pw={startPage?}",
			ReadHeaderTimeout:     "10s",
			IdleTimeout:           "120s",
			ShutdownTimeout:       "15s",
			LogLevel:              "info",
		},
		Plugins: PluginsConfig{
			Modules:      []string{"core", "geo", "keywords"},
			Analyzer:     "standard",
			QueryRewrite: "",
		},
		Logging: LoggingConfig{
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// Uses XDG_CONFIG_HOME when set, otherwise ~/.config/mosaic/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mosaic", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "mosaic", "config.yaml")
}

// Load loads configuration with the following precedence (lowest to highest):
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/mosaic/config.yaml)
//  3. Explicit file (path), or mosaic.yaml / mosaic.yml in dir
//  4. Environment variables (MOSAIC_*)
//
// An explicit path that does not exist is an error; a missing mosaic.yaml is not.
func Load(dir, path string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			if err := cfg.loadYAML(userPath); err != nil {
				return nil, mosaicerrors.ConfigError("failed to load user config", err)
			}
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, mosaicerrors.New(mosaicerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file %s not found", path), err)
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, mosaicerrors.ConfigError("failed to load config", err)
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, mosaicerrors.ConfigError("failed to load config", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, mosaicerrors.ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

// loadFromDir loads mosaic.yaml, or mosaic.yml as a fallback, from dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{"mosaic.yaml", "mosaic.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return c.loadYAML(p)
		}
	}
	return nil
}

// loadYAML parses path into a scratch Config and merges its non-zero values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	mergeString(&c.Paths.IndexDir, other.Paths.IndexDir)
	mergeString(&c.Paths.ParquetDir, other.Paths.ParquetDir)
	mergeString(&c.Paths.DBFile, other.Paths.DBFile)

	mergeString(&c.Store.IDColumn, other.Store.IDColumn)
	mergeInt(&c.Store.NumCharacters, other.Store.NumCharacters)

	mergeInt(&c.Search.CursorCacheSize, other.Search.CursorCacheSize)
	mergeInt(&c.Search.EnrichWorkers, other.Search.EnrichWorkers)
	mergeInt(&c.Search.DefaultLimit, other.Search.DefaultLimit)
	mergeInt(&c.Search.MaxLimit, other.Search.MaxLimit)
	mergeInt(&c.Search.SnippetLength, other.Search.SnippetLength)

	mergeString(&c.Server.Addr, other.Server.Addr)
	mergeString(&c.Server.BaseURL, other.Server.BaseURL)
	mergeString(&c.Server.OpenSearchTemplateURL, other.Server.OpenSearchTemplateURL)
	mergeString(&c.Server.ReadHeaderTimeout, other.Server.ReadHeaderTimeout)
	mergeString(&c.Server.IdleTimeout, other.Server.IdleTimeout)
	mergeString(&c.Server.ShutdownTimeout, other.Server.ShutdownTimeout)
	mergeString(&c.Server.LogLevel, other.Server.LogLevel)

	// A module list replaces the defaults rather than extending them.
	if len(other.Plugins.Modules) > 0 {
		c.Plugins.Modules = other.Plugins.Modules
	}
	mergeString(&c.Plugins.Analyzer, other.Plugins.Analyzer)
	mergeString(&c.Plugins.QueryRewrite, other.Plugins.QueryRewrite)

	mergeString(&c.Logging.File, other.Logging.File)
	mergeInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	mergeInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies MOSAIC_* environment variable overrides.
// Unparsable numbers are ignored and leave the previous value in place.
func (c *Config) applyEnvOverrides() {
	envString(&c.Paths.IndexDir, "MOSAIC_INDEX_DIR")
	envString(&c.Paths.ParquetDir, "MOSAIC_PARQUET_DIR")
	envString(&c.Paths.DBFile, "MOSAIC_DB_FILE")
	envString(&c.Store.IDColumn, "MOSAIC_ID_COLUMN")
	envInt(&c.Store.NumCharacters, "MOSAIC_NUM_CHARACTERS")
	envInt(&c.Search.CursorCacheSize, "MOSAIC_CURSOR_CACHE_SIZE")
	envInt(&c.Search.EnrichWorkers, "MOSAIC_ENRICH_WORKERS")
	envInt(&c.Search.MaxLimit, "MOSAIC_MAX_LIMIT")
	envString(&c.Server.Addr, "MOSAIC_ADDR")
	envString(&c.Server.BaseURL, "MOSAIC_BASE_URL")
	envString(&c.Server.LogLevel, "MOSAIC_LOG_LEVEL")
	envString(&c.Plugins.Analyzer, "MOSAIC_ANALYZER")
	envString(&c.Plugins.QueryRewrite, "MOSAIC_QUERY_REWRITE")

	if v := os.Getenv("MOSAIC_MODULES"); v != "" {
		var modules []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				modules = append(modules, m)
			}
		}
		if len(modules) > 0 {
			c.Plugins.Modules = modules
		}
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.IDColumn) == "" {
		return fmt.Errorf("store.id_column must not be empty")
	}
	if c.Store.NumCharacters < 0 {
		return fmt.Errorf("store.num_characters must be non-negative, got %d", c.Store.NumCharacters)
	}
	if c.Search.CursorCacheSize <= 0 {
		return fmt.Errorf("search.cursor_cache_size must be positive, got %d", c.Search.CursorCacheSize)
	}
	if c.Search.EnrichWorkers <= 0 {
		return fmt.Errorf("search.enrich_workers must be positive, got %d", c.Search.EnrichWorkers)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit must be at least search.default_limit (%d), got %d",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.SnippetLength <= 0 {
		return fmt.Errorf("search.snippet_length must be positive, got %d", c.Search.SnippetLength)
	}

	for name, v := range map[string]string{
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.idle_timeout":        c.Server.IdleTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s must be a duration, got %q", name, v)
		}
	}

	if !logging.ValidLevel(c.Server.LogLevel) {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_files must be non-negative")
	}
	return nil
}

// ModuleNames returns the configured modules with "core" first and
// duplicates removed.
func (c *Config) ModuleNames() []string {
	names := []string{"core"}
	seen := map[string]bool{"core": true}
	for _, m := range c.Plugins.Modules {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		names = append(names, m)
	}
	return names
}

// ReadHeaderTimeout returns the parsed server.read_header_timeout.
func (c *Config) ReadHeaderTimeout() time.Duration {
	return mustDuration(c.Server.ReadHeaderTimeout)
}

// IdleTimeout returns the parsed server.idle_timeout.
func (c *Config) IdleTimeout() time.Duration {
	return mustDuration(c.Server.IdleTimeout)
}

// ShutdownTimeout returns the parsed server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout)
}

// mustDuration returns zero for strings Validate would have rejected.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
