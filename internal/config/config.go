// Package config loads the service settings from mirror.yaml, applies
// MIRROR_* environment overrides and lays out the data directory.
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

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the settings file looked up when no path is given.
	FileName = "mirror.yaml"

	defaultDataDir    = "data"
	defaultPluginsDir = "plugins"
	defaultLogLevel   = "info"

	// BackendFile stores the user configuration as data/config.json.
	BackendFile = "file"
	// BackendRedis stores the user configuration under a Redis key.
	BackendRedis = "redis"
)

const defaultConfigYAML = `# smart mirror service configuration
data_dir: data
plugins_dir: plugins
log_level: info
watch_plugins: true

server:
  host: 0.0.0.0
  port: 8080
  read_timeout: 15s
  write_timeout: 15s
  idle_timeout: 60s

# Where the dashboard layout and component settings are kept.
store:
  backend: file
  # backend: redis
  # redis:
  #   addr: localhost:6379
  #   db: 0
  #   key: smart-mirror:config
`

// ServerConfig holds the raw server section. Zero values fall back to the
// server defaults.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// RedisConfig describes the Redis connection of the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// StoreConfig selects the user configuration backend.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// Config holds the runtime configuration for the service.
type Config struct {
	// Path is the settings file that was read, empty when none existed.
	Path string `yaml:"-"`
	// BaseDir anchors relative paths; it is the directory of Path or the
	// working directory.
	BaseDir string `yaml:"-"`

	DataDir      string       `yaml:"data_dir"`
	PluginsDir   string       `yaml:"plugins_dir"`
	LogLevel     string       `yaml:"log_level"`
	WatchPlugins *bool        `yaml:"watch_plugins"`
	Server       ServerConfig `yaml:"server"`
	Store        StoreConfig  `yaml:"store"`
}

// Default returns the built-in settings anchored at baseDir.
func Default(baseDir string) *Config {
	watch := true
	return &Config{
		BaseDir:      baseDir,
		DataDir:      defaultDataDir,
		PluginsDir:   defaultPluginsDir,
		LogLevel:     defaultLogLevel,
		WatchPlugins: &watch,
		Store:        StoreConfig{Backend: BackendFile},
	}
}

// Load reads path (or ./mirror.yaml when path is empty), applies
// environment overrides and normalizes the result. A missing file yields
// the defaults unless path was given explicitly.
func Load(path string) (*Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = FileName
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	cfg := Default(filepath.Dir(abs))
	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", abs, err)
		}
		cfg.Path = abs
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		if wd, wdErr := os.Getwd(); wdErr == nil {
			cfg.BaseDir = wd
		}
	default:
		return nil, fmt.Errorf("config: read %s: %w", abs, err)
	}
	cfg.applyEnvOverrides()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if value := env("MIRROR_DATA_DIR"); value != "" {
		c.DataDir = value
	}
	if value := env("MIRROR_PLUGINS_DIR"); value != "" {
		c.PluginsDir = value
	}
	if value := env("MIRROR_LOG_LEVEL"); value != "" {
		c.LogLevel = value
	}
	if value := env("MIRROR_WATCH_PLUGINS"); value != "" {
		if watch, err := strconv.ParseBool(value); err == nil {
			c.WatchPlugins = &watch
		}
	}
	if value := env("MIRROR_HOST"); value != "" {
		c.Server.Host = value
	}
	if value := env("MIRROR_PORT"); value != "" {
		if port, err := strconv.Atoi(value); err == nil {
			c.Server.Port = port
		}
	}
	if value := env("MIRROR_STORE_BACKEND"); value != "" {
		c.Store.Backend = value
	}
	if value := env("MIRROR_REDIS_ADDR"); value != "" {
		c.Store.Redis.Addr = value
	}
	if value := env("MIRROR_REDIS_PASSWORD"); value != "" {
		c.Store.Redis.Password = value
	}
	if value := env("MIRROR_REDIS_DB"); value != "" {
		if db, err := strconv.Atoi(value); err == nil {
			c.Store.Redis.DB = db
		}
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (c *Config) normalize() {
	c.DataDir = resolvePath(c.BaseDir, c.DataDir, defaultDataDir)
	c.PluginsDir = resolvePath(c.BaseDir, c.PluginsDir, defaultPluginsDir)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	c.Store.Redis.Addr = strings.TrimSpace(c.Store.Redis.Addr)
	if c.Store.Backend == BackendRedis && c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "localhost:6379"
	}
	c.Server.Host = strings.TrimSpace(c.Server.Host)
}

// Validate checks the normalized settings.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.Store.Backend {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("config: store.backend must be %q or %q, got %q", BackendFile, BackendRedis, c.Store.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Store.Redis.DB < 0 {
		return fmt.Errorf("config: store.redis.db must be >= 0")
	}
	return nil
}

// Watch reports whether the plugin directory should be watched for changes.
func (c *Config) Watch() bool {
	return c.WatchPlugins == nil || *c.WatchPlugins
}

// UserConfigPath returns the file the file backend persists to.
func (c *Config) UserConfigPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

// LogsDir returns the directory holding service logs.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// InitDataDir creates the data directory layout:
//
//	data/
//	└── logs/
func InitDataDir(c *Config) error {
	for _, dir := range []string{c.DataDir, c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// WriteDefault writes a commented settings file to path unless one exists.
// It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("config: create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return true, nil
}

// Encode renders c as YAML.
func (c *Config) Encode() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return data, nil
}

func resolvePath(base, candidate, fallback string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		trimmed = fallback
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
