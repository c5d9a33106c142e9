package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Path != "" {
		t.Fatalf("expected no settings file, got %q", cfg.Path)
	}
	if cfg.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("expected data dir under cwd, got %q", cfg.DataDir)
	}
	if cfg.Store.Backend != BackendFile || !cfg.Watch() || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadParsesYaml(t *testing.T) {
	dir := t.TempDir()
	configYAML := strings.TrimSpace(`
data_dir: state
plugins_dir: /opt/mirror/plugins
log_level: DEBUG
watch_plugins: false
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 5s
store:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
    key: mirror:test
`)
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DataDir != filepath.Join(dir, "state") {
		t.Fatalf("relative data dir should resolve against the file, got %q", cfg.DataDir)
	}
	if cfg.PluginsDir != "/opt/mirror/plugins" {
		t.Fatalf("unexpected plugins dir %q", cfg.PluginsDir)
	}
	if cfg.LogLevel != "debug" || cfg.Watch() {
		t.Fatalf("unexpected log level / watch: %q %v", cfg.LogLevel, cfg.Watch())
	}
	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Store.Redis.DB != 2 || cfg.Store.Redis.Key != "mirror:test" {
		t.Fatalf("unexpected store section %+v", cfg.Store)
	}
	if cfg.UserConfigPath() != filepath.Join(dir, "state", "config.json") {
		t.Fatalf("unexpected user config path %q", cfg.UserConfigPath())
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MIRROR_LOG_LEVEL", "warn")
	t.Setenv("MIRROR_PORT", "7000")
	t.Setenv("MIRROR_STORE_BACKEND", "redis")
	t.Setenv("MIRROR_WATCH_PLUGINS", "false")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.Server.Port != 7000 || cfg.Watch() {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Store.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected default redis addr, got %q", cfg.Store.Redis.Addr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"level":   "log_level: loud\n",
		"backend": "store:\n  backend: postgres\n",
		"port":    "server:\n  port: 70000\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestWriteDefaultAndInitDataDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "etc", FileName)
	wrote, err := WriteDefault(path)
	if err != nil || !wrote {
		t.Fatalf("WriteDefault: %v %v", wrote, err)
	}
	if wrote, _ := WriteDefault(path); wrote {
		t.Fatalf("existing file must not be overwritten")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("default file should load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if err := InitDataDir(cfg); err != nil {
		t.Fatalf("InitDataDir: %v", err)
	}
	if info, err := os.Stat(cfg.LogsDir()); err != nil || !info.IsDir() {
		t.Fatalf("logs dir missing: %v", err)
	}
}
