package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"magpie/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Error("expected exists=false for missing file")
	}
	if resolved != path {
		t.Errorf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Downloads.MaxConcurrent != 4 {
		t.Errorf("expected default max_concurrent 4, got %d", cfg.Downloads.MaxConcurrent)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7733" {
		t.Errorf("expected default api_bind, got %q", cfg.Paths.APIBind)
	}
	if !cfg.Downloads.DownloadFiles {
		t.Error("expected download_files default true")
	}
	if !filepath.IsAbs(cfg.Paths.DownloadDir) {
		t.Errorf("expected expanded download dir, got %q", cfg.Paths.DownloadDir)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
download_dir = "`+filepath.Join(base, "dl")+`"
state_dir = "`+filepath.Join(base, "state")+`"
api_bind = "127.0.0.1:9000"

[downloads]
max_concurrent = 2
idle_timeout = 45

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Paths.APIBind != "127.0.0.1:9000" {
		t.Errorf("api_bind: got %q", cfg.Paths.APIBind)
	}
	if cfg.Downloads.MaxConcurrent != 2 {
		t.Errorf("max_concurrent: got %d", cfg.Downloads.MaxConcurrent)
	}
	if cfg.Downloads.IdleTimeout != 45 {
		t.Errorf("idle_timeout: got %d", cfg.Downloads.IdleTimeout)
	}
	// Unset values fall back to defaults.
	if cfg.Downloads.RequestTimeout != 60 {
		t.Errorf("request_timeout default: got %d", cfg.Downloads.RequestTimeout)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected normalized json format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected normalized debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadBindAddress(t *testing.T) {
	path := writeConfig(t, `
[paths]
api_bind = "not-a-bind-address"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for malformed api_bind")
	}
}

func TestLoadRejectsShortIdleTimeout(t *testing.T) {
	path := writeConfig(t, `
[downloads]
idle_timeout = 2
`)
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error for idle_timeout below minimum")
	}
	if !strings.Contains(err.Error(), "idle_timeout") {
		t.Fatalf("expected idle_timeout in error, got %v", err)
	}
}

func TestAPITokenFallsBackToEnvironment(t *testing.T) {
	t.Setenv("MAGPIE_API_TOKEN", "env-secret")
	path := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.APIToken != "env-secret" {
		t.Fatalf("expected env token fallback, got %q", cfg.Paths.APIToken)
	}
}

func TestConfigTokenWinsOverEnvironment(t *testing.T) {
	t.Setenv("MAGPIE_API_TOKEN", "env-secret")
	path := writeConfig(t, `
[paths]
api_token = "file-secret"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.APIToken != "file-secret" {
		t.Fatalf("expected file token to win, got %q", cfg.Paths.APIToken)
	}
}

func TestCreateSampleParses(t *testing.T) {
	target := filepath.Join(t.TempDir(), "sample", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(target); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DownloadDir = filepath.Join(base, "dl")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Credentials.Path = filepath.Join(base, "creds", "credentials.json")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DownloadDir, cfg.Paths.StateDir, cfg.Paths.LogDir, filepath.Join(base, "creds")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s, err=%v", dir, err)
		}
	}
}
