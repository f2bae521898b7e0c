package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
)

const minimalEnvYAML = `
server:
  port: "3000"
upstream:
  timeout: "10s"
cache:
  ttl: "20s"
request:
  timeout: "15s"
`

func writeEnvFile(t *testing.T, dir, env, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, env+".yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

// clearEnv unsets every variable Load reads so host settings do not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV_NAME", "PORT", "CACHE_BACKEND", "MEMCACHED_ADDRS"} {
		t.Setenv(k, "")
	}
}

func loadYAML(t *testing.T, content string) (*Config, error) {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "dev", content)
	return LoadWithOverrides(Overrides{ConfigDir: dir})
}

// TestLoad_Defaults verifies that a minimal file yields the documented defaults.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadYAML(t, "{}\n")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000", cfg.ServerPort)
	}
	if cfg.CacheTTL != 20*time.Second {
		t.Errorf("CacheTTL = %v, want 20s", cfg.CacheTTL)
	}
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 10s", cfg.UpstreamTimeout)
	}
	if !cfg.CoalesceEnabled {
		t.Error("CoalesceEnabled = false, want true by default")
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false by default")
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if diff := cmp.Diff(models.DefaultSources(), cfg.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
	if cfg.WarmOnStart || cfg.WarmSchedule != "" {
		t.Errorf("warming = (%v, %q), want disabled", cfg.WarmOnStart, cfg.WarmSchedule)
	}
}

func TestLoad_FullFile(t *testing.T) {
	cfg, err := loadYAML(t, `
server:
  port: "9090"
upstream:
  user_agent: "test-agent"
  timeout: "4s"
  circuit_breaker:
    enabled: true
    failure_threshold: 3
    timeout: "10s"
sources:
  - key: PortColborne
    url: "http://example.test/pc"
  - key: niagara
    url: "http://example.test/n"
cache:
  backend: memcached
  ttl: "45s"
  coalesce: false
  memcached:
    addrs: "mc1:11211,mc2:11211"
    retention: "2h"
warm:
  on_start: true
  schedule: "*/1 * * * *"
request:
  timeout: "8s"
reliability:
  rate_limit_rps: 7
  rate_limit_burst: 9
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	wantSources := []models.Source{
		{Key: "portcolborne", URL: "http://example.test/pc"},
		{Key: "niagara", URL: "http://example.test/n"},
	}
	if diff := cmp.Diff(wantSources, cfg.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
	checks := []struct {
		name      string
		got, want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "9090"},
		{"UpstreamUserAgent", cfg.UpstreamUserAgent, "test-agent"},
		{"UpstreamTimeout", cfg.UpstreamTimeout, 4 * time.Second},
		{"CircuitBreakerEnabled", cfg.CircuitBreakerEnabled, true},
		{"CircuitBreakerFailureThreshold", cfg.CircuitBreakerFailureThreshold, 3},
		{"CircuitBreakerSuccessThreshold", cfg.CircuitBreakerSuccessThreshold, 1},
		{"CacheBackend", cfg.CacheBackend, "memcached"},
		{"CacheTTL", cfg.CacheTTL, 45 * time.Second},
		{"CoalesceEnabled", cfg.CoalesceEnabled, false},
		{"MemcachedAddrs", cfg.MemcachedAddrs, "mc1:11211,mc2:11211"},
		{"MemcachedRetention", cfg.MemcachedRetention, 2 * time.Hour},
		{"WarmOnStart", cfg.WarmOnStart, true},
		{"WarmSchedule", cfg.WarmSchedule, "*/1 * * * *"},
		{"RequestTimeout", cfg.RequestTimeout, 8 * time.Second},
		{"RateLimitRPS", cfg.RateLimitRPS, 7},
		{"RateLimitBurst", cfg.RateLimitBurst, 9},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	cfg, err := loadYAML(t, `
cache:
  ttl: "soon"
request:
  timeout: "-5s"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheTTL != 20*time.Second {
		t.Errorf("CacheTTL = %v, want default 20s", cfg.CacheTTL)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want default 15s", cfg.RequestTimeout)
	}
}

// TestLoad_RequestTimeoutRaisedAboveUpstream verifies that handlers always wait at least
// as long as one upstream fetch may take.
func TestLoad_RequestTimeoutRaisedAboveUpstream(t *testing.T) {
	cfg, err := loadYAML(t, `
upstream:
  timeout: "10s"
request:
  timeout: "5s"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 11*time.Second {
		t.Errorf("RequestTimeout = %v, want 11s", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "zero upstream timeout",
			yaml:    "upstream:\n  timeout: \"0s\"\n",
			wantErr: "upstream.timeout",
		},
		{
			name:    "unknown backend",
			yaml:    "cache:\n  backend: redis\n",
			wantErr: "cache.backend",
		},
		{
			name:    "duplicate source key",
			yaml:    "sources:\n  - {key: niagara, url: \"http://a.test/\"}\n  - {key: NIAGARA, url: \"http://b.test/\"}\n",
			wantErr: "duplicate key",
		},
		{
			name:    "invalid source key",
			yaml:    "sources:\n  - {key: \"bad key\", url: \"http://a.test/\"}\n",
			wantErr: "sources[0].key",
		},
		{
			name:    "relative source url",
			yaml:    "sources:\n  - {key: niagara, url: \"/bridgestatus\"}\n",
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "invalid yaml",
			yaml:    "server: [unclosed\n",
			wantErr: "parse config file",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadYAML(t, tc.yaml)
			if err == nil {
				t.Fatalf("Load() = %+v, want error", cfg)
			}
			if cfg != nil {
				t.Errorf("Load() expected nil config on error, got %+v", cfg)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Load() error = %v, want message containing %q", err, tc.wantErr)
			}
		})
	}
}

// TestLoad_Precedence verifies flag > env > file for the port, and env overrides for the
// cache backend settings.
func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "dev", minimalEnvYAML)

	t.Setenv("PORT", "4000")
	t.Setenv("CACHE_BACKEND", "MEMCACHED")
	t.Setenv("MEMCACHED_ADDRS", "cache:11211")

	cfg, err := LoadWithOverrides(Overrides{ConfigDir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "4000" {
		t.Errorf("ServerPort = %q, want env value 4000", cfg.ServerPort)
	}
	if cfg.CacheBackend != "memcached" || cfg.MemcachedAddrs != "cache:11211" {
		t.Errorf("cache = (%q, %q), want env values", cfg.CacheBackend, cfg.MemcachedAddrs)
	}

	cfg, err = LoadWithOverrides(Overrides{ConfigDir: dir, Port: "5000"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "5000" {
		t.Errorf("ServerPort = %q, want flag value 5000", cfg.ServerPort)
	}
}

func TestLoad_EnvSelectsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "dev", minimalEnvYAML)
	writeEnvFile(t, dir, "staging", "server:\n  port: \"7000\"\n")

	t.Setenv("ENV_NAME", "staging")
	cfg, err := LoadWithOverrides(Overrides{ConfigDir: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Errorf("ServerPort = %q, want 7000 from staging.yaml", cfg.ServerPort)
	}

	cfg, err = LoadWithOverrides(Overrides{ConfigDir: dir, Env: "dev"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000 from dev.yaml via --env", cfg.ServerPort)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadWithOverrides(Overrides{ConfigDir: t.TempDir(), Env: "nonexistent"})
	if err == nil {
		t.Fatalf("Load() = %+v, want error for missing env file", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

// TestLoad_FromWorkingDirectory verifies that Load reads config/dev.yaml relative to the
// working directory.
func TestLoad_FromWorkingDirectory(t *testing.T) {
	clearEnv(t)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeEnvFile(t, filepath.Join(dir, "config"), "dev", minimalEnvYAML)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000", cfg.ServerPort)
	}
}

// TestLoad_RepositoryConfigs verifies that the shipped config files load cleanly.
func TestLoad_RepositoryConfigs(t *testing.T) {
	clearEnv(t)
	root := findProjectRoot(t)
	for _, env := range []string{"dev", "prod"} {
		if _, err := LoadWithOverrides(Overrides{ConfigDir: filepath.Join(root, "config"), Env: env}); err != nil {
			t.Errorf("Load(%s) error = %v", env, err)
		}
	}
}

func TestParseFlags(t *testing.T) {
	ov, err := ParseFlags("test", []string{"--port", "8081", "--config-dir=/etc/bridges", "-e", "prod"})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	want := Overrides{Port: "8081", ConfigDir: "/etc/bridges", Env: "prod"}
	if ov != want {
		t.Errorf("ParseFlags() = %+v, want %+v", ov, want)
	}

	if _, err := ParseFlags("test", []string{"--verbose"}); err == nil {
		t.Error("ParseFlags(unknown flag) error = nil, want error")
	}
	if _, err := ParseFlags("test", []string{"extra"}); err == nil {
		t.Error("ParseFlags(positional) error = nil, want error")
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
