package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdir changes the working directory for the duration of the test, restoring
// the original directory on cleanup. (testing.T.Chdir requires Go 1.24.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore chdir %s: %v", prev, err)
		}
	})
}

// writeConfigDir creates a temp project root with config/dev.yaml, chdirs into
// it, and returns the root path.
func writeConfigDir(t *testing.T, yamlContent string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "config", "dev.yaml"), []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write dev.yaml: %v", err)
	}
	chdir(t, root)
	return root
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ENV_NAME", "WEATHER_API_KEY", "CACHE_BACKEND", "MEMCACHED_ADDRS", "REDIS_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	writeConfigDir(t, "server:\n  port: \"\"\n")
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.WeatherAPIBaseURL != "https://api.openweathermap.org/data/2.5" {
		t.Errorf("WeatherAPIBaseURL = %q, want OpenWeatherMap default", cfg.WeatherAPIBaseURL)
	}
	if cfg.WeatherAPITimeout != 2*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 2s", cfg.WeatherAPITimeout)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("CacheTTL = %v, want 15m", cfg.CacheTTL)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 250 {
		t.Errorf("rate limit = %d/%d, want 100/250", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.LocationMinLength != 1 || cfg.LocationMaxLength != 100 {
		t.Errorf("location lengths = %d/%d, want 1/100", cfg.LocationMinLength, cfg.LocationMaxLength)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingAPIKeyFails(t *testing.T) {
	clearConfigEnv(t)
	writeConfigDir(t, "server:\n  port: \"9090\"\n")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() error = nil, want missing API key error")
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %q, want mention of WEATHER_API_KEY", err)
	}
}

func TestLoad_APIKeyFromSecretsFile(t *testing.T) {
	clearConfigEnv(t)
	root := writeConfigDir(t, "server:\n  port: \"9090\"\n")
	secrets := "weather_api_key: secret-from-file\n"
	if err := os.WriteFile(filepath.Join(root, "config", "secrets.yaml"), []byte(secrets), 0o600); err != nil {
		t.Fatalf("write secrets.yaml: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "secret-from-file" {
		t.Errorf("WeatherAPIKey = %q, want value from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvKeyOverridesSecretsFile(t *testing.T) {
	clearConfigEnv(t)
	root := writeConfigDir(t, "server:\n  port: \"9090\"\n")
	if err := os.WriteFile(filepath.Join(root, "config", "secrets.yaml"), []byte("weather_api_key: file-key\n"), 0o600); err != nil {
		t.Fatalf("write secrets.yaml: %v", err)
	}
	t.Setenv("WEATHER_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "env-key" {
		t.Errorf("WeatherAPIKey = %q, want env var to win", cfg.WeatherAPIKey)
	}
}

func TestLoad_FileValues(t *testing.T) {
	clearConfigEnv(t)
	yaml := `server:
  port: "9090"
weather_api:
  base_url: "http://stub.local/data/2.5"
  timeout: "3s"
request:
  timeout: "10s"
cache:
  backend: "memcached"
  ttl: "5m"
  memcached:
    addrs: "mc1:11211,mc2:11211"
    timeout: "250ms"
    max_idle_conns: 8
  warm: true
  warm_interval: "1h"
reliability:
  rate_limit_rps: 50
  rate_limit_burst: 75
  coalesce_enabled: true
  coalesce_timeout: "2s"
validation:
  location_min_length: 2
  location_max_length: 60
shutdown:
  timeout: "10s"
metrics:
  tracked_locations:
    - london
    - tokyo
`
	writeConfigDir(t, yaml)
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.WeatherAPIBaseURL != "http://stub.local/data/2.5" {
		t.Errorf("WeatherAPIBaseURL = %q", cfg.WeatherAPIBaseURL)
	}
	if cfg.WeatherAPITimeout != 3*time.Second || cfg.RequestTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v, want 3s/10s", cfg.WeatherAPITimeout, cfg.RequestTimeout)
	}
	if cfg.CacheBackend != "memcached" || cfg.CacheTTL != 5*time.Minute {
		t.Errorf("cache = %q/%v, want memcached/5m", cfg.CacheBackend, cfg.CacheTTL)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" || cfg.MemcachedTimeout != 250*time.Millisecond || cfg.MemcachedMaxIdleConns != 8 {
		t.Errorf("memcached = %q/%v/%d", cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
	}
	if !cfg.WarmCache || cfg.WarmInterval != time.Hour {
		t.Errorf("warming = %v/%v, want true/1h", cfg.WarmCache, cfg.WarmInterval)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 75 {
		t.Errorf("rate limit = %d/%d, want 50/75", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if !cfg.CoalesceEnabled || cfg.CoalesceTimeout != 2*time.Second {
		t.Errorf("coalescing = %v/%v, want true/2s", cfg.CoalesceEnabled, cfg.CoalesceTimeout)
	}
	if cfg.LocationMinLength != 2 || cfg.LocationMaxLength != 60 {
		t.Errorf("location lengths = %d/%d, want 2/60", cfg.LocationMinLength, cfg.LocationMaxLength)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if len(cfg.TrackedLocations) != 2 || cfg.TrackedLocations[0] != "london" {
		t.Errorf("TrackedLocations = %v, want [london tokyo]", cfg.TrackedLocations)
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	clearConfigEnv(t)
	writeConfigDir(t, "cache:\n  backend: \"in_memory\"\n")
	t.Setenv("WEATHER_API_KEY", "test-key")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache.internal:6379/1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheBackend != "redis" {
		t.Errorf("CacheBackend = %q, want env override redis", cfg.CacheBackend)
	}
	if cfg.RedisURL != "redis://cache.internal:6379/1" {
		t.Errorf("RedisURL = %q, want env override", cfg.RedisURL)
	}
}

func TestLoad_InvalidBackendFails(t *testing.T) {
	clearConfigEnv(t)
	writeConfigDir(t, "cache:\n  backend: \"dynamo\"\n")
	t.Setenv("WEATHER_API_KEY", "test-key")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() error = nil, want invalid backend error")
	}
	if !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("Load() error = %q, want cache.backend in message", err)
	}
}

func TestLoad_RequestTimeoutAdjustedAboveUpstream(t *testing.T) {
	clearConfigEnv(t)
	writeConfigDir(t, "weather_api:\n  timeout: \"5s\"\nrequest:\n  timeout: \"2s\"\n")
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		t.Errorf("RequestTimeout = %v, want above WeatherAPITimeout %v", cfg.RequestTimeout, cfg.WeatherAPITimeout)
	}
}

func TestLoad_MissingConfigFileFails(t *testing.T) {
	clearConfigEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("WEATHER_API_KEY", "test-key")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() error = nil, want config file not found")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %q", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		def   time.Duration
		want  time.Duration
	}{
		{"3s", time.Second, 3 * time.Second},
		{"", time.Second, time.Second},
		{"garbage", time.Second, time.Second},
		{"-5s", time.Second, time.Second},
		{"0s", time.Second, time.Second},
		{" 250ms ", time.Second, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.input, tt.def); got != tt.want {
			t.Errorf("parseDuration(%q, %v) = %v, want %v", tt.input, tt.def, got, tt.want)
		}
	}
}
