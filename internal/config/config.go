package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIBaseURL string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory", "memcached" or "redis"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisURL string

	RateLimitRPS   int
	RateLimitBurst int

	LocationMinLength int
	LocationMaxLength int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	WarmCache    bool
	WarmInterval time.Duration

	ShutdownTimeout time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			URL string `yaml:"url"`
		} `yaml:"redis"`
		Warm         bool   `yaml:"warm"`
		WarmInterval string `yaml:"warm_interval"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceEnabled bool   `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
	} `yaml:"reliability"`

	Validation struct {
		LocationMinLength int `yaml:"location_min_length"`
		LocationMaxLength int `yaml:"location_max_length"`
	} `yaml:"validation"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. A local .env file is applied first so development
// machines can export WEATHER_API_KEY without shell setup. The API key comes
// from the WEATHER_API_KEY env var or the secrets file. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional; prod sets real env vars

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.WeatherAPIKey = sec.WeatherAPIKey
		}
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIBaseURL = fc.WeatherAPI.BaseURL
	if cfg.WeatherAPIBaseURL == "" {
		cfg.WeatherAPIBaseURL = "https://api.openweathermap.org/data/2.5"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if cfg.RedisURL == "" {
		cfg.RedisURL = strings.TrimSpace(fc.Cache.Redis.URL)
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	cfg.WarmCache = fc.Cache.Warm
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CoalesceEnabled = fc.Reliability.CoalesceEnabled
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 5*time.Second)

	cfg.LocationMinLength = fc.Validation.LocationMinLength
	if cfg.LocationMinLength <= 0 {
		cfg.LocationMinLength = 1
	}
	cfg.LocationMaxLength = fc.Validation.LocationMaxLength
	if cfg.LocationMaxLength <= 0 {
		cfg.LocationMaxLength = 100
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero or negative durations pass through as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values. Ensures the
// upstream timeout is positive, the request timeout exceeds it, and the cache
// backend names a known implementation.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	return nil
}
