package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/saqib-21/WellandCanalStatus/internal/models"
	"github.com/saqib-21/WellandCanalStatus/internal/validation"
)

// Config holds service configuration loaded from YAML, env and command-line flags.
type Config struct {
	ServerPort string

	UpstreamUserAgent string // empty uses the fetcher's browser signature
	UpstreamTimeout   time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	Sources []models.Source

	CacheTTL        time.Duration
	CacheBackend    string // "in_memory" or "memcached"
	CoalesceEnabled bool

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	MemcachedRetention    time.Duration

	WarmOnStart  bool
	WarmSchedule string // duration or cron expression; empty disables

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	TrafficWindow time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstream struct {
		UserAgent      string `yaml:"user_agent"`
		Timeout        string `yaml:"timeout"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"upstream"`

	Sources []models.Source `yaml:"sources"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Coalesce  *bool  `yaml:"coalesce"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
			Retention    string `yaml:"retention"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Warm struct {
		OnStart  bool   `yaml:"on_start"`
		Schedule string `yaml:"schedule"`
	} `yaml:"warm"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Metrics struct {
		TrafficWindow string `yaml:"traffic_window"`
	} `yaml:"metrics"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// Overrides are command-line values that take precedence over env and file settings.
// Empty fields leave the lower layers in effect.
type Overrides struct {
	Port      string
	ConfigDir string
	Env       string
}

// ParseFlags parses --port, --config-dir and --env from args (without the program name).
func ParseFlags(name string, args []string) (Overrides, error) {
	var ov Overrides
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.StringVarP(&ov.Port, "port", "p", "", "HTTP listen port (overrides PORT and server.port)")
	flags.StringVar(&ov.ConfigDir, "config-dir", "", "Directory holding {env}.yaml (default ./config)")
	flags.StringVarP(&ov.Env, "env", "e", "", "Config environment name (overrides ENV_NAME, default dev)")
	if err := flags.Parse(args); err != nil {
		return Overrides{}, err
	}
	if flags.NArg() > 0 {
		return Overrides{}, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return ov, nil
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) relative to the
// working directory, then applies env overrides.
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides is Load with command-line overrides applied last.
func LoadWithOverrides(ov Overrides) (*Config, error) {
	env := ov.Env
	if env == "" {
		env = os.Getenv("ENV_NAME")
	}
	if env == "" {
		env = "dev"
	}

	configDir := ov.ConfigDir
	if configDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: get working directory: %w", err)
		}
		configDir = filepath.Join(cwd, "config")
	}
	configPath := filepath.Join(configDir, env+".yaml")
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

	cfg := fromFile(&fc)
	applyEnv(cfg)
	if ov.Port != "" {
		cfg.ServerPort = ov.Port
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(fc.Server.Port, "3000")

	cfg.UpstreamUserAgent = strings.TrimSpace(fc.Upstream.UserAgent)
	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstream.Timeout, 10*time.Second)

	cb := fc.Upstream.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(cb.SuccessThreshold, 1)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.Sources = fc.Sources
	if len(cfg.Sources) == 0 {
		cfg.Sources = models.DefaultSources()
	}

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 20*time.Second)
	cfg.CacheBackend = firstNonEmpty(strings.TrimSpace(strings.ToLower(fc.Cache.Backend)), "in_memory")
	cfg.CoalesceEnabled = true
	if fc.Cache.Coalesce != nil {
		cfg.CoalesceEnabled = *fc.Cache.Coalesce
	}
	mc := fc.Cache.Memcached
	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(mc.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(mc.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(mc.MaxIdleConns, 2)
	cfg.MemcachedRetention = parseDuration(mc.Retention, time.Hour)

	cfg.WarmOnStart = fc.Warm.OnStart
	cfg.WarmSchedule = strings.TrimSpace(fc.Warm.Schedule)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 20)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 50)

	cfg.TrafficWindow = parseDuration(fc.Metrics.TrafficWindow, 60*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 15*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)
	return cfg
}

// applyEnv overrides file values with PORT, CACHE_BACKEND and MEMCACHED_ADDRS.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ServerPort = v
	}
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))); v != "" {
		cfg.CacheBackend = v
	}
	if v := strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")); v != "" {
		cfg.MemcachedAddrs = v
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is for validate to reject.
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

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

func firstNonEmpty(v, defaultVal string) string {
	if v == "" {
		return defaultVal
	}
	return v
}

// validate performs post-load validation. The request timeout is raised above the
// upstream timeout so handlers wait for a full fetch.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		key, err := validation.ValidateSourceKey(src.Key)
		if err != nil {
			return fmt.Errorf("sources[%d].key %q: %w", i, src.Key, err)
		}
		if seen[key] {
			return fmt.Errorf("sources[%d]: duplicate key %q", i, key)
		}
		seen[key] = true
		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("sources[%d].url %q must be an absolute http(s) URL", i, src.URL)
		}
		cfg.Sources[i].Key = key
	}
	return nil
}
