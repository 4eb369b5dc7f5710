// Package config loads the plagcheck client configuration from defaults,
// an optional config file, a .env file and PLAGCHECK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Sternrassler/plagcheck-client/pkg/cache"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides (e.g., PLAGCHECK_API_BASE_URL).
const EnvPrefix = "PLAGCHECK"

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the resolved client configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig configures the backend transport.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	Retries   int           `mapstructure:"retries"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Backend    string                   `mapstructure:"backend"`
	RedisAddr  string                   `mapstructure:"redis_addr"`
	RedisDB    int                      `mapstructure:"redis_db"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	TTL        []TTLRule     `mapstructure:"ttl"`
}

// TTLRule overrides the cache TTL for paths under Prefix. Rules are a list
// rather than a map because viper lower-cases map keys and splits them on
// dots, which would corrupt prefixes such as /v1.0/byUser.
type TTLRule struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// SessionConfig configures the persisted session.
type SessionConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Policy converts the cache settings into a TTL policy.
func (c CacheConfig) Policy() cache.Policy {
	perPrefix := make(map[string]time.Duration, len(c.TTL))
	for _, rule := range c.TTL {
		perPrefix[rule.Prefix] = rule.TTL
	}
	return cache.Policy{PerPrefix: perPrefix, Default: c.DefaultTTL}
}

// Loader builds a Config; the zero value is not usable, call NewLoader.
type Loader struct {
	viper   *viper.Viper
	envFile string
}

// NewLoader creates a loader. configFile may be empty to search for
// plagcheck.yaml in the working and user config directories.
func NewLoader(configFile string) *Loader {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("plagcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "plagcheck"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l := &Loader{viper: v, envFile: ".env"}
	l.setDefaults()
	return l
}

// Viper exposes the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// WithEnvFile sets the .env file to read before environment lookup.
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

func (l *Loader) setDefaults() {
	policy := cache.DefaultPolicy()

	l.viper.SetDefault("api.base_url", "http://localhost:8000/api")
	l.viper.SetDefault("api.timeout", 30*time.Second)
	l.viper.SetDefault("api.user_agent", "plagcheck-client/0.1.0")
	l.viper.SetDefault("api.retries", 1)
	l.viper.SetDefault("cache.backend", BackendMemory)
	l.viper.SetDefault("cache.redis_addr", "localhost:6379")
	l.viper.SetDefault("cache.redis_db", 0)
	l.viper.SetDefault("cache.default_ttl", policy.Default)
	l.viper.SetDefault("cache.ttl", ttlRules(policy))
	l.viper.SetDefault("session.path", defaultSessionPath())
	l.viper.SetDefault("log.level", "info")
	l.viper.SetDefault("log.pretty", false)
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		// A missing .env file is normal
		_ = godotenv.Load(l.envFile)
	}

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the client cannot use.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api.base_url must be an http(s) URL (got %q)", ErrInvalid, c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive (got %s)", ErrInvalid, c.API.Timeout)
	}
	if c.API.Retries < 1 {
		return fmt.Errorf("%w: api.retries must be >= 1 (got %d)", ErrInvalid, c.API.Retries)
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: cache.backend must be %q or %q (got %q)", ErrInvalid, BackendMemory, BackendRedis, c.Cache.Backend)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("%w: cache.default_ttl must be positive (got %s)", ErrInvalid, c.Cache.DefaultTTL)
	}
	seen := make(map[string]bool, len(c.Cache.TTL))
	for _, rule := range c.Cache.TTL {
		if !strings.HasPrefix(rule.Prefix, "/") {
			return fmt.Errorf("%w: cache.ttl prefix %q must start with /", ErrInvalid, rule.Prefix)
		}
		if rule.TTL <= 0 {
			return fmt.Errorf("%w: cache.ttl for %q must be positive (got %s)", ErrInvalid, rule.Prefix, rule.TTL)
		}
		if seen[rule.Prefix] {
			return fmt.Errorf("%w: cache.ttl prefix %q listed twice", ErrInvalid, rule.Prefix)
		}
		seen[rule.Prefix] = true
	}
	return nil
}

// ttlRules lists the per-prefix TTLs of policy, sorted by prefix.
func ttlRules(policy cache.Policy) []TTLRule {
	rules := make([]TTLRule, 0, len(policy.PerPrefix))
	for prefix, ttl := range policy.PerPrefix {
		rules = append(rules, TTLRule{Prefix: prefix, TTL: ttl})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Prefix < rules[j].Prefix })
	return rules
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "plagcheck-session.db"
	}
	return filepath.Join(dir, "plagcheck", "session.db")
}
