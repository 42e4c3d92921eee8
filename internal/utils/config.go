package utils

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache policy names usable in the endpoints section.
const (
	CachePolicyNoCache         = "no-cache"
	CachePolicyRevalidateDaily = "revalidate-daily"
	CachePolicySWR             = "swr"
	CachePolicyImmutable       = "immutable"
)

// CachePolicies maps a policy name to the Cache-Control header it produces.
var CachePolicies = map[string]string{
	CachePolicyNoCache:         "no-cache, no-store, must-revalidate",
	CachePolicyRevalidateDaily: "public, max-age=0, s-maxage=86400, stale-while-revalidate",
	CachePolicySWR:             "s-maxage=1, stale-while-revalidate",
	CachePolicyImmutable:       "public, max-age=31536000, immutable",
}

// CacheControl returns the header value for a policy name.
func CacheControl(policy string) (string, bool) {
	v, ok := CachePolicies[policy]
	return v, ok
}

// PostgresConfig describes where API tokens are stored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a token database has been configured at all.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// ChromeConfig controls how the headless browser is located and driven.
type ChromeConfig struct {
	// ExecPath pins the browser binary. Empty lets chromedp search PATH.
	ExecPath string `yaml:"exec_path"`
	// Candidates are probed in order when ExecPath is empty.
	Candidates   []string `yaml:"candidates"`
	Serverless   bool     `yaml:"serverless"`
	NoSandbox    bool     `yaml:"no_sandbox"`
	Width        int      `yaml:"width"`
	Height       int      `yaml:"height"`
	WaitForFonts bool     `yaml:"wait_for_fonts"`
	TimeoutSecs  int      `yaml:"timeout_secs"`
	PoolSize     int      `yaml:"pool_size"`
	UserDataDir  string   `yaml:"user_data_dir"`
}

// TemplateConfig points at the HTML document used for every image.
type TemplateConfig struct {
	Path         string `yaml:"path"`
	EscapeValues bool   `yaml:"escape_values"`
	TimeZone     string `yaml:"time_zone"`
}

// EndpointsConfig assigns a cache policy to each route variant.
type EndpointsConfig struct {
	Index     string `yaml:"index"`
	OG        string `yaml:"og"`
	PathOG    string `yaml:"path_og"`
	Immutable string `yaml:"immutable"`
}

// Config holds the full service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Template  TemplateConfig  `yaml:"template"`
	Chrome    ChromeConfig    `yaml:"chrome"`
	Endpoints EndpointsConfig `yaml:"endpoints"`

	Cache struct {
		RedisHost         string        `yaml:"redis_host"`
		RateLimitDB       int           `yaml:"redis_rate_db"`
		ImageCacheDB      int           `yaml:"redis_image_db"`
		ImageCacheEnabled bool          `yaml:"image_cache_enabled"`
		ImageCacheTTL     time.Duration `yaml:"image_cache_ttl"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres        PostgresConfig `yaml:"postgres"`
		RefreshInterval time.Duration  `yaml:"refresh_interval"`
	} `yaml:"auth"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// AppConfig is the configuration loaded by LoadConfig.
var AppConfig Config

// DefaultConfig returns a configuration usable without any YAML file.
func DefaultConfig() Config {
	cfg := baseConfig()
	applyDefaults(&cfg)
	return cfg
}

// baseConfig seeds booleans that default to true so YAML can still turn
// them off.
func baseConfig() Config {
	var cfg Config
	cfg.Metrics.Enabled = true
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":3000"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Template.Path == "" {
		cfg.Template.Path = "templates/og.html"
	}
	if cfg.Template.TimeZone == "" {
		cfg.Template.TimeZone = "UTC"
	}
	if cfg.Chrome.Width == 0 {
		cfg.Chrome.Width = 1280
	}
	if cfg.Chrome.Height == 0 {
		cfg.Chrome.Height = 680
	}
	if cfg.Chrome.TimeoutSecs == 0 {
		cfg.Chrome.TimeoutSecs = 15
	}
	if cfg.Endpoints.Index == "" {
		cfg.Endpoints.Index = CachePolicyNoCache
	}
	if cfg.Endpoints.OG == "" {
		cfg.Endpoints.OG = CachePolicyRevalidateDaily
	}
	if cfg.Endpoints.PathOG == "" {
		cfg.Endpoints.PathOG = CachePolicySWR
	}
	if cfg.Endpoints.Immutable == "" {
		cfg.Endpoints.Immutable = CachePolicyImmutable
	}
	if cfg.Cache.ImageCacheTTL == 0 {
		cfg.Cache.ImageCacheTTL = 24 * time.Hour
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Auth.RefreshInterval == 0 {
		cfg.Auth.RefreshInterval = time.Minute
	}
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	if cfg.Chrome.Width <= 0 || cfg.Chrome.Height <= 0 {
		return fmt.Errorf("chrome viewport must be positive, got %dx%d", cfg.Chrome.Width, cfg.Chrome.Height)
	}
	if cfg.Chrome.TimeoutSecs < 0 {
		return fmt.Errorf("chrome.timeout_secs must not be negative")
	}
	if cfg.Chrome.PoolSize < 0 {
		return fmt.Errorf("chrome.pool_size must not be negative")
	}
	if _, err := time.LoadLocation(cfg.Template.TimeZone); err != nil {
		return fmt.Errorf("template.time_zone: %w", err)
	}
	for name, policy := range map[string]string{
		"index":     cfg.Endpoints.Index,
		"og":        cfg.Endpoints.OG,
		"path_og":   cfg.Endpoints.PathOG,
		"immutable": cfg.Endpoints.Immutable,
	} {
		if _, ok := CacheControl(policy); !ok {
			return fmt.Errorf("endpoints.%s: unknown cache policy %q", name, policy)
		}
	}
	if cfg.RateLimiter.Interval < 0 || cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter values must not be negative")
	}
	if cfg.Cache.ImageCacheTTL < 0 {
		return fmt.Errorf("cache.image_cache_ttl must not be negative")
	}
	return nil
}

// LoadConfigFrom reads and validates the YAML file at path. It panics on
// invalid configuration since the service cannot start without it.
func LoadConfigFrom(path string) Config {
	cfg := baseConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			panic(fmt.Sprintf("read config %s: %v", path, err))
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("parse config %s: %v", path, err))
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config %s: %v", path, err))
	}
	return cfg
}

// ApplyEnv lets CHROME_BIN pick the browser when the file does not.
func (cfg *Config) ApplyEnv() {
	if cfg.Chrome.ExecPath == "" {
		cfg.Chrome.ExecPath = os.Getenv("CHROME_BIN")
	}
}

// LoadConfig loads the file named by CONFIG_PATH (default config.yaml) and
// stores it in AppConfig.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	AppConfig = LoadConfigFrom(path)
	return AppConfig
}

// GetConfig returns the configuration loaded last.
func GetConfig() Config {
	return AppConfig
}
