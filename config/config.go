// Package config loads bygga configuration from a YAML file and BYGGA_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// EnvProvider abstracts environment variable access for testing
type EnvProvider interface {
	Getenv(key string) string
	UserHomeDir() (string, error)
}

// DefaultEnvProvider implements EnvProvider using real OS functions
type DefaultEnvProvider struct{}

func (p *DefaultEnvProvider) Getenv(key string) string {
	return os.Getenv(key)
}

func (p *DefaultEnvProvider) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// Config holds configuration for all services
type Config struct {
	// Core paths
	DataDir string

	// Database
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// Logging
	LogLevel     string
	LogFormat    string
	ColorEnabled bool

	// HTTP server
	HTTPHost string
	HTTPPort int

	// Public base URL used for payment callbacks and return pages
	AppURL string

	// Admin API key. Clients send its md5 hex digest in the x-api-key header.
	APIKey string

	// Fernet key for credentials stored at rest
	EncryptionKey string

	// GitHub
	GitHubAPIURL  string
	GitHubTimeout time.Duration

	// Git
	GitTimeout time.Duration

	// Payment gateway
	PaymentAPIURL   string
	PaymentTimeout  time.Duration
	PaymentCurrency string
	PaymentLifetime int

	// Dispatch correlation
	PollInterval time.Duration
	PollAttempts int

	// Rate limiting of public endpoints
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	// Environment provider for testing
	env EnvProvider
}

// yamlConfig mirrors the on-disk configuration file
type yamlConfig struct {
	DataDir       string `yaml:"data_dir"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ColorEnabled  *bool  `yaml:"color_enabled"`
	AppURL        string `yaml:"app_url"`
	APIKey        string `yaml:"api_key"`
	EncryptionKey string `yaml:"encryption_key"`
	HTTP          struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"http"`
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	GitHub struct {
		APIURL  string `yaml:"api_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"github"`
	Git struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"git"`
	Payment struct {
		APIURL   string `yaml:"api_url"`
		Timeout  string `yaml:"timeout"`
		Currency string `yaml:"currency"`
		Lifetime int    `yaml:"lifetime"`
	} `yaml:"payment"`
	Dispatch struct {
		PollInterval string `yaml:"poll_interval"`
		PollAttempts int    `yaml:"poll_attempts"`
	} `yaml:"dispatch"`
	RateLimit struct {
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"rate_limit"`
}

// GetDefaultDataDir returns the default bygga data directory following XDG Base Directory specification
func GetDefaultDataDir() string {
	return getDefaultDataDirWithEnv(&DefaultEnvProvider{})
}

func getDefaultDataDirWithEnv(env EnvProvider) string {
	if xdgDataHome := env.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "bygga")
	}

	homeDir, _ := env.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "bygga")
}

// NewConfig creates a configuration from an optional YAML file and the process environment
func NewConfig(configPath string) (*Config, error) {
	return NewConfigWithEnv(configPath, &DefaultEnvProvider{})
}

// NewConfigWithEnv creates a configuration with a custom environment provider (for testing).
// An empty configPath skips the YAML file.
func NewConfigWithEnv(configPath string, env EnvProvider) (*Config, error) {
	c := &Config{env: env}

	c.setDefaults()

	if configPath != "" {
		if err := c.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	c.loadFromEnv()
	c.derivePaths()

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

// setDefaults sets sensible default values
func (c *Config) setDefaults() {
	c.DataDir = getDefaultDataDirWithEnv(c.env)
	c.DatabaseDriver = DriverSQLite
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.ColorEnabled = true
	c.HTTPHost = "127.0.0.1"
	c.HTTPPort = 8080
	c.AppURL = "http://localhost:8080"
	c.GitHubAPIURL = "https://api.github.com/"
	c.GitHubTimeout = 30 * time.Second
	c.GitTimeout = 30 * time.Second
	c.PaymentAPIURL = "https://api.cryptomus.com/v1"
	c.PaymentTimeout = 30 * time.Second
	c.PaymentCurrency = "USD"
	c.PaymentLifetime = 3600
	c.PollInterval = 2 * time.Second
	c.PollAttempts = 5
	c.RateLimitRequests = 60
	c.RateLimitWindow = time.Minute
	// API key and encryption key have no defaults, they must be provided explicitly
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.DataDir, y.DataDir)
	setString(&c.LogLevel, y.LogLevel)
	setString(&c.LogFormat, y.LogFormat)
	if y.ColorEnabled != nil {
		c.ColorEnabled = *y.ColorEnabled
	}
	setString(&c.AppURL, y.AppURL)
	setString(&c.APIKey, y.APIKey)
	setString(&c.EncryptionKey, y.EncryptionKey)
	setString(&c.HTTPHost, y.HTTP.Host)
	setInt(&c.HTTPPort, y.HTTP.Port)
	setString(&c.DatabaseDriver, y.Database.Driver)
	setString(&c.DatabasePath, y.Database.Path)
	setString(&c.DatabaseDSN, y.Database.DSN)
	setString(&c.GitHubAPIURL, y.GitHub.APIURL)
	setString(&c.PaymentAPIURL, y.Payment.APIURL)
	setString(&c.PaymentCurrency, y.Payment.Currency)
	setInt(&c.PaymentLifetime, y.Payment.Lifetime)
	setInt(&c.PollAttempts, y.Dispatch.PollAttempts)
	setInt(&c.RateLimitRequests, y.RateLimit.Requests)
	setString(&c.RedisAddr, y.RateLimit.Redis.Addr)
	setString(&c.RedisPassword, y.RateLimit.Redis.Password)
	setInt(&c.RedisDB, y.RateLimit.Redis.DB)

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"github.timeout", y.GitHub.Timeout, &c.GitHubTimeout},
		{"git.timeout", y.Git.Timeout, &c.GitTimeout},
		{"payment.timeout", y.Payment.Timeout, &c.PaymentTimeout},
		{"dispatch.poll_interval", y.Dispatch.PollInterval, &c.PollInterval},
		{"rate_limit.window", y.RateLimit.Window, &c.RateLimitWindow},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	c.envString("BYGGA_DATA_DIR", &c.DataDir)
	c.envString("BYGGA_LOG_LEVEL", &c.LogLevel)
	c.envString("BYGGA_LOG_FORMAT", &c.LogFormat)
	if v := c.env.Getenv("BYGGA_COLOR_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.ColorEnabled = enabled
		}
	}
	c.envString("BYGGA_HTTP_HOST", &c.HTTPHost)
	c.envInt("BYGGA_HTTP_PORT", &c.HTTPPort)
	c.envString("BYGGA_APP_URL", &c.AppURL)
	c.envString("BYGGA_API_KEY", &c.APIKey)
	c.envString("BYGGA_ENCRYPTION_KEY", &c.EncryptionKey)
	c.envString("BYGGA_DATABASE_DRIVER", &c.DatabaseDriver)
	c.envString("BYGGA_DATABASE_PATH", &c.DatabasePath)
	c.envString("BYGGA_DATABASE_DSN", &c.DatabaseDSN)
	c.envString("BYGGA_GITHUB_API_URL", &c.GitHubAPIURL)
	c.envDuration("BYGGA_GITHUB_TIMEOUT", &c.GitHubTimeout)
	c.envDuration("BYGGA_GIT_TIMEOUT", &c.GitTimeout)
	c.envString("BYGGA_PAYMENT_API_URL", &c.PaymentAPIURL)
	c.envDuration("BYGGA_PAYMENT_TIMEOUT", &c.PaymentTimeout)
	c.envString("BYGGA_PAYMENT_CURRENCY", &c.PaymentCurrency)
	c.envInt("BYGGA_PAYMENT_LIFETIME", &c.PaymentLifetime)
	c.envDuration("BYGGA_POLL_INTERVAL", &c.PollInterval)
	c.envInt("BYGGA_POLL_ATTEMPTS", &c.PollAttempts)
	c.envInt("BYGGA_RATE_LIMIT_REQUESTS", &c.RateLimitRequests)
	c.envDuration("BYGGA_RATE_LIMIT_WINDOW", &c.RateLimitWindow)
	c.envString("BYGGA_REDIS_ADDR", &c.RedisAddr)
	c.envString("BYGGA_REDIS_PASSWORD", &c.RedisPassword)
	c.envInt("BYGGA_REDIS_DB", &c.RedisDB)
}

func (c *Config) envString(key string, dst *string) {
	if v := c.env.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) envInt(key string, dst *int) {
	if v := c.env.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) envDuration(key string, dst *time.Duration) {
	if v := c.env.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// derivePaths calculates dependent paths from the base DataDir
func (c *Config) derivePaths() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "bygga.db")
	}
}

// validate ensures configuration values are valid
func (c *Config) validate() error {
	validLogLevels := []string{"debug", "info", "warning", "error", "silent"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warning, error or silent)", c.LogLevel)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d (must be 1-65535)", c.HTTPPort)
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverMySQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database dsn is required for the %s driver", DriverMySQL)
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be %s or %s)", c.DatabaseDriver, DriverSQLite, DriverMySQL)
	}

	if c.GitHubTimeout <= 0 {
		return fmt.Errorf("github timeout must be positive, got: %v", c.GitHubTimeout)
	}
	if c.GitTimeout <= 0 {
		return fmt.Errorf("git timeout must be positive, got: %v", c.GitTimeout)
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("payment timeout must be positive, got: %v", c.PaymentTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}
	if c.PollAttempts < 1 {
		return fmt.Errorf("poll attempts must be at least 1, got: %d", c.PollAttempts)
	}
	if c.RateLimitRequests < 0 {
		return fmt.Errorf("rate limit requests cannot be negative, got: %d", c.RateLimitRequests)
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive, got: %v", c.RateLimitWindow)
	}

	if c.APIKey == "" {
		return fmt.Errorf("api key is required - set BYGGA_API_KEY or api_key in the config file")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required - set BYGGA_ENCRYPTION_KEY or encryption_key in the config file")
	}

	return nil
}

// ListenAddress returns the host:port pair the HTTP server binds to
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
