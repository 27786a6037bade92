package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ModeReal  = "REAL"
	ModePaper = "PAPER"

	realBaseURL  = "https://openapi.koreainvestment.com:9443"
	paperBaseURL = "https://openapivts.koreainvestment.com:29443"
	realWSURL    = "ws://ops.koreainvestment.com:21000"
	paperWSURL   = "ws://ops.koreainvestment.com:31000"
)

type Config struct {
	Mode string `yaml:"mode"`
	KIS  struct {
		BaseURL               string `yaml:"base_url"`
		WSURL                 string `yaml:"ws_url"`
		AppKey                string `yaml:"app_key"`
		AppSecret             string `yaml:"app_secret"`
		CustType              string `yaml:"cust_type"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		RateLimitPerSecond    int    `yaml:"rate_limit_per_second"`
	} `yaml:"kis"`
	Token struct {
		SafetyMarginMinutes  int    `yaml:"safety_margin_minutes"`
		DefaultValidityHours int    `yaml:"default_validity_hours"`
		Store                string `yaml:"store"`
		FilePath             string `yaml:"file_path"`
		RedisAddr            string `yaml:"redis_addr"`
		RedisPrefix          string `yaml:"redis_prefix"`
		SQLitePath           string `yaml:"sqlite_path"`
	} `yaml:"token"`
	Approval struct {
		ValidityHours int `yaml:"validity_hours"`
	} `yaml:"approval"`
	Feed struct {
		MaxReconnectAttempts    int      `yaml:"max_reconnect_attempts"`
		ReconnectDelayMs        int      `yaml:"reconnect_delay_ms"`
		HandshakeTimeoutSeconds int      `yaml:"handshake_timeout_seconds"`
		Symbols                 []string `yaml:"symbols"`
	} `yaml:"feed"`
	Retry struct {
		MaxAttempts int `yaml:"max_attempts"`
		DelayMs     int `yaml:"delay_ms"`
	} `yaml:"retry"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

func (c *Config) Validate() error {
	if c.Mode != ModeReal && c.Mode != ModePaper {
		return fmt.Errorf("invalid mode '%s': must be 'REAL' or 'PAPER'", c.Mode)
	}
	if c.KIS.BaseURL == "" {
		return errors.New("kis.base_url cannot be empty")
	}
	if c.KIS.WSURL == "" {
		return errors.New("kis.ws_url cannot be empty")
	}
	switch c.Token.Store {
	case "none", "file", "redis", "sqlite":
	default:
		return fmt.Errorf("token.store must be 'none', 'file', 'redis' or 'sqlite', got '%s'", c.Token.Store)
	}
	if c.Token.SafetyMarginMinutes < 0 {
		return fmt.Errorf("token.safety_margin_minutes must be >= 0, got %d", c.Token.SafetyMarginMinutes)
	}
	if c.Token.DefaultValidityHours*60 <= c.Token.SafetyMarginMinutes {
		return fmt.Errorf("token.default_validity_hours (%d) must exceed the safety margin (%d min)",
			c.Token.DefaultValidityHours, c.Token.SafetyMarginMinutes)
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		return fmt.Errorf("feed.max_reconnect_attempts must be >= 0, got %d", c.Feed.MaxReconnectAttempts)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// LoadConfig reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig is LoadConfig without the file read.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyEnvOverrides(&c)
	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	c.Mode = strings.ToUpper(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeReal
	}

	if c.KIS.BaseURL == "" {
		c.KIS.BaseURL = realBaseURL
		if c.Mode == ModePaper {
			c.KIS.BaseURL = paperBaseURL
		}
	}
	if c.KIS.WSURL == "" {
		c.KIS.WSURL = realWSURL
		if c.Mode == ModePaper {
			c.KIS.WSURL = paperWSURL
		}
	}
	if c.KIS.CustType == "" {
		c.KIS.CustType = "P"
	}
	if c.KIS.RequestTimeoutSeconds == 0 {
		c.KIS.RequestTimeoutSeconds = 10
	}
	if c.KIS.RateLimitPerSecond == 0 {
		c.KIS.RateLimitPerSecond = 18
	}

	if c.Token.SafetyMarginMinutes == 0 {
		c.Token.SafetyMarginMinutes = 5
	}
	if c.Token.DefaultValidityHours == 0 {
		c.Token.DefaultValidityHours = 24
	}
	if c.Token.Store == "" {
		c.Token.Store = "none"
	}
	if c.Token.FilePath == "" {
		c.Token.FilePath = ".kis_token.json"
	}
	if c.Token.RedisAddr == "" {
		c.Token.RedisAddr = "localhost:6379"
	}
	if c.Token.RedisPrefix == "" {
		c.Token.RedisPrefix = "kis:"
	}
	if c.Token.SQLitePath == "" {
		c.Token.SQLitePath = "kis_token.db"
	}

	if c.Approval.ValidityHours == 0 {
		c.Approval.ValidityHours = 24
	}

	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = 5
	}
	if c.Feed.ReconnectDelayMs == 0 {
		c.Feed.ReconnectDelayMs = 3000
	}
	if c.Feed.HandshakeTimeoutSeconds == 0 {
		c.Feed.HandshakeTimeoutSeconds = 10
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.DelayMs == 0 {
		c.Retry.DelayMs = 1000
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "ticks"
	}
}

// applyEnvOverrides lets secrets and deployment-specific endpoints come from
// the environment (or a .env file loaded by the binary) instead of the YAML.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("KIS_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		c.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		c.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_BASE_URL"); v != "" {
		c.KIS.BaseURL = v
	}
	if v := os.Getenv("KIS_WS_URL"); v != "" {
		c.KIS.WSURL = v
	}
	if v := os.Getenv("TOKEN_STORE"); v != "" {
		c.Token.Store = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Token.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("FEED_SYMBOLS"); v != "" {
		c.Feed.Symbols = splitList(v)
	}
	if v := os.Getenv("FEED_MAX_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Feed.MaxReconnectAttempts = n
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) SafetyMargin() time.Duration {
	return time.Duration(c.Token.SafetyMarginMinutes) * time.Minute
}

func (c *Config) DefaultTokenValidity() time.Duration {
	return time.Duration(c.Token.DefaultValidityHours) * time.Hour
}

func (c *Config) ApprovalValidity() time.Duration {
	return time.Duration(c.Approval.ValidityHours) * time.Hour
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.KIS.RequestTimeoutSeconds) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Feed.ReconnectDelayMs) * time.Millisecond
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Feed.HandshakeTimeoutSeconds) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelayMs) * time.Millisecond
}
