package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultOrigins mirrors the deployment the service was first built for.
// The trailing-slash localhost entry is listed on its own because origins
// are matched exactly; it shares the LOCALHOST_* credentials.
const DefaultOrigins = "LOCALHOST=http://localhost:3000," +
	"LOCALHOST=http://localhost:3000/," +
	"LCCOPPER=https://www.lccopper.com," +
	"TEMPLATE=https://template-nextjs-flowbite-tailwind.vercel.app"

// DefaultCaptchaQuestions is used when CAPTCHA_QUESTIONS is not set.
const DefaultCaptchaQuestions = "Quanto é 2 + 3?|5;Quanto é 10 - 4?|6;Qual é a cor do céu em um dia claro?|azul"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Origins    []OriginConfig   `yaml:"origins"`
	Captcha    CaptchaConfig    `yaml:"captcha"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Relay      RelayConfig      `yaml:"relay"`
	Redis      RedisConfig      `yaml:"redis"`
	Validation ValidationConfig `yaml:"validation"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	// TrustProxyHops is the number of reverse proxies in front of the
	// service whose X-Forwarded-For entries are trusted.
	TrustProxyHops int `yaml:"trust_proxy_hops"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// OriginConfig binds one allowed origin to its outbound credentials.
// Name is the prefix of the environment variables holding the credentials
// (<NAME>_USER_EMAIL, <NAME>_USER_PASSWORD, <NAME>_TO_EMAIL).
type OriginConfig struct {
	Name      string `yaml:"name"`
	Origin    string `yaml:"origin"`
	Sender    string `yaml:"sender"`
	Secret    string `yaml:"secret"`
	Recipient string `yaml:"recipient"`
}

// CaptchaConfig holds the question/answer challenge configuration
type CaptchaConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Questions string `yaml:"questions"`
}

// RateLimitConfig holds the admission limits for the guarded endpoints
type RateLimitConfig struct {
	SendMax       int           `yaml:"send_max"`
	SendWindow    time.Duration `yaml:"send_window"`
	CaptchaMax    int           `yaml:"captcha_max"`
	CaptchaWindow time.Duration `yaml:"captcha_window"`
}

// RelayConfig selects and configures the outbound mail relay
type RelayConfig struct {
	Provider    string        `yaml:"provider"`
	SMTPHost    string        `yaml:"smtp_host"`
	SMTPPort    int           `yaml:"smtp_port"`
	SOCKS5Proxy string        `yaml:"socks5_proxy"`
	Timeout     time.Duration `yaml:"timeout"`
	SESRegion   string        `yaml:"ses_region"`
}

// RedisConfig holds the optional Redis connection used for shared rate limit counters
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ValidationConfig holds deployment-specific form rules
type ValidationConfig struct {
	PhoneRequired bool `yaml:"phone_required"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads a YAML file as the base layer, then overrides it with
// environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := defaults()
	// Origins from the file replace the default set entirely.
	cfg.Origins = nil

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisEnabled reports whether rate limit counters are shared through Redis.
func (c *Config) RedisEnabled() bool {
	return c.Redis.URL != ""
}

func defaults() *Config {
	origins, _ := parseOrigins(DefaultOrigins)
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "3001",
			TrustProxyHops: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Origins: origins,
		Captcha: CaptchaConfig{
			Enabled:   true,
			Questions: DefaultCaptchaQuestions,
		},
		RateLimit: RateLimitConfig{
			SendMax:       2,
			SendWindow:    time.Hour,
			CaptchaMax:    5,
			CaptchaWindow: 15 * time.Minute,
		},
		Relay: RelayConfig{
			Provider: "smtp",
			SMTPHost: "smtp.umbler.com",
			SMTPPort: 587,
			Timeout:  30 * time.Second,
		},
	}
}

func (c *Config) applyEnv() error {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.TrustProxyHops = getIntEnv("TRUST_PROXY_HOPS", c.Server.TrustProxyHops)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = getEnv("LOG_OUTPUT", c.Logging.Output)
	c.Logging.AddSource = getBoolEnv("LOG_ADD_SOURCE", c.Logging.AddSource)

	if v := os.Getenv("ORIGINS"); v != "" {
		origins, err := parseOrigins(v)
		if err != nil {
			return err
		}
		c.Origins = origins
	}
	for i := range c.Origins {
		o := &c.Origins[i]
		prefix := strings.ToUpper(o.Name)
		o.Sender = getEnv(prefix+"_USER_EMAIL", o.Sender)
		o.Secret = getEnv(prefix+"_USER_PASSWORD", o.Secret)
		o.Recipient = getEnv(prefix+"_TO_EMAIL", o.Recipient)
	}

	c.Captcha.Enabled = getBoolEnv("CAPTCHA_ENABLED", c.Captcha.Enabled)
	c.Captcha.Questions = getEnv("CAPTCHA_QUESTIONS", c.Captcha.Questions)

	c.RateLimit.SendMax = getIntEnv("RATE_LIMIT_SEND_MAX", c.RateLimit.SendMax)
	c.RateLimit.SendWindow = getDurationEnv("RATE_LIMIT_SEND_WINDOW", c.RateLimit.SendWindow)
	c.RateLimit.CaptchaMax = getIntEnv("RATE_LIMIT_CAPTCHA_MAX", c.RateLimit.CaptchaMax)
	c.RateLimit.CaptchaWindow = getDurationEnv("RATE_LIMIT_CAPTCHA_WINDOW", c.RateLimit.CaptchaWindow)

	c.Relay.Provider = strings.ToLower(getEnv("RELAY_PROVIDER", c.Relay.Provider))
	c.Relay.SMTPHost = getEnv("SMTP_HOST", c.Relay.SMTPHost)
	c.Relay.SMTPPort = getIntEnv("SMTP_PORT", c.Relay.SMTPPort)
	c.Relay.SOCKS5Proxy = getEnv("SMTP_SOCKS5_PROXY", c.Relay.SOCKS5Proxy)
	c.Relay.Timeout = getDurationEnv("RELAY_TIMEOUT", c.Relay.Timeout)
	c.Relay.SESRegion = getEnv("SES_REGION", c.Relay.SESRegion)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)

	c.Validation.PhoneRequired = getBoolEnv("PHONE_REQUIRED", c.Validation.PhoneRequired)
	return nil
}

// parseOrigins parses "NAME=origin,NAME=origin" into origin entries.
func parseOrigins(raw string) ([]OriginConfig, error) {
	var origins []OriginConfig
	for i, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, origin, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		origin = strings.TrimSpace(origin)
		if !ok || name == "" || origin == "" {
			return nil, fmt.Errorf("invalid ORIGINS entry %d: %q (expected NAME=origin)", i, pair)
		}
		origins = append(origins, OriginConfig{Name: name, Origin: origin})
	}
	return origins, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getDurationEnv returns duration from environment variable or default.
// Accepts Go duration strings ("90s", "1h") or a bare number of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
