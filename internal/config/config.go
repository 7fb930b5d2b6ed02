package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Payment  PaymentConfig  `yaml:"payment"`
	Auth     AuthConfig     `yaml:"auth"`
	Events   EventsConfig   `yaml:"events"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type StorageConfig struct {
	Driver            string   `yaml:"driver"`
	LocalDir          string   `yaml:"local_dir"`
	AcceptedTypes     []string `yaml:"accepted_types"`
	PinningBaseURL    string   `yaml:"pinning_base_url"`
	PinningGatewayURL string   `yaml:"pinning_gateway_url"`
	PinningAPIKey     string   `yaml:"pinning_api_key"`
	PinningAPISecret  string   `yaml:"pinning_api_secret"`
}

type PaymentConfig struct {
	WebhookSecret    string        `yaml:"webhook_secret"`
	SignatureHeader  string        `yaml:"signature_header"`
	StubDelay        time.Duration `yaml:"stub_delay"`
	Currency         string        `yaml:"currency"`
	CheckoutButtonID string        `yaml:"checkout_button_id"`
}

type AuthConfig struct {
	TokenDuration time.Duration `yaml:"token_duration"`
	CookieName    string        `yaml:"cookie_name"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

type EventsConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

type WebhookEndpoint struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type WebhooksConfig struct {
	Endpoints   []WebhookEndpoint `yaml:"endpoints"`
	RetryCount  int               `yaml:"retry_count"`
	RetryDelay  time.Duration     `yaml:"retry_delay"`
	Timeout     time.Duration     `yaml:"timeout"`
	WorkerCount int               `yaml:"worker_count"`
	QueueSize   int               `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 25 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/printdesk.db",
		},
		Storage: StorageConfig{
			Driver:            "local",
			LocalDir:          "./data/documents",
			AcceptedTypes:     []string{".pdf", ".doc", ".docx"},
			PinningBaseURL:    "https://api.pinata.cloud",
			PinningGatewayURL: "https://gateway.pinata.cloud",
		},
		Payment: PaymentConfig{
			SignatureHeader: "X-Razorpay-Signature",
			Currency:        "INR",
		},
		Auth: AuthConfig{
			TokenDuration: 24 * time.Hour,
			CookieName:    "printdesk_auth",
		},
		Events: EventsConfig{
			Channel: "printdesk:jobs",
		},
		Webhooks: WebhooksConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 3,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configPath over the defaults and then applies PRINTDESK_*
// environment overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromEnv() (*Config, error) {
	cfg := defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PRINTDESK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PRINTDESK_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	strs := map[string]*string{
		"PRINTDESK_DB_DRIVER":          &cfg.Database.Driver,
		"PRINTDESK_DB_PATH":            &cfg.Database.Path,
		"PRINTDESK_DB_DSN":             &cfg.Database.DSN,
		"PRINTDESK_STORAGE_DRIVER":     &cfg.Storage.Driver,
		"PRINTDESK_STORAGE_DIR":        &cfg.Storage.LocalDir,
		"PRINTDESK_PINNING_API_KEY":    &cfg.Storage.PinningAPIKey,
		"PRINTDESK_PINNING_API_SECRET": &cfg.Storage.PinningAPISecret,
		"PRINTDESK_PAYMENT_SECRET":     &cfg.Payment.WebhookSecret,
		"PRINTDESK_REDIS_ADDR":         &cfg.Events.RedisAddr,
		"PRINTDESK_REDIS_PASSWORD":     &cfg.Events.RedisPassword,
		"PRINTDESK_LOG_LEVEL":          &cfg.Logging.Level,
		"PRINTDESK_LOG_FORMAT":         &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PRINTDESK_PAYMENT_STUB_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PRINTDESK_PAYMENT_STUB_DELAY: %w", err)
		}
		cfg.Payment.StubDelay = d
	}

	if v := os.Getenv("PRINTDESK_SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PRINTDESK_SECURE_COOKIES: %w", err)
		}
		cfg.Auth.SecureCookies = b
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid database driver: %s (valid: sqlite, postgres, memory)", c.Database.Driver)
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage local_dir is required for the local driver")
		}
	case "pinning":
		if c.Storage.PinningAPIKey == "" {
			return fmt.Errorf("storage pinning_api_key is required for the pinning driver")
		}
		if err := validateURL("storage pinning_base_url", c.Storage.PinningBaseURL); err != nil {
			return err
		}
		if err := validateURL("storage pinning_gateway_url", c.Storage.PinningGatewayURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (valid: local, pinning)", c.Storage.Driver)
	}

	for _, ext := range c.Storage.AcceptedTypes {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("accepted type %q must start with a dot", ext)
		}
	}

	if c.Payment.SignatureHeader == "" {
		return fmt.Errorf("payment signature header is required")
	}

	if c.Payment.StubDelay < 0 {
		return fmt.Errorf("payment stub delay must be non-negative")
	}

	if c.Payment.Currency == "" {
		return fmt.Errorf("payment currency is required")
	}

	if c.Auth.TokenDuration <= 0 {
		return fmt.Errorf("auth token duration must be positive")
	}

	if c.Auth.CookieName == "" {
		return fmt.Errorf("auth cookie name is required")
	}

	if c.Events.RedisAddr != "" && c.Events.Channel == "" {
		return fmt.Errorf("events channel is required when redis is configured")
	}

	for i, ep := range c.Webhooks.Endpoints {
		if ep.Name == "" {
			return fmt.Errorf("webhook endpoint %d: name is required", i)
		}
		if err := validateURL("webhook "+ep.Name+" url", ep.URL); err != nil {
			return err
		}
	}

	if c.Webhooks.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
	}

	if c.Webhooks.RetryDelay < 0 {
		return fmt.Errorf("webhook retry delay must be non-negative")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// ValidateServe adds the checks that only matter for a running server. With
// no webhook secret and no stub, every payment callback would be rejected
// and no job could ever be paid.
func (c *Config) ValidateServe() error {
	if c.Payment.WebhookSecret == "" && c.Payment.StubDelay == 0 {
		return fmt.Errorf("payment webhook_secret is required unless stub_delay is set")
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", field, raw)
	}
	return nil
}
