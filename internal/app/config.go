package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (LOJA_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (LOJA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	Redis        RedisConfig
	Auth         AuthConfig
	Checkout     CheckoutConfig
	Events       EventsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig locates the cart store.
type RedisConfig struct {
	URL     string        `default:"redis://localhost:6379/0" usage:"Redis URL (LOJA_REDIS_URL or REDIS_URL)"`
	CartTTL time.Duration `default:"72h" usage:"Idle lifetime of a cart" flag:"cart-ttl"`
}

// AuthConfig holds the bearer token settings.
type AuthConfig struct {
	JWTSecret string `usage:"HMAC secret for HS256 tokens (LOJA_AUTH_JWTSECRET)" flag:"jwt-secret"`
	Issuer    string `default:"loja-api" usage:"Expected token issuer"`
}

// CheckoutConfig holds order pricing rules.
type CheckoutConfig struct {
	ShippingFee         string `default:"15.00" usage:"Flat shipping fee added to every order" flag:"shipping-fee"`
	RejectInvalidCoupon bool   `default:"false" usage:"Fail checkout on an invalid coupon instead of ignoring it" flag:"reject-invalid-coupon"`
}

// EventsConfig controls the outbox relay. An empty broker list disables
// publication; events stay in the outbox.
type EventsConfig struct {
	Brokers         []string      `usage:"Kafka brokers for order events"`
	Topic           string        `default:"loja.orders" usage:"Kafka topic for order events"`
	PollInterval    time.Duration `default:"1s" usage:"Outbox poll interval" flag:"events-poll-interval"`
	BatchSize       int           `default:"100" usage:"Outbox rows published per poll" flag:"events-batch-size"`
	BreakerFailures uint32        `default:"5" usage:"Consecutive publish failures that open the breaker"`
	BreakerCooldown time.Duration `default:"30s" usage:"Open breaker duration before a trial publish"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "LOJA",
		Files:     []string{"config.yaml", "/etc/loja/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set LOJA_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set LOJA_AUTH_JWTSECRET")
	}
	fee, err := c.ShippingFee()
	if err != nil {
		return err
	}
	if fee.IsNegative() {
		return errors.Errorf("shipping fee must not be negative, got %s", c.Checkout.ShippingFee)
	}
	if c.Redis.CartTTL <= 0 {
		return errors.New("cart TTL must be positive")
	}
	if len(c.Events.Brokers) > 0 && c.Events.BatchSize <= 0 {
		return errors.New("events batch size must be positive")
	}
	if len(c.Events.Brokers) > 0 && c.Events.PollInterval <= 0 {
		return errors.Errorf("events poll interval must be positive, got %s", c.Events.PollInterval)
	}
	return nil
}

// ShippingFee parses Checkout.ShippingFee.
func (c *Config) ShippingFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Checkout.ShippingFee)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse shipping fee %q", c.Checkout.ShippingFee)
	}
	return fee, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's LOJA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("LOJA_REDIS_URL") == "" {
		c.Redis.URL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
