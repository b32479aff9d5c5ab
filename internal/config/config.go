// Package config loads runtime configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds every knob the storefront server reads at startup.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr        string        `envconfig:"GRPC_ADDR" default:":50051"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	StripeKey     string        `envconfig:"STRIPE_KEY"`
	StripeBaseURL string        `envconfig:"STRIPE_BASE_URL" default:"https://api.stripe.com"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`

	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`

	CatalogTTL      time.Duration `envconfig:"CATALOG_TTL" default:"10m"`
	CatalogPageSize int           `envconfig:"CATALOG_PAGE_SIZE" default:"100"`
	PriceFanOut     int           `envconfig:"PRICE_FAN_OUT" default:"8"`

	SiteURL             string   `envconfig:"SITE_URL" default:"http://localhost:4321"`
	AllowedCountries    []string `envconfig:"ALLOWED_COUNTRIES" default:"US"`
	AutomaticTax        bool     `envconfig:"AUTOMATIC_TAX" default:"true"`
	AllowPromotionCodes bool     `envconfig:"ALLOW_PROMOTION_CODES" default:"true"`

	// RedisAddr enables checkout idempotency when set.
	RedisAddr string `envconfig:"REDIS_ADDR"`
}

// ErrMissingStripeKey is returned by Validate when no provider key is set.
var ErrMissingStripeKey = errors.New("STRIPE_KEY is not set")

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return cfg, nil
}

// Validate checks settings that are required for serving traffic.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StripeKey) == "" {
		return ErrMissingStripeKey
	}
	if c.CatalogTTL <= 0 {
		return errors.Errorf("CATALOG_TTL must be positive, got %s", c.CatalogTTL)
	}
	if c.CatalogPageSize < 1 || c.CatalogPageSize > 100 {
		return errors.Errorf("CATALOG_PAGE_SIZE must be between 1 and 100, got %d", c.CatalogPageSize)
	}
	return nil
}
