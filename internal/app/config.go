package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (CHECKOUT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Promo        PromoConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the rates applied to the taxable amount. Rates are
// decimal strings so no float rounding enters the money path.
type PricingConfig struct {
	TaxRate         string `default:"0.08"  usage:"Tax rate as a fraction" flag:"tax-rate"`
	PlatformFeeRate string `default:"0.029" usage:"Platform fee rate as a fraction" flag:"platform-fee-rate"`
	CommissionRate  string `default:"0.05"  usage:"Seller commission preview rate as a fraction" flag:"commission-rate"`
}

// Rates parses the configured rates.
func (c PricingConfig) Rates() (pricing.Rates, error) {
	return pricing.ParseRates(c.TaxRate, c.PlatformFeeRate, c.CommissionRate)
}

// PromoConfig sizes the promo code bloom filter.
type PromoConfig struct {
	BloomCapacity  uint          `default:"100000" usage:"Expected number of promo codes" flag:"promo-bloom-capacity"`
	BloomFPR       float64       `default:"0.001"  usage:"Bloom filter false positive rate" flag:"promo-bloom-fpr"`
	ReloadInterval time.Duration `default:"5m"     usage:"How often the promo code filter is rebuilt" flag:"promo-reload-interval"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "CHECKOUT",
		Args:             args,
		AllowUnknownEnvs: true,
		Files:            []string{"config.yaml", "/etc/checkout/config.yaml"},
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

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Pricing.Rates(); err != nil {
		return errors.Wrap(err, "pricing")
	}
	if c.Promo.BloomFPR <= 0 || c.Promo.BloomFPR >= 1 {
		return errors.Errorf("promo bloom FPR must be in (0, 1), got %v", c.Promo.BloomFPR)
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
