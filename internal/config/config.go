package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type InvoiceMode string

const (
	// InvoiceInline creates the provider invoice while handling order.created.
	InvoiceInline InvoiceMode = "inline"
	// InvoiceBatch persists payments without an invoice and lets the sweeper
	// issue them on its next pass.
	InvoiceBatch InvoiceMode = "batch"
)

type ProviderKind string

const (
	ProviderSim    ProviderKind = "sim"
	ProviderStripe ProviderKind = "stripe"
)

type StockBackend string

const (
	StockMemory StockBackend = "memory"
	StockRedis  StockBackend = "redis"
)

type Config struct {
	ServiceName string
	Env         string
	Addr        string

	InvoiceMode InvoiceMode
	InvoiceTTL  time.Duration

	Provider            ProviderKind
	StripeAPIKey        string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	StockBackend StockBackend
	RedisAddr    string
	RedisDB      int

	SweepInterval time.Duration

	PublishRetryBase time.Duration
	PublishRetryMax  int
}

// Load reads .env when present, then the environment, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getenv("SERVICE_NAME", "orderflow"),
		Env:         getenv("ENV", "dev"),
		Addr:        getenv("ADDR", ":8080"),

		InvoiceMode: InvoiceMode(getenv("INVOICE_MODE", string(InvoiceInline))),
		InvoiceTTL:  getduration("INVOICE_TTL", 30*time.Minute),

		Provider:            ProviderKind(getenv("PAYMENT_PROVIDER", string(ProviderSim))),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeSuccessURL:    getenv("STRIPE_SUCCESS_URL", "https://example.com/checkout/success"),
		StripeCancelURL:     getenv("STRIPE_CANCEL_URL", "https://example.com/checkout/cancel"),

		StockBackend: StockBackend(getenv("STOCK_BACKEND", string(StockMemory))),
		RedisAddr:    getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getint("REDIS_DB", 0),

		SweepInterval: getduration("PAYMENT_SWEEP_INTERVAL", 15*time.Second),

		PublishRetryBase: getduration("PUBLISH_RETRY_BASE", 50*time.Millisecond),
		PublishRetryMax:  getint("PUBLISH_RETRY_MAX", 5),
	}

	switch cfg.InvoiceMode {
	case InvoiceInline, InvoiceBatch:
	default:
		return nil, fmt.Errorf("config: unknown INVOICE_MODE %q", cfg.InvoiceMode)
	}
	switch cfg.Provider {
	case ProviderSim, ProviderStripe:
	default:
		return nil, fmt.Errorf("config: unknown PAYMENT_PROVIDER %q", cfg.Provider)
	}
	if cfg.Provider == ProviderStripe && cfg.StripeAPIKey == "" {
		return nil, fmt.Errorf("config: STRIPE_API_KEY is required with the stripe provider")
	}
	switch cfg.StockBackend {
	case StockMemory, StockRedis:
	default:
		return nil, fmt.Errorf("config: unknown STOCK_BACKEND %q", cfg.StockBackend)
	}
	if cfg.PublishRetryMax < 1 {
		return nil, fmt.Errorf("config: PUBLISH_RETRY_MAX must be at least 1")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
