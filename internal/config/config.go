package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the podvault engine.
type Config struct {
	Addr           string   `env:"ADDR,default=:8080"`
	DBDSN          string   `env:"DB_DSN,required"`
	NATSURL        string   `env:"NATS_URL"`
	OTLPEndpoint   string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*"`

	ChecksumKey     string `env:"POD_CHECKSUM_KEY,required"`
	PlanCatalogPath string `env:"PLAN_CATALOG_PATH"`

	ProcessorBaseURL string `env:"PAYMENT_PROCESSOR_URL"`
	ProcessorToken   string `env:"PAYMENT_PROCESSOR_TOKEN"`
	WebhookSecret    string `env:"PAYMENT_WEBHOOK_SECRET"`

	LifecycleInterval     time.Duration `env:"LIFECYCLE_REFRESH_INTERVAL,default=15m"`
	LifecycleInitialDelay time.Duration `env:"LIFECYCLE_INITIAL_DELAY,default=45s"`
	DebitHourUTC          int           `env:"DEBIT_HOUR_UTC,default=9"`
	PayoutHourUTC         int           `env:"PAYOUT_HOUR_UTC,default=13"`
	NotifySweepInterval   time.Duration `env:"NOTIFY_SWEEP_INTERVAL,default=6h"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
