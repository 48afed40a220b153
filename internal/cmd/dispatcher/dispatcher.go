// Package dispatcher parses dispatcher flags and launches the outbox loop.
package dispatcher

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/tryst-app/tryst/internal/platform/cmd"
	"github.com/tryst-app/tryst/internal/services/dispatcher/app"
)

// Config holds dispatcher command configuration.
type Config struct {
	DBPath        string        `env:"TRYST_ENGAGEMENTS_DB_PATH" envDefault:"data/engagements.db"`
	WebhookURL    string        `env:"TRYST_NOTIFY_WEBHOOK_URL"`
	Locale        string        `env:"TRYST_NOTIFY_LOCALE" envDefault:"en"`
	PollInterval  time.Duration `env:"TRYST_DISPATCHER_POLL_INTERVAL" envDefault:"5s"`
	BatchSize     int           `env:"TRYST_DISPATCHER_BATCH_SIZE" envDefault:"32"`
	Lease         time.Duration `env:"TRYST_DISPATCHER_LEASE" envDefault:"2m"`
	MaxAttempts   int           `env:"TRYST_DISPATCHER_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"TRYST_DISPATCHER_RETRY_BACKOFF" envDefault:"30s"`
	RetryMaxDelay time.Duration `env:"TRYST_DISPATCHER_RETRY_MAX_DELAY" envDefault:"15m"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the engagements SQLite database")
	fs.StringVar(&cfg.WebhookURL, "webhook-url", cfg.WebhookURL, "Notification collaborator webhook URL (logs locally when empty)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "How often to poll the outbox")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the notification dispatcher loop.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDispatcher, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			DBPath:        cfg.DBPath,
			WebhookURL:    cfg.WebhookURL,
			Locale:        cfg.Locale,
			PollInterval:  cfg.PollInterval,
			BatchSize:     cfg.BatchSize,
			Lease:         cfg.Lease,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		})
	})
}
