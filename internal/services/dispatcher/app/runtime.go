// Package app wires the notification dispatcher runtime: the outbox store,
// the notifier, and the polling loop that drains pending rows.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	dispatcherdomain "github.com/tryst-app/tryst/internal/services/dispatcher/domain"
	"github.com/tryst-app/tryst/internal/services/dispatcher/render"
	engagementsqlite "github.com/tryst-app/tryst/internal/services/engagements/storage/sqlite"
)

// RuntimeConfig controls dispatcher startup and loop behavior.
type RuntimeConfig struct {
	DBPath        string
	WebhookURL    string
	Locale        string
	PollInterval  time.Duration
	BatchSize     int
	Lease         time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultDispatcherDB = "data/engagements.db"
	defaultPollInterval = 5 * time.Second
)

// Run starts the dispatcher loop and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDispatcherDB
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dispatcher storage dir: %w", err)
		}
	}

	store, err := engagementsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open engagements sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close engagements sqlite store: %v", closeErr)
		}
	}()

	var notifier dispatcherdomain.Notifier = LogNotifier{}
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		webhookNotifier, err := NewWebhookNotifier(cfg.WebhookURL, &http.Client{Timeout: defaultWebhookTimeout})
		if err != nil {
			return fmt.Errorf("build webhook notifier: %w", err)
		}
		notifier = webhookNotifier
	}

	renderer := render.New(render.ResolveTag(cfg.Locale))
	processor := dispatcherdomain.NewProcessor(store, notifier, renderer, nil, dispatcherdomain.ProcessorConfig{
		BatchSize:     cfg.BatchSize,
		Lease:         cfg.Lease,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	})

	log.Printf("dispatcher polling %s every %s", cfg.DBPath, cfg.PollInterval)
	RunLoop(ctx, processor, cfg.PollInterval)
	return nil
}

// RunLoop drains the outbox on every tick until ctx is cancelled. A batch
// that filled completely is followed immediately by another claim so a deep
// backlog does not wait out the poll interval.
func RunLoop(ctx context.Context, processor *dispatcherdomain.Processor, pollInterval time.Duration) {
	if processor == nil {
		return
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	drain := func() {
		for {
			processed, err := processor.ProcessOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("dispatcher process batch: %v", err)
				}
				return
			}
			if processed == 0 {
				return
			}
		}
	}

	drain()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drain()
		}
	}
}
