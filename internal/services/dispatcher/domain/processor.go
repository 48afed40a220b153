package domain

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	engagements "github.com/tryst-app/tryst/internal/services/engagements/domain"
)

var tracer = otel.Tracer("github.com/tryst-app/tryst/internal/services/dispatcher/domain")

// MessageRenderer phrases one notification into push copy.
type MessageRenderer interface {
	Render(kind engagements.NotificationKind, payloadJSON string) (title string, body string, err error)
}

// ProcessorConfig controls one processor's batch and retry behavior.
type ProcessorConfig struct {
	BatchSize     int
	Lease         time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultBatchSize     = 32
	defaultLease         = 2 * time.Minute
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 30 * time.Second
	defaultRetryMaxDelay = 15 * time.Minute
)

func (c ProcessorConfig) normalized() ProcessorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Lease <= 0 {
		c.Lease = defaultLease
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Processor drains the notification outbox: it claims due rows, renders
// copy, hands each row to the notifier, and records the outcome.
type Processor struct {
	store    Store
	notifier Notifier
	renderer MessageRenderer
	clock    func() time.Time
	config   ProcessorConfig
}

// NewProcessor wires an outbox processor. A nil clock uses time.Now.
func NewProcessor(store Store, notifier Notifier, renderer MessageRenderer, clock func() time.Time, config ProcessorConfig) *Processor {
	if clock == nil {
		clock = time.Now
	}
	return &Processor{
		store:    store,
		notifier: notifier,
		renderer: renderer,
		clock:    clock,
		config:   config.normalized(),
	}
}

// ProcessOnce claims one batch and attempts delivery for every claimed row.
// It returns the number of rows handled; per-row failures are recorded for
// retry and do not stop the batch.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ctx, span := tracer.Start(ctx, "dispatcher.ProcessBatch")
	defer span.End()

	now := p.clock().UTC()
	claimed, err := p.store.ClaimPendingNotifications(ctx, now, p.config.BatchSize, p.config.Lease)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "claim pending notifications")
		return 0, err
	}
	span.SetAttributes(attribute.Int("outbox.claimed", len(claimed)))

	for _, notification := range claimed {
		p.deliver(ctx, notification)
	}
	return len(claimed), nil
}

func (p *Processor) deliver(ctx context.Context, notification OutboxNotification) {
	title, body, err := p.renderer.Render(notification.Kind, notification.PayloadJSON)
	if err != nil {
		// Copy that cannot be rendered today cannot be rendered tomorrow.
		p.recordFailure(ctx, notification, Permanent(err))
		return
	}

	if err := p.notifier.SendNotification(ctx, notification.RecipientID, notification.Kind, title, body, notification.PayloadJSON); err != nil {
		p.recordFailure(ctx, notification, err)
		return
	}

	if err := p.store.MarkNotificationSent(ctx, notification.ID, p.clock().UTC()); err != nil {
		log.Printf("dispatcher: mark notification %d sent: %v", notification.ID, err)
	}
}

func (p *Processor) recordFailure(ctx context.Context, notification OutboxNotification, deliveryErr error) {
	now := p.clock().UTC()
	dead := IsPermanent(deliveryErr) || notification.AttemptCount >= p.config.MaxAttempts
	nextAttemptAt := now.Add(Backoff(notification.AttemptCount, p.config.RetryBackoff, p.config.RetryMaxDelay))
	if dead {
		nextAttemptAt = now
	}

	if err := p.store.MarkNotificationFailed(ctx, notification.ID, deliveryErr.Error(), nextAttemptAt, dead, now); err != nil {
		log.Printf("dispatcher: mark notification %d failed: %v", notification.ID, err)
		return
	}
	if dead {
		log.Printf("dispatcher: notification %d for %s is dead after %d attempts: %v",
			notification.ID, notification.RecipientID, notification.AttemptCount, deliveryErr)
	}
}
