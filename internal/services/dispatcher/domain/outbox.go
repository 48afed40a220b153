// Package domain implements outbox notification processing: claiming rows,
// delivering them to the external notification collaborator, and retry
// bookkeeping. Delivery is at-least-once; the unique outbox key
// (engagement, status, recipient) makes duplicates ignorable downstream.
package domain

import (
	"context"
	"time"

	engagements "github.com/tryst-app/tryst/internal/services/engagements/domain"
)

// Delivery status labels for outbox rows.
const (
	DeliveryPending    = "pending"
	DeliveryProcessing = "processing"
	DeliverySent       = "sent"
	DeliveryFailed     = "failed"
	DeliveryDead       = "dead"
)

// OutboxNotification is one claimed notification row.
type OutboxNotification struct {
	ID           int64
	EngagementID string
	Status       engagements.Status
	RecipientID  string
	Kind         engagements.NotificationKind
	PayloadJSON  string
	AttemptCount int
}

// Store is the persistence boundary for outbox processing.
type Store interface {
	// ClaimPendingNotifications moves up to limit eligible rows to the
	// processing state and returns them. Rows stuck in processing longer
	// than the lease are reclaimed.
	ClaimPendingNotifications(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]OutboxNotification, error)
	MarkNotificationSent(ctx context.Context, notificationID int64, now time.Time) error
	MarkNotificationFailed(ctx context.Context, notificationID int64, lastError string, nextAttemptAt time.Time, dead bool, now time.Time) error
}

// Notifier delivers one rendered notification to the external collaborator.
type Notifier interface {
	SendNotification(ctx context.Context, recipientID string, kind engagements.NotificationKind, title string, body string, payloadJSON string) error
}

// Backoff returns the delay before the given attempt (1-based) is retried,
// doubling from base and capped at max.
func Backoff(attempt int, base time.Duration, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
