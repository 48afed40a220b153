package sqlite

import (
	"context"
	"fmt"
	"time"

	dispatcherdomain "github.com/tryst-app/tryst/internal/services/dispatcher/domain"
	"github.com/tryst-app/tryst/internal/services/engagements/domain"
)

// ClaimPendingNotifications marks up to limit eligible outbox rows as
// processing and returns them. Eligible rows are pending or failed rows whose
// next attempt is due, plus processing rows whose lease expired.
func (s *Store) ClaimPendingNotifications(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]dispatcherdomain.OutboxNotification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, nil
	}

	nowMillis := toMillis(now)
	staleMillis := toMillis(now.Add(-lease))

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT id, engagement_id, engagement_status, recipient_id, kind, payload_json, attempt_count
		 FROM notification_outbox
		 WHERE (delivery_status IN ('pending', 'failed') AND next_attempt_at <= ?)
		    OR (delivery_status = 'processing' AND updated_at <= ?)
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		nowMillis, staleMillis, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select claimable notifications: %w", err)
	}

	var claimed []dispatcherdomain.OutboxNotification
	for rows.Next() {
		var (
			n      dispatcherdomain.OutboxNotification
			status string
			kind   string
		)
		if err := rows.Scan(&n.ID, &n.EngagementID, &status, &n.RecipientID, &kind, &n.PayloadJSON, &n.AttemptCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimable notification: %w", err)
		}
		n.Status = domain.Status(status)
		n.Kind = domain.NotificationKind(kind)
		claimed = append(claimed, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate claimable notifications: %w", err)
	}
	rows.Close()

	for _, n := range claimed {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE notification_outbox
			 SET delivery_status = 'processing', attempt_count = attempt_count + 1, updated_at = ?
			 WHERE id = ?`,
			nowMillis, n.ID,
		); err != nil {
			return nil, fmt.Errorf("mark notification processing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}

	// Reflect the claim in returned rows so attempt-based retry decisions
	// see the attempt in flight.
	for i := range claimed {
		claimed[i].AttemptCount++
	}
	return claimed, nil
}

// MarkNotificationSent records a successful delivery.
func (s *Store) MarkNotificationSent(ctx context.Context, notificationID int64, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notification_outbox
		 SET delivery_status = 'sent', last_error = '', updated_at = ?
		 WHERE id = ?`,
		toMillis(now), notificationID,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// MarkNotificationFailed records a delivery failure and schedules the retry,
// or parks the row as dead when dead is true.
func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID int64, lastError string, nextAttemptAt time.Time, dead bool, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	status := "failed"
	if dead {
		status = "dead"
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE notification_outbox
		 SET delivery_status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		status, lastError, toMillis(nextAttemptAt), toMillis(now), notificationID,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}
