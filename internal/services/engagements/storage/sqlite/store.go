// Package sqlite provides SQLite-backed persistence for engagement lifecycle
// state and the notification outbox.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tryst-app/tryst/internal/platform/storage/sqlitemigrate"
	dispatcherdomain "github.com/tryst-app/tryst/internal/services/dispatcher/domain"
	"github.com/tryst-app/tryst/internal/services/engagements/domain"
	"github.com/tryst-app/tryst/internal/services/engagements/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists engagements and their notification outbox in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	at := fromMillis(value.Int64)
	return &at
}

// Open opens a SQLite engagements store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const engagementColumns = `id, initiator_id, recipient_id, status,
	schedule_day, schedule_time, schedule_activity, schedule_venue, schedule_location_ref, schedule_starts_at, has_schedule,
	confirmation_code, handshake_code, handshake_initiated_by, handshake_failures, last_handshake_failure_at,
	chat_ref, cancelled_by,
	created_at, responded_at, scheduled_at, verification_started_at, verified_at, completed_at, declined_at, withdrawn_at, cancelled_at, updated_at,
	version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEngagement(row rowScanner) (domain.Engagement, error) {
	var (
		e                   domain.Engagement
		day, timeOfDay      string
		activity, venue     string
		locationRef         string
		startsAt            sql.NullInt64
		hasSchedule         int
		handshakeCode       string
		handshakeInitiator  string
		lastHandshakeFail   sql.NullInt64
		createdAt           int64
		respondedAt         sql.NullInt64
		scheduledAt         sql.NullInt64
		verificationStarted sql.NullInt64
		verifiedAt          sql.NullInt64
		completedAt         sql.NullInt64
		declinedAt          sql.NullInt64
		withdrawnAt         sql.NullInt64
		cancelledAt         sql.NullInt64
		updatedAt           int64
	)
	err := row.Scan(
		&e.ID, &e.InitiatorID, &e.RecipientID, &e.Status,
		&day, &timeOfDay, &activity, &venue, &locationRef, &startsAt, &hasSchedule,
		&e.ConfirmationCode, &handshakeCode, &handshakeInitiator, &e.HandshakeFailures, &lastHandshakeFail,
		&e.ChatRef, &e.CancelledBy,
		&createdAt, &respondedAt, &scheduledAt, &verificationStarted, &verifiedAt, &completedAt, &declinedAt, &withdrawnAt, &cancelledAt, &updatedAt,
		&e.Version,
	)
	if err != nil {
		return domain.Engagement{}, err
	}

	if hasSchedule == 1 {
		e.Schedule = &domain.Schedule{
			Day:         day,
			Time:        timeOfDay,
			Activity:    activity,
			Venue:       venue,
			LocationRef: locationRef,
			StartsAt:    fromNullMillis(startsAt),
		}
	}
	if handshakeCode != "" {
		e.Handshake = &domain.Handshake{
			Code:        handshakeCode,
			InitiatedBy: handshakeInitiator,
		}
	}
	e.LastHandshakeFailureAt = fromNullMillis(lastHandshakeFail)
	e.CreatedAt = fromMillis(createdAt)
	e.RespondedAt = fromNullMillis(respondedAt)
	e.ScheduledAt = fromNullMillis(scheduledAt)
	e.VerificationStartedAt = fromNullMillis(verificationStarted)
	e.VerifiedAt = fromNullMillis(verifiedAt)
	e.CompletedAt = fromNullMillis(completedAt)
	e.DeclinedAt = fromNullMillis(declinedAt)
	e.WithdrawnAt = fromNullMillis(withdrawnAt)
	e.CancelledAt = fromNullMillis(cancelledAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return e, nil
}

func engagementArgs(e domain.Engagement) []any {
	var (
		day, timeOfDay, activity, venue, locationRef string
		startsAt                                     sql.NullInt64
		hasSchedule                                  int
	)
	if e.Schedule != nil {
		day = e.Schedule.Day
		timeOfDay = e.Schedule.Time
		activity = e.Schedule.Activity
		venue = e.Schedule.Venue
		locationRef = e.Schedule.LocationRef
		startsAt = toNullMillis(e.Schedule.StartsAt)
		hasSchedule = 1
	}
	var handshakeCode, handshakeInitiator string
	if e.Handshake != nil {
		handshakeCode = e.Handshake.Code
		handshakeInitiator = e.Handshake.InitiatedBy
	}
	return []any{
		e.ID, e.InitiatorID, e.RecipientID, string(e.Status),
		day, timeOfDay, activity, venue, locationRef, startsAt, hasSchedule,
		e.ConfirmationCode, handshakeCode, handshakeInitiator, e.HandshakeFailures, toNullMillis(e.LastHandshakeFailureAt),
		e.ChatRef, e.CancelledBy,
		toMillis(e.CreatedAt), toNullMillis(e.RespondedAt), toNullMillis(e.ScheduledAt), toNullMillis(e.VerificationStartedAt),
		toNullMillis(e.VerifiedAt), toNullMillis(e.CompletedAt), toNullMillis(e.DeclinedAt), toNullMillis(e.WithdrawnAt),
		toNullMillis(e.CancelledAt), toMillis(e.UpdatedAt),
		e.Version,
	}
}

// CreateEngagement inserts one new engagement record.
func (s *Store) CreateEngagement(ctx context.Context, e domain.Engagement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("engagement id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO engagements (`+engagementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		engagementArgs(e)...,
	)
	if err != nil {
		return fmt.Errorf("create engagement: %w", err)
	}
	return nil
}

// GetEngagement returns one engagement by id.
func (s *Store) GetEngagement(ctx context.Context, engagementID string) (domain.Engagement, error) {
	if err := ctx.Err(); err != nil {
		return domain.Engagement{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Engagement{}, fmt.Errorf("storage is not configured")
	}
	engagementID = strings.TrimSpace(engagementID)
	if engagementID == "" {
		return domain.Engagement{}, domain.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+engagementColumns+` FROM engagements WHERE id = ?`,
		engagementID,
	)
	e, err := scanEngagement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Engagement{}, domain.ErrNotFound
		}
		return domain.Engagement{}, fmt.Errorf("get engagement: %w", err)
	}
	return e, nil
}

// UpdateEngagement persists one engagement guarded by expectedVersion and
// enqueues outbox notifications in the same transaction. A stale version
// writes nothing and returns domain.ErrConflict.
func (s *Store) UpdateEngagement(ctx context.Context, e domain.Engagement, expectedVersion int64, notifications []domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := engagementArgs(e)
	// Shift id from the front to the WHERE clause position.
	result, err := tx.ExecContext(
		ctx,
		`UPDATE engagements SET
		   initiator_id = ?, recipient_id = ?, status = ?,
		   schedule_day = ?, schedule_time = ?, schedule_activity = ?, schedule_venue = ?, schedule_location_ref = ?, schedule_starts_at = ?, has_schedule = ?,
		   confirmation_code = ?, handshake_code = ?, handshake_initiated_by = ?, handshake_failures = ?, last_handshake_failure_at = ?,
		   chat_ref = ?, cancelled_by = ?,
		   created_at = ?, responded_at = ?, scheduled_at = ?, verification_started_at = ?, verified_at = ?, completed_at = ?, declined_at = ?, withdrawn_at = ?, cancelled_at = ?, updated_at = ?,
		   version = ?
		 WHERE id = ? AND version = ?`,
		append(args[1:], e.ID, expectedVersion)...,
	)
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update engagement rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM engagements WHERE id = ?`, e.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check engagement existence: %w", err)
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}

	now := toMillis(e.UpdatedAt)
	for _, notification := range notifications {
		// The unique (engagement, status, recipient) key deduplicates
		// repeated enqueues for the same committed transition.
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO notification_outbox (
			   engagement_id, engagement_status, recipient_id, kind, payload_json,
			   delivery_status, attempt_count, next_attempt_at, last_error, updated_at
			 ) VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, '', ?)
			 ON CONFLICT(engagement_id, engagement_status, recipient_id) DO NOTHING`,
			e.ID,
			string(e.Status),
			notification.RecipientID,
			string(notification.Kind),
			notification.PayloadJSON,
			now,
			now,
		); err != nil {
			return fmt.Errorf("enqueue notification outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition transaction: %w", err)
	}
	return nil
}

// ListEngagementsByParticipant returns one page of engagements where the
// participant is either party, newest first.
func (s *Store) ListEngagementsByParticipant(ctx context.Context, participantID string, pageSize int, pageToken string) (domain.EngagementPage, error) {
	if err := ctx.Err(); err != nil {
		return domain.EngagementPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.EngagementPage{}, fmt.Errorf("storage is not configured")
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return domain.EngagementPage{}, fmt.Errorf("participant id is required")
	}
	if pageSize <= 0 {
		return domain.EngagementPage{}, fmt.Errorf("page size must be greater than zero")
	}

	var (
		rows *sql.Rows
		err  error
	)
	if pageToken == "" {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT `+engagementColumns+`
			 FROM engagements
			 WHERE initiator_id = ? OR recipient_id = ?
			 ORDER BY created_at DESC, id DESC
			 LIMIT ?`,
			participantID, participantID, pageSize+1,
		)
	} else {
		tokenMillis, tokenID, parseErr := parsePageToken(pageToken)
		if parseErr != nil {
			return domain.EngagementPage{}, parseErr
		}
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT `+engagementColumns+`
			 FROM engagements
			 WHERE (initiator_id = ? OR recipient_id = ?)
			   AND (created_at < ? OR (created_at = ? AND id < ?))
			 ORDER BY created_at DESC, id DESC
			 LIMIT ?`,
			participantID, participantID, tokenMillis, tokenMillis, tokenID, pageSize+1,
		)
	}
	if err != nil {
		return domain.EngagementPage{}, fmt.Errorf("list engagements: %w", err)
	}
	defer rows.Close()

	page := domain.EngagementPage{
		Engagements: make([]domain.Engagement, 0, pageSize),
	}
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return domain.EngagementPage{}, fmt.Errorf("list engagements: %w", err)
		}
		page.Engagements = append(page.Engagements, e)
	}
	if err := rows.Err(); err != nil {
		return domain.EngagementPage{}, fmt.Errorf("list engagements: %w", err)
	}
	if len(page.Engagements) > pageSize {
		last := page.Engagements[pageSize-1]
		page.NextPageToken = formatPageToken(last.CreatedAt, last.ID)
		page.Engagements = page.Engagements[:pageSize]
	}
	return page, nil
}

func formatPageToken(createdAt time.Time, id string) string {
	return strconv.FormatInt(toMillis(createdAt), 10) + ":" + id
}

func parsePageToken(token string) (int64, string, error) {
	millisPart, idPart, ok := strings.Cut(token, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed page token")
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed page token")
	}
	return millis, idPart, nil
}

var _ domain.Store = (*Store)(nil)
var _ dispatcherdomain.Store = (*Store)(nil)
