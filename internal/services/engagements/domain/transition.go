package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/tryst-app/tryst/internal/platform/errors"
)

const (
	// maxHandshakeFailures bounds consecutive wrong handshake submissions
	// before StartVerification is refused for the cooldown window. The codes
	// are social-proof tokens; the bound only keeps a 4-digit space from
	// being enumerated.
	maxHandshakeFailures = 5
	handshakeCooldown    = 15 * time.Minute
)

var (
	// ErrConflict indicates the persisted status no longer matches the caller's expectation.
	ErrConflict = apperrors.New(apperrors.CodeVersionConflict, "engagement was modified concurrently")
	// ErrInvalidTransition indicates the action is not legal from the current status.
	ErrInvalidTransition = apperrors.New(apperrors.CodeEngagementInvalidTransition, "action is not legal from current status")
	// ErrActorNotAllowed indicates the acting participant may not perform this action.
	ErrActorNotAllowed = apperrors.New(apperrors.CodeEngagementActorNotAllowed, "participant may not perform this action")
	// ErrCodeMismatch indicates a submitted confirmation code did not match.
	ErrCodeMismatch = apperrors.New(apperrors.CodeEngagementCodeMismatch, "submitted code does not match")
	// ErrCodeRequired indicates a submit action is missing its code payload.
	ErrCodeRequired = apperrors.New(apperrors.CodeEngagementCodeRequired, "a 4-digit code is required")
	// ErrScheduleRequired indicates the schedule payload is missing or empty.
	ErrScheduleRequired = apperrors.New(apperrors.CodeEngagementScheduleRequired, "schedule details are required")
	// ErrInvalidAction indicates an unknown action label.
	ErrInvalidAction = apperrors.New(apperrors.CodeEngagementInvalidAction, "unknown action")
	// ErrVerificationCooldown indicates handshake attempts are exhausted for now.
	ErrVerificationCooldown = apperrors.New(apperrors.CodeEngagementVerificationCooldown, "too many failed handshake attempts, try again later")
)

// NotificationKind tags outbound notifications so consumers can phrase copy.
type NotificationKind string

const (
	KindScheduleSet NotificationKind = "schedule_set"
	KindDeclined    NotificationKind = "declined"
	KindWithdrawn   NotificationKind = "withdrawn"
	KindCancelled   NotificationKind = "cancelled"
	KindCompleted   NotificationKind = "completed"
)

// Notification is one pending side effect produced by a committed transition.
type Notification struct {
	RecipientID string
	Kind        NotificationKind
	PayloadJSON string
}

// TransitionInput is one guarded transition request.
type TransitionInput struct {
	ExpectedStatus Status
	Action         Action
	ActorID        string
	Schedule       *Schedule
	Code           string
}

// TransitionResult is the outcome of a legal transition. HandshakeRejected
// marks the revert-to-Scheduled path taken on a wrong handshake code: the
// state change must still be persisted, and the caller is owed a code
// mismatch error afterwards.
type TransitionResult struct {
	Engagement        Engagement
	Notifications     []Notification
	HandshakeCode     string
	HandshakeRejected bool
}

// Transition validates input against the engagement's persisted state and
// returns the updated engagement plus side effects. It is pure: callers
// persist the result atomically together with the notifications.
func Transition(e Engagement, input TransitionInput, now func() time.Time, codeGenerator func() (string, error)) (TransitionResult, error) {
	if now == nil {
		now = time.Now
	}
	if codeGenerator == nil {
		codeGenerator = NewVerificationCode
	}

	actorID := strings.TrimSpace(input.ActorID)
	if actorID == "" {
		return TransitionResult{}, ErrEmptyParticipantID
	}
	if !e.Participant(actorID) {
		return TransitionResult{}, apperrors.WithMetadata(
			apperrors.CodeEngagementActorNotAllowed,
			"actor is not a participant of this engagement",
			map[string]string{"actor_id": actorID},
		)
	}
	if e.Status != input.ExpectedStatus {
		return TransitionResult{}, apperrors.WithMetadata(
			apperrors.CodeVersionConflict,
			"engagement status changed since last read",
			map[string]string{
				"expected_status": string(input.ExpectedStatus),
				"current_status":  string(e.Status),
			},
		)
	}

	at := now().UTC()
	e.UpdatedAt = at
	e.Version++

	switch input.Action {
	case ActionAccept:
		return applyAccept(e, actorID, at)
	case ActionDecline:
		return applyDecline(e, actorID, at)
	case ActionWithdraw:
		return applyWithdraw(e, actorID, at)
	case ActionSchedule:
		return applySchedule(e, actorID, input.Schedule, at, codeGenerator)
	case ActionCancel:
		return applyCancel(e, actorID, at)
	case ActionStartVerification:
		return applyStartVerification(e, actorID, at, codeGenerator)
	case ActionSubmitHandshakeCode:
		return applySubmitHandshakeCode(e, actorID, input.Code, at)
	case ActionSubmitConfirmationCode:
		return applySubmitConfirmationCode(e, actorID, input.Code, at)
	case ActionComplete:
		return applyComplete(e, actorID, at)
	default:
		return TransitionResult{}, ErrInvalidAction
	}
}

func invalidTransition(action Action, from Status) error {
	return apperrors.WithMetadata(
		apperrors.CodeEngagementInvalidTransition,
		fmt.Sprintf("action %s is not legal from status %s", action, from),
		map[string]string{"action": string(action), "status": string(from)},
	)
}

func applyAccept(e Engagement, actorID string, at time.Time) (TransitionResult, error) {
	if e.Status != StatusRequested {
		return TransitionResult{}, invalidTransition(ActionAccept, e.Status)
	}
	if actorID != e.RecipientID {
		return TransitionResult{}, ErrActorNotAllowed
	}
	e.Status = StatusAccepted
	e.RespondedAt = &at
	// Accepting has no mandatory side effect; chat provisioning is the
	// presentation layer's call.
	return TransitionResult{Engagement: e}, nil
}

func applyDecline(e Engagement, actorID string, at time.Time) (TransitionResult, error) {
	if e.Status != StatusRequested {
		return TransitionResult{}, invalidTransition(ActionDecline, e.Status)
	}
	if actorID != e.RecipientID {
		return TransitionResult{}, ErrActorNotAllowed
	}
	e.Status = StatusDeclined
	e.RespondedAt = &at
	e.DeclinedAt = &at
	return TransitionResult{
		Engagement: e,
		Notifications: []Notification{
			notifyOne(e.InitiatorID, KindDeclined, map[string]string{"declined_by": actorID}),
		},
	}, nil
}

func applyWithdraw(e Engagement, actorID string, at time.Time) (TransitionResult, error) {
	if e.Status != StatusRequested {
		return TransitionResult{}, invalidTransition(ActionWithdraw, e.Status)
	}
	// Only the initiator can take back an unanswered request.
	if actorID != e.InitiatorID {
		return TransitionResult{}, ErrActorNotAllowed
	}
	e.Status = StatusWithdrawn
	e.WithdrawnAt = &at
	return TransitionResult{
		Engagement: e,
		Notifications: []Notification{
			notifyOne(e.RecipientID, KindWithdrawn, map[string]string{"withdrawn_by": actorID}),
		},
	}, nil
}

func applySchedule(e Engagement, actorID string, schedule *Schedule, at time.Time, codeGenerator func() (string, error)) (TransitionResult, error) {
	if e.Status != StatusAccepted {
		return TransitionResult{}, invalidTransition(ActionSchedule, e.Status)
	}
	if schedule == nil || (strings.TrimSpace(schedule.Day) == "" && schedule.StartsAt == nil) {
		return TransitionResult{}, ErrScheduleRequired
	}

	normalized := *schedule
	normalized.Day = strings.TrimSpace(normalized.Day)
	normalized.Time = strings.TrimSpace(normalized.Time)
	normalized.Activity = strings.TrimSpace(normalized.Activity)
	normalized.Venue = strings.TrimSpace(normalized.Venue)
	normalized.LocationRef = strings.TrimSpace(normalized.LocationRef)

	// The confirmation code is minted exactly once, when the schedule is
	// first attached, and never changes afterwards.
	if e.ConfirmationCode == "" {
		code, err := codeGenerator()
		if err != nil {
			return TransitionResult{}, fmt.Errorf("mint confirmation code: %w", err)
		}
		e.ConfirmationCode = code
	}
	e.Status = StatusScheduled
	e.Schedule = &normalized
	e.ScheduledAt = &at

	return TransitionResult{
		Engagement: e,
		Notifications: []Notification{
			notifyOne(e.Counterpart(actorID), KindScheduleSet, map[string]string{
				"scheduled_by": actorID,
				"day":          normalized.Day,
				"time":         normalized.Time,
				"activity":     normalized.Activity,
				"venue":        normalized.Venue,
			}),
		},
	}, nil
}

func applyCancel(e Engagement, actorID string, at time.Time) (TransitionResult, error) {
	if e.Status.IsTerminal() {
		return TransitionResult{}, invalidTransition(ActionCancel, e.Status)
	}
	e.Status = StatusCancelled
	e.CancelledAt = &at
	e.CancelledBy = actorID
	e.Handshake = nil
	return TransitionResult{
		Engagement: e,
		Notifications: []Notification{
			notifyOne(e.Counterpart(actorID), KindCancelled, map[string]string{"cancelled_by": actorID}),
		},
	}, nil
}

func applyStartVerification(e Engagement, actorID string, at time.Time, codeGenerator func() (string, error)) (TransitionResult, error) {
	if e.Status != StatusScheduled {
		return TransitionResult{}, invalidTransition(ActionStartVerification, e.Status)
	}
	if e.HandshakeFailures >= maxHandshakeFailures && e.LastHandshakeFailureAt != nil {
		if at.Sub(*e.LastHandshakeFailureAt) < handshakeCooldown {
			return TransitionResult{}, ErrVerificationCooldown
		}
		// Cooldown elapsed; the counter starts over.
		e.HandshakeFailures = 0
		e.LastHandshakeFailureAt = nil
	}

	code, err := codeGenerator()
	if err != nil {
		return TransitionResult{}, fmt.Errorf("mint handshake code: %w", err)
	}
	e.Status = StatusVerificationPending
	e.Handshake = &Handshake{Code: code, InitiatedBy: actorID}
	if e.VerificationStartedAt == nil {
		e.VerificationStartedAt = &at
	}
	// The code is disclosed only to the participant who started this phase.
	return TransitionResult{Engagement: e, HandshakeCode: code}, nil
}

func applySubmitHandshakeCode(e Engagement, actorID string, code string, at time.Time) (TransitionResult, error) {
	if e.Status != StatusVerificationPending || e.Handshake == nil {
		return TransitionResult{}, invalidTransition(ActionSubmitHandshakeCode, e.Status)
	}
	// The initiator reads the code aloud; only the other participant types it.
	if actorID == e.Handshake.InitiatedBy {
		return TransitionResult{}, ErrActorNotAllowed
	}
	if strings.TrimSpace(code) == "" {
		return TransitionResult{}, ErrCodeRequired
	}

	if strings.TrimSpace(code) != e.Handshake.Code {
		// Wrong code reverts to Scheduled and discards the secret, so each
		// guess costs a fresh StartVerification.
		e.Status = StatusScheduled
		e.Handshake = nil
		e.HandshakeFailures++
		e.LastHandshakeFailureAt = &at
		return TransitionResult{Engagement: e, HandshakeRejected: true}, nil
	}

	e.Status = StatusInProgress
	e.Handshake = nil
	e.HandshakeFailures = 0
	e.LastHandshakeFailureAt = nil
	if e.VerifiedAt == nil {
		e.VerifiedAt = &at
	}
	return TransitionResult{Engagement: e}, nil
}

func applySubmitConfirmationCode(e Engagement, actorID string, code string, at time.Time) (TransitionResult, error) {
	if e.Status != StatusScheduled && e.Status != StatusInProgress {
		return TransitionResult{}, invalidTransition(ActionSubmitConfirmationCode, e.Status)
	}
	if strings.TrimSpace(code) == "" {
		return TransitionResult{}, ErrCodeRequired
	}
	if strings.TrimSpace(code) != e.ConfirmationCode {
		// No state change and no lockout; the UI lets the human retry.
		return TransitionResult{}, ErrCodeMismatch
	}
	return complete(e, actorID, at, true), nil
}

func applyComplete(e Engagement, actorID string, at time.Time) (TransitionResult, error) {
	// Codeless completion is accepted only after a successful handshake.
	if e.Status != StatusInProgress {
		return TransitionResult{}, invalidTransition(ActionComplete, e.Status)
	}
	return complete(e, actorID, at, false), nil
}

func complete(e Engagement, actorID string, at time.Time, codeConfirmed bool) TransitionResult {
	e.Status = StatusCompleted
	e.CompletedAt = &at
	e.Handshake = nil
	payload := map[string]string{
		"completed_by":   actorID,
		"code_confirmed": fmt.Sprintf("%t", codeConfirmed),
	}
	return TransitionResult{
		Engagement: e,
		Notifications: []Notification{
			notifyOne(e.InitiatorID, KindCompleted, payload),
			notifyOne(e.RecipientID, KindCompleted, payload),
		},
	}
}

func notifyOne(recipientID string, kind NotificationKind, payload map[string]string) Notification {
	encoded, err := json.Marshal(payload)
	if err != nil {
		// map[string]string cannot fail to marshal; keep the notification.
		encoded = []byte("{}")
	}
	return Notification{
		RecipientID: recipientID,
		Kind:        kind,
		PayloadJSON: string(encoded),
	}
}
