package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/tryst-app/tryst/internal/platform/errors"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialCodes(codes ...string) func() (string, error) {
	index := 0
	return func() (string, error) {
		if index >= len(codes) {
			return "", errors.New("code generator exhausted")
		}
		code := codes[index]
		index++
		return code, nil
	}
}

func requestedEngagement() Engagement {
	created := time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)
	return Engagement{
		ID:          "eng-1",
		InitiatorID: "user-a",
		RecipientID: "user-b",
		Status:      StatusRequested,
		CreatedAt:   created,
		UpdatedAt:   created,
		Version:     1,
	}
}

func mustTransition(t *testing.T, e Engagement, input TransitionInput, at time.Time, codes func() (string, error)) TransitionResult {
	t.Helper()
	result, err := Transition(e, input, fixedClock(at), codes)
	if err != nil {
		t.Fatalf("transition %s from %s: %v", input.Action, input.ExpectedStatus, err)
	}
	return result
}

func scheduledEngagement(t *testing.T) Engagement {
	t.Helper()
	e := requestedEngagement()
	at := e.CreatedAt.Add(time.Hour)

	accepted := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionAccept,
		ActorID:        "user-b",
	}, at, nil)

	scheduled := mustTransition(t, accepted.Engagement, TransitionInput{
		ExpectedStatus: StatusAccepted,
		Action:         ActionSchedule,
		ActorID:        "user-a",
		Schedule:       &Schedule{Day: "Friday", Time: "7:00 PM", Venue: "Cafe X"},
	}, at.Add(time.Hour), sequentialCodes("4821"))

	return scheduled.Engagement
}

func TestDeclineNotifiesInitiatorAndTerminates(t *testing.T) {
	t.Parallel()

	e := requestedEngagement()
	at := e.CreatedAt.Add(30 * time.Minute)

	result := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionDecline,
		ActorID:        "user-b",
	}, at, nil)

	declined := result.Engagement
	if declined.Status != StatusDeclined {
		t.Fatalf("status = %s, want %s", declined.Status, StatusDeclined)
	}
	if declined.DeclinedAt == nil || !declined.DeclinedAt.Equal(at) {
		t.Fatalf("declined at = %v, want %v", declined.DeclinedAt, at)
	}
	if declined.Version != 2 {
		t.Fatalf("version = %d, want 2", declined.Version)
	}
	if len(result.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(result.Notifications))
	}
	notif := result.Notifications[0]
	if notif.RecipientID != "user-a" || notif.Kind != KindDeclined {
		t.Fatalf("unexpected notification %+v", notif)
	}

	// Terminal: every further action must be rejected.
	for _, action := range []Action{ActionAccept, ActionDecline, ActionWithdraw, ActionSchedule, ActionCancel, ActionStartVerification, ActionSubmitHandshakeCode, ActionSubmitConfirmationCode, ActionComplete} {
		_, err := Transition(declined, TransitionInput{
			ExpectedStatus: StatusDeclined,
			Action:         action,
			ActorID:        "user-b",
			Code:           "1234",
			Schedule:       &Schedule{Day: "Friday"},
		}, fixedClock(at.Add(time.Minute)), sequentialCodes("9999"))
		if err == nil {
			t.Fatalf("expected %s to be rejected from declined", action)
		}
	}
}

func TestWithdrawOnlyByInitiator(t *testing.T) {
	t.Parallel()

	e := requestedEngagement()
	at := e.CreatedAt.Add(time.Minute)

	if _, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionWithdraw,
		ActorID:        "user-b",
	}, fixedClock(at), nil); !apperrors.IsCode(err, apperrors.CodeEngagementActorNotAllowed) {
		t.Fatalf("expected actor-not-allowed for recipient withdraw, got %v", err)
	}

	result := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionWithdraw,
		ActorID:        "user-a",
	}, at, nil)
	if result.Engagement.Status != StatusWithdrawn {
		t.Fatalf("status = %s, want %s", result.Engagement.Status, StatusWithdrawn)
	}
	if len(result.Notifications) != 1 || result.Notifications[0].Kind != KindWithdrawn || result.Notifications[0].RecipientID != "user-b" {
		t.Fatalf("unexpected notifications %+v", result.Notifications)
	}
}

func TestAcceptOnlyByRecipientAndNoEffect(t *testing.T) {
	t.Parallel()

	e := requestedEngagement()
	at := e.CreatedAt.Add(time.Minute)

	if _, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionAccept,
		ActorID:        "user-a",
	}, fixedClock(at), nil); !apperrors.IsCode(err, apperrors.CodeEngagementActorNotAllowed) {
		t.Fatalf("expected actor-not-allowed for initiator accept, got %v", err)
	}

	result := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionAccept,
		ActorID:        "user-b",
	}, at, nil)
	if result.Engagement.Status != StatusAccepted {
		t.Fatalf("status = %s, want %s", result.Engagement.Status, StatusAccepted)
	}
	if result.Engagement.RespondedAt == nil {
		t.Fatal("expected responded timestamp")
	}
	if len(result.Notifications) != 0 {
		t.Fatalf("accept must not notify, got %+v", result.Notifications)
	}
}

func TestScheduleMintsConfirmationCodeOnce(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	if e.Status != StatusScheduled {
		t.Fatalf("status = %s, want %s", e.Status, StatusScheduled)
	}
	if e.ConfirmationCode != "4821" {
		t.Fatalf("confirmation code = %q, want 4821", e.ConfirmationCode)
	}
	if e.Schedule == nil || e.Schedule.Venue != "Cafe X" {
		t.Fatalf("unexpected schedule %+v", e.Schedule)
	}
	if e.ScheduledAt == nil {
		t.Fatal("expected scheduling timestamp")
	}
}

func TestScheduleRequiresDetailsAndAcceptedStatus(t *testing.T) {
	t.Parallel()

	e := requestedEngagement()
	at := e.CreatedAt.Add(time.Minute)

	if _, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionSchedule,
		ActorID:        "user-a",
		Schedule:       &Schedule{Day: "Friday"},
	}, fixedClock(at), sequentialCodes("1111")); !apperrors.IsCode(err, apperrors.CodeEngagementInvalidTransition) {
		t.Fatalf("expected invalid transition scheduling from requested, got %v", err)
	}

	accepted := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionAccept,
		ActorID:        "user-b",
	}, at, nil)
	if _, err := Transition(accepted.Engagement, TransitionInput{
		ExpectedStatus: StatusAccepted,
		Action:         ActionSchedule,
		ActorID:        "user-a",
	}, fixedClock(at), sequentialCodes("1111")); !apperrors.IsCode(err, apperrors.CodeEngagementScheduleRequired) {
		t.Fatalf("expected schedule-required, got %v", err)
	}
}

func TestHandshakeRoundTrip(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	at := e.UpdatedAt.Add(24 * time.Hour)

	started := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, at, sequentialCodes("9053"))

	if started.HandshakeCode != "9053" {
		t.Fatalf("handshake code = %q, want 9053", started.HandshakeCode)
	}
	pending := started.Engagement
	if pending.Status != StatusVerificationPending {
		t.Fatalf("status = %s, want %s", pending.Status, StatusVerificationPending)
	}
	if pending.Handshake == nil || pending.Handshake.InitiatedBy != "user-a" {
		t.Fatalf("unexpected handshake %+v", pending.Handshake)
	}
	if pending.ConfirmationCode != "4821" {
		t.Fatalf("confirmation code changed to %q", pending.ConfirmationCode)
	}

	// The initiator may not submit the code they can already see.
	if _, err := Transition(pending, TransitionInput{
		ExpectedStatus: StatusVerificationPending,
		Action:         ActionSubmitHandshakeCode,
		ActorID:        "user-a",
		Code:           "9053",
	}, fixedClock(at.Add(time.Minute)), nil); !apperrors.IsCode(err, apperrors.CodeEngagementActorNotAllowed) {
		t.Fatalf("expected actor-not-allowed for initiator submit, got %v", err)
	}

	matched := mustTransition(t, pending, TransitionInput{
		ExpectedStatus: StatusVerificationPending,
		Action:         ActionSubmitHandshakeCode,
		ActorID:        "user-b",
		Code:           "9053",
	}, at.Add(time.Minute), nil)

	inProgress := matched.Engagement
	if inProgress.Status != StatusInProgress {
		t.Fatalf("status = %s, want %s", inProgress.Status, StatusInProgress)
	}
	if inProgress.Handshake != nil {
		t.Fatal("expected handshake cleared after success")
	}
	if inProgress.VerifiedAt == nil {
		t.Fatal("expected verification success timestamp")
	}
}

func TestHandshakeMismatchRevertsToScheduled(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	at := e.UpdatedAt.Add(24 * time.Hour)

	started := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, at, sequentialCodes("9053"))

	result, err := Transition(started.Engagement, TransitionInput{
		ExpectedStatus: StatusVerificationPending,
		Action:         ActionSubmitHandshakeCode,
		ActorID:        "user-b",
		Code:           "0000",
	}, fixedClock(at.Add(time.Minute)), nil)
	if err != nil {
		t.Fatalf("mismatch must produce a committed revert, got error %v", err)
	}
	if !result.HandshakeRejected {
		t.Fatal("expected handshake rejection flag")
	}
	reverted := result.Engagement
	if reverted.Status != StatusScheduled {
		t.Fatalf("status = %s, want %s", reverted.Status, StatusScheduled)
	}
	if reverted.Handshake != nil {
		t.Fatal("expected handshake cleared after mismatch")
	}
	if reverted.HandshakeFailures != 1 {
		t.Fatalf("handshake failures = %d, want 1", reverted.HandshakeFailures)
	}

	// A new start mints a fresh secret; the old one is gone.
	restarted := mustTransition(t, reverted, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, at.Add(2*time.Minute), sequentialCodes("5522"))
	if restarted.HandshakeCode != "5522" {
		t.Fatalf("restarted handshake code = %q, want 5522", restarted.HandshakeCode)
	}
}

func TestHandshakeCooldownAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	at := e.UpdatedAt.Add(24 * time.Hour)

	for i := 0; i < maxHandshakeFailures; i++ {
		started := mustTransition(t, e, TransitionInput{
			ExpectedStatus: StatusScheduled,
			Action:         ActionStartVerification,
			ActorID:        "user-a",
		}, at, sequentialCodes("9053"))
		result := mustTransition(t, started.Engagement, TransitionInput{
			ExpectedStatus: StatusVerificationPending,
			Action:         ActionSubmitHandshakeCode,
			ActorID:        "user-b",
			Code:           "0000",
		}, at.Add(time.Second), nil)
		if !result.HandshakeRejected {
			t.Fatalf("attempt %d: expected rejection", i+1)
		}
		e = result.Engagement
		at = at.Add(time.Minute)
	}

	if _, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, fixedClock(at), sequentialCodes("9053")); !apperrors.IsCode(err, apperrors.CodeEngagementVerificationCooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}

	// After the cooldown window the counter resets and verification resumes.
	later := at.Add(handshakeCooldown + time.Minute)
	restarted, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, fixedClock(later), sequentialCodes("7001"))
	if err != nil {
		t.Fatalf("start after cooldown: %v", err)
	}
	if restarted.Engagement.HandshakeFailures != 0 {
		t.Fatalf("failures after cooldown = %d, want 0", restarted.Engagement.HandshakeFailures)
	}
}

func TestConfirmationCodeCompletesFromInProgress(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	at := e.UpdatedAt.Add(24 * time.Hour)

	started := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, at, sequentialCodes("9053"))
	matched := mustTransition(t, started.Engagement, TransitionInput{
		ExpectedStatus: StatusVerificationPending,
		Action:         ActionSubmitHandshakeCode,
		ActorID:        "user-b",
		Code:           "9053",
	}, at.Add(time.Minute), nil)

	wrong, err := Transition(matched.Engagement, TransitionInput{
		ExpectedStatus: StatusInProgress,
		Action:         ActionSubmitConfirmationCode,
		ActorID:        "user-b",
		Code:           "0000",
	}, fixedClock(at.Add(2*time.Minute)), nil)
	if !apperrors.IsCode(err, apperrors.CodeEngagementCodeMismatch) {
		t.Fatalf("expected code mismatch, got %v (result %+v)", err, wrong)
	}

	completed := mustTransition(t, matched.Engagement, TransitionInput{
		ExpectedStatus: StatusInProgress,
		Action:         ActionSubmitConfirmationCode,
		ActorID:        "user-b",
		Code:           "4821",
	}, at.Add(3*time.Minute), nil)

	final := completed.Engagement
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", final.Status, StatusCompleted)
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
	if len(completed.Notifications) != 2 {
		t.Fatalf("completion notifications = %d, want 2", len(completed.Notifications))
	}
	recipients := map[string]bool{}
	for _, notif := range completed.Notifications {
		if notif.Kind != KindCompleted {
			t.Fatalf("unexpected kind %s", notif.Kind)
		}
		recipients[notif.RecipientID] = true
		if !strings.Contains(notif.PayloadJSON, `"code_confirmed":"true"`) {
			t.Fatalf("unexpected payload %s", notif.PayloadJSON)
		}
	}
	if !recipients["user-a"] || !recipients["user-b"] {
		t.Fatalf("expected both participants notified, got %v", recipients)
	}
}

func TestConfirmationCodeCompletesDirectlyFromScheduled(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	completed := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionSubmitConfirmationCode,
		ActorID:        "user-a",
		Code:           "4821",
	}, e.UpdatedAt.Add(time.Hour), nil)
	if completed.Engagement.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", completed.Engagement.Status, StatusCompleted)
	}
}

func TestCodelessCompleteOnlyFromInProgress(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	at := e.UpdatedAt.Add(time.Hour)

	if _, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionComplete,
		ActorID:        "user-a",
	}, fixedClock(at), nil); !apperrors.IsCode(err, apperrors.CodeEngagementInvalidTransition) {
		t.Fatalf("expected invalid transition for codeless complete from scheduled, got %v", err)
	}

	started := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-b",
	}, at, sequentialCodes("3311"))
	matched := mustTransition(t, started.Engagement, TransitionInput{
		ExpectedStatus: StatusVerificationPending,
		Action:         ActionSubmitHandshakeCode,
		ActorID:        "user-a",
		Code:           "3311",
	}, at.Add(time.Minute), nil)

	completed := mustTransition(t, matched.Engagement, TransitionInput{
		ExpectedStatus: StatusInProgress,
		Action:         ActionComplete,
		ActorID:        "user-b",
	}, at.Add(2*time.Minute), nil)
	if completed.Engagement.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", completed.Engagement.Status, StatusCompleted)
	}
	if len(completed.Notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(completed.Notifications))
	}
	if !strings.Contains(completed.Notifications[0].PayloadJSON, `"code_confirmed":"false"`) {
		t.Fatalf("unexpected payload %s", completed.Notifications[0].PayloadJSON)
	}
}

func TestCancelFromVerificationPendingClearsHandshake(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	at := e.UpdatedAt.Add(time.Hour)

	started := mustTransition(t, e, TransitionInput{
		ExpectedStatus: StatusScheduled,
		Action:         ActionStartVerification,
		ActorID:        "user-a",
	}, at, sequentialCodes("9440"))

	cancelled := mustTransition(t, started.Engagement, TransitionInput{
		ExpectedStatus: StatusVerificationPending,
		Action:         ActionCancel,
		ActorID:        "user-b",
	}, at.Add(time.Minute), nil)

	final := cancelled.Engagement
	if final.Status != StatusCancelled {
		t.Fatalf("status = %s, want %s", final.Status, StatusCancelled)
	}
	if final.Handshake != nil {
		t.Fatal("expected handshake cleared on cancel")
	}
	if final.CancelledBy != "user-b" {
		t.Fatalf("cancelled by = %q, want user-b", final.CancelledBy)
	}
	if len(cancelled.Notifications) != 1 || cancelled.Notifications[0].RecipientID != "user-a" || cancelled.Notifications[0].Kind != KindCancelled {
		t.Fatalf("unexpected notifications %+v", cancelled.Notifications)
	}
}

func TestExpectedStatusMismatchIsConflict(t *testing.T) {
	t.Parallel()

	e := scheduledEngagement(t)
	_, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusAccepted, // stale read
		Action:         ActionCancel,
		ActorID:        "user-a",
	}, fixedClock(e.UpdatedAt.Add(time.Minute)), nil)
	if !apperrors.IsCode(err, apperrors.CodeVersionConflict) {
		t.Fatalf("expected conflict for stale expected status, got %v", err)
	}
}

func TestNonParticipantRejected(t *testing.T) {
	t.Parallel()

	e := requestedEngagement()
	_, err := Transition(e, TransitionInput{
		ExpectedStatus: StatusRequested,
		Action:         ActionAccept,
		ActorID:        "user-z",
	}, fixedClock(e.CreatedAt.Add(time.Minute)), nil)
	if !apperrors.IsCode(err, apperrors.CodeEngagementActorNotAllowed) {
		t.Fatalf("expected actor-not-allowed for outsider, got %v", err)
	}
}

func TestStatusGraphEdges(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{StatusRequested, StatusAccepted},
		{StatusRequested, StatusDeclined},
		{StatusRequested, StatusWithdrawn},
		{StatusAccepted, StatusScheduled},
		{StatusAccepted, StatusCancelled},
		{StatusScheduled, StatusVerificationPending},
		{StatusScheduled, StatusCompleted},
		{StatusScheduled, StatusCancelled},
		{StatusVerificationPending, StatusInProgress},
		{StatusVerificationPending, StatusScheduled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, edge := range allowed {
		if !IsStatusTransitionAllowed(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusRequested, StatusScheduled},
		{StatusAccepted, StatusInProgress},
		{StatusScheduled, StatusAccepted},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusRequested},
		{StatusDeclined, StatusAccepted},
		{StatusWithdrawn, StatusRequested},
	}
	for _, edge := range denied {
		if IsStatusTransitionAllowed(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be denied", edge.from, edge.to)
		}
	}
}
