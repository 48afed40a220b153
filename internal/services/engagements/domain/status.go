package domain

import "strings"

// Status describes the engagement lifecycle label used by domain decisions.
type Status string

const (
	StatusUnspecified         Status = ""
	StatusRequested           Status = "requested"
	StatusAccepted            Status = "accepted"
	StatusDeclined            Status = "declined"
	StatusWithdrawn           Status = "withdrawn"
	StatusScheduled           Status = "scheduled"
	StatusVerificationPending Status = "verification_pending"
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
)

// StatusFromLabel canonicalizes a status label supplied by a client.
func StatusFromLabel(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "requested":
		return StatusRequested, true
	case "accepted":
		return StatusAccepted, true
	case "declined":
		return StatusDeclined, true
	case "withdrawn":
		return StatusWithdrawn, true
	case "scheduled":
		return StatusScheduled, true
	case "verification_pending":
		return StatusVerificationPending, true
	case "in_progress":
		return StatusInProgress, true
	case "completed":
		return StatusCompleted, true
	case "cancelled":
		return StatusCancelled, true
	default:
		return StatusUnspecified, false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDeclined, StatusWithdrawn, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// isStatusTransitionAllowed enforces valid engagement lifecycle edges.
func isStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusRequested:
		return to == StatusAccepted || to == StatusDeclined || to == StatusWithdrawn || to == StatusCancelled
	case StatusAccepted:
		return to == StatusScheduled || to == StatusCancelled
	case StatusScheduled:
		return to == StatusVerificationPending || to == StatusCompleted || to == StatusCancelled
	case StatusVerificationPending:
		return to == StatusInProgress || to == StatusScheduled || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// IsStatusTransitionAllowed reports whether a status transition is permitted.
func IsStatusTransitionAllowed(from, to Status) bool {
	return isStatusTransitionAllowed(from, to)
}

// Action identifies one participant request against an engagement.
type Action string

const (
	ActionUnspecified            Action = ""
	ActionAccept                 Action = "accept"
	ActionDecline                Action = "decline"
	ActionWithdraw               Action = "withdraw"
	ActionSchedule               Action = "schedule"
	ActionCancel                 Action = "cancel"
	ActionStartVerification      Action = "start_verification"
	ActionSubmitHandshakeCode    Action = "submit_handshake_code"
	ActionSubmitConfirmationCode Action = "submit_confirmation_code"
	ActionComplete               Action = "complete"
)

// ActionFromLabel canonicalizes an action label supplied by a client.
func ActionFromLabel(value string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "accept":
		return ActionAccept, true
	case "decline":
		return ActionDecline, true
	case "withdraw":
		return ActionWithdraw, true
	case "schedule":
		return ActionSchedule, true
	case "cancel":
		return ActionCancel, true
	case "start_verification":
		return ActionStartVerification, true
	case "submit_handshake_code":
		return ActionSubmitHandshakeCode, true
	case "submit_confirmation_code":
		return ActionSubmitConfirmationCode, true
	case "complete":
		return ActionComplete, true
	default:
		return ActionUnspecified, false
	}
}
