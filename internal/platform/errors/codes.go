package errors

import (
	stderrors "errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Engagement validation errors
	CodeEngagementEmptyParticipantID Code = "ENGAGEMENT_EMPTY_PARTICIPANT_ID"
	CodeEngagementParticipantsEqual  Code = "ENGAGEMENT_PARTICIPANTS_EQUAL"
	CodeEngagementScheduleRequired   Code = "ENGAGEMENT_SCHEDULE_REQUIRED"
	CodeEngagementCodeRequired       Code = "ENGAGEMENT_CODE_REQUIRED"
	CodeEngagementEmptyChatRef       Code = "ENGAGEMENT_EMPTY_CHAT_REF"
	CodeEngagementInvalidAction      Code = "ENGAGEMENT_INVALID_ACTION"

	// Lifecycle errors
	CodeEngagementInvalidTransition    Code = "ENGAGEMENT_INVALID_TRANSITION"
	CodeEngagementActorNotAllowed      Code = "ENGAGEMENT_ACTOR_NOT_ALLOWED"
	CodeEngagementCodeMismatch         Code = "ENGAGEMENT_CODE_MISMATCH"
	CodeEngagementVerificationCooldown Code = "ENGAGEMENT_VERIFICATION_COOLDOWN"
	CodeEngagementChatRefAlreadySet    Code = "ENGAGEMENT_CHAT_REF_ALREADY_SET"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"
)

// HTTPStatus maps domain codes to HTTP response status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, malformed input
	case CodeEngagementEmptyParticipantID,
		CodeEngagementParticipantsEqual,
		CodeEngagementScheduleRequired,
		CodeEngagementCodeRequired,
		CodeEngagementEmptyChatRef,
		CodeEngagementInvalidAction:
		return http.StatusBadRequest

	// Forbidden - the acting participant may not perform this action
	case CodeEngagementActorNotAllowed:
		return http.StatusForbidden

	// Conflict - concurrent write race or one-shot field already set
	case CodeVersionConflict,
		CodeEngagementChatRefAlreadySet:
		return http.StatusConflict

	// Unprocessable - state does not allow the operation
	case CodeEngagementInvalidTransition,
		CodeEngagementCodeMismatch:
		return http.StatusUnprocessableEntity

	case CodeEngagementVerificationCooldown:
		return http.StatusTooManyRequests

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
