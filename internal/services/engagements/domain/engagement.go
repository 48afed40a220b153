// Package domain implements the pairwise engagement lifecycle: guarded status
// transitions, the dual-phase verification codes, and display classification.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/tryst-app/tryst/internal/platform/errors"
	"github.com/tryst-app/tryst/internal/platform/id"
)

var (
	// ErrEmptyParticipantID indicates a missing participant identity.
	ErrEmptyParticipantID = apperrors.New(apperrors.CodeEngagementEmptyParticipantID, "participant id is required")
	// ErrParticipantsEqual indicates the initiator and recipient are the same identity.
	ErrParticipantsEqual = apperrors.New(apperrors.CodeEngagementParticipantsEqual, "initiator and recipient must differ")
)

// Schedule captures the agreed date plan. StartsAt is optional; display
// fields carry whatever the participants typed.
type Schedule struct {
	Day         string
	Time        string
	Activity    string
	Venue       string
	LocationRef string
	StartsAt    *time.Time
}

// Handshake is the ephemeral co-presence secret, present only while the
// engagement is in StatusVerificationPending.
type Handshake struct {
	Code        string
	InitiatedBy string
}

// Engagement is the pairwise date-proposal record and its lifecycle state.
type Engagement struct {
	ID          string
	InitiatorID string
	RecipientID string
	Status      Status

	Schedule         *Schedule
	ConfirmationCode string
	Handshake        *Handshake
	ChatRef          string
	CancelledBy      string

	// HandshakeFailures counts consecutive failed handshake submissions and
	// resets on success; StartVerification refuses once the bound is hit
	// until the cooldown after LastHandshakeFailureAt elapses.
	HandshakeFailures      int
	LastHandshakeFailureAt *time.Time

	CreatedAt             time.Time
	RespondedAt           *time.Time
	ScheduledAt           *time.Time
	VerificationStartedAt *time.Time
	VerifiedAt            *time.Time
	CompletedAt           *time.Time
	DeclinedAt            *time.Time
	WithdrawnAt           *time.Time
	CancelledAt           *time.Time
	UpdatedAt             time.Time

	Version int64
}

// Participant reports whether userID is one of the two engagement parties.
func (e Engagement) Participant(userID string) bool {
	return userID != "" && (userID == e.InitiatorID || userID == e.RecipientID)
}

// Counterpart returns the other participant's id, or "" for a non-participant.
func (e Engagement) Counterpart(userID string) string {
	switch userID {
	case e.InitiatorID:
		return e.RecipientID
	case e.RecipientID:
		return e.InitiatorID
	default:
		return ""
	}
}

// CreateEngagementInput describes the identities needed to open an engagement.
type CreateEngagementInput struct {
	InitiatorID string
	RecipientID string
}

// CreateEngagement creates a new requested engagement with a generated ID.
func CreateEngagement(input CreateEngagementInput, now func() time.Time, idGenerator func() (string, error)) (Engagement, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateEngagementInput(input)
	if err != nil {
		return Engagement{}, err
	}

	engagementID, err := idGenerator()
	if err != nil {
		return Engagement{}, fmt.Errorf("generate engagement id: %w", err)
	}

	createdAt := now().UTC()
	return Engagement{
		ID:          engagementID,
		InitiatorID: normalized.InitiatorID,
		RecipientID: normalized.RecipientID,
		Status:      StatusRequested,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Version:     1,
	}, nil
}

// NormalizeCreateEngagementInput trims and validates participant identities.
func NormalizeCreateEngagementInput(input CreateEngagementInput) (CreateEngagementInput, error) {
	input.InitiatorID = strings.TrimSpace(input.InitiatorID)
	if input.InitiatorID == "" {
		return CreateEngagementInput{}, ErrEmptyParticipantID
	}
	input.RecipientID = strings.TrimSpace(input.RecipientID)
	if input.RecipientID == "" {
		return CreateEngagementInput{}, ErrEmptyParticipantID
	}
	if input.InitiatorID == input.RecipientID {
		return CreateEngagementInput{}, ErrParticipantsEqual
	}
	return input, nil
}
