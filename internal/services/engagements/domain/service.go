package domain

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/tryst-app/tryst/internal/platform/errors"
	"github.com/tryst-app/tryst/internal/platform/id"
	"github.com/tryst-app/tryst/internal/platform/pagination"
)

// tracer resolves against the global provider installed by the otel platform
// setup, so spans flow once telemetry is wired and no-op otherwise.
var tracer = otel.Tracer("github.com/tryst-app/tryst/internal/services/engagements/domain")

var (
	// ErrNotFound indicates an unknown engagement id.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "engagement not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = apperrors.New(apperrors.CodeUnknown, "engagement store is not configured")
	// ErrEmptyChatRef indicates a missing chat channel reference.
	ErrEmptyChatRef = apperrors.New(apperrors.CodeEngagementEmptyChatRef, "chat ref is required")
	// ErrChatRefAlreadySet indicates the chat channel was already attached.
	ErrChatRefAlreadySet = apperrors.New(apperrors.CodeEngagementChatRefAlreadySet, "chat ref is already attached")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// EngagementPage is one page of a participant's engagements, newest first.
type EngagementPage struct {
	Engagements   []Engagement
	NextPageToken string
}

// Store is the domain persistence boundary for engagement lifecycle state.
// UpdateEngagement must persist the engagement and enqueue the notifications
// in one transaction, guarded by expectedVersion; a stale version yields
// ErrConflict and nothing is written.
type Store interface {
	CreateEngagement(ctx context.Context, engagement Engagement) error
	GetEngagement(ctx context.Context, engagementID string) (Engagement, error)
	UpdateEngagement(ctx context.Context, engagement Engagement, expectedVersion int64, notifications []Notification) error
	ListEngagementsByParticipant(ctx context.Context, participantID string, pageSize int, pageToken string) (EngagementPage, error)
}

// Service orchestrates engagement lifecycle use-cases over a Store.
type Service struct {
	store         Store
	clock         func() time.Time
	newID         func() (string, error)
	codeGenerator func() (string, error)
}

// NewService constructs engagement domain use-cases. Nil clock, id, and code
// generators fall back to production defaults.
func NewService(store Store, clock func() time.Time, newID func() (string, error), codeGenerator func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	if codeGenerator == nil {
		codeGenerator = NewVerificationCode
	}
	return &Service{
		store:         store,
		clock:         clock,
		newID:         newID,
		codeGenerator: codeGenerator,
	}
}

// Create opens a new requested engagement between two distinct participants.
func (s *Service) Create(ctx context.Context, input CreateEngagementInput) (Engagement, error) {
	if s == nil || s.store == nil {
		return Engagement{}, ErrStoreNotConfigured
	}
	engagement, err := CreateEngagement(input, s.clock, s.newID)
	if err != nil {
		return Engagement{}, err
	}
	if err := s.store.CreateEngagement(ctx, engagement); err != nil {
		return Engagement{}, err
	}
	return engagement, nil
}

// Get returns one engagement by id.
func (s *Service) Get(ctx context.Context, engagementID string) (Engagement, error) {
	if s == nil || s.store == nil {
		return Engagement{}, ErrStoreNotConfigured
	}
	engagementID = strings.TrimSpace(engagementID)
	if engagementID == "" {
		return Engagement{}, ErrNotFound
	}
	return s.store.GetEngagement(ctx, engagementID)
}

// ApplyTransition executes one guarded transition and persists it atomically
// together with its notification side effects. Concurrent writers lose with
// ErrConflict and must refetch and retry; state is never silently overwritten.
func (s *Service) ApplyTransition(ctx context.Context, engagementID string, input TransitionInput) (TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "engagements.ApplyTransition", trace.WithAttributes(
		attribute.String("engagement.id", engagementID),
		attribute.String("engagement.action", string(input.Action)),
	))
	defer span.End()

	result, err := s.applyTransition(ctx, engagementID, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(apperrors.GetCode(err)))
		return TransitionResult{}, err
	}
	span.SetAttributes(attribute.String("engagement.status", string(result.Engagement.Status)))
	return result, nil
}

func (s *Service) applyTransition(ctx context.Context, engagementID string, input TransitionInput) (TransitionResult, error) {
	if s == nil || s.store == nil {
		return TransitionResult{}, ErrStoreNotConfigured
	}
	engagement, err := s.Get(ctx, engagementID)
	if err != nil {
		return TransitionResult{}, err
	}

	expectedVersion := engagement.Version
	result, err := Transition(engagement, input, s.clock, s.codeGenerator)
	if err != nil {
		return TransitionResult{}, err
	}

	if err := s.store.UpdateEngagement(ctx, result.Engagement, expectedVersion, result.Notifications); err != nil {
		return TransitionResult{}, err
	}

	if result.HandshakeRejected {
		// The revert to Scheduled is committed; the caller still receives a
		// mismatch error so the UI can prompt for a fresh handshake.
		return TransitionResult{}, apperrors.WithMetadata(
			apperrors.CodeEngagementCodeMismatch,
			"handshake code does not match",
			map[string]string{"status": string(result.Engagement.Status)},
		)
	}
	return result, nil
}

// AttachChatRef records the external chat channel reference exactly once.
// The chat channel itself is owned by the chat collaborator; this core only
// stores the reference.
func (s *Service) AttachChatRef(ctx context.Context, engagementID string, actorID string, chatRef string) (Engagement, error) {
	if s == nil || s.store == nil {
		return Engagement{}, ErrStoreNotConfigured
	}
	chatRef = strings.TrimSpace(chatRef)
	if chatRef == "" {
		return Engagement{}, ErrEmptyChatRef
	}

	engagement, err := s.Get(ctx, engagementID)
	if err != nil {
		return Engagement{}, err
	}
	actorID = strings.TrimSpace(actorID)
	if !engagement.Participant(actorID) {
		return Engagement{}, ErrActorNotAllowed
	}
	// Legal any time after acceptance, independent of lifecycle position.
	if engagement.RespondedAt == nil || engagement.Status == StatusDeclined || engagement.Status == StatusWithdrawn {
		return Engagement{}, invalidTransition("attach_chat_ref", engagement.Status)
	}
	if engagement.ChatRef != "" {
		return Engagement{}, ErrChatRefAlreadySet
	}

	expectedVersion := engagement.Version
	engagement.ChatRef = chatRef
	engagement.UpdatedAt = s.clock().UTC()
	engagement.Version++
	if err := s.store.UpdateEngagement(ctx, engagement, expectedVersion, nil); err != nil {
		return Engagement{}, err
	}
	return engagement, nil
}

// ListForParticipant returns one page of a participant's engagements.
func (s *Service) ListForParticipant(ctx context.Context, participantID string, pageSize int, pageToken string) (EngagementPage, error) {
	if s == nil || s.store == nil {
		return EngagementPage{}, ErrStoreNotConfigured
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return EngagementPage{}, ErrEmptyParticipantID
	}
	clamped := pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultPageSize,
		Max:     maxPageSize,
	})
	return s.store.ListEngagementsByParticipant(ctx, participantID, clamped, strings.TrimSpace(pageToken))
}

// Now exposes the service clock for read-side classification.
func (s *Service) Now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
