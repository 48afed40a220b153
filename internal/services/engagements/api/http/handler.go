// Package httpapi exposes the engagements service over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/tryst-app/tryst/internal/platform/errors"
	"github.com/tryst-app/tryst/internal/services/engagements/domain"
)

// Handler serves the engagements HTTP API.
type Handler struct {
	service *domain.Service
}

// NewHandler builds the HTTP handler for one engagements service.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// Router mounts all engagement routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Post("/engagements", h.createEngagement)
	r.Get("/engagements/{engagementID}", h.getEngagement)
	r.Post("/engagements/{engagementID}/transitions", h.applyTransition)
	r.Post("/engagements/{engagementID}/chat-ref", h.attachChatRef)
	r.Get("/participants/{participantID}/engagements", h.listEngagements)
	return r
}

type scheduleJSON struct {
	Day         string     `json:"day"`
	Time        string     `json:"time"`
	Activity    string     `json:"activity"`
	Venue       string     `json:"venue"`
	LocationRef string     `json:"location_ref,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
}

type engagementJSON struct {
	ID          string        `json:"id"`
	InitiatorID string        `json:"initiator_id"`
	RecipientID string        `json:"recipient_id"`
	Status      string        `json:"status"`
	Schedule    *scheduleJSON `json:"schedule,omitempty"`

	// ConfirmationCode is visible to both participants; HandshakeCode only
	// to the participant who started verification.
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	HandshakeCode    string `json:"handshake_code,omitempty"`

	ChatRef     string `json:"chat_ref,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
	Bucket      string `json:"bucket,omitempty"`

	CreatedAt             time.Time  `json:"created_at"`
	RespondedAt           *time.Time `json:"responded_at,omitempty"`
	ScheduledAt           *time.Time `json:"scheduled_at,omitempty"`
	VerificationStartedAt *time.Time `json:"verification_started_at,omitempty"`
	VerifiedAt            *time.Time `json:"verified_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	DeclinedAt            *time.Time `json:"declined_at,omitempty"`
	WithdrawnAt           *time.Time `json:"withdrawn_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`

	Version int64 `json:"version"`
}

func renderEngagement(e domain.Engagement, actorID string) engagementJSON {
	out := engagementJSON{
		ID:          e.ID,
		InitiatorID: e.InitiatorID,
		RecipientID: e.RecipientID,
		Status:      string(e.Status),
		ChatRef:     e.ChatRef,
		CancelledBy: e.CancelledBy,

		CreatedAt:             e.CreatedAt,
		RespondedAt:           e.RespondedAt,
		ScheduledAt:           e.ScheduledAt,
		VerificationStartedAt: e.VerificationStartedAt,
		VerifiedAt:            e.VerifiedAt,
		CompletedAt:           e.CompletedAt,
		DeclinedAt:            e.DeclinedAt,
		WithdrawnAt:           e.WithdrawnAt,
		CancelledAt:           e.CancelledAt,
		UpdatedAt:             e.UpdatedAt,

		Version: e.Version,
	}
	if e.Schedule != nil {
		out.Schedule = &scheduleJSON{
			Day:         e.Schedule.Day,
			Time:        e.Schedule.Time,
			Activity:    e.Schedule.Activity,
			Venue:       e.Schedule.Venue,
			LocationRef: e.Schedule.LocationRef,
			StartsAt:    e.Schedule.StartsAt,
		}
	}
	if e.Participant(actorID) {
		out.ConfirmationCode = e.ConfirmationCode
	}
	if e.Handshake != nil && actorID == e.Handshake.InitiatedBy {
		out.HandshakeCode = e.Handshake.Code
	}
	return out
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type createEngagementRequest struct {
	InitiatorID string `json:"initiator_id"`
	RecipientID string `json:"recipient_id"`
}

func (h *Handler) createEngagement(w http.ResponseWriter, r *http.Request) {
	var req createEngagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be valid JSON")
		return
	}

	engagement, err := h.service.Create(r.Context(), domain.CreateEngagementInput{
		InitiatorID: req.InitiatorID,
		RecipientID: req.RecipientID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderEngagement(engagement, engagement.InitiatorID))
}

func (h *Handler) getEngagement(w http.ResponseWriter, r *http.Request) {
	actorID := strings.TrimSpace(r.URL.Query().Get("actor_id"))
	if actorID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "actor_id query parameter is required")
		return
	}

	engagement, err := h.service.Get(r.Context(), chi.URLParam(r, "engagementID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !engagement.Participant(actorID) {
		writeError(w, domain.ErrActorNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, renderEngagement(engagement, actorID))
}

type transitionRequest struct {
	ExpectedStatus string        `json:"expected_status"`
	Action         string        `json:"action"`
	ActorID        string        `json:"actor_id"`
	Schedule       *scheduleJSON `json:"schedule,omitempty"`
	Code           string        `json:"code,omitempty"`
}

type transitionResponse struct {
	Engagement engagementJSON `json:"engagement"`

	// HandshakeCode is returned once, to the participant who started
	// verification, and must be spoken to the other party in person.
	HandshakeCode string `json:"handshake_code,omitempty"`
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be valid JSON")
		return
	}

	expectedStatus, ok := domain.StatusFromLabel(req.ExpectedStatus)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "unknown expected_status")
		return
	}
	action, ok := domain.ActionFromLabel(req.Action)
	if !ok {
		writeError(w, domain.ErrInvalidAction)
		return
	}

	input := domain.TransitionInput{
		ExpectedStatus: expectedStatus,
		Action:         action,
		ActorID:        strings.TrimSpace(req.ActorID),
		Code:           strings.TrimSpace(req.Code),
	}
	if req.Schedule != nil {
		input.Schedule = &domain.Schedule{
			Day:         req.Schedule.Day,
			Time:        req.Schedule.Time,
			Activity:    req.Schedule.Activity,
			Venue:       req.Schedule.Venue,
			LocationRef: req.Schedule.LocationRef,
			StartsAt:    req.Schedule.StartsAt,
		}
	}

	result, err := h.service.ApplyTransition(r.Context(), chi.URLParam(r, "engagementID"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResponse{
		Engagement:    renderEngagement(result.Engagement, input.ActorID),
		HandshakeCode: result.HandshakeCode,
	})
}

type attachChatRefRequest struct {
	ActorID string `json:"actor_id"`
	ChatRef string `json:"chat_ref"`
}

func (h *Handler) attachChatRef(w http.ResponseWriter, r *http.Request) {
	var req attachChatRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be valid JSON")
		return
	}

	engagement, err := h.service.AttachChatRef(r.Context(), chi.URLParam(r, "engagementID"), strings.TrimSpace(req.ActorID), req.ChatRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderEngagement(engagement, strings.TrimSpace(req.ActorID)))
}

type listEngagementsResponse struct {
	Engagements   []engagementJSON `json:"engagements"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

func (h *Handler) listEngagements(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	pageSize := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "page_size must be an integer")
			return
		}
		pageSize = parsed
	}

	page, err := h.service.ListForParticipant(r.Context(), participantID, pageSize, r.URL.Query().Get("page_token"))
	if err != nil {
		writeError(w, err)
		return
	}

	now := h.service.Now()
	out := listEngagementsResponse{
		Engagements:   make([]engagementJSON, 0, len(page.Engagements)),
		NextPageToken: page.NextPageToken,
	}
	for _, engagement := range page.Engagements {
		rendered := renderEngagement(engagement, participantID)
		rendered.Bucket = string(domain.Classify(engagement, now))
		out.Engagements = append(out.Engagements, rendered)
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()

	message := "internal error"
	var metadata map[string]string
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		metadata = domainErr.Metadata
	} else {
		log.Printf("engagements api: %v", err)
	}

	writeJSON(w, status, errorResponse{
		Code:     string(code),
		Message:  message,
		Metadata: metadata,
	})
}

func writeErrorMessage(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
