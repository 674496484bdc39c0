package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/guestpass-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRegistrationCreated          EventType = "registration_created"
	EventRegistrationSubmitted        EventType = "registration_submitted"
	EventRegistrationSubmissionFailed EventType = "registration_submission_failed"
	EventRegistrationFlagsChanged     EventType = "registration_flags_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID      string `json:"id"`
	Trigger string `json:"trigger"`
}

// ActorFrom converts a lifecycle actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{ID: a.ID, Trigger: a.Trigger()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	RegistrationID string    `json:"registration_id"`
	OwnerID        string    `json:"owner_id"`
	Actor          Actor     `json:"actor"`
	Timestamp      time.Time `json:"timestamp"`
	Payload        any       `json:"payload"`
}

// NewEvent stamps a fresh event id.
func NewEvent(t EventType, reg *domain.Registration, actor domain.Actor, at time.Time, payload any) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		RegistrationID: reg.ID,
		OwnerID:        reg.OwnerID,
		Actor:          ActorFrom(actor),
		Timestamp:      at,
		Payload:        payload,
	}
}

// RegistrationSubmittedPayload payload.
type RegistrationSubmittedPayload struct {
	ExpiresAt       time.Time `json:"expires_at"`
	SubmissionCount int       `json:"submission_count"`
	Detail          string    `json:"detail,omitempty"`
}

// RegistrationSubmissionFailedPayload payload.
type RegistrationSubmissionFailedPayload struct {
	Detail string `json:"detail"`
}

// RegistrationFlagsChangedPayload payload.
type RegistrationFlagsChangedPayload struct {
	IsActive       bool `json:"is_active"`
	AutoReregister bool `json:"auto_reregister"`
}
