package notify

import (
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
)

type EventType string

const (
	EventCreated     EventType = "appointment.created"
	EventRescheduled EventType = "appointment.rescheduled"
	EventCancelled   EventType = "appointment.cancelled"
	EventCompleted   EventType = "appointment.completed"
	EventConfirmed   EventType = "appointment.confirmed"
	EventStarted     EventType = "appointment.started"
	EventMissed      EventType = "appointment.missed"
)

type Event struct {
	ID                    uuid.UUID              `json:"id"`
	Type                  EventType              `json:"type"`
	OccurredAt            time.Time              `json:"occurred_at"`
	AppointmentID         uuid.UUID              `json:"appointment_id"`
	ProviderID            uuid.UUID              `json:"provider_id"`
	SeekerID              uuid.UUID              `json:"seeker_id"`
	Status                domain.Status          `json:"status"`
	AppointmentType       domain.AppointmentType `json:"appointment_type"`
	StartTime             time.Time              `json:"start_time"`
	DurationMinutes       int                    `json:"duration_minutes"`
	IsEmergency           bool                   `json:"is_emergency"`
	PreviousAppointmentID *uuid.UUID             `json:"previous_appointment_id,omitempty"`
	Reason                string                 `json:"reason,omitempty"`
}

func NewEvent(t EventType, a domain.Appointment, occurredAt time.Time) Event {
	return Event{
		ID:                    uuid.New(),
		Type:                  t,
		OccurredAt:            occurredAt.UTC(),
		AppointmentID:         a.ID,
		ProviderID:            a.ProviderID,
		SeekerID:              a.SeekerID,
		Status:                a.Status,
		AppointmentType:       a.Type,
		StartTime:             a.StartTime.UTC(),
		DurationMinutes:       a.DurationMinutes,
		IsEmergency:           a.IsEmergency,
		PreviousAppointmentID: a.RescheduledFrom,
		Reason:                eventReason(t, a),
	}
}

func eventReason(t EventType, a domain.Appointment) string {
	if t == EventCancelled {
		return a.CancellationReason
	}
	return ""
}
