package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusMissed      Status = "missed"
	StatusRescheduled Status = "rescheduled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusMissed, StatusRescheduled:
		return true
	}
	return false
}

// Occupying reports whether an appointment in this status counts against the
// provider's availability.
func (s Status) Occupying() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusMissed, StatusRescheduled:
		return true
	}
	return false
}

func OccupyingStatuses() []Status {
	return []Status{StatusScheduled, StatusConfirmed, StatusInProgress}
}

func AllStatuses() []Status {
	return []Status{
		StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusCancelled, StatusMissed, StatusRescheduled,
	}
}

type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow_up"
	TypeEmergency      AppointmentType = "emergency"
	TypeRoutineCheckup AppointmentType = "routine_checkup"
	TypeProcedure      AppointmentType = "procedure"
)

func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheckup, TypeProcedure:
		return true
	}
	return false
}

const (
	MinDurationMinutes  = 15
	MaxDurationMinutes  = 240
	DurationStepMinutes = 15
)

func ValidDuration(minutes int) bool {
	return minutes >= MinDurationMinutes && minutes <= MaxDurationMinutes && minutes%DurationStepMinutes == 0
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid"`
	ProviderID      uuid.UUID       `bun:"provider_id,notnull,type:uuid"`
	SeekerID        uuid.UUID       `bun:"seeker_id,notnull,type:uuid"`
	StartTime       time.Time       `bun:"start_time,notnull"`
	DurationMinutes int             `bun:"duration_minutes,notnull"`
	Status          Status          `bun:"status,notnull"`
	Type            AppointmentType `bun:"type,notnull"`
	Reason          string          `bun:"reason"`
	Notes           string          `bun:"notes"`
	IsEmergency     bool            `bun:"is_emergency,notnull"`
	RescheduledFrom *uuid.UUID      `bun:"rescheduled_from,type:uuid"`

	// RescheduleReason is set on the replacement appointment.
	RescheduleReason string `bun:"reschedule_reason"`

	CancelledBy        *uuid.UUID `bun:"cancelled_by,type:uuid"`
	CancelledByRole    Role       `bun:"cancelled_by_role,nullzero"`
	CancellationReason string     `bun:"cancellation_reason"`
	CancelledAt        *time.Time `bun:"cancelled_at"`

	ClinicalNotes    string     `bun:"clinical_notes"`
	Diagnosis        string     `bun:"diagnosis"`
	Prescription     string     `bun:"prescription"`
	FollowUpRequired bool       `bun:"follow_up_required,notnull"`
	FollowUpAt       *time.Time `bun:"follow_up_at"`
	CompletedAt      *time.Time `bun:"completed_at"`

	Archived  bool      `bun:"archived,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// EndTime is derived; it is never stored.
func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(a.Duration())
}

func (a Appointment) OverlapsWith(start time.Time, d time.Duration) bool {
	return Overlaps(a.StartTime, a.Duration(), start, d)
}

// SameBooking reports whether b carries the same booking request as a. Used to
// tell an idempotent retry apart from a key reused for a different booking.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.ProviderID == b.ProviderID &&
		a.SeekerID == b.SeekerID &&
		a.StartTime.Equal(b.StartTime) &&
		a.DurationMinutes == b.DurationMinutes &&
		a.Type == b.Type &&
		a.Reason == b.Reason &&
		a.IsEmergency == b.IsEmergency
}

func (a Appointment) HasParty(id uuid.UUID) bool {
	return a.ProviderID == id || a.SeekerID == id
}

type CompletionDetails struct {
	ClinicalNotes    string
	Diagnosis        string
	Prescription     string
	FollowUpRequired bool
	FollowUpAt       *time.Time
}
