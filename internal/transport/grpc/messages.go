package grpc

import "google.golang.org/protobuf/types/known/timestamppb"

type Appointment struct {
	ID               string                 `json:"id"`
	ProviderID       string                 `json:"provider_id"`
	SeekerID         string                 `json:"seeker_id"`
	StartTime        *timestamppb.Timestamp `json:"start_time"`
	EndTime          *timestamppb.Timestamp `json:"end_time"`
	DurationMinutes  int32                  `json:"duration_minutes"`
	Status           string                 `json:"status"`
	Type             string                 `json:"type"`
	Reason           string                 `json:"reason,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	IsEmergency      bool                   `json:"is_emergency"`
	RescheduledFrom  string                 `json:"rescheduled_from,omitempty"`
	RescheduleReason string                 `json:"reschedule_reason,omitempty"`
	Cancellation     *Cancellation          `json:"cancellation,omitempty"`
	Completion       *Completion            `json:"completion,omitempty"`
	Archived         bool                   `json:"archived"`
	CreatedAt        *timestamppb.Timestamp `json:"created_at"`
	UpdatedAt        *timestamppb.Timestamp `json:"updated_at"`
}

type Cancellation struct {
	CancelledBy     string                 `json:"cancelled_by"`
	CancelledByRole string                 `json:"cancelled_by_role"`
	Reason          string                 `json:"reason,omitempty"`
	CancelledAt     *timestamppb.Timestamp `json:"cancelled_at"`
}

type Completion struct {
	ClinicalNotes    string                 `json:"clinical_notes,omitempty"`
	Diagnosis        string                 `json:"diagnosis,omitempty"`
	Prescription     string                 `json:"prescription,omitempty"`
	FollowUpRequired bool                   `json:"follow_up_required"`
	FollowUpAt       *timestamppb.Timestamp `json:"follow_up_at,omitempty"`
	CompletedAt      *timestamppb.Timestamp `json:"completed_at"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type CreateAppointmentRequest struct {
	ProviderID      string                 `json:"provider_id"`
	SeekerID        string                 `json:"seeker_id"`
	StartTime       *timestamppb.Timestamp `json:"start_time"`
	DurationMinutes int32                  `json:"duration_minutes"`
	Type            string                 `json:"type,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	IsEmergency     bool                   `json:"is_emergency,omitempty"`
}

type GetAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type ListAppointmentsRequest struct {
	ProviderID      string                 `json:"provider_id,omitempty"`
	SeekerID        string                 `json:"seeker_id,omitempty"`
	Statuses        []string               `json:"statuses,omitempty"`
	From            *timestamppb.Timestamp `json:"from,omitempty"`
	To              *timestamppb.Timestamp `json:"to,omitempty"`
	IncludeArchived bool                   `json:"include_archived,omitempty"`
	Limit           int32                  `json:"limit,omitempty"`
	Offset          int32                  `json:"offset,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Total        int32          `json:"total"`
	Limit        int32          `json:"limit"`
	Offset       int32          `json:"offset"`
}

// UpdateAppointmentRequest leaves absent fields unchanged.
type UpdateAppointmentRequest struct {
	AppointmentID string  `json:"appointment_id"`
	Type          *string `json:"type,omitempty"`
	Reason        *string `json:"reason,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

type RescheduleAppointmentRequest struct {
	AppointmentID string                 `json:"appointment_id"`
	NewStartTime  *timestamppb.Timestamp `json:"new_start_time"`
	Reason        string                 `json:"reason,omitempty"`
}

type RescheduleAppointmentResponse struct {
	Original    *Appointment `json:"original"`
	Replacement *Appointment `json:"replacement"`
}

type CompleteAppointmentRequest struct {
	AppointmentID    string                 `json:"appointment_id"`
	ClinicalNotes    string                 `json:"clinical_notes,omitempty"`
	Diagnosis        string                 `json:"diagnosis,omitempty"`
	Prescription     string                 `json:"prescription,omitempty"`
	FollowUpRequired bool                   `json:"follow_up_required,omitempty"`
	FollowUpAt       *timestamppb.Timestamp `json:"follow_up_at,omitempty"`
}

// TransitionRequest drives the status-only transitions: confirm, start and
// mark missed.
type TransitionRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type GetAvailabilityRequest struct {
	ProviderID       string                 `json:"provider_id"`
	From             *timestamppb.Timestamp `json:"from"`
	To               *timestamppb.Timestamp `json:"to"`
	IncludeFreeSlots bool                   `json:"include_free_slots,omitempty"`
	SlotMinutes      int32                  `json:"slot_minutes,omitempty"`
}

type Slot struct {
	Start *timestamppb.Timestamp `json:"start"`
	End   *timestamppb.Timestamp `json:"end"`
}

type OccupiedSlot struct {
	AppointmentID string                 `json:"appointment_id"`
	Status        string                 `json:"status"`
	Start         *timestamppb.Timestamp `json:"start"`
	End           *timestamppb.Timestamp `json:"end"`
}

type GetAvailabilityResponse struct {
	ProviderID string                 `json:"provider_id"`
	From       *timestamppb.Timestamp `json:"from"`
	To         *timestamppb.Timestamp `json:"to"`
	Occupied   []*OccupiedSlot        `json:"occupied"`
	FreeSlots  []*Slot                `json:"free_slots,omitempty"`
}

type GetStatisticsRequest struct {
	ProviderID string                 `json:"provider_id,omitempty"`
	SeekerID   string                 `json:"seeker_id,omitempty"`
	From       *timestamppb.Timestamp `json:"from,omitempty"`
	To         *timestamppb.Timestamp `json:"to,omitempty"`
}

type GetStatisticsResponse struct {
	Total    int32            `json:"total"`
	ByStatus map[string]int32 `json:"by_status"`
	Upcoming int32            `json:"upcoming"`
}

type ArchiveAccountAppointmentsRequest struct {
	AccountID string `json:"account_id"`
}

type ArchiveAccountAppointmentsResponse struct {
	Archived int32 `json:"archived"`
}
