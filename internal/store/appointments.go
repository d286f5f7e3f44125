package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
)

// MaxAppointmentSpan bounds how far before a window an occupying appointment
// can start and still reach into it.
const MaxAppointmentSpan = domain.MaxDurationMinutes * time.Minute

type ListFilter struct {
	ProviderID      *uuid.UUID
	SeekerID        *uuid.UUID
	Statuses        []domain.Status
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
	Limit           int
	Offset          int
}

type StatsFilter struct {
	ProviderID *uuid.UUID
	SeekerID   *uuid.UUID
	From       *time.Time
	To         *time.Time
}

type StatusCount struct {
	Status domain.Status `bun:"status"`
	Count  int           `bun:"count"`
}

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, f ListFilter) ([]domain.Appointment, int, error)
	ListOccupying(ctx context.Context, providerID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	CountByStatus(ctx context.Context, f StatsFilter) ([]StatusCount, error)
	ArchiveForAccount(ctx context.Context, accountID uuid.UUID) (int, error)

	// InProviderTransaction runs fn in a single transaction that is serialized
	// against every other transaction for the same provider. Writes made
	// through tx commit together when fn returns nil and are discarded otherwise.
	InProviderTransaction(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListOccupying returns the provider's appointments in an occupying status
	// whose interval intersects [windowStart, windowEnd).
	ListOccupying(ctx context.Context, providerID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	// InsertAppointment never returns a pre-existing row: an id that is already
	// taken, including by a transaction that commits first, fails with
	// ErrIdempotencyConflict.
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}

type AccountResolver interface {
	ResolveAccount(ctx context.Context, id uuid.UUID) (domain.Account, error)
}
