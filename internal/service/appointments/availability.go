package appointments

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
)

// ClockTime is a wall-clock time of day in the working-hours location.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) on(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// WorkingHours is the template free slots are cut from.
type WorkingHours struct {
	DayStart    ClockTime
	DayEnd      ClockTime
	SlotMinutes int
	Weekdays    []time.Weekday
	Location    *time.Location
}

func DefaultWorkingHours() WorkingHours {
	return WorkingHours{
		DayStart:    ClockTime{Hour: 9},
		DayEnd:      ClockTime{Hour: 17},
		SlotMinutes: 30,
		Weekdays:    []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Location:    time.UTC,
	}
}

func (w WorkingHours) Validate() error {
	if w.DayEnd.minutes() <= w.DayStart.minutes() {
		return fmt.Errorf("working day must end after it starts")
	}
	if !domain.ValidDuration(w.SlotMinutes) {
		return fmt.Errorf("slot length %d is not a valid appointment duration", w.SlotMinutes)
	}
	if len(w.Weekdays) == 0 {
		return fmt.Errorf("at least one working weekday is required")
	}
	return nil
}

type AvailabilityInput struct {
	ProviderID       uuid.UUID
	From             time.Time
	To               time.Time
	IncludeFreeSlots bool
	// SlotMinutes overrides the template's slot length when set.
	SlotMinutes int
}

type OccupiedInterval struct {
	AppointmentID uuid.UUID
	Status        domain.Status
	domain.Interval
}

type Availability struct {
	ProviderID uuid.UUID
	From       time.Time
	To         time.Time
	Occupied   []OccupiedInterval
	FreeSlots  []domain.Interval
}

// GetAvailability is a read-only snapshot. It may be stale by the time the
// caller books; Create and Reschedule always re-check inside their transaction.
func (s *Service) GetAvailability(ctx context.Context, in AvailabilityInput) (out Availability, err error) {
	defer s.observe(ctx, "get_availability", time.Now(), &err)

	if in.ProviderID == uuid.Nil {
		return Availability{}, invalidArgument("provider_id is required")
	}
	from, to := in.From.UTC(), in.To.UTC()
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return Availability{}, invalidArgument("to must be after from")
	}
	if to.Sub(from) > s.maxRange {
		return Availability{}, invalidArgument("range must not exceed %s", s.maxRange)
	}
	hours := s.hours
	if in.SlotMinutes != 0 {
		if !domain.ValidDuration(in.SlotMinutes) {
			return Availability{}, invalidArgument("invalid slot length %d", in.SlotMinutes)
		}
		hours.SlotMinutes = in.SlotMinutes
	}

	rows, err := s.repo.ListOccupying(ctx, in.ProviderID, from, to)
	if err != nil {
		return Availability{}, classify(err)
	}
	slices.SortFunc(rows, func(a, b domain.Appointment) int {
		return a.StartTime.Compare(b.StartTime)
	})

	out = Availability{
		ProviderID: in.ProviderID,
		From:       from,
		To:         to,
		Occupied:   make([]OccupiedInterval, 0, len(rows)),
	}
	busy := make([]domain.Interval, 0, len(rows))
	for _, a := range rows {
		iv := domain.Interval{Start: a.StartTime.UTC(), End: a.EndTime().UTC()}
		out.Occupied = append(out.Occupied, OccupiedInterval{AppointmentID: a.ID, Status: a.Status, Interval: iv})
		busy = append(busy, iv)
	}
	if in.IncludeFreeSlots {
		out.FreeSlots = freeSlots(hours, from, to, s.now(), busy)
	}
	return out, nil
}

// freeSlots walks the working-hours template over [from, to) and keeps the
// slots that start after now and overlap nothing in busy. busy must be sorted
// by start.
func freeSlots(w WorkingHours, from, to, now time.Time, busy []domain.Interval) []domain.Interval {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	slot := time.Duration(w.SlotMinutes) * time.Minute
	out := make([]domain.Interval, 0)

	first := from.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	next := 0
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		if !slices.Contains(w.Weekdays, day.Weekday()) {
			continue
		}
		y, m, d := day.Date()
		dayEnd := w.DayEnd.on(y, m, d, loc)
		for start := w.DayStart.on(y, m, d, loc); !start.Add(slot).After(dayEnd); start = start.Add(slot) {
			iv := domain.Interval{Start: start.UTC(), End: start.Add(slot).UTC()}
			if iv.Start.Before(from) || iv.End.After(to) || !iv.Start.After(now) {
				continue
			}
			for next < len(busy) && !busy[next].End.After(iv.Start) {
				next++
			}
			free := true
			for j := next; j < len(busy) && busy[j].Start.Before(iv.End); j++ {
				if busy[j].Overlaps(iv) {
					free = false
					break
				}
			}
			if free {
				out = append(out, iv)
			}
		}
	}
	return out
}
