package appointments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/notify"
	"carebook/backend/internal/store"
)

const (
	maxReasonLength   = 1000
	maxNotesLength    = 4000
	maxIdempotencyKey = 256
	defaultListLimit  = 50
	maxListLimit      = 200
	sweepBatchSize    = 500
)

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

type Metrics interface {
	ObserveOperation(operation, outcome string, d time.Duration)
	MissedMarkedAdd(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, string, time.Duration) {}
func (nopMetrics) MissedMarkedAdd(int)                           {}

// Policy holds the time-based booking rules.
type Policy struct {
	// CancelLockout and RescheduleLockout are how long before the start an
	// appointment stops being cancellable or reschedulable.
	CancelLockout     time.Duration
	RescheduleLockout time.Duration
	// MissedGrace is how long after the start an appointment may be marked missed.
	MissedGrace           time.Duration
	RequireIdempotencyKey bool
}

func DefaultPolicy() Policy {
	return Policy{
		CancelLockout:     time.Hour,
		RescheduleLockout: 2 * time.Hour,
		MissedGrace:       15 * time.Minute,
	}
}

type Service struct {
	repo     store.AppointmentRepository
	accounts store.AccountResolver
	log      *slog.Logger
	now      func() time.Time
	policy   Policy
	hours    WorkingHours
	maxRange time.Duration
	notifier Notifier
	metrics  Metrics
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithWorkingHours(h WorkingHours) Option {
	return func(s *Service) { s.hours = h }
}

func WithMaxAvailabilityRange(d time.Duration) Option {
	return func(s *Service) { s.maxRange = d }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(repo store.AppointmentRepository, accounts store.AccountResolver, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		accounts: accounts,
		log:      slog.Default(),
		now:      time.Now,
		policy:   DefaultPolicy(),
		hours:    DefaultWorkingHours(),
		maxRange: 31 * 24 * time.Hour,
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "appointments"))
	return s
}

type CreateInput struct {
	ProviderID      uuid.UUID
	SeekerID        uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Type            domain.AppointmentType
	Reason          string
	Notes           string
	IsEmergency     bool
	IdempotencyKey  string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (created domain.Appointment, err error) {
	defer s.observe(ctx, "create", time.Now(), &err)

	if in.ProviderID == uuid.Nil {
		return domain.Appointment{}, invalidArgument("provider_id is required")
	}
	if in.SeekerID == uuid.Nil {
		return domain.Appointment{}, invalidArgument("seeker_id is required")
	}
	if in.ProviderID == in.SeekerID {
		return domain.Appointment{}, invalidArgument("provider and seeker must be different accounts")
	}
	if !domain.ValidDuration(in.DurationMinutes) {
		return domain.Appointment{}, invalidArgument("duration must be %d-%d minutes in %d minute steps",
			domain.MinDurationMinutes, domain.MaxDurationMinutes, domain.DurationStepMinutes)
	}
	apptType := in.Type
	if apptType == "" {
		apptType = domain.TypeConsultation
		if in.IsEmergency {
			apptType = domain.TypeEmergency
		}
	}
	if !apptType.IsValid() {
		return domain.Appointment{}, invalidArgument("unknown appointment type %q", apptType)
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxReasonLength {
		return domain.Appointment{}, invalidArgument("reason too long")
	}
	if len(in.Notes) > maxNotesLength {
		return domain.Appointment{}, invalidArgument("notes too long")
	}

	start := in.StartTime.UTC()
	if !start.After(s.now()) {
		return domain.Appointment{}, newError(KindPastDate, "start_time must be in the future")
	}

	appt := domain.Appointment{
		ProviderID:      in.ProviderID,
		SeekerID:        in.SeekerID,
		StartTime:       start,
		DurationMinutes: in.DurationMinutes,
		Status:          domain.InitialStatus(in.IsEmergency),
		Type:            apptType,
		Reason:          reason,
		Notes:           in.Notes,
		IsEmergency:     in.IsEmergency,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	switch {
	case key == "" && s.policy.RequireIdempotencyKey:
		return domain.Appointment{}, invalidArgument("idempotency_key is required")
	case len(key) > maxIdempotencyKey:
		return domain.Appointment{}, invalidArgument("idempotency_key too long")
	case key != "":
		appt.ID = IdempotentID(in.SeekerID, key)
	}

	if err := s.requireAccount(ctx, in.ProviderID, domain.RoleProvider); err != nil {
		return domain.Appointment{}, err
	}
	if err := s.requireAccount(ctx, in.SeekerID, domain.RolePatient); err != nil {
		return domain.Appointment{}, err
	}

	replay := false
	err = s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		if appt.ID != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, appt.ID)
			switch {
			case err == nil:
				if !existing.SameBooking(appt) {
					return store.ErrIdempotencyConflict
				}
				created, replay = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		if err := checkConflict(ctx, tx, appt.ProviderID, appt.StartTime, appt.Duration(), uuid.Nil); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	if !replay {
		s.emit(ctx, notify.EventCreated, created)
	}
	return created, nil
}

// IdempotentID derives the appointment id for a seeker's idempotency key.
func IdempotentID(seekerID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("carebook:create:"+seekerID.String()+":"+key))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (appt domain.Appointment, err error) {
	defer s.observe(ctx, "get", time.Now(), &err)

	if id == uuid.Nil {
		return domain.Appointment{}, invalidArgument("appointment_id is required")
	}
	appt, err = s.repo.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return appt, nil
}

type ListInput struct {
	ProviderID      *uuid.UUID
	SeekerID        *uuid.UUID
	Statuses        []domain.Status
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
	Limit           int
	Offset          int
}

type ListResult struct {
	Appointments []domain.Appointment
	Total        int
	Limit        int
	Offset       int
}

func (s *Service) List(ctx context.Context, in ListInput) (res ListResult, err error) {
	defer s.observe(ctx, "list", time.Now(), &err)

	for _, st := range in.Statuses {
		if !st.IsValid() {
			return ListResult{}, invalidArgument("unknown status %q", st)
		}
	}
	if in.From != nil && in.To != nil && !in.To.After(*in.From) {
		return ListResult{}, invalidArgument("to must be after from")
	}
	if in.Offset < 0 {
		return ListResult{}, invalidArgument("offset must not be negative")
	}
	limit := in.Limit
	switch {
	case limit < 0:
		return ListResult{}, invalidArgument("limit must not be negative")
	case limit == 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	rows, total, err := s.repo.List(ctx, store.ListFilter{
		ProviderID:      in.ProviderID,
		SeekerID:        in.SeekerID,
		Statuses:        in.Statuses,
		From:            utcPtr(in.From),
		To:              utcPtr(in.To),
		IncludeArchived: in.IncludeArchived,
		Limit:           limit,
		Offset:          in.Offset,
	})
	if err != nil {
		return ListResult{}, classify(err)
	}
	return ListResult{Appointments: rows, Total: total, Limit: limit, Offset: in.Offset}, nil
}

// UpdateInput changes descriptive fields only; nil fields are left as they are.
type UpdateInput struct {
	AppointmentID uuid.UUID
	Actor         domain.Actor
	Type          *domain.AppointmentType
	Reason        *string
	Notes         *string
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (updated domain.Appointment, err error) {
	defer s.observe(ctx, "update", time.Now(), &err)

	if err := validateTarget(in.AppointmentID, in.Actor); err != nil {
		return domain.Appointment{}, err
	}
	if in.Type == nil && in.Reason == nil && in.Notes == nil {
		return domain.Appointment{}, invalidArgument("nothing to update")
	}
	if in.Type != nil && !in.Type.IsValid() {
		return domain.Appointment{}, invalidArgument("unknown appointment type %q", *in.Type)
	}
	if in.Reason != nil && len(strings.TrimSpace(*in.Reason)) > maxReasonLength {
		return domain.Appointment{}, invalidArgument("reason too long")
	}
	if in.Notes != nil && len(*in.Notes) > maxNotesLength {
		return domain.Appointment{}, invalidArgument("notes too long")
	}

	err = s.inAppointmentTx(ctx, in.AppointmentID, func(ctx context.Context, tx store.BookingTx, cur domain.Appointment) error {
		if err := domain.CanEdit(cur, in.Actor); err != nil {
			return err
		}
		if in.Type != nil {
			cur.Type = *in.Type
		}
		if in.Reason != nil {
			cur.Reason = strings.TrimSpace(*in.Reason)
		}
		if in.Notes != nil {
			cur.Notes = *in.Notes
		}
		var err error
		updated, err = tx.UpdateAppointment(ctx, cur)
		return err
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return updated, nil
}

type CancelInput struct {
	AppointmentID uuid.UUID
	Actor         domain.Actor
	Reason        string
}

func (s *Service) Cancel(ctx context.Context, in CancelInput) (cancelled domain.Appointment, err error) {
	defer s.observe(ctx, "cancel", time.Now(), &err)

	if err := validateTarget(in.AppointmentID, in.Actor); err != nil {
		return domain.Appointment{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxReasonLength {
		return domain.Appointment{}, invalidArgument("reason too long")
	}

	err = s.inAppointmentTx(ctx, in.AppointmentID, func(ctx context.Context, tx store.BookingTx, cur domain.Appointment) error {
		next, err := domain.Decide(cur, in.Actor, domain.ActionCancel)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := checkLockout(cur, now, s.policy.CancelLockout, "cancel"); err != nil {
			return err
		}
		by := in.Actor.ID
		cur.Status = next
		cur.CancelledBy = &by
		cur.CancelledByRole = in.Actor.Role
		cur.CancellationReason = reason
		cur.CancelledAt = &now
		cancelled, err = tx.UpdateAppointment(ctx, cur)
		return err
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	s.emit(ctx, notify.EventCancelled, cancelled)
	return cancelled, nil
}

type RescheduleInput struct {
	AppointmentID uuid.UUID
	Actor         domain.Actor
	NewStartTime  time.Time
	Reason        string
}

type RescheduleResult struct {
	Original    domain.Appointment
	Replacement domain.Appointment
}

// Reschedule marks the appointment Rescheduled and books a replacement at
// NewStartTime in one transaction. On any failure neither write is visible.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (res RescheduleResult, err error) {
	defer s.observe(ctx, "reschedule", time.Now(), &err)

	if err := validateTarget(in.AppointmentID, in.Actor); err != nil {
		return RescheduleResult{}, err
	}
	if in.NewStartTime.IsZero() {
		return RescheduleResult{}, invalidArgument("new_start_time is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxReasonLength {
		return RescheduleResult{}, invalidArgument("reason too long")
	}
	newStart := in.NewStartTime.UTC()

	err = s.inAppointmentTx(ctx, in.AppointmentID, func(ctx context.Context, tx store.BookingTx, cur domain.Appointment) error {
		next, err := domain.Decide(cur, in.Actor, domain.ActionReschedule)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := checkLockout(cur, now, s.policy.RescheduleLockout, "reschedule"); err != nil {
			return err
		}
		if !newStart.After(now) {
			return newError(KindPastDate, "new_start_time must be in the future")
		}
		if newStart.Equal(cur.StartTime) {
			return invalidArgument("new_start_time equals the current start time")
		}
		if err := checkConflict(ctx, tx, cur.ProviderID, newStart, cur.Duration(), cur.ID); err != nil {
			return err
		}

		original := cur
		original.Status = next
		if res.Original, err = tx.UpdateAppointment(ctx, original); err != nil {
			return err
		}

		predecessor := cur.ID
		res.Replacement, err = tx.InsertAppointment(ctx, domain.Appointment{
			ProviderID:       cur.ProviderID,
			SeekerID:         cur.SeekerID,
			StartTime:        newStart,
			DurationMinutes:  cur.DurationMinutes,
			Status:           domain.StatusScheduled,
			Type:             cur.Type,
			Reason:           cur.Reason,
			Notes:            cur.Notes,
			IsEmergency:      cur.IsEmergency,
			RescheduledFrom:  &predecessor,
			RescheduleReason: reason,
		})
		return err
	})
	if err != nil {
		return RescheduleResult{}, classify(err)
	}
	s.emit(ctx, notify.EventRescheduled, res.Replacement)
	return res, nil
}

type CompleteInput struct {
	AppointmentID uuid.UUID
	Actor         domain.Actor
	Details       domain.CompletionDetails
}

func (s *Service) Complete(ctx context.Context, in CompleteInput) (completed domain.Appointment, err error) {
	defer s.observe(ctx, "complete", time.Now(), &err)

	if err := validateTarget(in.AppointmentID, in.Actor); err != nil {
		return domain.Appointment{}, err
	}
	d := in.Details
	if d.FollowUpAt != nil && !d.FollowUpRequired {
		return domain.Appointment{}, invalidArgument("follow_up_at requires follow_up_required")
	}

	err = s.inAppointmentTx(ctx, in.AppointmentID, func(ctx context.Context, tx store.BookingTx, cur domain.Appointment) error {
		next, err := domain.Decide(cur, in.Actor, domain.ActionComplete)
		if err != nil {
			return err
		}
		if d.FollowUpAt != nil && !d.FollowUpAt.After(cur.StartTime) {
			return invalidArgument("follow_up_at must be after the appointment")
		}
		now := s.now().UTC()
		cur.Status = next
		cur.ClinicalNotes = d.ClinicalNotes
		cur.Diagnosis = d.Diagnosis
		cur.Prescription = d.Prescription
		cur.FollowUpRequired = d.FollowUpRequired
		cur.FollowUpAt = utcPtr(d.FollowUpAt)
		cur.CompletedAt = &now
		completed, err = tx.UpdateAppointment(ctx, cur)
		return err
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	s.emit(ctx, notify.EventCompleted, completed)
	return completed, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	return s.advance(ctx, "confirm", id, actor, domain.ActionConfirm, notify.EventConfirmed)
}

func (s *Service) Start(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	return s.advance(ctx, "start", id, actor, domain.ActionStart, notify.EventStarted)
}

func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	a, err := s.advance(ctx, "mark_missed", id, actor, domain.ActionMarkMissed, notify.EventMissed)
	if err == nil {
		s.metrics.MissedMarkedAdd(1)
	}
	return a, err
}

// advance applies a transition that changes nothing but status.
func (s *Service) advance(ctx context.Context, op string, id uuid.UUID, actor domain.Actor, action domain.Action, event notify.EventType) (updated domain.Appointment, err error) {
	defer s.observe(ctx, op, time.Now(), &err)

	if err := validateTarget(id, actor); err != nil {
		return domain.Appointment{}, err
	}
	err = s.inAppointmentTx(ctx, id, func(ctx context.Context, tx store.BookingTx, cur domain.Appointment) error {
		next, err := domain.Decide(cur, actor, action)
		if err != nil {
			return err
		}
		if action == domain.ActionMarkMissed {
			if deadline := cur.StartTime.Add(s.policy.MissedGrace); s.now().Before(deadline) {
				return &domain.TransitionError{From: cur.Status, Action: action, Role: actor.Role, Reason: "grace period has not elapsed"}
			}
		}
		cur.Status = next
		updated, err = tx.UpdateAppointment(ctx, cur)
		return err
	})
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	s.emit(ctx, event, updated)
	return updated, nil
}

// SweepMissed marks Scheduled and Confirmed appointments whose end plus the
// grace period has passed as Missed. It returns how many were marked.
func (s *Service) SweepMissed(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.policy.MissedGrace)
	due, _, err := s.repo.List(ctx, store.ListFilter{
		Statuses:        []domain.Status{domain.StatusScheduled, domain.StatusConfirmed},
		To:              &cutoff,
		IncludeArchived: true,
		Limit:           sweepBatchSize,
	})
	if err != nil {
		return 0, classify(err)
	}

	system := domain.Actor{Role: domain.RoleSystem}
	marked := 0
	var firstErr error
	for _, a := range due {
		if a.EndTime().Add(s.policy.MissedGrace).After(now) {
			continue
		}
		if _, err := s.MarkMissed(ctx, a.ID, system); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		marked++
	}
	if marked > 0 {
		s.log.InfoContext(ctx, "marked missed appointments", slog.Int("count", marked))
	}
	return marked, firstErr
}

// ArchiveAccountAppointments flags every appointment of a removed account as
// archived. Statuses are left untouched.
func (s *Service) ArchiveAccountAppointments(ctx context.Context, accountID uuid.UUID) (n int, err error) {
	defer s.observe(ctx, "archive", time.Now(), &err)

	if accountID == uuid.Nil {
		return 0, invalidArgument("account_id is required")
	}
	n, err = s.repo.ArchiveForAccount(ctx, accountID)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// inAppointmentTx loads the appointment's provider, opens that provider's
// transaction and hands fn a fresh copy read inside it.
func (s *Service) inAppointmentTx(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx store.BookingTx, cur domain.Appointment) error) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.InProviderTransaction(ctx, a.ProviderID, func(ctx context.Context, tx store.BookingTx) error {
		cur, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, tx, cur)
	})
}

func (s *Service) requireAccount(ctx context.Context, id uuid.UUID, role domain.Role) error {
	acc, err := s.accounts.ResolveAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Msg: string(role) + " " + id.String() + " not found", Err: err}
	}
	if err != nil {
		return classify(err)
	}
	if !acc.Active {
		return newError(KindNotFound, "%s %s is not active", role, id)
	}
	if acc.Role != role {
		return newError(KindInvalidRole, "account %s is a %s, not a %s", id, acc.Role, role)
	}
	return nil
}

func checkConflict(ctx context.Context, tx store.BookingTx, providerID uuid.UUID, start time.Time, d time.Duration, exclude uuid.UUID) error {
	rows, err := tx.ListOccupying(ctx, providerID, start, start.Add(d))
	if err != nil {
		return err
	}
	for _, a := range rows {
		if a.ID == exclude {
			continue
		}
		if domain.Overlaps(a.StartTime, a.Duration(), start, d) {
			return &Error{
				Kind: KindSlotConflict,
				Msg:  "provider is booked from " + a.StartTime.UTC().Format(time.RFC3339) + " to " + a.EndTime().UTC().Format(time.RFC3339),
				Err:  store.ErrConflict,
			}
		}
	}
	return nil
}

func checkLockout(a domain.Appointment, now time.Time, lockout time.Duration, op string) error {
	if now.Before(a.StartTime.Add(-lockout)) {
		return nil
	}
	return newError(KindLockoutWindow, "cannot %s within %s of the start time", op, lockout)
}

func validateTarget(id uuid.UUID, actor domain.Actor) error {
	if id == uuid.Nil {
		return invalidArgument("appointment_id is required")
	}
	if !actor.Role.IsValid() {
		return newError(KindInvalidRole, "unknown role %q", actor.Role)
	}
	if actor.ID == uuid.Nil && actor.Role != domain.RoleSystem {
		return invalidArgument("actor id is required")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, t notify.EventType, a domain.Appointment) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), notify.NewEvent(t, a, s.now()))
}

func (s *Service) observe(ctx context.Context, op string, began time.Time, errp *error) {
	err := *errp
	outcome := "ok"
	if err != nil {
		outcome = string(KindInternal)
		if k := KindOf(err); k != "" {
			outcome = string(k)
		}
	}
	s.metrics.ObserveOperation(op, outcome, time.Since(began))

	switch {
	case err == nil:
	case outcome == string(KindStorageUnavailable) || outcome == string(KindInternal):
		s.log.ErrorContext(ctx, "appointment operation failed", slog.String("op", op), slog.Any("err", err))
	default:
		s.log.InfoContext(ctx, "appointment operation rejected", slog.String("op", op), slog.String("kind", outcome), slog.String("reason", err.Error()))
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
