package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/service/appointments"
	"carebook/backend/internal/store"
)

type fakeAppointmentsService struct {
	createFn       func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	getFn          func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listFn         func(ctx context.Context, in appointments.ListInput) (appointments.ListResult, error)
	updateFn       func(ctx context.Context, in appointments.UpdateInput) (domain.Appointment, error)
	cancelFn       func(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	rescheduleFn   func(ctx context.Context, in appointments.RescheduleInput) (appointments.RescheduleResult, error)
	completeFn     func(ctx context.Context, in appointments.CompleteInput) (domain.Appointment, error)
	transitionFn   func(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error)
	availabilityFn func(ctx context.Context, in appointments.AvailabilityInput) (appointments.Availability, error)
	statisticsFn   func(ctx context.Context, in appointments.StatisticsInput) (appointments.Statistics, error)
	archiveFn      func(ctx context.Context, accountID uuid.UUID) (int, error)
}

func (f *fakeAppointmentsService) Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeAppointmentsService) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentsService) List(ctx context.Context, in appointments.ListInput) (appointments.ListResult, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx, in)
}

func (f *fakeAppointmentsService) Update(ctx context.Context, in appointments.UpdateInput) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, in)
}

func (f *fakeAppointmentsService) Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, in)
}

func (f *fakeAppointmentsService) Reschedule(ctx context.Context, in appointments.RescheduleInput) (appointments.RescheduleResult, error) {
	if f.rescheduleFn == nil {
		panic("Reschedule not configured")
	}
	return f.rescheduleFn(ctx, in)
}

func (f *fakeAppointmentsService) Complete(ctx context.Context, in appointments.CompleteInput) (domain.Appointment, error) {
	if f.completeFn == nil {
		panic("Complete not configured")
	}
	return f.completeFn(ctx, in)
}

func (f *fakeAppointmentsService) Confirm(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	return f.transition(ctx, id, actor)
}

func (f *fakeAppointmentsService) Start(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	return f.transition(ctx, id, actor)
}

func (f *fakeAppointmentsService) MarkMissed(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	return f.transition(ctx, id, actor)
}

func (f *fakeAppointmentsService) transition(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error) {
	if f.transitionFn == nil {
		panic("transition not configured")
	}
	return f.transitionFn(ctx, id, actor)
}

func (f *fakeAppointmentsService) GetAvailability(ctx context.Context, in appointments.AvailabilityInput) (appointments.Availability, error) {
	if f.availabilityFn == nil {
		panic("GetAvailability not configured")
	}
	return f.availabilityFn(ctx, in)
}

func (f *fakeAppointmentsService) GetStatistics(ctx context.Context, in appointments.StatisticsInput) (appointments.Statistics, error) {
	if f.statisticsFn == nil {
		panic("GetStatistics not configured")
	}
	return f.statisticsFn(ctx, in)
}

func (f *fakeAppointmentsService) ArchiveAccountAppointments(ctx context.Context, accountID uuid.UUID) (int, error) {
	if f.archiveFn == nil {
		panic("ArchiveAccountAppointments not configured")
	}
	return f.archiveFn(ctx, accountID)
}

var (
	testProvider = uuid.MustParse("00000000-0000-0000-0000-0000000000d1")
	testPatient  = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	testAppt     = uuid.MustParse("00000000-0000-0000-0000-000000000010")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func asCaller(role domain.Role, id uuid.UUID) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		actorRoleHeader, string(role),
		actorIDHeader, id.String(),
	))
}

func validCreateRequest() *CreateAppointmentRequest {
	return &CreateAppointmentRequest{
		ProviderID:      testProvider.String(),
		SeekerID:        testPatient.String(),
		StartTime:       timestamppb.New(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)),
		DurationMinutes: 60,
	}
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey without metadata = %q, want empty", got)
	}
}

func TestActorFromContext(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    domain.Actor
		wantErr bool
	}{
		{name: "patient", pairs: []string{actorRoleHeader, "Patient", actorIDHeader, testPatient.String()}, want: domain.Actor{ID: testPatient, Role: domain.RolePatient}},
		{name: "system without id", pairs: []string{actorRoleHeader, "system"}, want: domain.Actor{Role: domain.RoleSystem}},
		{name: "missing role", pairs: []string{actorIDHeader, testPatient.String()}, wantErr: true},
		{name: "bad id", pairs: []string{actorRoleHeader, "provider", actorIDHeader, "nope"}, wantErr: true},
		{name: "no metadata", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.pairs != nil {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(tt.pairs...))
			}
			got, err := actorFromContext(ctx)
			if tt.wantErr {
				if status.Code(err) != codes.Unauthenticated {
					t.Fatalf("code = %s, want %s", status.Code(err), codes.Unauthenticated)
				}
				return
			}
			if err != nil {
				t.Fatalf("actorFromContext error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("actor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCreateAppointment_RejectsBadRequests(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			t.Fatalf("service should not be called")
			return domain.Appointment{}, nil
		},
	}, quietLogger())

	tests := []struct {
		name   string
		mutate func(r *CreateAppointmentRequest)
	}{
		{name: "missing start", mutate: func(r *CreateAppointmentRequest) { r.StartTime = nil }},
		{name: "invalid start", mutate: func(r *CreateAppointmentRequest) { r.StartTime = &timestamppb.Timestamp{Nanos: -1} }},
		{name: "bad provider", mutate: func(r *CreateAppointmentRequest) { r.ProviderID = "doc" }},
		{name: "bad seeker", mutate: func(r *CreateAppointmentRequest) { r.SeekerID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)
			_, err := srv.CreateAppointment(context.Background(), req)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
			}
		})
	}

	if _, err := srv.CreateAppointment(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateAppointment_PassesFieldsAndIdempotencyKey(t *testing.T) {
	var got appointments.CreateInput

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{
				ID:              testAppt,
				ProviderID:      in.ProviderID,
				SeekerID:        in.SeekerID,
				StartTime:       in.StartTime,
				DurationMinutes: in.DurationMinutes,
				Status:          domain.StatusScheduled,
				Type:            domain.TypeConsultation,
			}, nil
		},
	}, quietLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	req := validCreateRequest()
	req.Reason = "checkup"
	req.IsEmergency = true

	resp, err := srv.CreateAppointment(ctx, req)
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if got.IdempotencyKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", got.IdempotencyKey, "k1")
	}
	if got.ProviderID != testProvider || got.SeekerID != testPatient || got.DurationMinutes != 60 || got.Reason != "checkup" || !got.IsEmergency {
		t.Fatalf("unexpected input: %+v", got)
	}

	a := resp.Appointment
	if a.ID != testAppt.String() || a.Status != "scheduled" {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	if want := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC); !a.EndTime.AsTime().Equal(want) {
		t.Fatalf("end_time = %s, want %s", a.EndTime.AsTime(), want)
	}
	if a.Cancellation != nil || a.Completion != nil {
		t.Fatalf("scheduled appointment should carry no cancellation or completion")
	}
}

func TestCreateAppointment_MapsErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		kind appointments.Kind
	}{
		{name: "not found", err: appointments.ErrNotFound, code: codes.NotFound, kind: appointments.KindNotFound},
		{name: "invalid role", err: appointments.ErrInvalidRole, code: codes.InvalidArgument, kind: appointments.KindInvalidRole},
		{name: "past date", err: appointments.ErrPastDate, code: codes.InvalidArgument, kind: appointments.KindPastDate},
		{name: "conflict", err: appointments.ErrSlotConflict, code: codes.FailedPrecondition, kind: appointments.KindSlotConflict},
		{name: "transition", err: appointments.ErrInvalidTransition, code: codes.FailedPrecondition, kind: appointments.KindInvalidTransition},
		{name: "lockout", err: appointments.ErrLockoutWindow, code: codes.FailedPrecondition, kind: appointments.KindLockoutWindow},
		{name: "idempotency", err: appointments.ErrIdempotencyConflict, code: codes.FailedPrecondition, kind: appointments.KindIdempotencyConflict},
		{name: "storage", err: appointments.ErrStorageUnavailable, code: codes.Unavailable, kind: appointments.KindStorageUnavailable},
		{name: "unclassified", err: errors.New("boom"), code: codes.Internal, kind: appointments.KindInternal},
		{name: "raw store conflict", err: store.ErrConflict, code: codes.Internal, kind: appointments.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewAppointmentsServer(&fakeAppointmentsService{
				createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
					return domain.Appointment{}, tt.err
				},
			}, quietLogger())

			_, err := srv.CreateAppointment(context.Background(), validCreateRequest())
			if status.Code(err) != tt.code {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.code)
			}
			if got := ErrorKind(err); got != tt.kind {
				t.Fatalf("kind = %q, want %q", got, tt.kind)
			}
		})
	}
}

func TestToStatus_HidesInternalDetail(t *testing.T) {
	err := toStatus(errors.New("pq: password authentication failed for user carebook"))
	st, _ := status.FromError(err)
	if st.Message() != "internal error" {
		t.Fatalf("message = %q, want %q", st.Message(), "internal error")
	}
}

func TestLifecycleRPCs_RequireCaller(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())
	ctx := context.Background()
	id := testAppt.String()

	calls := map[string]func() error{
		"cancel": func() error {
			_, err := srv.CancelAppointment(ctx, &CancelAppointmentRequest{AppointmentID: id})
			return err
		},
		"reschedule": func() error {
			_, err := srv.RescheduleAppointment(ctx, &RescheduleAppointmentRequest{AppointmentID: id, NewStartTime: timestamppb.Now()})
			return err
		},
		"complete": func() error {
			_, err := srv.CompleteAppointment(ctx, &CompleteAppointmentRequest{AppointmentID: id})
			return err
		},
		"update": func() error {
			_, err := srv.UpdateAppointment(ctx, &UpdateAppointmentRequest{AppointmentID: id})
			return err
		},
		"confirm": func() error {
			_, err := srv.ConfirmAppointment(ctx, &TransitionRequest{AppointmentID: id})
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if code := status.Code(call()); code != codes.Unauthenticated {
				t.Fatalf("code = %s, want %s", code, codes.Unauthenticated)
			}
		})
	}
}

func TestCancelAppointment_PassesActorAndReturnsCancellation(t *testing.T) {
	cancelledAt := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	var got appointments.CancelInput

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		cancelFn: func(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error) {
			got = in
			by := in.Actor.ID
			return domain.Appointment{
				ID:                 in.AppointmentID,
				Status:             domain.StatusCancelled,
				CancelledBy:        &by,
				CancelledByRole:    in.Actor.Role,
				CancellationReason: in.Reason,
				CancelledAt:        &cancelledAt,
			}, nil
		},
	}, quietLogger())

	resp, err := srv.CancelAppointment(asCaller(domain.RolePatient, testPatient), &CancelAppointmentRequest{
		AppointmentID: testAppt.String(),
		Reason:        "travel",
	})
	if err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
	if got.Actor != (domain.Actor{ID: testPatient, Role: domain.RolePatient}) || got.Reason != "travel" {
		t.Fatalf("unexpected input: %+v", got)
	}
	c := resp.Appointment.Cancellation
	if c == nil {
		t.Fatalf("expected cancellation block")
	}
	if c.CancelledBy != testPatient.String() || c.CancelledByRole != "patient" || c.Reason != "travel" || !c.CancelledAt.AsTime().Equal(cancelledAt) {
		t.Fatalf("unexpected cancellation: %+v", c)
	}
}

func TestRescheduleAppointment_ReturnsBothRecords(t *testing.T) {
	newStart := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	replacementID := uuid.MustParse("00000000-0000-0000-0000-000000000011")

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		rescheduleFn: func(ctx context.Context, in appointments.RescheduleInput) (appointments.RescheduleResult, error) {
			if !in.NewStartTime.Equal(newStart) || in.Reason != "clash" {
				t.Fatalf("unexpected input: %+v", in)
			}
			from := in.AppointmentID
			return appointments.RescheduleResult{
				Original:    domain.Appointment{ID: from, Status: domain.StatusRescheduled},
				Replacement: domain.Appointment{ID: replacementID, Status: domain.StatusScheduled, StartTime: newStart, RescheduledFrom: &from, RescheduleReason: in.Reason},
			}, nil
		},
	}, quietLogger())

	resp, err := srv.RescheduleAppointment(asCaller(domain.RoleProvider, testProvider), &RescheduleAppointmentRequest{
		AppointmentID: testAppt.String(),
		NewStartTime:  timestamppb.New(newStart),
		Reason:        "clash",
	})
	if err != nil {
		t.Fatalf("RescheduleAppointment error: %v", err)
	}
	if resp.Original.Status != "rescheduled" || resp.Replacement.RescheduledFrom != testAppt.String() || resp.Replacement.RescheduleReason != "clash" {
		t.Fatalf("unexpected response: original=%+v replacement=%+v", resp.Original, resp.Replacement)
	}

	_, err = srv.RescheduleAppointment(asCaller(domain.RoleProvider, testProvider), &RescheduleAppointmentRequest{AppointmentID: testAppt.String()})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing new_start_time code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCompleteAppointment_PassesDetails(t *testing.T) {
	followUp := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		completeFn: func(ctx context.Context, in appointments.CompleteInput) (domain.Appointment, error) {
			d := in.Details
			if d.Diagnosis != "flu" || !d.FollowUpRequired || d.FollowUpAt == nil || !d.FollowUpAt.Equal(followUp) {
				t.Fatalf("unexpected details: %+v", d)
			}
			return domain.Appointment{ID: in.AppointmentID, Status: domain.StatusCompleted, Diagnosis: d.Diagnosis, FollowUpRequired: true, FollowUpAt: d.FollowUpAt}, nil
		},
	}, quietLogger())

	resp, err := srv.CompleteAppointment(asCaller(domain.RoleProvider, testProvider), &CompleteAppointmentRequest{
		AppointmentID:    testAppt.String(),
		Diagnosis:        "flu",
		FollowUpRequired: true,
		FollowUpAt:       timestamppb.New(followUp),
	})
	if err != nil {
		t.Fatalf("CompleteAppointment error: %v", err)
	}
	if resp.Appointment.Completion == nil || resp.Appointment.Completion.Diagnosis != "flu" {
		t.Fatalf("unexpected completion: %+v", resp.Appointment.Completion)
	}
}

func TestUpdateAppointment_OnlyForwardsPresentFields(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		updateFn: func(ctx context.Context, in appointments.UpdateInput) (domain.Appointment, error) {
			if in.Reason != nil || in.Notes == nil || *in.Notes != "bring scans" {
				t.Fatalf("unexpected input: %+v", in)
			}
			if in.Type == nil || *in.Type != domain.TypeFollowUp {
				t.Fatalf("type = %v, want %s", in.Type, domain.TypeFollowUp)
			}
			return domain.Appointment{ID: in.AppointmentID, Notes: *in.Notes}, nil
		},
	}, quietLogger())

	notes, typ := "bring scans", "follow_up"
	_, err := srv.UpdateAppointment(asCaller(domain.RolePatient, testPatient), &UpdateAppointmentRequest{
		AppointmentID: testAppt.String(),
		Notes:         &notes,
		Type:          &typ,
	})
	if err != nil {
		t.Fatalf("UpdateAppointment error: %v", err)
	}
}

func TestListAppointments_ParsesFilters(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		listFn: func(ctx context.Context, in appointments.ListInput) (appointments.ListResult, error) {
			if in.ProviderID == nil || *in.ProviderID != testProvider || in.SeekerID != nil {
				t.Fatalf("unexpected party filters: %+v", in)
			}
			if in.From == nil || !in.From.Equal(from) || in.To != nil {
				t.Fatalf("unexpected window: %+v", in)
			}
			if len(in.Statuses) != 1 || in.Statuses[0] != domain.StatusConfirmed || in.Limit != 5 {
				t.Fatalf("unexpected paging or statuses: %+v", in)
			}
			return appointments.ListResult{
				Appointments: []domain.Appointment{{ID: testAppt}},
				Total:        7,
				Limit:        5,
			}, nil
		},
	}, quietLogger())

	resp, err := srv.ListAppointments(context.Background(), &ListAppointmentsRequest{
		ProviderID: testProvider.String(),
		Statuses:   []string{"confirmed"},
		From:       timestamppb.New(from),
		Limit:      5,
	})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(resp.Appointments) != 1 || resp.Total != 7 || resp.Limit != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	_, err = srv.ListAppointments(context.Background(), &ListAppointmentsRequest{SeekerID: "x"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad seeker_id code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestGetAvailability_ConvertsIntervals(t *testing.T) {
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	busy := domain.Interval{Start: from.Add(9 * time.Hour), End: from.Add(10 * time.Hour)}
	free := domain.Interval{Start: from.Add(10 * time.Hour), End: from.Add(10*time.Hour + 30*time.Minute)}

	srv := NewAppointmentsServer(&fakeAppointmentsService{
		availabilityFn: func(ctx context.Context, in appointments.AvailabilityInput) (appointments.Availability, error) {
			if !in.IncludeFreeSlots || in.SlotMinutes != 30 {
				t.Fatalf("unexpected input: %+v", in)
			}
			return appointments.Availability{
				ProviderID: in.ProviderID,
				From:       in.From,
				To:         in.To,
				Occupied:   []appointments.OccupiedInterval{{AppointmentID: testAppt, Status: domain.StatusScheduled, Interval: busy}},
				FreeSlots:  []domain.Interval{free},
			}, nil
		},
	}, quietLogger())

	resp, err := srv.GetAvailability(context.Background(), &GetAvailabilityRequest{
		ProviderID:       testProvider.String(),
		From:             timestamppb.New(from),
		To:               timestamppb.New(to),
		IncludeFreeSlots: true,
		SlotMinutes:      30,
	})
	if err != nil {
		t.Fatalf("GetAvailability error: %v", err)
	}
	if len(resp.Occupied) != 1 || !resp.Occupied[0].End.AsTime().Equal(busy.End) {
		t.Fatalf("unexpected occupied: %+v", resp.Occupied)
	}
	if len(resp.FreeSlots) != 1 || !resp.FreeSlots[0].Start.AsTime().Equal(free.Start) {
		t.Fatalf("unexpected free slots: %+v", resp.FreeSlots)
	}

	_, err = srv.GetAvailability(context.Background(), &GetAvailabilityRequest{ProviderID: testProvider.String(), From: timestamppb.New(from)})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing to code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestGetStatistics_StringifiesStatuses(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		statisticsFn: func(ctx context.Context, in appointments.StatisticsInput) (appointments.Statistics, error) {
			return appointments.Statistics{
				Total:    3,
				ByStatus: map[domain.Status]int{domain.StatusScheduled: 2, domain.StatusCancelled: 1},
				Upcoming: 2,
			}, nil
		},
	}, quietLogger())

	resp, err := srv.GetStatistics(context.Background(), &GetStatisticsRequest{})
	if err != nil {
		t.Fatalf("GetStatistics error: %v", err)
	}
	if resp.Total != 3 || resp.Upcoming != 2 || resp.ByStatus["scheduled"] != 2 || resp.ByStatus["cancelled"] != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTimeoutInterceptor(t *testing.T) {
	intercept := TimeoutInterceptor(50 * time.Millisecond)

	_, err := intercept(context.Background(), nil, nil, func(ctx context.Context, req any) (any, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Fatalf("expected a deadline")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Fatalf("deadline too far out: %s", time.Until(deadline))
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}

	parent, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	want, _ := parent.Deadline()
	_, _ = intercept(parent, nil, nil, func(ctx context.Context, req any) (any, error) {
		if got, _ := ctx.Deadline(); !got.Equal(want) {
			t.Fatalf("tighter caller deadline was replaced")
		}
		return nil, nil
	})
}
