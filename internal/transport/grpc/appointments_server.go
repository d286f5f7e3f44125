package grpc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/service/appointments"
)

type AppointmentsServer struct {
	svc appointmentsService
	log *slog.Logger
}

var _ AppointmentsServiceServer = (*AppointmentsServer)(nil)

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, in appointments.ListInput) (appointments.ListResult, error)
	Update(ctx context.Context, in appointments.UpdateInput) (domain.Appointment, error)
	Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, in appointments.RescheduleInput) (appointments.RescheduleResult, error)
	Complete(ctx context.Context, in appointments.CompleteInput) (domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error)
	Start(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error)
	MarkMissed(ctx context.Context, id uuid.UUID, actor domain.Actor) (domain.Appointment, error)
	GetAvailability(ctx context.Context, in appointments.AvailabilityInput) (appointments.Availability, error)
	GetStatistics(ctx context.Context, in appointments.StatisticsInput) (appointments.Statistics, error)
	ArchiveAccountAppointments(ctx context.Context, accountID uuid.UUID) (int, error)
}

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

// Metadata keys set by the authenticating gateway in front of this service.
const (
	actorIDHeader   = "x-actor-id"
	actorRoleHeader = "x-actor-role"
)

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	if req == nil {
		return nil, invalid(log, "request is required")
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, invalid(log, "provider_id must be a UUID")
	}
	seekerID, err := uuid.Parse(req.SeekerID)
	if err != nil {
		return nil, invalid(log, "seeker_id must be a UUID")
	}
	start, err := requiredTime(req.StartTime, "start_time")
	if err != nil {
		return nil, invalid(log, err.Error())
	}

	appt, err := s.svc.Create(ctx, appointments.CreateInput{
		ProviderID:      providerID,
		SeekerID:        seekerID,
		StartTime:       start,
		DurationMinutes: int(req.DurationMinutes),
		Type:            domain.AppointmentType(req.Type),
		Reason:          req.Reason,
		Notes:           req.Notes,
		IsEmergency:     req.IsEmergency,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.fail(log, err, slog.String("provider_id", req.ProviderID), slog.Time("start_time", start))
	}

	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.String("status", string(appt.Status)),
	)
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func idempotencyKey(ctx context.Context) string {
	return firstMetadata(ctx, "idempotency-key", "x-idempotency-key")
}

func firstMetadata(ctx context.Context, keys ...string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, k := range keys {
		if values := md.Get(k); len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

func actorFromContext(ctx context.Context) (domain.Actor, error) {
	role := domain.Role(strings.ToLower(firstMetadata(ctx, actorRoleHeader)))
	if role == "" {
		return domain.Actor{}, status.Error(codes.Unauthenticated, "caller identity is required")
	}
	raw := firstMetadata(ctx, actorIDHeader)
	if raw == "" && role == domain.RoleSystem {
		return domain.Actor{Role: role}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return domain.Actor{}, status.Error(codes.Unauthenticated, "caller id must be a UUID")
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *GetAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	if req == nil {
		return nil, invalid(log, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return nil, invalid(log, "appointment_id must be a UUID")
	}
	appt, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, s.fail(log, err, slog.String("appointment_id", req.AppointmentID))
	}
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		return nil, invalid(log, "request is required")
	}
	providerID, err := optionalUUID(req.ProviderID, "provider_id")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	seekerID, err := optionalUUID(req.SeekerID, "seeker_id")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	from, err := optionalTime(req.From, "from")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	to, err := optionalTime(req.To, "to")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	statuses := make([]domain.Status, 0, len(req.Statuses))
	for _, st := range req.Statuses {
		statuses = append(statuses, domain.Status(st))
	}

	res, err := s.svc.List(ctx, appointments.ListInput{
		ProviderID:      providerID,
		SeekerID:        seekerID,
		Statuses:        statuses,
		From:            from,
		To:              to,
		IncludeArchived: req.IncludeArchived,
		Limit:           int(req.Limit),
		Offset:          int(req.Offset),
	})
	if err != nil {
		return nil, s.fail(log, err)
	}

	out := make([]*Appointment, 0, len(res.Appointments))
	for _, a := range res.Appointments {
		out = append(out, toWireAppointment(a))
	}
	log.Debug("appointments listed", slog.Int("count", len(out)), slog.Int("total", res.Total))

	return &ListAppointmentsResponse{
		Appointments: out,
		Total:        int32(res.Total),
		Limit:        int32(res.Limit),
		Offset:       int32(res.Offset),
	}, nil
}

func (s *AppointmentsServer) UpdateAppointment(ctx context.Context, req *UpdateAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateAppointment"))

	id, actor, err := s.target(ctx, log, req == nil, func() string { return req.AppointmentID })
	if err != nil {
		return nil, err
	}
	in := appointments.UpdateInput{AppointmentID: id, Actor: actor, Reason: req.Reason, Notes: req.Notes}
	if req.Type != nil {
		t := domain.AppointmentType(*req.Type)
		in.Type = &t
	}

	appt, err := s.svc.Update(ctx, in)
	if err != nil {
		return nil, s.fail(log, err, slog.String("appointment_id", req.AppointmentID))
	}
	log.Info("appointment updated", slog.String("appointment_id", appt.ID.String()))
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	id, actor, err := s.target(ctx, log, req == nil, func() string { return req.AppointmentID })
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.Cancel(ctx, appointments.CancelInput{AppointmentID: id, Actor: actor, Reason: req.Reason})
	if err != nil {
		return nil, s.fail(log, err, slog.String("appointment_id", req.AppointmentID))
	}
	log.Info("appointment cancelled", slog.String("appointment_id", appt.ID.String()), slog.String("by_role", string(actor.Role)))
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) RescheduleAppointment(ctx context.Context, req *RescheduleAppointmentRequest) (*RescheduleAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "RescheduleAppointment"))

	id, actor, err := s.target(ctx, log, req == nil, func() string { return req.AppointmentID })
	if err != nil {
		return nil, err
	}
	newStart, err := requiredTime(req.NewStartTime, "new_start_time")
	if err != nil {
		return nil, invalid(log, err.Error())
	}

	res, err := s.svc.Reschedule(ctx, appointments.RescheduleInput{AppointmentID: id, Actor: actor, NewStartTime: newStart, Reason: req.Reason})
	if err != nil {
		return nil, s.fail(log, err, slog.String("appointment_id", req.AppointmentID), slog.Time("new_start_time", newStart))
	}
	log.Info(
		"appointment rescheduled",
		slog.String("appointment_id", res.Original.ID.String()),
		slog.String("replacement_id", res.Replacement.ID.String()),
		slog.Time("start_time", res.Replacement.StartTime),
	)
	return &RescheduleAppointmentResponse{
		Original:    toWireAppointment(res.Original),
		Replacement: toWireAppointment(res.Replacement),
	}, nil
}

func (s *AppointmentsServer) CompleteAppointment(ctx context.Context, req *CompleteAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CompleteAppointment"))

	id, actor, err := s.target(ctx, log, req == nil, func() string { return req.AppointmentID })
	if err != nil {
		return nil, err
	}
	followUp, err := optionalTime(req.FollowUpAt, "follow_up_at")
	if err != nil {
		return nil, invalid(log, err.Error())
	}

	appt, err := s.svc.Complete(ctx, appointments.CompleteInput{
		AppointmentID: id,
		Actor:         actor,
		Details: domain.CompletionDetails{
			ClinicalNotes:    req.ClinicalNotes,
			Diagnosis:        req.Diagnosis,
			Prescription:     req.Prescription,
			FollowUpRequired: req.FollowUpRequired,
			FollowUpAt:       followUp,
		},
	})
	if err != nil {
		return nil, s.fail(log, err, slog.String("appointment_id", req.AppointmentID))
	}
	log.Info("appointment completed", slog.String("appointment_id", appt.ID.String()))
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) ConfirmAppointment(ctx context.Context, req *TransitionRequest) (*AppointmentResponse, error) {
	return s.transition(ctx, "ConfirmAppointment", req, s.svc.Confirm)
}

func (s *AppointmentsServer) StartAppointment(ctx context.Context, req *TransitionRequest) (*AppointmentResponse, error) {
	return s.transition(ctx, "StartAppointment", req, s.svc.Start)
}

func (s *AppointmentsServer) MarkAppointmentMissed(ctx context.Context, req *TransitionRequest) (*AppointmentResponse, error) {
	return s.transition(ctx, "MarkAppointmentMissed", req, s.svc.MarkMissed)
}

func (s *AppointmentsServer) transition(ctx context.Context, rpc string, req *TransitionRequest, apply func(context.Context, uuid.UUID, domain.Actor) (domain.Appointment, error)) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", rpc))

	id, actor, err := s.target(ctx, log, req == nil, func() string { return req.AppointmentID })
	if err != nil {
		return nil, err
	}
	appt, err := apply(ctx, id, actor)
	if err != nil {
		return nil, s.fail(log, err, slog.String("appointment_id", req.AppointmentID))
	}
	log.Info("appointment status changed", slog.String("appointment_id", appt.ID.String()), slog.String("status", string(appt.Status)))
	return &AppointmentResponse{Appointment: toWireAppointment(appt)}, nil
}

func (s *AppointmentsServer) GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*GetAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	if req == nil {
		return nil, invalid(log, "request is required")
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return nil, invalid(log, "provider_id must be a UUID")
	}
	from, err := requiredTime(req.From, "from")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	to, err := requiredTime(req.To, "to")
	if err != nil {
		return nil, invalid(log, err.Error())
	}

	av, err := s.svc.GetAvailability(ctx, appointments.AvailabilityInput{
		ProviderID:       providerID,
		From:             from,
		To:               to,
		IncludeFreeSlots: req.IncludeFreeSlots,
		SlotMinutes:      int(req.SlotMinutes),
	})
	if err != nil {
		return nil, s.fail(log, err, slog.String("provider_id", req.ProviderID))
	}

	out := &GetAvailabilityResponse{
		ProviderID: av.ProviderID.String(),
		From:       timestamppb.New(av.From),
		To:         timestamppb.New(av.To),
		Occupied:   make([]*OccupiedSlot, 0, len(av.Occupied)),
	}
	for _, o := range av.Occupied {
		out.Occupied = append(out.Occupied, &OccupiedSlot{
			AppointmentID: o.AppointmentID.String(),
			Status:        string(o.Status),
			Start:         timestamppb.New(o.Start),
			End:           timestamppb.New(o.End),
		})
	}
	for _, f := range av.FreeSlots {
		out.FreeSlots = append(out.FreeSlots, &Slot{Start: timestamppb.New(f.Start), End: timestamppb.New(f.End)})
	}
	return out, nil
}

func (s *AppointmentsServer) GetStatistics(ctx context.Context, req *GetStatisticsRequest) (*GetStatisticsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetStatistics"))

	if req == nil {
		return nil, invalid(log, "request is required")
	}
	providerID, err := optionalUUID(req.ProviderID, "provider_id")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	seekerID, err := optionalUUID(req.SeekerID, "seeker_id")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	from, err := optionalTime(req.From, "from")
	if err != nil {
		return nil, invalid(log, err.Error())
	}
	to, err := optionalTime(req.To, "to")
	if err != nil {
		return nil, invalid(log, err.Error())
	}

	stats, err := s.svc.GetStatistics(ctx, appointments.StatisticsInput{ProviderID: providerID, SeekerID: seekerID, From: from, To: to})
	if err != nil {
		return nil, s.fail(log, err)
	}
	byStatus := make(map[string]int32, len(stats.ByStatus))
	for st, n := range stats.ByStatus {
		byStatus[string(st)] = int32(n)
	}
	return &GetStatisticsResponse{Total: int32(stats.Total), ByStatus: byStatus, Upcoming: int32(stats.Upcoming)}, nil
}

func (s *AppointmentsServer) ArchiveAccountAppointments(ctx context.Context, req *ArchiveAccountAppointmentsRequest) (*ArchiveAccountAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ArchiveAccountAppointments"))

	if req == nil {
		return nil, invalid(log, "request is required")
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, invalid(log, "account_id must be a UUID")
	}
	n, err := s.svc.ArchiveAccountAppointments(ctx, accountID)
	if err != nil {
		return nil, s.fail(log, err, slog.String("account_id", req.AccountID))
	}
	log.Info("account appointments archived", slog.String("account_id", req.AccountID), slog.Int("count", n))
	return &ArchiveAccountAppointmentsResponse{Archived: int32(n)}, nil
}

// target parses the appointment id and caller identity shared by every
// lifecycle RPC.
func (s *AppointmentsServer) target(ctx context.Context, log *slog.Logger, nilReq bool, rawID func() string) (uuid.UUID, domain.Actor, error) {
	if nilReq {
		return uuid.Nil, domain.Actor{}, invalid(log, "request is required")
	}
	id, err := uuid.Parse(rawID())
	if err != nil {
		return uuid.Nil, domain.Actor{}, invalid(log, "appointment_id must be a UUID")
	}
	actor, err := actorFromContext(ctx)
	if err != nil {
		log.Warn("unauthenticated request", slog.String("appointment_id", id.String()))
		return uuid.Nil, domain.Actor{}, err
	}
	return id, actor, nil
}

func (s *AppointmentsServer) fail(log *slog.Logger, err error, attrs ...any) error {
	kind := appointments.KindOf(err)
	args := append([]any{slog.String("kind", string(kind)), slog.Any("err", err)}, attrs...)
	switch kind {
	case appointments.KindStorageUnavailable, appointments.KindInternal, "":
		log.Error("request failed", args...)
	default:
		log.Info("request rejected", args...)
	}
	return toStatus(err)
}

func invalid(log *slog.Logger, msg string) error {
	log.Warn("invalid request", slog.String("reason", msg))
	return status.Error(codes.InvalidArgument, msg)
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

func requiredTime(ts *timestamppb.Timestamp, field string) (time.Time, error) {
	if ts == nil {
		return time.Time{}, fieldError(field + " is required")
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, fieldError(field + " is not a valid timestamp")
	}
	return ts.AsTime(), nil
}

func optionalTime(ts *timestamppb.Timestamp, field string) (*time.Time, error) {
	if ts == nil {
		return nil, nil
	}
	t, err := requiredTime(ts, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalUUID(raw, field string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fieldError(field + " must be a UUID")
	}
	return &id, nil
}

func toWireAppointment(a domain.Appointment) *Appointment {
	out := &Appointment{
		ID:               a.ID.String(),
		ProviderID:       a.ProviderID.String(),
		SeekerID:         a.SeekerID.String(),
		StartTime:        timestamppb.New(a.StartTime),
		EndTime:          timestamppb.New(a.EndTime()),
		DurationMinutes:  int32(a.DurationMinutes),
		Status:           string(a.Status),
		Type:             string(a.Type),
		Reason:           a.Reason,
		Notes:            a.Notes,
		IsEmergency:      a.IsEmergency,
		RescheduleReason: a.RescheduleReason,
		Archived:         a.Archived,
		CreatedAt:        timestamppb.New(a.CreatedAt),
		UpdatedAt:        timestamppb.New(a.UpdatedAt),
	}
	if a.RescheduledFrom != nil {
		out.RescheduledFrom = a.RescheduledFrom.String()
	}
	if a.Status == domain.StatusCancelled {
		c := &Cancellation{CancelledByRole: string(a.CancelledByRole), Reason: a.CancellationReason}
		if a.CancelledBy != nil {
			c.CancelledBy = a.CancelledBy.String()
		}
		if a.CancelledAt != nil {
			c.CancelledAt = timestamppb.New(*a.CancelledAt)
		}
		out.Cancellation = c
	}
	if a.Status == domain.StatusCompleted {
		c := &Completion{
			ClinicalNotes:    a.ClinicalNotes,
			Diagnosis:        a.Diagnosis,
			Prescription:     a.Prescription,
			FollowUpRequired: a.FollowUpRequired,
		}
		if a.FollowUpAt != nil {
			c.FollowUpAt = timestamppb.New(*a.FollowUpAt)
		}
		if a.CompletedAt != nil {
			c.CompletedAt = timestamppb.New(*a.CompletedAt)
		}
		out.Completion = c
	}
	return out
}

// TimeoutInterceptor bounds every unary call that arrives without a tighter
// deadline.
func TimeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= d {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
