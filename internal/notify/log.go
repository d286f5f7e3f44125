package notify

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log.With(slog.String("component", "notify.log"))}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.log.InfoContext(ctx, "appointment event",
		slog.String("event_id", ev.ID.String()),
		slog.String("event_type", string(ev.Type)),
		slog.String("appointment_id", ev.AppointmentID.String()),
		slog.String("status", string(ev.Status)),
		slog.Time("start_time", ev.StartTime),
	)
	return nil
}
