package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return a, nil
}

func (r *AppointmentRepo) List(ctx context.Context, f store.ListFilter) ([]domain.Appointment, int, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	q = applyListFilter(q, f).
		OrderExpr("start_time ASC, id ASC").
		Limit(f.Limit).
		Offset(f.Offset)

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, classify(err)
	}
	if rows == nil {
		rows = []domain.Appointment{}
	}
	return rows, total, nil
}

func (r *AppointmentRepo) ListOccupying(ctx context.Context, providerID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	rows, err := listOccupying(ctx, r.db, providerID, windowStart, windowEnd, false)
	return rows, classify(err)
}

func (r *AppointmentRepo) CountByStatus(ctx context.Context, f store.StatsFilter) ([]store.StatusCount, error) {
	var rows []store.StatusCount
	q := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Column("status").
		ColumnExpr("count(*) AS count")
	if f.ProviderID != nil {
		q = q.Where("provider_id = ?", *f.ProviderID)
	}
	if f.SeekerID != nil {
		q = q.Where("seeker_id = ?", *f.SeekerID)
	}
	if f.From != nil {
		q = q.Where("start_time >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("start_time < ?", *f.To)
	}
	err := q.Group("status").OrderExpr("status ASC").Scan(ctx, &rows)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (r *AppointmentRepo) ArchiveForAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("archived = TRUE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("archived = FALSE").
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("provider_id = ?", accountID).WhereOr("seeker_id = ?", accountID)
		}).
		Exec(ctx)
	if err != nil {
		return 0, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(affected), nil
}

func (r *AppointmentRepo) InProviderTransaction(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
	return classify(err)
}

// lockProviderCalendar serializes booking transactions per provider for the
// lifetime of the surrounding transaction.
func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID.String()).Exec(ctx)
	return err
}

func (r bookingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, classify(err)
	}
	return a, nil
}

func (r bookingTx) ListOccupying(ctx context.Context, providerID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listOccupying(ctx, r.tx, providerID, windowStart, windowEnd, true)
}

func (r bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt

	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return m, nil
}

func (r bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.tx.NewUpdate().
		Model(&m).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func listOccupying(ctx context.Context, db bun.IDB, providerID uuid.UUID, windowStart, windowEnd time.Time, forUpdate bool) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", bun.In(domain.OccupyingStatuses())).
		Where("start_time < ?", windowEnd).
		Where("start_time > ?", windowStart.Add(-store.MaxAppointmentSpan)).
		Where("start_time + make_interval(mins => duration_minutes) > ?", windowStart).
		OrderExpr("start_time ASC")
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func applyListFilter(q *bun.SelectQuery, f store.ListFilter) *bun.SelectQuery {
	if !f.IncludeArchived {
		q = q.Where("archived = FALSE")
	}
	if f.ProviderID != nil {
		q = q.Where("provider_id = ?", *f.ProviderID)
	}
	if f.SeekerID != nil {
		q = q.Where("seeker_id = ?", *f.SeekerID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(f.Statuses))
	}
	if f.From != nil {
		q = q.Where("start_time >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("start_time < ?", *f.To)
	}
	return q
}

// classify maps driver errors onto store sentinels. Errors that are already
// meaningful to callers pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, store.ErrUnavailable) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57014", "53300", "57P01":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
