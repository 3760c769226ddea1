package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/interval"
	"github.com/hackgods/clinic-appointments/internal/lock"
)

const (
	windowColumns  = "id, doctor_id, date, start_time, end_time, status, created_at"
	bookingColumns = "id, doctor_id, patient_id, date, start_time, end_time, status, created_at, updated_at"

	overlapConstraint = "booked_slots_no_overlap"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func toPgTime(t interval.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * 1_000_000, Valid: true}
}

func fromPgTime(t pgtype.Time) interval.TimeOfDay {
	return interval.TimeOfDay(t.Microseconds / 1_000_000)
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var start, end pgtype.Time

	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&w.Date,
		&start,
		&end,
		&w.Status,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Start, w.End = fromPgTime(start), fromPgTime(end)
	return &w, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var start, end pgtype.Time

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.PatientID,
		&b.Date,
		&start,
		&end,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Start, b.End = fromPgTime(start), fromPgTime(end)
	return &b, nil
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Interface methods

func (r *PgRepository) WithDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, func(txCtx context.Context) error {
		if err := db.AdvisoryXactLock(txCtx, db.TxFromContext(txCtx), lock.DoctorDayKey(doctorID, date)); err != nil {
			return err
		}
		return fn(txCtx)
	})
}

func (r *PgRepository) CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = WindowAvailable
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability_windows (id, doctor_id, date, start_time, end_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING `+windowColumns,
		w.ID, w.DoctorID, w.Date, toPgTime(w.Start), toPgTime(w.End), w.Status)

	created, err := scanWindow(row)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert availability window: %w", err)
	}
	return created, nil
}

func (r *PgRepository) ListWindows(ctx context.Context, f WindowFilter) ([]AvailabilityWindow, error) {
	q := psql.Select(windowColumns).
		From("availability_windows").
		Where(sq.Eq{"doctor_id": f.DoctorID}).
		OrderBy("date", "start_time", "created_at")

	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"date": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.LtOrEq{"date": f.To})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build windows query: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate windows: %w", err)
	}

	return result, nil
}

func (r *PgRepository) CreateBooking(ctx context.Context, b Booking) (*Booking, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BookingBooked
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO booked_slots (id, doctor_id, patient_id, date, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+bookingColumns,
		b.ID, b.DoctorID, b.PatientID, b.Date, toPgTime(b.Start), toPgTime(b.End), b.Status)

	created, err := scanBooking(row)
	if err != nil {
		if db.IsExclusionViolation(err, overlapConstraint) {
			return nil, ErrOverlap.Wrap(err)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			if strings.Contains(pgErr.ConstraintName, "patient") {
				return nil, ErrPatientNotFound
			}
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM booked_slots
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	q := psql.Select(bookingColumns).From("booked_slots")

	if f.DoctorID != uuid.Nil {
		q = q.Where(sq.Eq{"doctor_id": f.DoctorID})
	}
	if f.PatientID != uuid.Nil {
		q = q.Where(sq.Eq{"patient_id": f.PatientID})
	}
	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"date": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.LtOrEq{"date": f.To})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}

	switch f.Order {
	case OrderNewestFirst:
		q = q.OrderBy("date DESC", "start_time DESC")
	default:
		q = q.OrderBy("date", "start_time")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bookings query: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}

	return result, nil
}

func (r *PgRepository) DeleteBooking(ctx context.Context, id, patientID uuid.UUID) (*Booking, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		DELETE FROM booked_slots
		WHERE id = $1
		  AND patient_id = $2
		RETURNING `+bookingColumns,
		id, patientID)

	deleted, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("delete booking: %w", err)
	}
	return deleted, nil
}

func (r *PgRepository) SetBookingStatus(ctx context.Context, id uuid.UUID, status BookingStatus) (*Booking, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE booked_slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns,
		id, status)

	updated, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ExpireWindowsEndedBefore(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		UPDATE availability_windows
		SET status = 'expired'
		WHERE status = 'available'
		  AND (date < $1 OR (date = $1 AND end_time < $2))
		RETURNING id
	`, interval.Today(now), toPgTime(interval.TimeOfDayOf(now)))
	if err != nil {
		return nil, fmt.Errorf("expire windows: %w", err)
	}

	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("expire windows: %w", err)
	}
	return ids, nil
}

func (r *PgRepository) CompleteBookingsEndedBefore(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		UPDATE booked_slots
		SET status = 'completed',
		    updated_at = now()
		WHERE status = 'booked'
		  AND (date < $1 OR (date = $1 AND end_time < $2))
		RETURNING id
	`, interval.Today(now), toPgTime(interval.TimeOfDayOf(now)))
	if err != nil {
		return nil, fmt.Errorf("complete bookings: %w", err)
	}

	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("complete bookings: %w", err)
	}
	return ids, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO event_logs (event_type, entity_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.EntityType, ev.EntityID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
