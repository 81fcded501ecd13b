package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling-engine/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const microsPerMinute = int64(60 * 1_000_000)

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * microsPerMinute, Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / microsPerMinute)
}

const appointmentColumns = `id, doctor_id, patient_id, specialty_id, room_id, service_id,
	appointment_date, start_time, end_time, status, reason, cancel_reason,
	confirmed_at, confirmed_by, checked_in_at, completed_at,
	service_price, total_price, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var start, end pgtype.Time
	var status int16

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SpecialtyID,
		&a.RoomID,
		&a.ServiceID,
		&a.Date,
		&start,
		&end,
		&status,
		&a.Reason,
		&a.CancelReason,
		&a.ConfirmedAt,
		&a.ConfirmedBy,
		&a.CheckedInAt,
		&a.CompletedAt,
		&a.ServicePrice,
		&a.TotalPrice,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.StartTime = fromPgTime(start)
	a.EndTime = fromPgTime(end)
	a.Status = Status(status)
	return &a, nil
}

func scanWorkInterval(row pgx.Row) (*WorkInterval, error) {
	var w WorkInterval
	var start, end pgtype.Time

	if err := row.Scan(&w.ID, &w.DoctorID, &w.Date, &start, &end, &w.RoomID, &w.Active); err != nil {
		return nil, err
	}

	w.StartTime = fromPgTime(start)
	w.EndTime = fromPgTime(end)
	return &w, nil
}

// Work calendar

func (r *PgRepository) ListWorkIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]WorkInterval, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, doctor_id, work_date, start_time, end_time, room_id, active
		FROM work_intervals
		WHERE doctor_id = $1 AND work_date = $2
		ORDER BY start_time ASC
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []WorkInterval
	for rows.Next() {
		w, err := scanWorkInterval(rows)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, *w)
	}
	return intervals, rows.Err()
}

// Conflict checks

// LockDoctorDay takes a transaction-scoped advisory lock on the doctor and date.
func (r *PgRepository) LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	if !db.InTransaction(ctx) {
		return errors.New("doctor-day lock requires a transaction")
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey(doctorID, date))
	return err
}

func (r *PgRepository) ListLiveAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2 AND status <> $3
		ORDER BY start_time ASC
	`, doctorID, date, int16(StatusCancelled))
}

func (r *PgRepository) ListAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY start_time ASC, created_at ASC
	`, doctorID, date)
}

func (r *PgRepository) listAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

// Creation and updates

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, specialty_id, room_id, service_id,
			appointment_date, start_time, end_time, status, reason,
			confirmed_at, confirmed_by, service_price, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		a.ID, a.DoctorID, a.PatientID, a.SpecialtyID, a.RoomID, a.ServiceID,
		a.Date, pgTime(a.StartTime), pgTime(a.EndTime), int16(a.Status), a.Reason,
		a.ConfirmedAt, a.ConfirmedBy, a.ServicePrice, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case db.IsExclusionViolation(err):
		// Backstop for an overlap that slipped past the locks.
		return ErrSlotConflict
	case db.IsCheckViolation(err):
		return ErrInvalidTimeRange
	default:
		return err
	}
}

// UpdateStatus applies change only if the row is still in status from.
func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, change StatusChange) (*Appointment, error) {
	var (
		set  string
		args = []any{id, int16(from), int16(change.To), change.At}
	)

	switch change.To {
	case StatusConfirmed:
		set = `confirmed_at = $4, confirmed_by = $5`
		args = append(args, change.By)
	case StatusCheckedIn:
		set = `checked_in_at = $4, room_id = COALESCE($5, room_id)`
		args = append(args, change.RoomID)
	case StatusCancelled:
		set = `cancel_reason = $5`
		args = append(args, change.CancelReason)
	case StatusCompleted:
		set = `completed_at = $4, total_price = $5`
		args = append(args, change.TotalPrice)
	default:
		return nil, fmt.Errorf("unsupported target status %s", change.To)
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = $4, `+set+`
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns, args...)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	return a, err
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}

// PgDirectory resolves reference data from the clinic tables.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) exists(ctx context.Context, query string, id uuid.UUID) (bool, error) {
	var ok bool
	if err := db.Conn(ctx, d.pool).QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (d *PgDirectory) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id)
}

func (d *PgDirectory) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id)
}

func (d *PgDirectory) SpecialtyExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM specialties WHERE id = $1)`, id)
}

func (d *PgDirectory) RoomExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, id)
}

func (d *PgDirectory) ServicePrice(ctx context.Context, id uuid.UUID) (int64, error) {
	var price int64
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `SELECT price FROM services WHERE id = $1`, id).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrServiceNotFound
		}
		return 0, err
	}
	return price, nil
}

func (d *PgDirectory) EnsureGuestPatient(ctx context.Context, name, phone, email string) (uuid.UUID, error) {
	var emailArg *string
	if email != "" {
		emailArg = &email
	}

	var id uuid.UUID
	err := db.Conn(ctx, d.pool).QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET updated_at = now()
		RETURNING id
	`, uuid.New(), name, phone, emailArg).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
