package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

var (
	ErrDoctorNotFound      = apperr.New(apperr.NotFound, "doctor_not_found", "doctor not found")
	ErrPatientNotFound     = apperr.New(apperr.NotFound, "patient_not_found", "patient not found")
	ErrAppointmentNotFound = apperr.New(apperr.NotFound, "appointment_not_found", "appointment not found")
	ErrSpecialtyNotFound   = apperr.New(apperr.NotFound, "specialty_not_found", "specialty not found")
	ErrRoomNotFound        = apperr.New(apperr.NotFound, "room_not_found", "room not found")
	ErrServiceNotFound     = apperr.New(apperr.NotFound, "service_not_found", "service not found")

	// ErrStatusChanged is returned by Repository.UpdateStatus when the row is no longer in the expected status.
	ErrStatusChanged = errors.New("appointment status changed concurrently")
)

// Repository contains all appointment and schedule storage the service needs.
// Every method joins the transaction carried by ctx, if any.
type Repository interface {
	// Work calendar
	ListWorkIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]WorkInterval, error)

	// Conflict checks. LockDoctorDay serialises bookings for one doctor and date until the transaction ends.
	LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) error
	ListLiveAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	ListAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from Status, change StatusChange) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Directory answers existence questions about reference data owned elsewhere.
type Directory interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	SpecialtyExists(ctx context.Context, id uuid.UUID) (bool, error)
	RoomExists(ctx context.Context, id uuid.UUID) (bool, error)
	// ServicePrice returns ErrServiceNotFound for unknown services.
	ServicePrice(ctx context.Context, id uuid.UUID) (int64, error)
	// EnsureGuestPatient finds a patient by phone or registers a new one.
	EnsureGuestPatient(ctx context.Context, name, phone, email string) (uuid.UUID, error)
}

// TxRunner runs fn in one transaction; nested calls join the outer one.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker guards a critical section across API instances. It sits in front of the
// database lock and only sheds contention; correctness never depends on it.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotCache stores computed slot grids. Grids are keyed on the version of their
// doctor-day scope, read before the grid is computed; every write bumps it.
type SlotCache interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, v any) error
	Version(ctx context.Context, scope string) (int64, error)
	Bump(ctx context.Context, scope string) error
}
