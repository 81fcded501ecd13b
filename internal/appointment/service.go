package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCheckedIn = "APPOINTMENT_CHECKED_IN"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
)

var (
	ErrDateInPast              = apperr.New(apperr.Validation, "date_in_past", "date must be today or later")
	ErrStartTimePassed         = apperr.New(apperr.Validation, "start_time_passed", "start time has already passed today")
	ErrInvalidTimeRange        = apperr.New(apperr.Validation, "invalid_time_range", "start_time must be before end_time")
	ErrCancelReasonRequired    = apperr.New(apperr.Validation, "cancel_reason_required", "a cancellation reason is required")
	ErrInvalidStatusTransition = apperr.New(apperr.Conflict, "invalid_state", "invalid status transition")
	ErrForbidden               = apperr.New(apperr.Forbidden, "forbidden", "not allowed to act on this appointment")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

type Service struct {
	repo    Repository
	dir     Directory
	tx      TxRunner
	clock   clock.Clock
	log     *zap.Logger
	locker  Locker
	cache   SlotCache
	metrics *metrics.Collector
}

type Option func(*Service)

// WithLocker puts a distributed lock in front of the per doctor-day database lock.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

func WithSlotCache(c SlotCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func NewService(repo Repository, dir Directory, tx TxRunner, clk clock.Clock, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		dir:   dir,
		tx:    tx,
		clock: clk,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WorkIntervals returns the doctor's active working intervals for date, ordered by start.
// A doctor with no schedule that day gets an empty list.
func (s *Service) WorkIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]WorkInterval, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.activeIntervals(ctx, doctorID, clock.DateOf(date))
}

func (s *Service) activeIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]WorkInterval, error) {
	all, err := s.repo.ListWorkIntervals(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list work intervals: %w", err)
	}

	active := make([]WorkInterval, 0, len(all))
	for _, w := range all {
		if w.Active {
			active = append(active, w)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartTime < active[j].StartTime })
	return active, nil
}

// AvailableSlots computes the slot grid for a doctor and date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int) (*SlotGrid, error) {
	if duration == 0 {
		duration = DefaultSlotDuration
	}
	if !ValidSlotDuration(duration) {
		return nil, ErrInvalidSlotDuration
	}
	date = clock.DateOf(date)
	if date.Before(clock.Today(s.clock)) {
		return nil, ErrDateInPast
	}
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	key := s.slotCacheKey(ctx, doctorID, date, duration)
	if key != "" {
		var cached SlotGrid
		ok, err := s.cache.Load(ctx, key, &cached)
		switch {
		case err != nil:
			s.metrics.SlotCache("error")
			s.log.Warn("slot cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			s.metrics.SlotCache("hit")
			return &cached, nil
		default:
			s.metrics.SlotCache("miss")
		}
	}

	intervals, err := s.activeIntervals(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	live, err := s.repo.ListLiveAppointments(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	slots, summary := GenerateSlots(intervals, live, duration)
	grid := &SlotGrid{
		DoctorID:      doctorID,
		Date:          date,
		SlotDuration:  duration,
		WorkIntervals: intervals,
		Slots:         slots,
		Summary:       summary,
	}

	if key != "" {
		if err := s.cache.Store(ctx, key, grid); err != nil {
			s.log.Warn("slot cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return grid, nil
}

// CheckAvailability runs only the overlap test for one interval, without building the grid.
func (s *Service) CheckAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end TimeOfDay) (*Availability, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	date = clock.DateOf(date)
	if date.Before(clock.Today(s.clock)) {
		return nil, ErrDateInPast
	}
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	live, err := s.repo.ListLiveAppointments(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	for i := range live {
		if live[i].Overlaps(start, end) {
			return &Availability{Available: false, Message: "time slot is already booked"}, nil
		}
	}
	return &Availability{Available: true, Message: "time slot is available"}, nil
}

// Create books an appointment. Guests and patients get a PENDING booking, staff bookings
// start CONFIRMED. Every path runs the same guard under the doctor-day lock, so two
// overlapping requests can never both succeed.
func (s *Service) Create(ctx context.Context, who actor.Actor, req CreateRequest) (*Appointment, error) {
	appt, err := s.create(ctx, who, req)
	switch {
	case err == nil:
		s.metrics.Booking("created")
	case apperr.KindOf(err) == apperr.Conflict:
		s.metrics.Booking("conflict")
	case apperr.KindOf(err) == apperr.Internal:
		s.metrics.Booking("error")
	default:
		s.metrics.Booking("rejected")
	}
	return appt, err
}

func (s *Service) create(ctx context.Context, who actor.Actor, req CreateRequest) (*Appointment, error) {
	if err := validateCreate(req, who); err != nil {
		return nil, err
	}
	if err := validateRange(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	date := clock.DateOf(req.Date)
	today := clock.Today(s.clock)
	if date.Before(today) {
		return nil, ErrDateInPast
	}
	if date.Equal(today) && int(req.StartTime) <= clock.MinuteOfDay(s.clock) {
		return nil, ErrStartTimePassed
	}

	if err := s.requireDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}
	if err := s.requireRefs(ctx, req.SpecialtyID, req.RoomID); err != nil {
		return nil, err
	}

	var servicePrice *int64
	if req.ServiceID != nil {
		price, err := s.dir.ServicePrice(ctx, *req.ServiceID)
		if err != nil {
			if errors.Is(err, ErrServiceNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load service price: %w", err)
		}
		servicePrice = &price
	}

	now := s.clock.Now()
	appt := &Appointment{
		ID:           uuid.New(),
		DoctorID:     req.DoctorID,
		SpecialtyID:  req.SpecialtyID,
		RoomID:       req.RoomID,
		ServiceID:    req.ServiceID,
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Status:       StatusPending,
		Reason:       strings.TrimSpace(req.Reason),
		ServicePrice: servicePrice,
		CreatedBy:    who.Ref(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	switch {
	case who.IsStaff():
		ok, err := s.dir.PatientExists(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("load patient: %w", err)
		}
		if !ok {
			return nil, ErrPatientNotFound
		}
		appt.PatientID = req.PatientID
		appt.Status = StatusConfirmed
		appt.ConfirmedAt = &now
		appt.ConfirmedBy = who.Ref()
	case who.Role == actor.RolePatient:
		if who.PatientID == nil {
			return nil, ErrForbidden
		}
		appt.PatientID = *who.PatientID
	}

	err := s.withDoctorDayLock(ctx, req.DoctorID, date, func(lockCtx context.Context) error {
		return s.tx.InTx(lockCtx, func(txCtx context.Context) error {
			if who.Role == actor.RoleGuest {
				pid, err := s.dir.EnsureGuestPatient(txCtx, strings.TrimSpace(req.GuestName), req.GuestPhone, req.GuestEmail)
				if err != nil {
					return fmt.Errorf("register guest patient: %w", err)
				}
				appt.PatientID = pid
			}

			if err := s.repo.LockDoctorDay(txCtx, appt.DoctorID, date); err != nil {
				return fmt.Errorf("lock doctor day: %w", err)
			}
			// Inside the critical section re-check overlap and working hours
			if err := s.guard(txCtx, appt.DoctorID, date, appt.StartTime, appt.EndTime); err != nil {
				return err
			}
			if err := s.repo.CreateAppointment(txCtx, appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			return s.logEvent(txCtx, appt.ID, EventAppointmentCreated, map[string]any{
				"doctor_id":  appt.DoctorID.String(),
				"patient_id": appt.PatientID.String(),
				"date":       date.Format(time.DateOnly),
				"start_time": appt.StartTime.String(),
				"end_time":   appt.EndTime.String(),
				"status":     appt.Status.String(),
				"role":       string(who.Role),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSlots(ctx, appt.DoctorID, date)
	s.log.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("doctor_id", appt.DoctorID.String()),
		zap.String("date", date.Format(time.DateOnly)),
		zap.String("start", appt.StartTime.String()),
		zap.String("status", appt.Status.String()),
	)
	return appt, nil
}

// Confirm moves a pending appointment to confirmed. Staff only.
func (s *Service) Confirm(ctx context.Context, who actor.Actor, id uuid.UUID) (*Appointment, error) {
	if !who.IsStaff() {
		return nil, ErrForbidden
	}
	return s.transition(ctx, id, StatusChange{To: StatusConfirmed, At: s.clock.Now(), By: who.Ref()}, nil, EventAppointmentConfirmed)
}

// CheckIn marks the patient as arrived, optionally binding a room. Staff only.
func (s *Service) CheckIn(ctx context.Context, who actor.Actor, id uuid.UUID, roomID *uuid.UUID) (*Appointment, error) {
	if !who.IsStaff() {
		return nil, ErrForbidden
	}
	if err := s.requireRefs(ctx, nil, roomID); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, StatusChange{To: StatusCheckedIn, At: s.clock.Now(), By: who.Ref(), RoomID: roomID}, nil, EventAppointmentCheckedIn)
}

// Cancel frees the appointment's interval. Staff may cancel any booking, patients only their own.
func (s *Service) Cancel(ctx context.Context, who actor.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrCancelReasonRequired
	}

	authorize := func(a *Appointment) error {
		if who.IsStaff() || who.OwnsPatient(a.PatientID) {
			return nil
		}
		return ErrForbidden
	}

	updated, err := s.transition(ctx, id, StatusChange{To: StatusCancelled, At: s.clock.Now(), By: who.Ref(), CancelReason: reason}, authorize, EventAppointmentCancelled)
	if err != nil {
		return nil, err
	}

	s.invalidateSlots(ctx, updated.DoctorID, updated.Date)
	return updated, nil
}

// Delete is the administrative hard delete. It ignores status and is not a lifecycle transition.
func (s *Service) Delete(ctx context.Context, who actor.Actor, id uuid.UUID) error {
	if !who.IsAdmin() {
		return ErrForbidden
	}

	var deleted *Appointment
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		appt, err := s.repo.GetAppointmentForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteAppointment(txCtx, id); err != nil {
			return fmt.Errorf("delete appointment: %w", err)
		}
		deleted = appt
		return s.logEvent(txCtx, id, EventAppointmentDeleted, map[string]any{
			"status": appt.Status.String(),
		})
	})
	if err != nil {
		return err
	}

	s.invalidateSlots(ctx, deleted.DoctorID, deleted.Date)
	s.log.Info("appointment deleted", zap.String("appointment_id", id.String()), zap.String("by", who.ID.String()))
	return nil
}

// Get returns one appointment. Patients may only read their own.
func (s *Service) Get(ctx context.Context, who actor.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.IsStaff() && !who.OwnsPatient(appt.PatientID) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// ListForDoctorDay returns every appointment of a doctor on date, cancelled ones included.
func (s *Service) ListForDoctorDay(ctx context.Context, who actor.Actor, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	if !who.IsStaff() {
		return nil, ErrForbidden
	}
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListAppointments(ctx, doctorID, clock.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// LockForCompletion loads and row-locks an appointment inside the caller's visit-completion
// transaction, and fails with ErrInvalidStatusTransition unless it may be completed.
func (s *Service) LockForCompletion(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusCompleted) {
		return nil, invalidTransition(appt.Status, StatusCompleted)
	}
	return appt, nil
}

// MarkCompleted is the CHECKED_IN → COMPLETED compare-and-swap. It is only called by the
// clinical coordinator, inside the same transaction that wrote the record and invoice.
func (s *Service) MarkCompleted(ctx context.Context, appt *Appointment, totalPrice int64) (*Appointment, error) {
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusCheckedIn, StatusChange{
		To:         StatusCompleted,
		At:         s.clock.Now(),
		TotalPrice: &totalPrice,
	})
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, invalidTransition(appt.Status, StatusCompleted)
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	if err := s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
		"total_price": totalPrice,
	}); err != nil {
		return nil, err
	}
	s.metrics.Transition(StatusCompleted.String())
	return updated, nil
}

// transition applies one lifecycle step as a compare-and-swap on the current status.
func (s *Service) transition(ctx context.Context, id uuid.UUID, change StatusChange, authorize func(*Appointment) error, eventType string) (*Appointment, error) {
	var updated *Appointment
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		appt, err := s.repo.GetAppointmentForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(appt); err != nil {
				return err
			}
		}
		if !appt.Status.CanTransitionTo(change.To) {
			return invalidTransition(appt.Status, change.To)
		}

		updated, err = s.repo.UpdateStatus(txCtx, id, appt.Status, change)
		if err != nil {
			if errors.Is(err, ErrStatusChanged) {
				return invalidTransition(appt.Status, change.To)
			}
			return fmt.Errorf("update appointment status: %w", err)
		}

		payload := map[string]any{"from": appt.Status.String(), "to": change.To.String()}
		if change.CancelReason != "" {
			payload["reason"] = change.CancelReason
		}
		if change.RoomID != nil {
			payload["room_id"] = change.RoomID.String()
		}
		return s.logEvent(txCtx, id, eventType, payload)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(change.To.String())
	s.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("to", change.To.String()),
	)
	return updated, nil
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: cannot move appointment from %s to %s", ErrInvalidStatusTransition, from, to)
}

func (s *Service) withDoctorDayLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, lockKey(doctorID, date), fn)
}

func (s *Service) requireDoctor(ctx context.Context, doctorID uuid.UUID) error {
	ok, err := s.dir.DoctorExists(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	if !ok {
		return ErrDoctorNotFound
	}
	return nil
}

func (s *Service) requireRefs(ctx context.Context, specialtyID, roomID *uuid.UUID) error {
	if specialtyID != nil {
		ok, err := s.dir.SpecialtyExists(ctx, *specialtyID)
		if err != nil {
			return fmt.Errorf("load specialty: %w", err)
		}
		if !ok {
			return ErrSpecialtyNotFound
		}
	}
	if roomID != nil {
		ok, err := s.dir.RoomExists(ctx, *roomID)
		if err != nil {
			return fmt.Errorf("load room: %w", err)
		}
		if !ok {
			return ErrRoomNotFound
		}
	}
	return nil
}

// slotCacheKey returns "" when there is no cache or its version cannot be read,
// in which case the grid is neither loaded nor stored.
func (s *Service) slotCacheKey(ctx context.Context, doctorID uuid.UUID, date time.Time, duration int) string {
	if s.cache == nil {
		return ""
	}
	scope := slotScope(doctorID, date)
	ver, err := s.cache.Version(ctx, scope)
	if err != nil {
		s.metrics.SlotCache("error")
		s.log.Warn("slot cache version read failed", zap.String("scope", scope), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s:v%d:%d", scope, ver, duration)
}

// invalidateSlots runs after the write has committed.
func (s *Service) invalidateSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if s.cache == nil {
		return
	}
	scope := slotScope(doctorID, date)
	if err := s.cache.Bump(ctx, scope); err != nil {
		s.log.Warn("slot cache invalidation failed", zap.String("scope", scope), zap.Error(err))
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event log %s: %w", eventType, err)
	}
	return nil
}

func slotScope(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("slots:%s:%s", doctorID, date.Format(time.DateOnly))
}

func validateRange(start, end TimeOfDay) error {
	if !start.Valid() || !end.Valid() || start >= end {
		return ErrInvalidTimeRange
	}
	return nil
}

func validateCreate(req CreateRequest, who actor.Actor) error {
	guest := who.Role == actor.RoleGuest
	err := validation.ValidateStruct(&req,
		validation.Field(&req.DoctorID, validation.By(requiredUUID)),
		validation.Field(&req.Date, validation.Required),
		validation.Field(&req.Reason, validation.Length(0, 1000)),
		validation.Field(&req.PatientID, validation.When(who.IsStaff(), validation.By(requiredUUID))),
		validation.Field(&req.GuestName, validation.When(guest, validation.Required, validation.Length(2, 200))),
		validation.Field(&req.GuestPhone, validation.When(guest, validation.Required, validation.Match(phonePattern))),
		validation.Field(&req.GuestEmail, is.EmailFormat),
	)
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	return apperr.Validationf("%s", err.Error())
}

func requiredUUID(value any) error {
	id, _ := value.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
}
