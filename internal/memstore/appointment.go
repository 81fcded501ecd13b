package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

func (s *Store) ListWorkIntervals(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.WorkInterval, error) {
	var out []appointment.WorkInterval
	s.view(ctx, func(st *state) {
		for _, w := range st.intervals {
			if w.DoctorID == doctorID && w.Date.Equal(date) {
				out = append(out, w)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// LockDoctorDay is a no-op: transactions already run one at a time.
func (s *Store) LockDoctorDay(context.Context, uuid.UUID, time.Time) error { return nil }

func (s *Store) ListLiveAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	all, err := s.ListAppointments(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	live := all[:0]
	for _, a := range all {
		if a.Live() {
			live = append(live, a)
		}
	}
	return live, nil
}

func (s *Store) ListAppointments(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	s.view(ctx, func(st *state) {
		for _, a := range st.appointments {
			if a.DoctorID == doctorID && a.Date.Equal(date) {
				out = append(out, a)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var (
		a  appointment.Appointment
		ok bool
	)
	s.view(ctx, func(st *state) { a, ok = st.appointments[id] })
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *Store) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.GetAppointment(ctx, id)
}

// CreateAppointment rejects overlapping live bookings like the database exclusion constraint does.
func (s *Store) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	var err error
	s.write(ctx, func(st *state) {
		if a.StartTime >= a.EndTime {
			err = appointment.ErrInvalidTimeRange
			return
		}
		for _, other := range st.appointments {
			if other.DoctorID == a.DoctorID && other.Date.Equal(a.Date) && other.Live() && a.Live() &&
				other.Overlaps(a.StartTime, a.EndTime) {
				err = appointment.ErrSlotConflict
				return
			}
		}
		st.appointments[a.ID] = *a
	})
	return err
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from appointment.Status, change appointment.StatusChange) (*appointment.Appointment, error) {
	var (
		out *appointment.Appointment
		err error
	)
	s.write(ctx, func(st *state) {
		a, ok := st.appointments[id]
		if !ok || a.Status != from {
			err = appointment.ErrStatusChanged
			return
		}

		at := change.At
		a.Status = change.To
		a.UpdatedAt = at
		switch change.To {
		case appointment.StatusConfirmed:
			a.ConfirmedAt = &at
			a.ConfirmedBy = change.By
		case appointment.StatusCheckedIn:
			a.CheckedInAt = &at
			if change.RoomID != nil {
				a.RoomID = change.RoomID
			}
		case appointment.StatusCancelled:
			reason := change.CancelReason
			a.CancelReason = &reason
		case appointment.StatusCompleted:
			a.CompletedAt = &at
			a.TotalPrice = change.TotalPrice
		}

		st.appointments[id] = a
		out = &a
	})
	return out, err
}

func (s *Store) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	var err error
	s.write(ctx, func(st *state) {
		if _, ok := st.appointments[id]; !ok {
			err = appointment.ErrAppointmentNotFound
			return
		}
		delete(st.appointments, id)
		// Records and invoices outlive the appointment.
		for rid, r := range st.records {
			if r.AppointmentID != nil && *r.AppointmentID == id {
				r.AppointmentID = nil
				st.records[rid] = r
			}
		}
		for iid, inv := range st.invoices {
			if inv.AppointmentID != nil && *inv.AppointmentID == id {
				inv.AppointmentID = nil
				st.invoices[iid] = inv
			}
		}
	})
	return err
}

func (s *Store) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	s.write(ctx, func(st *state) {
		st.nextEventID++
		ev.ID = st.nextEventID
		st.events = append(st.events, ev)
	})
	return nil
}

// Directory

func (s *Store) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	s.view(ctx, func(st *state) { _, ok = st.doctors[id] })
	return ok, nil
}

func (s *Store) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	s.view(ctx, func(st *state) { _, ok = st.patients[id] })
	return ok, nil
}

func (s *Store) SpecialtyExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	s.view(ctx, func(st *state) { _, ok = st.specialties[id] })
	return ok, nil
}

func (s *Store) RoomExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	s.view(ctx, func(st *state) { _, ok = st.rooms[id] })
	return ok, nil
}

func (s *Store) ServicePrice(ctx context.Context, id uuid.UUID) (int64, error) {
	var (
		price int64
		ok    bool
	)
	s.view(ctx, func(st *state) { price, ok = st.services[id] })
	if !ok {
		return 0, appointment.ErrServiceNotFound
	}
	return price, nil
}

func (s *Store) EnsureGuestPatient(ctx context.Context, name, phone, email string) (uuid.UUID, error) {
	var id uuid.UUID
	s.write(ctx, func(st *state) {
		for _, p := range st.patients {
			if p.phone == phone {
				id = p.id
				return
			}
		}
		id = uuid.New()
		st.patients[id] = patient{id: id, name: name, phone: phone, email: email}
	})
	return id, nil
}
