// Package memstore keeps every repository in process memory. Transactions are
// serialised and work on a copy of the state that is swapped in on commit, so
// readers never observe a transaction that has not committed.
package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
	"github.com/hackgods/clinic-scheduling-engine/internal/seed"
)

type patient struct {
	id    uuid.UUID
	name  string
	phone string
	email string
}

type state struct {
	doctors      map[uuid.UUID]string
	patients     map[uuid.UUID]patient
	specialties  map[uuid.UUID]string
	rooms        map[uuid.UUID]string
	services     map[uuid.UUID]int64
	intervals    map[uuid.UUID]appointment.WorkInterval
	appointments map[uuid.UUID]appointment.Appointment
	medicines    map[uuid.UUID]pharmacy.Medicine
	records      map[uuid.UUID]clinical.MedicalRecord
	invoices     map[uuid.UUID]clinical.Invoice
	events       []appointment.EventLog
	nextLineID   int64
	nextEventID  int64
}

func (s *state) clone() *state {
	c := *s
	c.doctors = maps.Clone(s.doctors)
	c.patients = maps.Clone(s.patients)
	c.specialties = maps.Clone(s.specialties)
	c.rooms = maps.Clone(s.rooms)
	c.services = maps.Clone(s.services)
	c.intervals = maps.Clone(s.intervals)
	c.appointments = maps.Clone(s.appointments)
	c.medicines = maps.Clone(s.medicines)
	c.records = maps.Clone(s.records)
	c.invoices = maps.Clone(s.invoices)
	c.events = append([]appointment.EventLog(nil), s.events...)
	return &c
}

type Store struct {
	txMu sync.Mutex // held for the whole of a transaction

	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		doctors:      map[uuid.UUID]string{},
		patients:     map[uuid.UUID]patient{},
		specialties:  map[uuid.UUID]string{},
		rooms:        map[uuid.UUID]string{},
		services:     map[uuid.UUID]int64{},
		intervals:    map[uuid.UUID]appointment.WorkInterval{},
		appointments: map[uuid.UUID]appointment.Appointment{},
		medicines:    map[uuid.UUID]pharmacy.Medicine{},
		records:      map[uuid.UUID]clinical.MedicalRecord{},
		invoices:     map[uuid.UUID]clinical.Invoice{},
	}}
}

type txKey struct{}

// InTx runs fn against a private copy of the state that replaces the shared state
// only when fn succeeds. Transactions run one at a time.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// view hands fn the working copy of the transaction in ctx, or the committed state.
func (s *Store) view(ctx context.Context, fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if work, ok := ctx.Value(txKey{}).(*state); ok {
		fn(work)
		return
	}
	fn(s.st)
}

// write outside a transaction commits at once, after any running transaction
// has committed, so that commit cannot overwrite it.
func (s *Store) write(ctx context.Context, fn func(st *state)) {
	if _, ok := ctx.Value(txKey{}).(*state); !ok {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.view(ctx, fn)
}

// Seeding

func (s *Store) Load(ds *seed.Dataset) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sp := range ds.Specialties {
		s.st.specialties[sp.ID] = sp.Name
	}
	for _, r := range ds.Rooms {
		s.st.rooms[r.ID] = r.Name
	}
	for _, sv := range ds.Services {
		s.st.services[sv.ID] = sv.Price
	}
	for _, d := range ds.Doctors {
		s.st.doctors[d.ID] = d.Name
	}
	for _, p := range ds.Patients {
		s.st.patients[p.ID] = patient{id: p.ID, name: p.Name, phone: p.Phone, email: p.Email}
	}
	for _, w := range ds.WorkIntervals {
		s.st.intervals[w.ID] = w
	}
	for _, m := range ds.Medicines {
		s.st.medicines[m.ID] = m
	}
}

func (s *Store) AddDoctor(name string) uuid.UUID {
	id := uuid.New()
	s.write(context.Background(), func(st *state) { st.doctors[id] = name })
	return id
}

func (s *Store) AddPatient(name, phone string) uuid.UUID {
	id := uuid.New()
	s.write(context.Background(), func(st *state) { st.patients[id] = patient{id: id, name: name, phone: phone} })
	return id
}

func (s *Store) AddRoom(name string) uuid.UUID {
	id := uuid.New()
	s.write(context.Background(), func(st *state) { st.rooms[id] = name })
	return id
}

func (s *Store) AddSpecialty(name string) uuid.UUID {
	id := uuid.New()
	s.write(context.Background(), func(st *state) { st.specialties[id] = name })
	return id
}

func (s *Store) AddService(price int64) uuid.UUID {
	id := uuid.New()
	s.write(context.Background(), func(st *state) { st.services[id] = price })
	return id
}

func (s *Store) AddWorkInterval(doctorID uuid.UUID, date time.Time, start, end appointment.TimeOfDay) uuid.UUID {
	id := uuid.New()
	s.write(context.Background(), func(st *state) {
		st.intervals[id] = appointment.WorkInterval{
			ID: id, DoctorID: doctorID, Date: date, StartTime: start, EndTime: end, Active: true,
		}
	})
	return id
}

func (s *Store) AddMedicine(name string, onHand int, unitPrice int64) uuid.UUID {
	id := uuid.New()
	now := time.Now()
	s.write(context.Background(), func(st *state) {
		st.medicines[id] = pharmacy.Medicine{
			ID: id, Name: name, Unit: "tablet", QuantityOnHand: onHand, UnitPrice: unitPrice, CreatedAt: now, UpdatedAt: now,
		}
	})
	return id
}

// Inspection

func (s *Store) Medicine(id uuid.UUID) (pharmacy.Medicine, bool) {
	var (
		m  pharmacy.Medicine
		ok bool
	)
	s.view(context.Background(), func(st *state) { m, ok = st.medicines[id] })
	return m, ok
}

func (s *Store) Appointments() []appointment.Appointment {
	var out []appointment.Appointment
	s.view(context.Background(), func(st *state) {
		for _, a := range st.appointments {
			out = append(out, a)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (s *Store) MedicalRecords() []clinical.MedicalRecord {
	var out []clinical.MedicalRecord
	s.view(context.Background(), func(st *state) {
		for _, r := range st.records {
			out = append(out, r)
		}
	})
	return out
}

func (s *Store) Invoices() []clinical.Invoice {
	var out []clinical.Invoice
	s.view(context.Background(), func(st *state) {
		for _, inv := range st.invoices {
			out = append(out, inv)
		}
	})
	return out
}

func (s *Store) Events() []appointment.EventLog {
	var out []appointment.EventLog
	s.view(context.Background(), func(st *state) { out = append(out, st.events...) })
	return out
}

// Ping satisfies the readiness check.
func (s *Store) Ping(context.Context) error { return nil }

var (
	_ appointment.Repository = (*Store)(nil)
	_ appointment.Directory  = (*Store)(nil)
	_ appointment.TxRunner   = (*Store)(nil)
	_ pharmacy.Repository    = (*Store)(nil)
	_ clinical.Repository    = (*Store)(nil)
)
