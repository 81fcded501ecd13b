package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/memstore"
	"github.com/hackgods/clinic-scheduling-engine/internal/seed"
)

var day = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

func newAppointment(doctor, patient uuid.UUID, start, end appointment.TimeOfDay) *appointment.Appointment {
	return &appointment.Appointment{
		ID:        uuid.New(),
		DoctorID:  doctor,
		PatientID: patient,
		Date:      day,
		StartTime: start,
		EndTime:   end,
		Status:    appointment.StatusPending,
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store := memstore.New()
	med := store.AddMedicine("Paracetamol", 10, 1_000)
	doctor := store.AddDoctor("Dr. Lan")
	patient := store.AddPatient("Pham Van Cuong", "0901234567")
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(ctx context.Context) error {
		if ok, err := store.DecrementStock(ctx, med, 4); err != nil || !ok {
			t.Fatalf("decrement: ok=%v err=%v", ok, err)
		}
		if err := store.CreateAppointment(ctx, newAppointment(doctor, patient, 540, 570)); err != nil {
			t.Fatalf("create: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if m, _ := store.Medicine(med); m.QuantityOnHand != 10 {
		t.Errorf("expected stock restored to 10, got %d", m.QuantityOnHand)
	}
	if n := len(store.Appointments()); n != 0 {
		t.Errorf("expected no appointments after rollback, got %d", n)
	}
}

func TestInTx_NestedCallsJoinOuter(t *testing.T) {
	store := memstore.New()
	med := store.AddMedicine("Ibuprofen", 10, 2_000)
	ctx := context.Background()

	err := store.InTx(ctx, func(ctx context.Context) error {
		// A nested InTx must not deadlock on the transaction mutex.
		if err := store.InTx(ctx, func(ctx context.Context) error {
			_, err := store.DecrementStock(ctx, med, 3)
			return err
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	if err == nil {
		t.Fatal("expected outer failure")
	}
	if m, _ := store.Medicine(med); m.QuantityOnHand != 10 {
		t.Errorf("inner write must roll back with the outer transaction, got %d", m.QuantityOnHand)
	}
}

func TestInTx_UncommittedWritesAreInvisible(t *testing.T) {
	store := memstore.New()
	med := store.AddMedicine("Amoxicillin", 3, 5_000)
	ctx := context.Background()

	seen := make(chan int)
	err := store.InTx(ctx, func(ctx context.Context) error {
		if ok, err := store.DecrementStock(ctx, med, 3); err != nil || !ok {
			t.Fatalf("decrement: ok=%v err=%v", ok, err)
		}
		if got, _ := store.GetMedicines(ctx, []uuid.UUID{med}); got[0].QuantityOnHand != 0 {
			t.Errorf("transaction should read its own write, got %d", got[0].QuantityOnHand)
		}

		go func() {
			got, _ := store.GetMedicines(context.Background(), []uuid.UUID{med})
			seen <- got[0].QuantityOnHand
		}()
		if onHand := <-seen; onHand != 3 {
			t.Errorf("reader outside the transaction saw %d, want 3", onHand)
		}
		return errors.New("prescription failed")
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	if m, _ := store.Medicine(med); m.QuantityOnHand != 3 {
		t.Errorf("expected 3 after rollback, got %d", m.QuantityOnHand)
	}

	if err := store.InTx(ctx, func(ctx context.Context) error {
		_, err := store.DecrementStock(ctx, med, 2)
		return err
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if m, _ := store.Medicine(med); m.QuantityOnHand != 1 {
		t.Errorf("expected committed stock 1, got %d", m.QuantityOnHand)
	}
}

func TestWrite_WaitsForRunningTransaction(t *testing.T) {
	store := memstore.New()
	med := store.AddMedicine("Cetirizine", 10, 1_500)
	ctx := context.Background()

	inTx := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.InTx(ctx, func(ctx context.Context) error {
			close(inTx)
			<-release
			_, err := store.DecrementStock(ctx, med, 4)
			return err
		})
	}()

	<-inTx
	restocked := make(chan struct{})
	go func() {
		_, _ = store.IncrementStock(ctx, med, 5)
		close(restocked)
	}()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("transaction: %v", err)
	}
	<-restocked
	if m, _ := store.Medicine(med); m.QuantityOnHand != 11 {
		t.Errorf("both writes must survive, got %d", m.QuantityOnHand)
	}
}

func TestCreateAppointment_RejectsOverlap(t *testing.T) {
	store := memstore.New()
	doctor := store.AddDoctor("Dr. Lan")
	other := store.AddDoctor("Dr. Quang")
	patient := store.AddPatient("Pham Van Cuong", "0901234567")
	ctx := context.Background()

	if err := store.CreateAppointment(ctx, newAppointment(doctor, patient, 540, 570)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateAppointment(ctx, newAppointment(doctor, patient, 555, 585)); !errors.Is(err, appointment.ErrSlotConflict) {
		t.Errorf("expected ErrSlotConflict, got %v", err)
	}
	if err := store.CreateAppointment(ctx, newAppointment(doctor, patient, 570, 600)); err != nil {
		t.Errorf("touching interval must be accepted: %v", err)
	}
	if err := store.CreateAppointment(ctx, newAppointment(other, patient, 540, 570)); err != nil {
		t.Errorf("another doctor's calendar is independent: %v", err)
	}

	cancelled := newAppointment(doctor, patient, 600, 630)
	if err := store.CreateAppointment(ctx, cancelled); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, cancelled.ID, appointment.StatusPending, appointment.StatusChange{
		To:           appointment.StatusCancelled,
		At:           day,
		CancelReason: "test",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.CreateAppointment(ctx, newAppointment(doctor, patient, 600, 630)); err != nil {
		t.Errorf("cancelled appointment must free its interval: %v", err)
	}
}

func TestUpdateStatus_CompareAndSwap(t *testing.T) {
	store := memstore.New()
	doctor := store.AddDoctor("Dr. Lan")
	patient := store.AddPatient("Pham Van Cuong", "0901234567")
	ctx := context.Background()

	a := newAppointment(doctor, patient, 540, 570)
	if err := store.CreateAppointment(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	change := appointment.StatusChange{To: appointment.StatusConfirmed, At: day}
	if _, err := store.UpdateStatus(ctx, a.ID, appointment.StatusPending, change); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, a.ID, appointment.StatusPending, change); !errors.Is(err, appointment.ErrStatusChanged) {
		t.Errorf("expected ErrStatusChanged, got %v", err)
	}
}

func TestEnsureGuestPatient_ReusesPhone(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	first, err := store.EnsureGuestPatient(ctx, "Vo Thi Dao", "0933000111", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.EnsureGuestPatient(ctx, "Vo T. Dao", "0933000111", "dao@example.com")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Errorf("expected the same patient for one phone, got %s and %s", first, second)
	}
}

func TestLoad(t *testing.T) {
	ds := seed.Generate(seed.Options{Doctors: 3, Patients: 10, Days: 2, Start: day, Seed: 7})
	store := memstore.New()
	store.Load(ds)
	ctx := context.Background()

	for _, d := range ds.Doctors {
		ok, err := store.DoctorExists(ctx, d.ID)
		if err != nil || !ok {
			t.Fatalf("doctor %s not loaded", d.ID)
		}
		intervals, err := store.ListWorkIntervals(ctx, d.ID, day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("list intervals: %v", err)
		}
		if len(intervals) != 2 {
			t.Errorf("expected 2 shifts on day two, got %d", len(intervals))
		}
	}
	for _, m := range ds.Medicines {
		if _, ok := store.Medicine(m.ID); !ok {
			t.Errorf("medicine %s not loaded", m.Name)
		}
	}
}
