package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/db/dbtest"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
	"github.com/hackgods/clinic-scheduling-engine/internal/seed"
)

type pgFixture struct {
	pool    *pgxpool.Pool
	repo    *appointment.PgRepository
	svc     *appointment.Service
	doctor  uuid.UUID
	patient uuid.UUID
	date    time.Time
	staff   actor.Actor
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	pool := dbtest.Open(t)
	ctx := context.Background()

	clk := clock.Fixed{At: time.Now().UTC()}
	date := clock.Today(clk).AddDate(0, 0, 1)
	ds := seed.Generate(seed.Options{Doctors: 1, Patients: 3, Days: 1, Start: date, Seed: 11})
	if err := seed.Insert(ctx, pool, ds, zap.NewNop()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	repo := appointment.NewPgRepository(pool)
	svc := appointment.NewService(repo, appointment.NewPgDirectory(pool), db.NewTxManager(pool), clk, zap.NewNop(),
		appointment.WithMetrics(metrics.NewCollector("test")))

	return &pgFixture{
		pool:    pool,
		repo:    repo,
		svc:     svc,
		doctor:  ds.Doctors[0].ID,
		patient: ds.Patients[0].ID,
		date:    date,
		staff:   actor.Actor{ID: uuid.New(), Role: actor.RoleReceptionist},
	}
}

func (f *pgFixture) request(start, end appointment.TimeOfDay) appointment.CreateRequest {
	return appointment.CreateRequest{
		DoctorID:  f.doctor,
		PatientID: f.patient,
		Date:      f.date,
		StartTime: start,
		EndTime:   end,
		Reason:    "check-up",
	}
}

func (f *pgFixture) liveRows(t *testing.T) int {
	t.Helper()
	var n int
	err := f.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM appointments WHERE doctor_id = $1 AND appointment_date = $2 AND status <> 4`,
		f.doctor, f.date).Scan(&n)
	if err != nil {
		t.Fatalf("count appointments: %v", err)
	}
	return n
}

func TestPg_ConcurrentCreateSameSlot(t *testing.T) {
	f := newPgFixture(t)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Create(context.Background(), f.staff, f.request(hm(9, 0), hm(9, 30)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case apperr.KindOf(err) == apperr.Conflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if created != 1 || conflicts != callers-1 {
		t.Errorf("expected 1 booking and %d conflicts, got %d and %d", callers-1, created, conflicts)
	}
	if n := f.liveRows(t); n != 1 {
		t.Errorf("expected exactly one stored appointment, got %d", n)
	}
}

func TestPg_ConcurrentOverlappingCreatesNeverDoubleBook(t *testing.T) {
	f := newPgFixture(t)

	ranges := [][2]appointment.TimeOfDay{
		{hm(10, 0), hm(10, 30)},
		{hm(10, 15), hm(10, 45)},
		{hm(10, 20), hm(10, 50)},
		{hm(9, 45), hm(10, 15)},
	}
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, r := range ranges {
		wg.Add(1)
		go func(r [2]appointment.TimeOfDay) {
			defer wg.Done()
			<-start
			_, _ = f.svc.Create(context.Background(), f.staff, f.request(r[0], r[1]))
		}(r)
	}
	close(start)
	wg.Wait()

	var overlaps int
	err := f.pool.QueryRow(context.Background(), `
		SELECT count(*) FROM appointments a JOIN appointments b
		  ON a.id < b.id AND a.doctor_id = b.doctor_id AND a.appointment_date = b.appointment_date
		 AND a.start_time < b.end_time AND b.start_time < a.end_time
		 WHERE a.doctor_id = $1 AND a.status <> 4
		   AND b.status <> 4`, f.doctor).Scan(&overlaps)
	if err != nil {
		t.Fatalf("count overlaps: %v", err)
	}
	if overlaps != 0 {
		t.Errorf("found %d overlapping live appointments", overlaps)
	}
	if n := f.liveRows(t); n < 1 {
		t.Error("expected at least one booking to succeed")
	}
}

func TestPg_ExclusionConstraintRejectsOverlap(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	first := &appointment.Appointment{
		ID: uuid.New(), DoctorID: f.doctor, PatientID: f.patient, Date: f.date,
		StartTime: hm(11, 0), EndTime: hm(11, 30), Status: appointment.StatusPending,
	}
	if err := f.repo.CreateAppointment(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Straight to the repository, bypassing the doctor-day lock and the service check.
	second := *first
	second.ID = uuid.New()
	second.StartTime, second.EndTime = hm(11, 15), hm(11, 45)
	if err := f.repo.CreateAppointment(ctx, &second); !errors.Is(err, appointment.ErrSlotConflict) {
		t.Errorf("expected ErrSlotConflict from the exclusion constraint, got %v", err)
	}

	touching := *first
	touching.ID = uuid.New()
	touching.StartTime, touching.EndTime = hm(11, 30), hm(12, 0)
	if err := f.repo.CreateAppointment(ctx, &touching); err != nil {
		t.Errorf("touching interval must be accepted: %v", err)
	}
}

func TestPg_UpdateStatusCompareAndSwap(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.staff, f.request(hm(8, 0), hm(8, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	change := appointment.StatusChange{To: appointment.StatusConfirmed, At: time.Now().UTC()}
	if _, err := f.repo.UpdateStatus(ctx, a.ID, appointment.StatusPending, change); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := f.repo.UpdateStatus(ctx, a.ID, appointment.StatusPending, change); !errors.Is(err, appointment.ErrStatusChanged) {
		t.Errorf("expected ErrStatusChanged, got %v", err)
	}
}

func TestPg_CancelFreesSlot(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, f.staff, f.request(hm(9, 0), hm(9, 30)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.staff, f.request(hm(9, 0), hm(9, 30))); apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("expected conflict while booked, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.staff, a.ID, "bệnh nhân yêu cầu"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.staff, f.request(hm(9, 0), hm(9, 30))); err != nil {
		t.Errorf("slot should be free after cancel: %v", err)
	}

	grid, err := f.svc.AvailableSlots(ctx, f.doctor, f.date, 30)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if grid.Summary.Booked != 1 {
		t.Errorf("expected 1 booked slot, got %+v", grid.Summary)
	}
}
