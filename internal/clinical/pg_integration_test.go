package clinical_test

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
	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/db/dbtest"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
	"github.com/hackgods/clinic-scheduling-engine/internal/seed"
)

type pgFixture struct {
	pool    *pgxpool.Pool
	appts   *appointment.Service
	coord   *clinical.Coordinator
	doctor  uuid.UUID
	patient uuid.UUID
	service uuid.UUID
	date    time.Time

	staff     actor.Actor
	physician actor.Actor
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	pool := dbtest.Open(t)
	ctx := context.Background()

	clk := clock.Fixed{At: time.Now().UTC()}
	date := clock.Today(clk).AddDate(0, 0, 1)
	ds := seed.Generate(seed.Options{Doctors: 1, Patients: 2, Days: 1, Start: date, Seed: 23})
	if err := seed.Insert(ctx, pool, ds, zap.NewNop()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := metrics.NewCollector("test")
	tx := db.NewTxManager(pool)
	appts := appointment.NewService(appointment.NewPgRepository(pool), appointment.NewPgDirectory(pool), tx, clk, zap.NewNop(),
		appointment.WithMetrics(m))
	ledger := pharmacy.NewLedger(pharmacy.NewPgRepository(pool), tx, zap.NewNop(), m)

	return &pgFixture{
		pool:      pool,
		appts:     appts,
		coord:     clinical.NewCoordinator(clinical.NewPgRepository(pool), appts, ledger, tx, clk, zap.NewNop(), m),
		doctor:    ds.Doctors[0].ID,
		patient:   ds.Patients[0].ID,
		service:   ds.Services[0].ID,
		date:      date,
		staff:     actor.Actor{ID: uuid.New(), Role: actor.RoleReceptionist},
		physician: actor.Actor{ID: uuid.New(), Role: actor.RoleDoctor},
	}
}

func (f *pgFixture) medicine(t *testing.T, name string, onHand int, price int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.pool.Exec(context.Background(),
		`INSERT INTO medicines (id, name, unit, quantity_on_hand, unit_price) VALUES ($1, $2, 'tablet', $3, $4)`,
		id, name, onHand, price)
	if err != nil {
		t.Fatalf("insert medicine: %v", err)
	}
	return id
}

func (f *pgFixture) checkedIn(t *testing.T, start appointment.TimeOfDay) *appointment.Appointment {
	t.Helper()
	ctx := context.Background()
	a, err := f.appts.Create(ctx, f.staff, appointment.CreateRequest{
		DoctorID:  f.doctor,
		PatientID: f.patient,
		ServiceID: &f.service,
		Date:      f.date,
		StartTime: start,
		EndTime:   start + 30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a, err = f.appts.CheckIn(ctx, f.staff, a.ID, nil); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	return a
}

func (f *pgFixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := f.pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func (f *pgFixture) onHand(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var n int
	if err := f.pool.QueryRow(context.Background(), `SELECT quantity_on_hand FROM medicines WHERE id = $1`, id).Scan(&n); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return n
}

func (f *pgFixture) prescription(apptID uuid.UUID, lines ...pharmacy.Line) clinical.PrescribeRequest {
	return clinical.PrescribeRequest{
		AppointmentID: apptID,
		DoctorID:      f.doctor,
		Symptoms:      "fever, cough",
		Diagnosis:     "Acute bronchitis",
		Medicines:     lines,
	}
}

func TestPg_PrescribeShortageRollsBackEverything(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	amox := f.medicine(t, "Amoxicillin", 3, 5_000)
	para := f.medicine(t, "Paracetamol", 50, 1_000)
	a := f.checkedIn(t, appointment.NewTimeOfDay(8, 0))

	_, err := f.coord.Prescribe(ctx, f.physician, f.prescription(a.ID,
		pharmacy.Line{MedicineID: para, Quantity: 10},
		pharmacy.Line{MedicineID: amox, Quantity: 5},
	))
	var shortage *pharmacy.InsufficientStockError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	if got := f.onHand(t, amox); got != 3 {
		t.Errorf("amoxicillin stock changed to %d", got)
	}
	if got := f.onHand(t, para); got != 50 {
		t.Errorf("paracetamol stock changed to %d", got)
	}
	if n := f.count(t, "medical_records"); n != 0 {
		t.Errorf("expected no medical records, got %d", n)
	}
	if n := f.count(t, "invoices"); n != 0 {
		t.Errorf("expected no invoices, got %d", n)
	}
	if got, err := f.appts.Get(ctx, f.staff, a.ID); err != nil || got.Status != appointment.StatusCheckedIn {
		t.Errorf("appointment should stay checked in, got %v (%v)", got, err)
	}
}

func TestPg_PrescribeCompletesVisit(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	para := f.medicine(t, "Paracetamol", 20, 1_000)
	a := f.checkedIn(t, appointment.NewTimeOfDay(9, 0))

	res, err := f.coord.Prescribe(ctx, f.physician, f.prescription(a.ID, pharmacy.Line{MedicineID: para, Quantity: 6}))
	if err != nil {
		t.Fatalf("prescribe: %v", err)
	}
	if got := f.onHand(t, para); got != 14 {
		t.Errorf("expected stock 14, got %d", got)
	}
	if res.Appointment.Status != appointment.StatusCompleted {
		t.Errorf("expected completed appointment, got %s", res.Appointment.Status)
	}
	if f.count(t, "medical_records") != 1 || f.count(t, "invoice_line_items") != 1 {
		t.Error("expected one medical record and one invoice line")
	}

	stored, err := f.coord.GetInvoice(ctx, f.staff, res.Invoice.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if stored.TotalAmount != res.Invoice.TotalAmount || len(stored.Lines) != 1 {
		t.Errorf("stored invoice %+v differs from returned %+v", stored, res.Invoice)
	}
}

func TestPg_ConcurrentVisitsNeverOverdrawStock(t *testing.T) {
	f := newPgFixture(t)
	amox := f.medicine(t, "Amoxicillin", 10, 5_000)

	visits := []appointment.TimeOfDay{
		appointment.NewTimeOfDay(8, 0),
		appointment.NewTimeOfDay(8, 30),
		appointment.NewTimeOfDay(9, 0),
		appointment.NewTimeOfDay(9, 30),
	}
	appts := make([]*appointment.Appointment, len(visits))
	for i, start := range visits {
		appts[i] = f.checkedIn(t, start)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		served int
	)
	start := make(chan struct{})
	for _, a := range appts {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.coord.Prescribe(context.Background(), f.physician, f.prescription(id, pharmacy.Line{MedicineID: amox, Quantity: 4}))
			var shortage *pharmacy.InsufficientStockError
			switch {
			case err == nil:
				mu.Lock()
				served++
				mu.Unlock()
			case errors.As(err, &shortage):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(a.ID)
	}
	close(start)
	wg.Wait()

	if served != 2 {
		t.Errorf("expected 2 visits served from 10 units at 4 each, got %d", served)
	}
	if got := f.onHand(t, amox); got != 10-4*served || got < 0 {
		t.Errorf("stock %d does not match %d served visits", got, served)
	}
	if n := f.count(t, "invoices"); n != served {
		t.Errorf("expected %d invoices, got %d", served, n)
	}
}

func TestPg_PayInvoiceTwice(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	a := f.checkedIn(t, appointment.NewTimeOfDay(10, 0))

	res, err := f.coord.Prescribe(ctx, f.physician, f.prescription(a.ID))
	if err != nil {
		t.Fatalf("prescribe: %v", err)
	}

	paid, err := f.coord.PayInvoice(ctx, f.staff, res.Invoice.ID)
	if err != nil {
		t.Fatalf("first pay: %v", err)
	}
	if paid.Status != clinical.InvoicePaid || paid.PaidAt == nil {
		t.Errorf("expected paid invoice, got %+v", paid)
	}
	if _, err := f.coord.PayInvoice(ctx, f.staff, res.Invoice.ID); !errors.Is(err, clinical.ErrInvoiceAlreadyPaid) {
		t.Errorf("second pay: expected ErrInvoiceAlreadyPaid, got %v", err)
	}
	if _, err := f.coord.PayInvoice(ctx, f.staff, uuid.New()); !errors.Is(err, clinical.ErrInvoiceNotFound) {
		t.Errorf("unknown invoice: expected ErrInvoiceNotFound, got %v", err)
	}
}
