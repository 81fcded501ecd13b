// Package seed generates fake clinic reference data for local runs and load tests.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

var specialtyNames = []string{
	"General Practice",
	"Pediatrics",
	"Cardiology",
	"Dermatology",
	"ENT",
	"Ophthalmology",
	"Endocrinology",
	"Orthopedics",
}

var medicineNames = []string{
	"Paracetamol 500mg",
	"Amoxicillin 500mg",
	"Ibuprofen 400mg",
	"Loratadine 10mg",
	"Omeprazole 20mg",
	"Metformin 850mg",
	"Amlodipine 5mg",
	"Cetirizine 10mg",
	"Vitamin C 500mg",
	"Oresol",
	"Salbutamol inhaler",
	"Dexamethasone 0.5mg",
}

type Named struct {
	ID   uuid.UUID
	Name string
}

type Service struct {
	ID    uuid.UUID
	Name  string
	Price int64
}

type Doctor struct {
	ID          uuid.UUID
	Name        string
	SpecialtyID uuid.UUID
}

type Patient struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
}

type Dataset struct {
	Specialties   []Named
	Rooms         []Named
	Services      []Service
	Doctors       []Doctor
	Patients      []Patient
	WorkIntervals []appointment.WorkInterval
	Medicines     []pharmacy.Medicine
}

type Options struct {
	Doctors  int
	Patients int
	// Days of schedule generated from Start on.
	Days  int
	Start time.Time
	// Seed makes the dataset reproducible; 0 picks a random one.
	Seed uint64
}

// Generate builds a dataset: every doctor works 08:00-12:00 and 13:30-17:00 on each day.
func Generate(opts Options) *Dataset {
	f := gofakeit.New(opts.Seed)
	now := time.Now()
	start := clock.DateOf(opts.Start)

	ds := &Dataset{}
	for _, name := range specialtyNames {
		ds.Specialties = append(ds.Specialties, Named{ID: uuid.New(), Name: name})
	}
	for i := 1; i <= 6; i++ {
		ds.Rooms = append(ds.Rooms, Named{ID: uuid.New(), Name: fmt.Sprintf("Room %d0%d", 1+i/4, i)})
	}
	ds.Services = []Service{
		{ID: uuid.New(), Name: "General consultation", Price: 150_000},
		{ID: uuid.New(), Name: "Specialist consultation", Price: 300_000},
		{ID: uuid.New(), Name: "Follow-up visit", Price: 100_000},
	}

	for i := 0; i < opts.Doctors; i++ {
		spec := ds.Specialties[f.Number(0, len(ds.Specialties)-1)]
		ds.Doctors = append(ds.Doctors, Doctor{ID: uuid.New(), Name: "Dr. " + f.Name(), SpecialtyID: spec.ID})
	}

	phones := make(map[string]bool, opts.Patients)
	for len(ds.Patients) < opts.Patients {
		phone := "0" + f.Phone()[1:]
		if phones[phone] {
			continue
		}
		phones[phone] = true
		ds.Patients = append(ds.Patients, Patient{ID: uuid.New(), Name: f.Name(), Phone: phone, Email: f.Email()})
	}

	shifts := [][2]appointment.TimeOfDay{
		{appointment.NewTimeOfDay(8, 0), appointment.NewTimeOfDay(12, 0)},
		{appointment.NewTimeOfDay(13, 30), appointment.NewTimeOfDay(17, 0)},
	}
	for _, d := range ds.Doctors {
		room := ds.Rooms[f.Number(0, len(ds.Rooms)-1)].ID
		for day := 0; day < opts.Days; day++ {
			date := start.AddDate(0, 0, day)
			for _, sh := range shifts {
				roomID := room
				ds.WorkIntervals = append(ds.WorkIntervals, appointment.WorkInterval{
					ID:        uuid.New(),
					DoctorID:  d.ID,
					Date:      date,
					StartTime: sh[0],
					EndTime:   sh[1],
					RoomID:    &roomID,
					Active:    true,
				})
			}
		}
	}

	for _, name := range medicineNames {
		ds.Medicines = append(ds.Medicines, pharmacy.Medicine{
			ID:             uuid.New(),
			Name:           name,
			Unit:           f.RandomString([]string{"tablet", "capsule", "sachet", "bottle"}),
			QuantityOnHand: f.Number(20, 500),
			UnitPrice:      int64(f.Number(1, 40)) * 500,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	return ds
}

// Insert writes the dataset to Postgres, one transaction per table.
func Insert(ctx context.Context, pool *pgxpool.Pool, ds *Dataset, log *zap.Logger) error {
	steps := []struct {
		name string
		rows int
		fn   func(exec execer) error
	}{
		{"specialties", len(ds.Specialties), func(exec execer) error {
			for _, s := range ds.Specialties {
				if err := exec(`INSERT INTO specialties (id, name) VALUES ($1, $2)`, s.ID, s.Name); err != nil {
					return err
				}
			}
			return nil
		}},
		{"rooms", len(ds.Rooms), func(exec execer) error {
			for _, r := range ds.Rooms {
				if err := exec(`INSERT INTO rooms (id, name) VALUES ($1, $2)`, r.ID, r.Name); err != nil {
					return err
				}
			}
			return nil
		}},
		{"services", len(ds.Services), func(exec execer) error {
			for _, s := range ds.Services {
				if err := exec(`INSERT INTO services (id, name, price) VALUES ($1, $2, $3)`, s.ID, s.Name, s.Price); err != nil {
					return err
				}
			}
			return nil
		}},
		{"doctors", len(ds.Doctors), func(exec execer) error {
			for _, d := range ds.Doctors {
				if err := exec(`INSERT INTO doctors (id, name, specialty_id) VALUES ($1, $2, $3)`, d.ID, d.Name, d.SpecialtyID); err != nil {
					return err
				}
			}
			return nil
		}},
		{"patients", len(ds.Patients), func(exec execer) error {
			for _, p := range ds.Patients {
				if err := exec(`INSERT INTO patients (id, name, phone, email) VALUES ($1, $2, $3, $4)`, p.ID, p.Name, p.Phone, p.Email); err != nil {
					return err
				}
			}
			return nil
		}},
		{"work_intervals", len(ds.WorkIntervals), func(exec execer) error {
			for _, w := range ds.WorkIntervals {
				err := exec(`
					INSERT INTO work_intervals (id, doctor_id, work_date, start_time, end_time, room_id, active)
					VALUES ($1, $2, $3, $4::time, $5::time, $6, $7)
				`, w.ID, w.DoctorID, w.Date, w.StartTime.String(), w.EndTime.String(), w.RoomID, w.Active)
				if err != nil {
					return err
				}
			}
			return nil
		}},
		{"medicines", len(ds.Medicines), func(exec execer) error {
			for _, m := range ds.Medicines {
				err := exec(`
					INSERT INTO medicines (id, name, unit, quantity_on_hand, unit_price)
					VALUES ($1, $2, $3, $4, $5)
				`, m.ID, m.Name, m.Unit, m.QuantityOnHand, m.UnitPrice)
				if err != nil {
					return err
				}
			}
			return nil
		}},
	}

	for _, step := range steps {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		exec := func(sql string, args ...any) error {
			_, err := tx.Exec(ctx, sql, args...)
			return err
		}
		if err := step.fn(exec); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("seed %s: %w", step.name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit %s: %w", step.name, err)
		}

		log.Info("seeded", zap.String("table", step.name), zap.Int("rows", step.rows))
	}
	return nil
}

type execer func(sql string, args ...any) error
