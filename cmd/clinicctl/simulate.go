package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/api"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ConfirmRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	GuestShare    float64
	PatientLimit  int
	IntervalLimit int
}

// shift is one bookable work interval.
type shift struct {
	DoctorID uuid.UUID
	Date     string
	Start    appointment.TimeOfDay
	End      appointment.TimeOfDay
}

type DataPool struct {
	Patients     []uuid.UUID
	Shifts       []shift
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min95(len(latencies))]
	return avg, min, max, p50, p95
}

func min95(n int) int {
	idx := n * 95 / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	GuestBooking OperationMetrics
	Confirm      OperationMetrics
	Cancel       OperationMetrics
	ReadSlots    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	staff   actor.Actor
	metrics Metrics
}

func simulateCmd() *cobra.Command {
	var cfg SimConfig
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive concurrent booking load against a running api-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Workers <= 0 {
				return fmt.Errorf("--workers must be > 0")
			}
			if cfg.Duration <= 0 {
				return fmt.Errorf("--duration must be > 0")
			}
			total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio + cfg.ReadRatio
			if total <= 0 {
				return fmt.Errorf("at least one ratio must be > 0")
			}
			cfg.BookingRatio /= total
			cfg.ConfirmRatio /= total
			cfg.CancelRatio /= total
			cfg.ReadRatio /= total

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			loadCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			dataPool, err := loadDataPool(loadCtx, e.pool, cfg)
			if err != nil {
				return fmt.Errorf("load data pool: %w", err)
			}
			e.log.Info("loaded simulation data",
				zap.Int("patients", len(dataPool.Patients)),
				zap.Int("shifts", len(dataPool.Shifts)),
			)

			sim := &Simulator{
				config: cfg,
				pool:   dataPool,
				client: &http.Client{Timeout: 10 * time.Second},
				staff:  actor.Actor{ID: uuid.New(), Role: actor.RoleReceptionist},
			}
			sim.Run(cmd.Context(), e.log)
			sim.PrintReport()

			overlaps, err := countOverlaps(cmd.Context(), e.pool)
			if err != nil {
				return fmt.Errorf("verify bookings: %w", err)
			}
			fmt.Printf("Overlapping live appointments: %d\n", overlaps)
			if overlaps > 0 {
				return fmt.Errorf("found %d double bookings", overlaps)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "api-server base URL")
	f.DurationVar(&cfg.Duration, "duration", 30*time.Second, "How long to run")
	f.IntVar(&cfg.Workers, "workers", 10, "Concurrent workers")
	f.Float64Var(&cfg.BookingRatio, "booking-ratio", 0.5, "Share of booking operations")
	f.Float64Var(&cfg.ConfirmRatio, "confirm-ratio", 0.15, "Share of confirm operations")
	f.Float64Var(&cfg.CancelRatio, "cancel-ratio", 0.05, "Share of cancel operations")
	f.Float64Var(&cfg.ReadRatio, "read-ratio", 0.3, "Share of available-slot reads")
	f.Float64Var(&cfg.GuestShare, "guest-share", 0.3, "Share of bookings made through the public endpoint")
	f.IntVar(&cfg.PatientLimit, "patient-limit", 2000, "Patients loaded from Postgres")
	f.IntVar(&cfg.IntervalLimit, "interval-limit", 200, "Upcoming work intervals loaded from Postgres")
	return cmd
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Upcoming intervals only; today's may already have started.
	rows, err = pool.Query(ctx, `
		SELECT doctor_id, work_date,
		       (EXTRACT(EPOCH FROM start_time) / 60)::int,
		       (EXTRACT(EPOCH FROM end_time) / 60)::int
		FROM work_intervals
		WHERE active AND work_date > current_date
		ORDER BY work_date, doctor_id
		LIMIT $1
	`, cfg.IntervalLimit)
	if err != nil {
		return nil, fmt.Errorf("load work intervals: %w", err)
	}
	for rows.Next() {
		var (
			s          shift
			date       time.Time
			start, end int
		)
		if err := rows.Scan(&s.DoctorID, &date, &start, &end); err != nil {
			rows.Close()
			return nil, err
		}
		s.Date = date.Format("2006-01-02")
		s.Start = appointment.TimeOfDay(start)
		s.End = appointment.TimeOfDay(end)
		dataPool.Shifts = append(dataPool.Shifts, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Shifts) == 0 {
		return nil, fmt.Errorf("no upcoming work intervals loaded")
	}
	return dataPool, nil
}

// countOverlaps counts pairs of live appointments of one doctor whose times intersect.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.appointment_date = b.appointment_date
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.status <> $1 AND b.status <> $1
	`, int16(appointment.StatusCancelled)).Scan(&n)
	return n, err
}

func (s *Simulator) Run(ctx context.Context, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	log.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			if rng.Float64() < c.GuestShare {
				s.doGuestBooking(ctx, rng)
			} else {
				s.doBooking(ctx, rng)
			}
		case r < c.BookingRatio+c.ConfirmRatio:
			s.doConfirm(ctx, rng)
		case r < c.BookingRatio+c.ConfirmRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doReadSlots(ctx, rng)
		}
	}
}

// randomSlot picks a 30 minute slot inside a random shift, so workers collide often.
func (s *Simulator) randomSlot(rng *rand.Rand) (shift, appointment.TimeOfDay, appointment.TimeOfDay) {
	sh := s.pool.Shifts[rng.Intn(len(s.pool.Shifts))]
	n := int(sh.End-sh.Start) / 30
	if n < 1 {
		return sh, sh.Start, sh.End
	}
	start := sh.Start + appointment.TimeOfDay(30*rng.Intn(n))
	return sh, start, start + 30
}

func (s *Simulator) call(ctx context.Context, method, path string, who *actor.Actor, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set(api.HeaderActorRole, string(who.Role))
		req.Header.Set(api.HeaderActorID, who.ID.String())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func (s *Simulator) remember(status int, data []byte) {
	if status != http.StatusCreated {
		return
	}
	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	if json.Unmarshal(data, &appt) == nil && appt.ID != uuid.Nil {
		s.pool.AddAppointment(appt.ID)
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sh, start, end := s.randomSlot(rng)
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	began := time.Now()
	status, data, err := s.call(ctx, http.MethodPost, "/appointments", &s.staff, map[string]any{
		"doctor_id":        sh.DoctorID,
		"patient_id":       patientID,
		"appointment_date": sh.Date,
		"start_time":       start,
		"end_time":         end,
	})
	s.metrics.Booking.Record(time.Since(began), status, err)
	s.remember(status, data)
}

func (s *Simulator) doGuestBooking(ctx context.Context, rng *rand.Rand) {
	sh, start, end := s.randomSlot(rng)

	began := time.Now()
	status, data, err := s.call(ctx, http.MethodPost, "/public/appointments", nil, map[string]any{
		"doctor_id":        sh.DoctorID,
		"appointment_date": sh.Date,
		"start_time":       start,
		"end_time":         end,
		"full_name":        "Load Test Guest",
		"phone":            fmt.Sprintf("09%08d", rng.Intn(100_000_000)),
	})
	s.metrics.GuestBooking.Record(time.Since(began), status, err)
	s.remember(status, data)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	began := time.Now()
	status, _, err := s.call(ctx, http.MethodPut, "/appointments/"+id.String()+"/confirm", &s.staff, nil)
	s.metrics.Confirm.Record(time.Since(began), status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	began := time.Now()
	status, _, err := s.call(ctx, http.MethodPut, "/appointments/"+id.String()+"/cancel", &s.staff, map[string]string{
		"cancel_reason": "load test",
	})
	s.metrics.Cancel.Record(time.Since(began), status, err)
}

func (s *Simulator) doReadSlots(ctx context.Context, rng *rand.Rand) {
	sh := s.pool.Shifts[rng.Intn(len(s.pool.Shifts))]

	began := time.Now()
	status, _, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/doctors/%s/available-slots?date=%s&slot_duration=30", sh.DoctorID, sh.Date), nil, nil)
	s.metrics.ReadSlots.Record(time.Since(began), status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Staff booking", &s.metrics.Booking)
	printOperationReport("Guest booking", &s.metrics.GuestBooking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Available slots", &s.metrics.ReadSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
