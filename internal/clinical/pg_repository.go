package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const invoiceColumns = `id, appointment_id, patient_id, doctor_id, status, service_price,
	extra_charge, medicine_total, total_amount, paid_at, created_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string

	err := row.Scan(
		&inv.ID,
		&inv.AppointmentID,
		&inv.PatientID,
		&inv.DoctorID,
		&status,
		&inv.ServicePrice,
		&inv.ExtraCharge,
		&inv.MedicineTotal,
		&inv.TotalAmount,
		&inv.PaidAt,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	inv.Status = InvoiceStatus(status)
	return &inv, nil
}

func (r *PgRepository) CreateMedicalRecord(ctx context.Context, rec *MedicalRecord) error {
	vitals, err := json.Marshal(rec.Vitals)
	if err != nil {
		return fmt.Errorf("marshal vitals: %w", err)
	}

	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medical_records (
			id, appointment_id, patient_id, doctor_id, vitals,
			symptoms, diagnosis, treatment_plan, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.ID, rec.AppointmentID, rec.PatientID, rec.DoctorID, vitals,
		rec.Symptoms, rec.Diagnosis, rec.TreatmentPlan, rec.Notes, rec.CreatedAt,
	)
	return err
}

func (r *PgRepository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	conn := db.Conn(ctx, r.pool)

	_, err := conn.Exec(ctx, `
		INSERT INTO invoices (
			id, appointment_id, patient_id, doctor_id, status, service_price,
			extra_charge, medicine_total, total_amount, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		inv.ID, inv.AppointmentID, inv.PatientID, inv.DoctorID, string(inv.Status), inv.ServicePrice,
		inv.ExtraCharge, inv.MedicineTotal, inv.TotalAmount, inv.CreatedAt,
	)
	if err != nil {
		return err
	}

	for i := range inv.Lines {
		line := &inv.Lines[i]
		err := conn.QueryRow(ctx, `
			INSERT INTO invoice_line_items (
				invoice_id, medicine_id, medicine_name, quantity, unit_price_snapshot, note
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, inv.ID, line.MedicineID, line.MedicineName, line.Quantity, line.UnitPriceSnapshot, line.Note).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("insert line item %d: %w", i, err)
		}
	}
	return nil
}

func (r *PgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	conn := db.Conn(ctx, r.pool)

	inv, err := scanInvoice(conn.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *PgRepository) loadLines(ctx context.Context, inv *Invoice) error {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, invoice_id, medicine_id, medicine_name, quantity, unit_price_snapshot, note
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY id
	`, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	inv.Lines = []LineItem{}
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.MedicineID, &l.MedicineName, &l.Quantity, &l.UnitPriceSnapshot, &l.Note); err != nil {
			return err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return rows.Err()
}

func (r *PgRepository) MarkInvoicePaid(ctx context.Context, id uuid.UUID, at time.Time) (*Invoice, error) {
	conn := db.Conn(ctx, r.pool)

	inv, err := scanInvoice(conn.QueryRow(ctx, `
		UPDATE invoices
		SET status = $2, paid_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+invoiceColumns,
		id, string(InvoicePaid), at, string(InvoiceUnpaid)))
	if errors.Is(err, ErrInvoiceNotFound) {
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrInvoiceAlreadyPaid
		}
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}
