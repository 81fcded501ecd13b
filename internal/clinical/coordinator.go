// Package clinical runs the visit-completion transaction: medical record, invoice,
// stock decrement and appointment completion commit together or not at all.
package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

const (
	EventPrescriptionCreated = "PRESCRIPTION_CREATED"
	EventInvoicePaid         = "INVOICE_PAID"
)

// Stock is what the coordinator needs from the pharmacy ledger.
type Stock interface {
	Reserve(ctx context.Context, lines []pharmacy.Line) (map[uuid.UUID]pharmacy.Medicine, error)
	Decrement(ctx context.Context, id uuid.UUID, qty int) error
}

type Coordinator struct {
	repo         Repository
	appointments Appointments
	stock        Stock
	tx           TxRunner
	clock        clock.Clock
	log          *zap.Logger
	metrics      *metrics.Collector
}

func NewCoordinator(repo Repository, appts Appointments, stock Stock, tx TxRunner, clk clock.Clock, log *zap.Logger, m *metrics.Collector) *Coordinator {
	return &Coordinator{
		repo:         repo,
		appointments: appts,
		stock:        stock,
		tx:           tx,
		clock:        clk,
		log:          log,
		metrics:      m,
	}
}

func canPrescribe(who actor.Actor) bool {
	return who.Role == actor.RoleDoctor || who.Role == actor.RoleAdmin
}

func validatePrescription(req PrescribeRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.AppointmentID, validation.By(requiredUUID)),
		validation.Field(&req.DoctorID, validation.By(requiredUUID)),
		validation.Field(&req.Diagnosis, validation.When(!req.MedicineOnly, validation.Required), validation.Length(0, 2000)),
		validation.Field(&req.Medicines, validation.When(req.MedicineOnly, validation.Required)),
		validation.Field(&req.ExtraCharge, validation.Min(int64(0))),
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
	if id, _ := value.(uuid.UUID); id == uuid.Nil {
		return errors.New("cannot be blank")
	}
	return nil
}

// Prescribe completes a checked-in visit. In one transaction it locks the appointment,
// verifies stock for every medicine line, writes the medical record (unless
// MedicineOnly), writes the invoice with price snapshots, decrements stock and moves
// the appointment to COMPLETED. Any failure leaves the store as it was.
func (c *Coordinator) Prescribe(ctx context.Context, who actor.Actor, req PrescribeRequest) (*PrescribeResult, error) {
	if !canPrescribe(who) {
		return nil, ErrForbidden
	}
	if err := validatePrescription(req); err != nil {
		return nil, err
	}

	res, err := c.prescribe(ctx, req)
	switch {
	case err == nil:
		c.metrics.Prescription("completed")
	case apperr.KindOf(err) == apperr.Conflict:
		c.metrics.Prescription("conflict")
	case apperr.KindOf(err) == apperr.Internal:
		c.metrics.Prescription("error")
	default:
		c.metrics.Prescription("rejected")
	}
	if err != nil {
		return nil, err
	}

	c.log.Info("visit completed",
		zap.String("appointment_id", req.AppointmentID.String()),
		zap.String("invoice_id", res.Invoice.ID.String()),
		zap.Int64("total_amount", res.Invoice.TotalAmount),
		zap.Int("medicine_lines", len(res.Invoice.Lines)),
		zap.Bool("medicine_only", req.MedicineOnly),
	)
	return res, nil
}

func (c *Coordinator) prescribe(ctx context.Context, req PrescribeRequest) (*PrescribeResult, error) {
	var res PrescribeResult
	err := c.tx.InTx(ctx, func(ctx context.Context) error {
		appt, err := c.appointments.LockForCompletion(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if appt.DoctorID != req.DoctorID {
			return ErrDoctorMismatch
		}

		var meds map[uuid.UUID]pharmacy.Medicine
		if len(req.Medicines) > 0 {
			if meds, err = c.stock.Reserve(ctx, req.Medicines); err != nil {
				return err
			}
		}

		now := c.clock.Now()
		apptID := appt.ID

		if !req.MedicineOnly {
			rec := &MedicalRecord{
				ID:            uuid.New(),
				AppointmentID: &apptID,
				PatientID:     appt.PatientID,
				DoctorID:      appt.DoctorID,
				Vitals:        req.Vitals,
				Symptoms:      strings.TrimSpace(req.Symptoms),
				Diagnosis:     strings.TrimSpace(req.Diagnosis),
				TreatmentPlan: strings.TrimSpace(req.TreatmentPlan),
				Notes:         strings.TrimSpace(req.Notes),
				CreatedAt:     now,
			}
			if rec.Vitals == nil {
				rec.Vitals = map[string]any{}
			}
			if err := c.repo.CreateMedicalRecord(ctx, rec); err != nil {
				return fmt.Errorf("create medical record: %w", err)
			}
			res.MedicalRecordID = &rec.ID
		}

		inv := buildInvoice(appt, req, meds)
		inv.CreatedAt = now
		if err := c.repo.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		for _, line := range req.Medicines {
			if err := c.stock.Decrement(ctx, line.MedicineID, line.Quantity); err != nil {
				return err
			}
		}

		completed, err := c.appointments.MarkCompleted(ctx, appt, inv.TotalAmount)
		if err != nil {
			return err
		}

		res.Invoice = inv
		res.Appointment = completed
		return c.logEvent(ctx, &apptID, EventPrescriptionCreated, map[string]any{
			"invoice_id":    inv.ID.String(),
			"total_amount":  inv.TotalAmount,
			"medicine_only": req.MedicineOnly,
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// buildInvoice prices every line from the locked medicine rows.
func buildInvoice(appt *appointment.Appointment, req PrescribeRequest, meds map[uuid.UUID]pharmacy.Medicine) *Invoice {
	apptID := appt.ID
	inv := &Invoice{
		ID:            uuid.New(),
		AppointmentID: &apptID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Status:        InvoiceUnpaid,
		ExtraCharge:   req.ExtraCharge,
		Lines:         make([]LineItem, 0, len(req.Medicines)),
	}
	if appt.ServicePrice != nil {
		inv.ServicePrice = *appt.ServicePrice
	}

	for _, line := range req.Medicines {
		med := meds[line.MedicineID]
		item := LineItem{
			InvoiceID:         inv.ID,
			MedicineID:        line.MedicineID,
			MedicineName:      med.Name,
			Quantity:          line.Quantity,
			UnitPriceSnapshot: med.UnitPrice,
			Note:              strings.TrimSpace(line.Note),
		}
		inv.MedicineTotal += item.Amount()
		inv.Lines = append(inv.Lines, item)
	}

	inv.TotalAmount = inv.ServicePrice + inv.ExtraCharge + inv.MedicineTotal
	return inv
}

// PayInvoice records payment. It succeeds exactly once per invoice; a second attempt
// fails with ErrInvoiceAlreadyPaid and changes nothing.
func (c *Coordinator) PayInvoice(ctx context.Context, who actor.Actor, id uuid.UUID) (*Invoice, error) {
	if !who.IsStaff() {
		return nil, ErrForbidden
	}

	var paid *Invoice
	err := c.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		paid, err = c.repo.MarkInvoicePaid(ctx, id, c.clock.Now())
		if err != nil {
			return err
		}
		return c.logEvent(ctx, paid.AppointmentID, EventInvoicePaid, map[string]any{
			"invoice_id":   id.String(),
			"total_amount": paid.TotalAmount,
		})
	})
	if err != nil {
		return nil, err
	}

	c.metrics.InvoicePaid()
	c.log.Info("invoice paid", zap.String("invoice_id", id.String()), zap.Int64("total_amount", paid.TotalAmount))
	return paid, nil
}

// GetInvoice returns an invoice to staff or to the patient it bills.
func (c *Coordinator) GetInvoice(ctx context.Context, who actor.Actor, id uuid.UUID) (*Invoice, error) {
	inv, err := c.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.IsStaff() && !who.OwnsPatient(inv.PatientID) {
		return nil, ErrForbidden
	}
	return inv, nil
}

func (c *Coordinator) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}
	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     c.clock.Now(),
	}
	if err := c.repo.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event log %s: %w", eventType, err)
	}
	return nil
}
