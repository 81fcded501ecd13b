package clinical

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "unpaid"
	InvoicePaid   InvoiceStatus = "paid"
)

type MedicalRecord struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
	PatientID     uuid.UUID      `json:"patient_id"`
	DoctorID      uuid.UUID      `json:"doctor_id"`
	Vitals        map[string]any `json:"vitals"`
	Symptoms      string         `json:"symptoms"`
	Diagnosis     string         `json:"diagnosis"`
	TreatmentPlan string         `json:"treatment_plan"`
	Notes         string         `json:"notes"`
	CreatedAt     time.Time      `json:"created_at"`
}

type LineItem struct {
	ID                int64     `json:"id"`
	InvoiceID         uuid.UUID `json:"invoice_id"`
	MedicineID        uuid.UUID `json:"medicine_id"`
	MedicineName      string    `json:"medicine_name"`
	Quantity          int       `json:"quantity"`
	UnitPriceSnapshot int64     `json:"unit_price_snapshot"`
	Note              string    `json:"note,omitempty"`
}

func (l LineItem) Amount() int64 { return int64(l.Quantity) * l.UnitPriceSnapshot }

// Invoice amounts are in the clinic currency's minor unit.
// TotalAmount always equals ServicePrice + ExtraCharge + MedicineTotal.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	PatientID     uuid.UUID     `json:"patient_id"`
	DoctorID      uuid.UUID     `json:"doctor_id"`
	Status        InvoiceStatus `json:"status"`
	ServicePrice  int64         `json:"service_price"`
	ExtraCharge   int64         `json:"extra_charge"`
	MedicineTotal int64         `json:"medicine_total"`
	TotalAmount   int64         `json:"total_amount"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []LineItem    `json:"lines"`
}

// PrescribeRequest is the input of the visit-completion transaction.
type PrescribeRequest struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	Vitals        map[string]any
	Symptoms      string
	Diagnosis     string
	TreatmentPlan string
	Notes         string
	Medicines     []pharmacy.Line
	ExtraCharge   int64
	// MedicineOnly skips the medical record and only bills the medicines.
	MedicineOnly bool
}

type PrescribeResult struct {
	MedicalRecordID *uuid.UUID
	Invoice         *Invoice
	Appointment     *appointment.Appointment
}
