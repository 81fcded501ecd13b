package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/apperr"
)

var (
	ErrInvoiceNotFound    = apperr.New(apperr.NotFound, "invoice_not_found", "invoice not found")
	ErrInvoiceAlreadyPaid = apperr.New(apperr.Conflict, "invoice_already_paid", "invoice is already paid")
	ErrDoctorMismatch     = apperr.New(apperr.Validation, "doctor_mismatch", "doctor_id does not match the appointment's doctor")
	ErrForbidden          = apperr.New(apperr.Forbidden, "forbidden", "not allowed to perform this clinical operation")
)

type Repository interface {
	CreateMedicalRecord(ctx context.Context, rec *MedicalRecord) error
	// CreateInvoice stores the invoice together with its line items, assigning line ids.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// MarkInvoicePaid flips unpaid → paid. It returns ErrInvoiceAlreadyPaid if the
	// invoice is already paid and ErrInvoiceNotFound if it does not exist.
	MarkInvoicePaid(ctx context.Context, id uuid.UUID, at time.Time) (*Invoice, error)
	InsertEvent(ctx context.Context, ev appointment.EventLog) error
}

// Appointments is the slice of the lifecycle service the coordinator drives.
type Appointments interface {
	LockForCompletion(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkCompleted(ctx context.Context, appt *appointment.Appointment, totalPrice int64) (*appointment.Appointment, error)
}

type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
