package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

const dateLayout = "2006-01-02"

type CreateAppointmentRequest struct {
	DoctorID    string                `json:"doctor_id"`
	PatientID   string                `json:"patient_id"`
	SpecialtyID string                `json:"specialty_id,omitempty"`
	RoomID      string                `json:"room_id,omitempty"`
	ServiceID   string                `json:"service_id,omitempty"`
	Date        string                `json:"appointment_date"`
	StartTime   appointment.TimeOfDay `json:"start_time"`
	EndTime     appointment.TimeOfDay `json:"end_time"`
	Reason      string                `json:"reason,omitempty"`
}

type PublicAppointmentRequest struct {
	DoctorID    string                `json:"doctor_id"`
	SpecialtyID string                `json:"specialty_id,omitempty"`
	ServiceID   string                `json:"service_id,omitempty"`
	Date        string                `json:"appointment_date"`
	StartTime   appointment.TimeOfDay `json:"start_time"`
	EndTime     appointment.TimeOfDay `json:"end_time"`
	Reason      string                `json:"reason,omitempty"`
	FullName    string                `json:"full_name"`
	Phone       string                `json:"phone"`
	Email       string                `json:"email,omitempty"`
}

type CheckAvailabilityRequest struct {
	DoctorID  string                `json:"doctor_id"`
	Date      string                `json:"appointment_date"`
	StartTime appointment.TimeOfDay `json:"start_time"`
	EndTime   appointment.TimeOfDay `json:"end_time"`
}

type CheckAvailabilityResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type CheckInRequest struct {
	RoomID string `json:"room_id,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"cancel_reason"`
}

type AppointmentResponse struct {
	ID           uuid.UUID             `json:"id"`
	DoctorID     uuid.UUID             `json:"doctor_id"`
	PatientID    uuid.UUID             `json:"patient_id"`
	SpecialtyID  *uuid.UUID            `json:"specialty_id,omitempty"`
	RoomID       *uuid.UUID            `json:"room_id,omitempty"`
	ServiceID    *uuid.UUID            `json:"service_id,omitempty"`
	Date         string                `json:"appointment_date"`
	StartTime    appointment.TimeOfDay `json:"start_time"`
	EndTime      appointment.TimeOfDay `json:"end_time"`
	Status       appointment.Status    `json:"status"`
	StatusCode   int                   `json:"status_code"`
	Reason       string                `json:"reason,omitempty"`
	CancelReason *string               `json:"cancel_reason,omitempty"`
	ConfirmedAt  *time.Time            `json:"confirmed_at,omitempty"`
	ConfirmedBy  *uuid.UUID            `json:"confirmed_by,omitempty"`
	CheckedInAt  *time.Time            `json:"checked_in_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	ServicePrice *int64                `json:"service_price,omitempty"`
	TotalPrice   *int64                `json:"total_price,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		DoctorID:     a.DoctorID,
		PatientID:    a.PatientID,
		SpecialtyID:  a.SpecialtyID,
		RoomID:       a.RoomID,
		ServiceID:    a.ServiceID,
		Date:         a.Date.Format(dateLayout),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       a.Status,
		StatusCode:   int(a.Status),
		Reason:       a.Reason,
		CancelReason: a.CancelReason,
		ConfirmedAt:  a.ConfirmedAt,
		ConfirmedBy:  a.ConfirmedBy,
		CheckedInAt:  a.CheckedInAt,
		CompletedAt:  a.CompletedAt,
		ServicePrice: a.ServicePrice,
		TotalPrice:   a.TotalPrice,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type WorkIntervalsResponse struct {
	DoctorID  uuid.UUID                  `json:"doctor_id"`
	Date      string                     `json:"date"`
	Intervals []appointment.WorkInterval `json:"work_intervals"`
}

type SlotGridResponse struct {
	DoctorID      uuid.UUID                  `json:"doctor_id"`
	Date          string                     `json:"date"`
	SlotDuration  int                        `json:"slot_duration"`
	WorkIntervals []appointment.WorkInterval `json:"work_intervals"`
	Slots         []appointment.Slot         `json:"slots"`
	Summary       appointment.SlotSummary    `json:"summary"`
}

func toSlotGridResponse(g *appointment.SlotGrid) SlotGridResponse {
	return SlotGridResponse{
		DoctorID:      g.DoctorID,
		Date:          g.Date.Format(dateLayout),
		SlotDuration:  g.SlotDuration,
		WorkIntervals: g.WorkIntervals,
		Slots:         g.Slots,
		Summary:       g.Summary,
	}
}

type PrescriptionRequest struct {
	AppointmentID string          `json:"appointment_id"`
	DoctorID      string          `json:"doctor_id"`
	Vitals        map[string]any  `json:"vitals,omitempty"`
	Symptoms      string          `json:"symptoms,omitempty"`
	Diagnosis     string          `json:"diagnosis,omitempty"`
	TreatmentPlan string          `json:"treatment_plan,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Medicines     []pharmacy.Line `json:"medicines"`
	ExtraCharge   int64           `json:"extra_charge,omitempty"`
	MedicineOnly  bool            `json:"medicine_only,omitempty"`
}

type PrescriptionResponse struct {
	MedicalRecordID *uuid.UUID          `json:"medical_record_id,omitempty"`
	Invoice         *clinical.Invoice   `json:"invoice"`
	Appointment     AppointmentResponse `json:"appointment"`
}

type CheckStockRequest struct {
	Medicines []pharmacy.Line `json:"medicines"`
}

type CheckStockResponse struct {
	Available bool                 `json:"available"`
	Lines     []pharmacy.LineCheck `json:"lines"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type ErrorResponse struct {
	Error   string               `json:"error"`
	Details string               `json:"details,omitempty"`
	Lines   []pharmacy.LineCheck `json:"lines,omitempty"`
}
