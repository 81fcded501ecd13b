package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

func prescribe(w http.ResponseWriter, r *http.Request, coord *clinical.Coordinator, log *zap.Logger, appointmentID uuid.UUID, req PrescriptionRequest) {
	doctorID, ok := parseUUID(w, req.DoctorID, "doctor_id")
	if !ok {
		return
	}

	res, err := coord.Prescribe(r.Context(), actor.FromContext(r.Context()), clinical.PrescribeRequest{
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		Vitals:        req.Vitals,
		Symptoms:      req.Symptoms,
		Diagnosis:     req.Diagnosis,
		TreatmentPlan: req.TreatmentPlan,
		Notes:         req.Notes,
		Medicines:     req.Medicines,
		ExtraCharge:   req.ExtraCharge,
		MedicineOnly:  req.MedicineOnly,
	})
	if err != nil {
		writeServiceError(w, r, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, PrescriptionResponse{
		MedicalRecordID: res.MedicalRecordID,
		Invoice:         res.Invoice,
		Appointment:     toAppointmentResponse(res.Appointment),
	})
}

func createPrescriptionHandler(coord *clinical.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PrescriptionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		appointmentID, ok := parseUUID(w, req.AppointmentID, "appointment_id")
		if !ok {
			return
		}
		prescribe(w, r, coord, log, appointmentID, req)
	}
}

// completeAppointmentHandler completes a visit through the same transaction as POST /prescriptions.
func completeAppointmentHandler(coord *clinical.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}
		var req PrescriptionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		prescribe(w, r, coord, log, appointmentID, req)
	}
}

func checkStockHandler(ledger *pharmacy.Ledger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !actor.FromContext(r.Context()).IsStaff() {
			writeError(w, http.StatusForbidden, "forbidden", "staff only")
			return
		}

		var req CheckStockRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		checks, err := ledger.CheckAvailability(r.Context(), req.Medicines)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := CheckStockResponse{Available: true, Lines: checks}
		for _, c := range checks {
			if !c.Available {
				resp.Available = false
				break
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getInvoiceHandler(coord *clinical.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "invoice_id")
		if !ok {
			return
		}

		inv, err := coord.GetInvoice(r.Context(), actor.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, inv)
	}
}

func payInvoiceHandler(coord *clinical.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "invoice_id")
		if !ok {
			return
		}

		inv, err := coord.PayInvoice(r.Context(), actor.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, inv)
	}
}

func restockMedicineHandler(ledger *pharmacy.Ledger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "medicine_id")
		if !ok {
			return
		}
		var req RestockRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		med, err := ledger.Restock(r.Context(), actor.FromContext(r.Context()), id, req.Quantity)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, med)
	}
}
