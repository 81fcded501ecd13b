package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

func workIntervalsHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUID(w, chi.URLParam(r, "doctorID"), "doctor_id")
		if !ok {
			return
		}
		date, ok := parseDate(w, r.URL.Query().Get("date"), "date")
		if !ok {
			return
		}

		intervals, err := svc.WorkIntervals(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, WorkIntervalsResponse{
			DoctorID:  doctorID,
			Date:      date.Format(dateLayout),
			Intervals: intervals,
		})
	}
}

func availableSlotsHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUID(w, chi.URLParam(r, "doctorID"), "doctor_id")
		if !ok {
			return
		}
		date, ok := parseDate(w, r.URL.Query().Get("date"), "date")
		if !ok {
			return
		}

		duration := appointment.DefaultSlotDuration
		if raw := r.URL.Query().Get("slot_duration"); raw != "" {
			d, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_duration", "slot_duration must be a number of minutes")
				return
			}
			duration = d
		}

		grid, err := svc.AvailableSlots(r.Context(), doctorID, date, duration)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotGridResponse(grid))
	}
}

func checkAvailabilityHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckAvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, ok := parseUUID(w, req.DoctorID, "doctor_id")
		if !ok {
			return
		}
		date, ok := parseDate(w, req.Date, "appointment_date")
		if !ok {
			return
		}

		res, err := svc.CheckAvailability(r.Context(), doctorID, date, req.StartTime, req.EndTime)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, CheckAvailabilityResponse{Available: res.Available, Message: res.Message})
	}
}

func createAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who := actor.FromContext(r.Context())
		if who.Role == actor.RoleGuest {
			writeError(w, http.StatusForbidden, "forbidden", "guests must book through /public/appointments")
			return
		}

		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in := appointment.CreateRequest{
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Reason:    req.Reason,
		}
		var ok bool
		if in.DoctorID, ok = parseUUID(w, req.DoctorID, "doctor_id"); !ok {
			return
		}
		if who.IsStaff() {
			if in.PatientID, ok = parseUUID(w, req.PatientID, "patient_id"); !ok {
				return
			}
		}
		if in.SpecialtyID, ok = parseOptionalUUID(w, req.SpecialtyID, "specialty_id"); !ok {
			return
		}
		if in.RoomID, ok = parseOptionalUUID(w, req.RoomID, "room_id"); !ok {
			return
		}
		if in.ServiceID, ok = parseOptionalUUID(w, req.ServiceID, "service_id"); !ok {
			return
		}
		if in.Date, ok = parseDate(w, req.Date, "appointment_date"); !ok {
			return
		}

		appt, err := svc.Create(r.Context(), who, in)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func createPublicAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublicAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in := appointment.CreateRequest{
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
			Reason:     req.Reason,
			GuestName:  req.FullName,
			GuestPhone: req.Phone,
			GuestEmail: req.Email,
		}
		var ok bool
		if in.DoctorID, ok = parseUUID(w, req.DoctorID, "doctor_id"); !ok {
			return
		}
		if in.SpecialtyID, ok = parseOptionalUUID(w, req.SpecialtyID, "specialty_id"); !ok {
			return
		}
		if in.ServiceID, ok = parseOptionalUUID(w, req.ServiceID, "service_id"); !ok {
			return
		}
		if in.Date, ok = parseDate(w, req.Date, "appointment_date"); !ok {
			return
		}

		appt, err := svc.Create(r.Context(), actor.Guest(), in)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), actor.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		doctorID, ok := parseUUID(w, q.Get("doctor_id"), "doctor_id")
		if !ok {
			return
		}
		date, ok := parseDate(w, q.Get("date"), "date")
		if !ok {
			return
		}

		list, err := svc.ListForDoctorDay(r.Context(), actor.FromContext(r.Context()), doctorID, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), actor.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func checkInAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		var req CheckInRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		roomID, ok := parseOptionalUUID(w, req.RoomID, "room_id")
		if !ok {
			return
		}

		appt, err := svc.CheckIn(r.Context(), actor.FromContext(r.Context()), id, roomID)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		var req CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), actor.FromContext(r.Context()), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *appointment.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "appointment_id")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), actor.FromContext(r.Context()), id); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
