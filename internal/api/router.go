package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/clinical"
	"github.com/hackgods/clinic-scheduling-engine/internal/metrics"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Ledger       *pharmacy.Ledger
	Clinical     *clinical.Coordinator
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	Store        Pinger
	Redis        Pinger // optional
	PublicRate   RateLimitConfig
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(ActorMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Store, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	appts := cfg.Appointments

	// Calendar and slots
	r.Get("/doctors/{doctorID}/work-intervals", workIntervalsHandler(appts, log))
	r.Get("/doctors/{doctorID}/available-slots", availableSlotsHandler(appts, log))

	// Public booking
	r.With(RateLimitMiddleware(cfg.PublicRate)).Post("/public/appointments", createPublicAppointmentHandler(appts, log))

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/check-availability", checkAvailabilityHandler(appts, log))
		r.Post("/", createAppointmentHandler(appts, log))
		r.Get("/", listAppointmentsHandler(appts, log))
		r.Get("/{id}", getAppointmentHandler(appts, log))
		r.Delete("/{id}", deleteAppointmentHandler(appts, log))
		r.Put("/{id}/confirm", confirmAppointmentHandler(appts, log))
		r.Put("/{id}/checkin", checkInAppointmentHandler(appts, log))
		r.Put("/{id}/cancel", cancelAppointmentHandler(appts, log))
		r.Put("/{id}/complete", completeAppointmentHandler(cfg.Clinical, log))
	})

	// Clinical endpoints
	r.Post("/prescriptions", createPrescriptionHandler(cfg.Clinical, log))
	r.Post("/prescriptions/check-stock", checkStockHandler(cfg.Ledger, log))
	r.Get("/invoices/{id}", getInvoiceHandler(cfg.Clinical, log))
	r.Put("/invoices/{id}/pay", payInvoiceHandler(cfg.Clinical, log))
	r.Post("/medicines/{id}/restock", restockMedicineHandler(cfg.Ledger, log))

	return r
}
