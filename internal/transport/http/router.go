package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig carries the handlers the router mounts.
type RouterConfig struct {
	Scheduling     *Handler
	MetricsHandler http.Handler
}

// NewRouter builds the chi router with all scheduling routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/appointments", cfg.Scheduling.CreateAppointment)
		r.Post("/appointments/{appointmentID}/reschedule", cfg.Scheduling.RescheduleAppointment)
		r.Post("/appointments/{appointmentID}/status", cfg.Scheduling.UpdateAppointmentStatus)

		r.Get("/resources/{kind}/{resourceID}/appointments", cfg.Scheduling.ListResourceAppointments)
		r.Get("/resources/{kind}/{resourceID}/conflict", cfg.Scheduling.CheckResourceConflict)
		r.Get("/equipment/{equipmentID}/availability", cfg.Scheduling.CheckEquipmentAvailability)

		r.Post("/appointment-series", cfg.Scheduling.CreateSeries)
		r.Patch("/recurrence-patterns/{patternID}", cfg.Scheduling.UpdateRecurrencePattern)
		r.Delete("/recurrence-patterns/{patternID}", cfg.Scheduling.DeleteRecurrencePattern)
	})

	return r
}
