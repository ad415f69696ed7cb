package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/frame-curator/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	telemetryHandler := handlers.NewTelemetryHandler(s.store)
	stagesHandler := handlers.NewStagesHandler(s.tracker)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// Agents deployed before the versioned API post here.
	s.router.Post("/telemetry", telemetryHandler.Report)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/telemetry", telemetryHandler.Report)
		r.Get("/telemetry", telemetryHandler.List)
		r.Delete("/telemetry", telemetryHandler.Reset)
		r.Get("/telemetry/{agent}", telemetryHandler.Get)

		r.Get("/stages", stagesHandler.List)
		r.Get("/stages/{name}", stagesHandler.Get)
	})
}
