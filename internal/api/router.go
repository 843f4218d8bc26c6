package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dcsense-core/internal/auth"
	"github.com/nerrad567/dcsense-core/internal/infrastructure/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	user := s.requireSession(auth.LevelUser)
	admin := s.requireSession(auth.LevelAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimited(nil)).Post("/register", s.handleRegister)
			r.With(s.rateLimited(func() {
				metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
			})).Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Post("/sessionstatus", s.handleSessionStatus)
			r.With(admin).Post("/list/users", s.handleListUsers)
			r.With(admin).Post("/{user}/remove", s.handleRemoveUser)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Post("/submitreadings", s.handleSubmitReadings)
			r.With(admin).Post("/list/controllers", s.handleListControllers)

			r.Group(func(r chi.Router) {
				r.Use(user, s.requireControllerAccess)
				r.Post("/list/dates/{controller}/limit/{limit}", s.handleListDates)
				r.Post("/list/dates/{controller}/all", s.handleListDates)
				r.Post("/readings/{controller}/{time}", s.handleReadingsAt)
			})
		})

		r.Route("/facilities", func(r chi.Router) {
			r.With(admin).Post("/add", s.handleAddFacility)
			r.With(user).Post("/list", s.handleListFacilities)

			r.Route("/{facility}", func(r chi.Router) {
				r.With(admin).Post("/remove", s.handleRemoveFacility)
				r.With(admin).Post("/list/owners", s.handleListOwners)
				r.With(user, s.requireFacilityAccess).Post("/list/controllers", s.handleListFacilityControllers)
				r.With(admin).Post("/owners/{verb}/{user}", s.handleUpdateOwners)
				r.With(admin).Post("/controllers/{verb}/{controller}", s.handleUpdateControllers)
			})
		})

		r.With(admin).Post("/audit/list", s.handleListAuditLogs)
	})

	return r
}
