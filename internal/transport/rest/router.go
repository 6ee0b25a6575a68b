package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinic-booking/internal/appointment"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/auth"
	"github.com/clinicore/clinic-booking/internal/doctor"
	"github.com/clinicore/clinic-booking/internal/invitation"
	"github.com/clinicore/clinic-booking/internal/organization"
	"github.com/clinicore/clinic-booking/internal/transport/middleware"
	"github.com/clinicore/clinic-booking/internal/transport/swagger"
	"github.com/clinicore/clinic-booking/internal/user"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth         *auth.Handler
	User         *user.Handler
	Organization *organization.Handler
	Doctor       *doctor.Handler
	Appointment  *appointment.Handler
	Invitation   *invitation.Handler
	Audit        *audit.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, redisClient *redis.Client, h Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, redisClient)

	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})

	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		// Self-service registration is public: patients sign up directly,
		// staff redeem an invitation token.
		r.Post("/users/register", h.User.Register)
		r.Post("/users/accept-invitation", h.User.AcceptInvitation)

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Get("/users/me", h.User.GetCurrentUser)

			pr.Post("/invitations", h.Invitation.Issue)

			pr.Route("/organizations", func(or chi.Router) {
				or.Post("/", h.Organization.CreateOrganization)
				or.Get("/{id}", h.Organization.GetOrganization)
				or.Post("/{id}/locations", h.Organization.CreateLocation)
				or.Get("/{id}/locations", h.Organization.ListLocations)
			})

			pr.Route("/locations", func(lr chi.Router) {
				lr.Get("/{id}", h.Organization.GetLocation)
				lr.Put("/{id}/working-hours", h.Organization.UpdateWorkingHours)
				lr.Delete("/{id}", h.Organization.DeactivateLocation)
				lr.Get("/{id}/doctors", h.Doctor.ListByLocation)
				lr.Get("/{id}/appointments", h.Appointment.ListForLocation)
			})

			pr.Route("/doctors", func(dr chi.Router) {
				dr.Post("/", h.Doctor.CreateDoctor)
				dr.Get("/{id}", h.Doctor.GetDoctor)
				dr.Put("/{id}/schedule", h.Doctor.UpdateSchedule)
				dr.Get("/{id}/availability", h.Appointment.Availability)
				dr.Get("/{id}/appointments", h.Appointment.ListForDoctor)
			})

			pr.Route("/appointments", func(ar chi.Router) {
				ar.Post("/", h.Appointment.Book)
				ar.Get("/{id}", h.Appointment.Get)
				ar.Put("/{id}/reschedule", h.Appointment.Reschedule)
				ar.Post("/{id}/accept", h.Appointment.Accept)
				ar.Post("/{id}/complete", h.Appointment.Complete)
				ar.Post("/{id}/cancel", h.Appointment.Cancel)
				ar.Delete("/{id}", h.Appointment.Delete)
			})

			pr.Get("/patients/{id}/appointments", h.Appointment.ListForPatient)

			pr.Get("/audit", h.Audit.ListByActor)
		})
	})
}
