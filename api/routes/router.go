package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proposalhub/proposalhub-backend/api/controllers"
	"github.com/proposalhub/proposalhub-backend/api/middleware"
	"github.com/proposalhub/proposalhub-backend/internal/notifications"
	"github.com/proposalhub/proposalhub-backend/internal/proposals"
	"github.com/proposalhub/proposalhub-backend/pkg/auth"
	"github.com/proposalhub/proposalhub-backend/pkg/config"
	"github.com/proposalhub/proposalhub-backend/pkg/db"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
	"github.com/proposalhub/proposalhub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	batcher controllers.Batcher,
	proposalsService proposals.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	deps := map[string]controllers.Pinger{
		"database": dbP,
	}
	var idemStore redis.IdempotencyStore
	if redisClient != nil {
		deps["redis"] = redisClient
		idemStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/proposals", func(r chi.Router) {
			r.Post("/", controllers.CreateProposal(proposalsService, logg))
			r.Get("/", controllers.ListProposals(proposalsService, logg))
			r.Get("/{proposalID}", controllers.GetProposal(proposalsService, logg))
			r.Patch("/{proposalID}", controllers.UpdateProposal(proposalsService, logg))
			r.Post("/{proposalID}/submit", controllers.SubmitProposal(proposalsService, logg))
			r.With(middleware.RequireRole(auth.RoleAdmin, logg)).
				Post("/{proposalID}/decision", controllers.DecideProposal(proposalsService, logg))
		})

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Post("/", controllers.CreateNotification(batcher, logg))
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(notificationsService, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(auth.RoleAdmin, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.AdminPing())

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/pending", controllers.PendingNotifications(batcher, logg))
			r.Get("/stats", controllers.BatchStats(batcher, logg))
			r.Post("/flush", controllers.FlushNotifications(batcher, logg))
			r.Post("/clear", controllers.ClearNotifications(batcher, logg))
		})
	})

	return r
}
