package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/toolcrib-backend/api/controllers"
	"github.com/angelmondragon/toolcrib-backend/api/middleware"
	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/internal/reservation"
	"github.com/angelmondragon/toolcrib-backend/internal/tools"
	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/toolcrib-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	middleware.ReplayStore
	pkgredis.RateLimiter
	controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	toolService tools.Service,
	requestService requests.Service,
	coordinator reservation.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": dbP}
	var (
		replays middleware.ReplayStore
		limiter pkgredis.RateLimiter
	)
	if redisStore != nil {
		readiness["redis"] = redisStore
		replays = redisStore
		limiter = redisStore
	}
	lifecycleWrite := middleware.Idempotent(replays, middleware.LifecycleReplayTTL, logg)
	catalogWrite := middleware.Idempotent(replays, middleware.CatalogReplayTTL, logg)

	submitLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "request-submit",
		Limit:  cfg.RateLimit.RequestsPerWindow,
		Window: cfg.RateLimit.Window,
	}, limiter, logg)
	storekeeper := middleware.RequireRole(enums.RoleStorekeeper, logg)
	worker := middleware.RequireRole(enums.RoleWorker, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", controllers.ListTools(toolService, logg))
			r.With(storekeeper).Get("/issued", controllers.ListIssuedTools(requestService, logg))
			r.With(storekeeper, catalogWrite).Post("/", controllers.CreateTool(toolService, logg))
			r.Route("/{toolId}", func(r chi.Router) {
				r.Get("/", controllers.GetTool(toolService, logg))
				r.Group(func(r chi.Router) {
					r.Use(storekeeper)
					r.Patch("/", controllers.UpdateTool(toolService, logg))
					r.Delete("/", controllers.RetireTool(toolService, logg))
					r.Get("/ledger", controllers.ToolLedgerReport(toolService, logg))
					r.Delete("/quarantine", controllers.ReleaseToolQuarantine(toolService, logg))
				})
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", controllers.ListRequests(requestService, logg))
			r.Get("/mine", controllers.ListMyRequests(requestService, logg))
			r.With(worker).Get("/borrowed", controllers.ListBorrowed(requestService, logg))
			r.With(worker, lifecycleWrite, submitLimit).Post("/", controllers.CreateRequest(coordinator, logg))
			r.With(worker, lifecycleWrite, submitLimit).Post("/batch", controllers.CreateRequestBatch(coordinator, logg))
			r.Route("/{requestId}", func(r chi.Router) {
				r.Get("/", controllers.GetRequest(requestService, logg))
				r.With(storekeeper, lifecycleWrite).Post("/decision", controllers.DecideRequest(coordinator, logg))
				r.With(worker, lifecycleWrite).Post("/return", controllers.InitiateReturn(coordinator, logg))
				r.With(storekeeper, lifecycleWrite).Post("/return/confirm", controllers.ConfirmReturn(coordinator, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Patch("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			r.Patch("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(notificationsService, logg))
		})
	})

	return r
}
