package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/livo-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/livo-backend/api/controllers/admin"
	bookingcontrollers "github.com/angelmondragon/livo-backend/api/controllers/bookings"
	paymentcontrollers "github.com/angelmondragon/livo-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/livo-backend/api/controllers/webhooks"
	"github.com/angelmondragon/livo-backend/api/middleware"
	"github.com/angelmondragon/livo-backend/internal/bookings"
	"github.com/angelmondragon/livo-backend/internal/inventory"
	"github.com/angelmondragon/livo-backend/internal/payments"
	pkgauth "github.com/angelmondragon/livo-backend/pkg/auth"
	"github.com/angelmondragon/livo-backend/pkg/config"
	"github.com/angelmondragon/livo-backend/pkg/db"
	"github.com/angelmondragon/livo-backend/pkg/enums"
	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
	"github.com/angelmondragon/livo-backend/pkg/redis"
)

// How long completed responses are replayed for a repeated Idempotency-Key.
const (
	replayTTL       = 24 * time.Hour
	cancelReplayTTL = 7 * 24 * time.Hour
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Bookings  bookings.Service
	Payments  payments.Service
	Inventory inventory.Service
	OutboxDLQ admincontrollers.DLQStore
	Square    webhookcontrollers.SquareSigner
	Gatherer  prometheus.Gatherer
	// Registerer receives the HTTP request metrics. Nil disables them.
	Registerer prometheus.Registerer
	// Tokens verifies bearer tokens. Nil builds one from Config.JWT.
	Tokens middleware.TokenVerifier
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	var idemStore middleware.ResponseStore
	var rateStore middleware.RateCounter
	readyDeps := []controllers.Dependency{{Name: "database", Pinger: p.DB}}
	if p.Redis != nil {
		idemStore = p.Redis
		rateStore = p.Redis
		readyDeps = append(readyDeps, controllers.Dependency{Name: "redis", Pinger: p.Redis})
	}
	idempotent := middleware.Idempotency(idemStore, replayTTL, logg)
	idempotentCancel := middleware.Idempotency(idemStore, cancelReplayTTL, logg)

	var ratePolicy middleware.RateLimitPolicy
	if cfg.RateLimit.Enabled {
		ratePolicy = middleware.RateLimitPolicy{Limit: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}
	}

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	httpMetrics := metrics.NewHTTPMetrics(p.Registerer)

	tokens := p.Tokens
	if tokens == nil {
		built, err := pkgauth.NewTokens(cfg.JWT)
		if err != nil {
			logg.Error(context.Background(), "jwt verifier unavailable; authenticated routes will fail", err)
		} else {
			tokens = built
		}
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg, httpMetrics),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps...))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(ratePolicy, rateStore, logg))

		r.Route("/api/v1/webhooks", func(r chi.Router) {
			r.Post("/square", webhookcontrollers.SquareWebhook(p.Payments, p.Square, logg))
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.Auth(tokens, logg))

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", bookingcontrollers.Init(p.Bookings, logg))
				r.Get("/", bookingcontrollers.List(p.Bookings, logg))
				r.Get("/{bookingId}", bookingcontrollers.Detail(p.Bookings, logg))
				r.With(idempotent).Post("/{bookingId}/guests", bookingcontrollers.AddGuests(p.Bookings, logg))
				r.With(idempotentCancel).Post("/{bookingId}/cancel", bookingcontrollers.Cancel(p.Bookings, logg))
				r.Post("/{bookingId}/payments", paymentcontrollers.Init(p.Payments, logg))
			})

			r.Post("/payments/verify", paymentcontrollers.Verify(p.Payments, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleHotelManager))
					r.With(idempotent).Post("/rooms/{roomId}/inventory", admincontrollers.InitializeRoomInventory(p.Inventory, logg))
					r.Delete("/rooms/{roomId}/inventory", admincontrollers.DeleteRoomInventory(p.Inventory, logg))
					r.Delete("/hotels/{hotelId}/inventory", admincontrollers.DeleteHotelInventory(p.Inventory, logg))
				})
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
					r.Get("/outbox/dlq", admincontrollers.ListOutboxDLQ(p.OutboxDLQ, logg))
					r.Get("/outbox/dlq/{eventId}", admincontrollers.GetOutboxDLQ(p.OutboxDLQ, logg))
					r.With(idempotent).Post("/outbox/dlq/{eventId}/requeue", admincontrollers.RequeueOutboxDLQ(p.OutboxDLQ, logg))
				})
			})
		})
	})

	return r
}
