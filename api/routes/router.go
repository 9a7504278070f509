package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockledger/api/controllers"
	inventorycontrollers "github.com/angelmondragon/stockledger/api/controllers/inventory"
	reservationcontrollers "github.com/angelmondragon/stockledger/api/controllers/reservations"
	"github.com/angelmondragon/stockledger/api/middleware"
	"github.com/angelmondragon/stockledger/internal/inventory"
	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/db"
	"github.com/angelmondragon/stockledger/pkg/logger"
	pkgredis "github.com/angelmondragon/stockledger/pkg/redis"
)

// Cache is the Redis surface the HTTP layer needs: idempotency records,
// fixed-window rate limiting and a readiness ping.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache Cache,
	gatherer prometheus.Gatherer,
	inventoryService inventory.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	mutationPolicy := middleware.NewRateLimitPolicy(
		"stock-mutations",
		cfg.HTTP.RateLimitWindow,
		cfg.HTTP.RateLimitMutations,
	)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if cache != nil {
		deps["redis"] = cache
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var idempotencyStore pkgredis.IdempotencyStore
	if cache != nil {
		idempotencyStore = cache
	}
	idempotent := middleware.Idempotency(idempotencyStore, cfg.HTTP.IdempotencyTTL, logg)
	reservationIdempotent := middleware.Idempotency(idempotencyStore, max(cfg.HTTP.IdempotencyTTL, middleware.ReservationIdempotencyTTL), logg)
	writer := middleware.RequireStockWriter(logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if cache != nil {
			r.Use(middleware.RateLimit(mutationPolicy, cache, logg))
		}

		r.Route("/inventory", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.StoreContext(logg))
				r.Get("/low-stock", inventorycontrollers.LowStock(inventoryService, logg))
				r.With(writer, idempotent).Post("/bulk-adjust", inventorycontrollers.BulkAdjust(inventoryService, logg))
			})

			r.Route("/{subjectType}/{subjectId}", func(r chi.Router) {
				r.Get("/availability", inventorycontrollers.Availability(inventoryService, logg))
				r.Get("/movements", inventorycontrollers.Movements(inventoryService, logg))
				r.Get("/reconcile", inventorycontrollers.Reconcile(inventoryService, logg))
				r.With(writer, idempotent).Post("/adjust", inventorycontrollers.Adjust(inventoryService, logg))
			})
		})

		r.Route("/orders/{orderId}/reservations", func(r chi.Router) {
			r.Use(writer, reservationIdempotent)
			r.Post("/", reservationcontrollers.Reserve(inventoryService, logg))
			r.Post("/confirm", reservationcontrollers.Confirm(inventoryService, logg))
			r.Post("/release", reservationcontrollers.Release(inventoryService, logg))
		})
	})

	return r
}
