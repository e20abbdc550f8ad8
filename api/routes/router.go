package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harukimori/fleamarket-backend/api/controllers"
	ordercontrollers "github.com/harukimori/fleamarket-backend/api/controllers/orders"
	reportcontrollers "github.com/harukimori/fleamarket-backend/api/controllers/reports"
	webhookcontrollers "github.com/harukimori/fleamarket-backend/api/controllers/webhooks"
	"github.com/harukimori/fleamarket-backend/api/middleware"
	"github.com/harukimori/fleamarket-backend/internal/orders"
	"github.com/harukimori/fleamarket-backend/internal/reports"
	stripewebhook "github.com/harukimori/fleamarket-backend/internal/webhooks/stripe"
	"github.com/harukimori/fleamarket-backend/pkg/config"
	"github.com/harukimori/fleamarket-backend/pkg/db"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
	"github.com/harukimori/fleamarket-backend/pkg/redis"
)

// RouterParams bundles the wired services the HTTP surface exposes.
type RouterParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DBPinger             db.Pinger
	RedisPinger          redis.Pinger
	OrdersService        *orders.Service
	ReportsService       *reports.Service
	StripeWebhookService *stripewebhook.Service
	MetricsGatherer      prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DBPinger, params.RedisPinger, logg))
	})

	if params.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhookService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Initiate(params.OrdersService, logg))
			r.Post("/complete", ordercontrollers.Complete(params.OrdersService, logg))
			r.Get("/purchases", ordercontrollers.ListPurchases(params.OrdersService, logg))
			r.Get("/sales", ordercontrollers.ListSales(params.OrdersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(params.OrdersService, logg))
			r.Post("/{orderId}/ship", ordercontrollers.Ship(params.OrdersService, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/sales", reportcontrollers.TotalSales(params.ReportsService, logg))
			r.Get("/order-status", reportcontrollers.StatusCounts(params.ReportsService, logg))
		})
	})

	return r
}
