package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harukimori/fleamarket-backend/api/routes"
	"github.com/harukimori/fleamarket-backend/internal/items"
	"github.com/harukimori/fleamarket-backend/internal/notify"
	"github.com/harukimori/fleamarket-backend/internal/orders"
	"github.com/harukimori/fleamarket-backend/internal/reports"
	stripewebhook "github.com/harukimori/fleamarket-backend/internal/webhooks/stripe"
	"github.com/harukimori/fleamarket-backend/pkg/config"
	"github.com/harukimori/fleamarket-backend/pkg/db"
	"github.com/harukimori/fleamarket-backend/pkg/logger"
	"github.com/harukimori/fleamarket-backend/pkg/metrics"
	"github.com/harukimori/fleamarket-backend/pkg/migrate"
	"github.com/harukimori/fleamarket-backend/pkg/redis"
	"github.com/harukimori/fleamarket-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	notifyService, err := notify.NewService(cfg.Notify, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notify service", err)
		os.Exit(1)
	}

	purchaseMetrics := metrics.NewPurchaseMetrics(prometheus.DefaultRegisterer)

	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		items.NewRepository(dbClient.DB()),
		stripeClient,
		dbClient,
		notifyService,
		logg,
		purchaseMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	reportsService, err := reports.NewService(dbClient.DB(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhook.NewService(stripeClient.SigningSecret(), ordersService, webhookGuard, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DBPinger:             dbClient,
			RedisPinger:          redisClient,
			OrdersService:        ordersService,
			ReportsService:       reportsService,
			StripeWebhookService: webhookService,
			MetricsGatherer:      prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
