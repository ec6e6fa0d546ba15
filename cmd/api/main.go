package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cactilia/cactilia-backend/api/controllers"
	"github.com/cactilia/cactilia-backend/api/routes"
	"github.com/cactilia/cactilia-backend/internal/checkout"
	"github.com/cactilia/cactilia-backend/internal/dataquality"
	"github.com/cactilia/cactilia-backend/internal/rules"
	"github.com/cactilia/cactilia-backend/internal/shipping"
	"github.com/cactilia/cactilia-backend/pkg/config"
	"github.com/cactilia/cactilia-backend/pkg/db"
	"github.com/cactilia/cactilia-backend/pkg/instance"
	"github.com/cactilia/cactilia-backend/pkg/logger"
	"github.com/cactilia/cactilia-backend/pkg/metrics"
	"github.com/cactilia/cactilia-backend/pkg/migrate"
	"github.com/cactilia/cactilia-backend/pkg/pubsub"
	"github.com/cactilia/cactilia-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	readyChecks := []controllers.ReadyCheck{
		{Name: "database", Pinger: dbClient},
		{Name: "redis", Pinger: redisClient},
	}

	var publisher dataquality.Publisher
	if cfg.PubSub.Enabled() {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher = pubsubClient
		readyChecks = append(readyChecks, controllers.ReadyCheck{Name: "pubsub", Pinger: pubsubClient})
	} else {
		logg.Warn(ctx, "pubsub disabled, misconfigured rules are only logged")
	}
	reporter := dataquality.NewReporter(publisher, logg, dataquality.Options{Topic: cfg.PubSub.DataQualityTopic})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shippingMetrics := metrics.NewShippingMetrics(registry)

	fallbackPrice, err := cfg.Shipping.FallbackPrice()
	if err != nil {
		logg.Error(ctx, "invalid shipping configuration", err)
		os.Exit(1)
	}

	shippingService, err := shipping.NewService(shipping.ServiceParams{
		Repo:     rules.NewRepository(dbClient.DB()),
		Logger:   logg,
		Metrics:  shippingMetrics,
		Reporter: reporter,
		Options: shipping.Options{
			FallbackBasePrice: fallbackPrice,
			FetchConcurrency:  cfg.Shipping.FetchConcurrency,
			MaxBundleVariants: cfg.Shipping.MaxBundleVariants,
			PostalIndexLookup: cfg.Shipping.PostalIndexLookup,
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create shipping service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(shippingService, redisClient, logg, checkout.Options{
		SelectionTTL: cfg.Shipping.SelectionTTL,
		Currency:     cfg.Shipping.Currency,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			readyChecks,
			redisClient,
			shippingService,
			checkoutService,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	reporter.Wait()
	logg.Info(logCtx, "api server stopped")
}
