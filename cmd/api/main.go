package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dinebot-ai/dinebot-backend/api/routes"
	"github.com/dinebot-ai/dinebot-backend/internal/cart"
	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
	"github.com/dinebot-ai/dinebot-backend/internal/conversation"
	"github.com/dinebot-ai/dinebot-backend/internal/events"
	"github.com/dinebot-ai/dinebot-backend/internal/orders"
	"github.com/dinebot-ai/dinebot-backend/internal/payments"
	"github.com/dinebot-ai/dinebot-backend/internal/realtime"
	"github.com/dinebot-ai/dinebot-backend/internal/session"
	"github.com/dinebot-ai/dinebot-backend/pkg/config"
	"github.com/dinebot-ai/dinebot-backend/pkg/db"
	"github.com/dinebot-ai/dinebot-backend/pkg/env"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/metrics"
	"github.com/dinebot-ai/dinebot-backend/pkg/migrate"
	"github.com/dinebot-ai/dinebot-backend/pkg/redis"
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

	gormDB := dbClient.DB()

	eventsService, err := events.NewService(events.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create events service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(gormDB), redisClient, cfg.Session.CartCacheTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	conversationService, err := conversation.NewService(conversation.NewRepository(gormDB), redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create conversation service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	engine, err := session.NewEngine(session.EngineParams{
		Events:       eventsService,
		Cart:         cartService,
		Conversation: conversationService,
		Checkout:     checkoutService,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session engine", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)

	promoter, err := checkout.NewPromoter(checkout.PromoterParams{
		Tx:           dbClient,
		CartRepo:     cart.NewRepository(gormDB),
		OrderRepo:    ordersRepo,
		CheckoutRepo: checkout.NewRepository(gormDB),
		Checkout:     checkoutService,
		State:        conversationService,
		Events:       eventsService,
		Payments:     paymentsService,
		Cache:        redisClient,
		Metrics:      metrics.NewPromotionMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout promoter", err)
		os.Exit(1)
	}

	hub, err := realtime.NewHub(realtime.HubParams{
		Engine:   engine,
		Dedup:    redisClient,
		DedupTTL: cfg.Session.DedupTTL,
		Config:   cfg.Realtime,
		Metrics:  metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime hub", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, engine, promoter, ordersRepo, paymentsService, hub),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
