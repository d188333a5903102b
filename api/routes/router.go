package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dinebot-ai/dinebot-backend/api/controllers"
	"github.com/dinebot-ai/dinebot-backend/api/middleware"
	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
	"github.com/dinebot-ai/dinebot-backend/internal/orders"
	"github.com/dinebot-ai/dinebot-backend/internal/payments"
	"github.com/dinebot-ai/dinebot-backend/internal/realtime"
	"github.com/dinebot-ai/dinebot-backend/internal/session"
	"github.com/dinebot-ai/dinebot-backend/pkg/config"
	"github.com/dinebot-ai/dinebot-backend/pkg/db"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	engine session.Engine,
	promoter checkout.Promoter,
	ordersRepo orders.Repository,
	paymentsService payments.Service,
	hub *realtime.Hub,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	var redisP redis.Pinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}

	r.Route("/api/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/cart", controllers.SessionCart(engine, logg))
		r.Get("/state", controllers.SessionState(engine, logg))
		r.Get("/history", controllers.SessionHistory(engine, logg))
		r.Post("/intents", controllers.SessionIntent(engine, logg))
		r.Post("/recover", controllers.SessionRecover(engine, logg))
		r.Post("/checkout/promote", controllers.CheckoutPromote(promoter, logg))
		r.Get("/orders", controllers.SessionOrders(ordersRepo, logg))
		r.Get("/payments", controllers.SessionPayments(paymentsService, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/{orderID}", controllers.OrderByID(ordersRepo, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/{intentID}/advance", controllers.PaymentAdvance(paymentsService, logg))
	})

	return r
}
