package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config   *config.Config
	logger   *zap.Logger
	db       database.Service
	redis    *redis.Client
	services *Services

	stopOutbox context.CancelFunc
	outboxDone sync.WaitGroup
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db database.Service) (*Server, error) {
	services, err := NewServices(ctx, cfg, logger, db.DB())
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis is unreachable, rate limiting will fail open", zap.Error(err))
	}
	cancel()

	router := chi.NewRouter()
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, !cfg.IsProduction()))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})

	auth := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	requireAdmin := custommiddleware.RequireAdmin(logger)
	admin := func(next http.Handler) http.Handler { return auth(requireAdmin(next)) }
	identify := custommiddleware.OptionalAuth(cfg.JWT.Secret, logger)
	limit := func(prefix string) func(http.Handler) http.Handler {
		return custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         prefix,
		}, logger)
	}

	transport.NewCatalogHandler(services.Catalog, logger).RegisterRoutes(router, admin)
	transport.NewOrderHandler(services.Checkout, services.Tracking, logger).RegisterRoutes(router, identify, limit("rl:orders"))
	transport.NewPaymentHandler(services.Payments, logger).RegisterRoutes(router, limit("rl:payments"))
	transport.NewShippingHandler(services.Shipping, logger).RegisterRoutes(router, admin)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:   cfg,
		logger:   logger,
		db:       db,
		redis:    redisClient,
		services: services,
	}

	return server, nil
}

// StartOutbox runs the outbox dispatcher until Close
func (s *Server) StartOutbox() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopOutbox = cancel
	s.outboxDone.Add(1)
	go func() {
		defer s.outboxDone.Done()
		s.services.Dispatcher.Run(ctx)
	}()
	s.logger.Info("Outbox dispatcher started")
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.stopOutbox != nil {
		s.stopOutbox()
		s.outboxDone.Wait()
	}

	err := multierr.Combine(
		s.services.Close(),
		s.redis.Close(),
		s.db.Close(),
	)
	if err != nil {
		s.logger.Error("Failed to release server resources", zap.Error(err))
	}

	s.logger.Sync()
	return err
}
