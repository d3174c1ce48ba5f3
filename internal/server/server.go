package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"swapmatch/internal/config"
	"swapmatch/internal/database"
	"swapmatch/internal/matching"
	"swapmatch/internal/metrics"
	custommiddleware "swapmatch/internal/middleware"
	"swapmatch/internal/repository"
	"swapmatch/internal/service"
	"swapmatch/internal/transport"
	"swapmatch/internal/valuation"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	db      database.Service
	redis   *redis.Client
	metrics *metrics.Metrics
}

// NewServer wires repositories, matchers and handlers into a router.
// redisClient may be nil, which disables rate limiting. semantic may be nil,
// which leaves mutual matching on the substring heuristic.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client, semantic matching.SemanticMatcher) *Server {
	router := chi.NewRouter()
	m := metrics.New()

	requestTimeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = time.Minute
	}

	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.Env == "development"))
	for _, mw := range custommiddleware.DefaultMiddlewareStack(requestTimeout) {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	if cfg.RateLimit.Enabled && redisClient != nil {
		router.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            time.Duration(cfg.RateLimit.Window) * time.Second,
			KeyPrefix:         "swapmatch:ratelimit",
		}, logger))
	}

	router.Get("/health", healthHandler(db, redisClient))
	router.Handle("/metrics", m.Handler())

	// Initialize repositories
	itemRepo := repository.NewItemRepository(db.DB())
	profileRepo := repository.NewProfileRepository(db.DB(), itemRepo)
	userRepo := repository.NewUserRepository(db.DB())

	// Initialize matchers
	finderOpts := []matching.Option{}
	mutualOpts := []matching.MutualOption{
		matching.WithLogger(logger),
		matching.WithFallbackObserver(func(error) { m.SemanticFallback() }),
	}
	if cfg.Matching.ActiveOnly {
		finderOpts = append(finderOpts, matching.WithEligibility(matching.ActiveOnly))
		mutualOpts = append(mutualOpts, matching.WithItemEligibility(matching.ActiveOnly))
	}
	if cfg.Matching.StrictTradeOverlap {
		mutualOpts = append(mutualOpts, matching.WithStrictTradeOverlap())
	}
	if semantic != nil {
		mutualOpts = append(mutualOpts, matching.WithSemanticMatcher(semantic))
	}

	// Initialize services
	tradeService := service.NewTradeService(
		itemRepo,
		profileRepo,
		userRepo,
		matching.NewFinder(finderOpts...),
		matching.NewMutualMatcher(mutualOpts...),
		valuation.NewDefaultEstimator(),
		m,
		logger,
		cfg.Matching.DefaultTopK,
	)

	// Initialize handlers
	tradeHandler := transport.NewTradeHandler(tradeService, logger)

	// Register routes
	tradeHandler.RegisterRoutes(router,
		custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger),
		custommiddleware.OptionalAuthMiddleware(cfg.JWT.Secret, logger),
	)

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: requestTimeout + 10*time.Second,
		},
		config:  cfg,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		metrics: m,
	}
}

func healthHandler(db database.Service, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		dbHealth := db.Health(r.Context())
		if dbHealth["status"] != "up" {
			status = http.StatusServiceUnavailable
		}

		body := map[string]interface{}{"database": dbHealth}
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				body["redis"] = map[string]string{"status": "down", "error": err.Error()}
				status = http.StatusServiceUnavailable
			} else {
				body["redis"] = map[string]string{"status": "up"}
			}
		}

		if status == http.StatusOK {
			body["status"] = "ok"
		} else {
			body["status"] = "degraded"
		}
		custommiddleware.RespondWithJSON(w, status, body)
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
