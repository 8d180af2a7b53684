// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"loadboard-service/internal/billing"
	"loadboard-service/internal/config"
	"loadboard-service/internal/db"
	accessHandler "loadboard-service/internal/handlers/access"
	sessionHandler "loadboard-service/internal/handlers/session"
	subscriptionHandler "loadboard-service/internal/handlers/subscription"
	wsHandler "loadboard-service/internal/handlers/websocket"
	"loadboard-service/internal/middleware"
	"loadboard-service/internal/pkg/jwt"
	"loadboard-service/internal/pkg/metrics"
	"loadboard-service/internal/pkg/session"
	"loadboard-service/internal/repository/postgres"
	authUsecase "loadboard-service/internal/service/auth"
	"loadboard-service/internal/service/navigation"
	sessionUsecase "loadboard-service/internal/service/session"
	subscriptionUsecase "loadboard-service/internal/service/subscription"
	"loadboard-service/internal/websocket"
	wsHandlers "loadboard-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires the service and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("postgres connected")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))

	// ----- Metrics -----
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Identity provider -----
	authRepo := postgres.NewAuthRepository(pool)
	sessionManager := session.NewManager(redisClient)
	rateLimiter := session.NewRateLimiter(redisClient)

	authService := authUsecase.NewAuthService(
		authRepo,
		jwtManager,
		sessionManager,
		rateLimiter,
		s.cfg.DeviceID,
		s.cfg.SessionTTL,
		logger,
	)
	defer authService.Close()

	// ----- Session coordinator -----
	profileRepo := postgres.NewProfileRepository(pool)
	coordinator := sessionUsecase.NewCoordinator(
		authService,
		profileRepo,
		sessionUsecase.Options{
			OperationTimeout: s.cfg.OperationTimeout,
			RetryAttempts:    s.cfg.RetryAttempts,
			RetryBaseDelay:   s.cfg.RetryBaseDelay,
			Entitlement:      s.cfg.BillingEntitlement,
		},
		m,
		logger,
	)
	defer coordinator.Close()

	// ----- Billing -----
	billingClient, err := billing.NewClient(billing.Config{
		BaseURL: s.cfg.BillingBaseURL,
		APIKey:  s.cfg.BillingAPIKey,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create billing client: %w", err)
	}
	purchaseService := subscriptionUsecase.NewPurchaseService(
		billingClient,
		coordinator,
		s.cfg.BillingProductID,
		s.cfg.BillingEntitlement,
		m,
		logger,
	)

	// ----- State stream -----
	hub := websocket.NewHub(coordinator.State, logger)
	hub.RegisterHandler(wsHandlers.NewSessionHandler(coordinator))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go hub.Run(runCtx)

	updates, unsubscribe := coordinator.Subscribe()
	defer unsubscribe()
	navigator := navigation.NewNavigator(nil, logger)
	go hub.Relay(runCtx, updates, navigator)

	go authService.RunTokenRefresher(runCtx, tokenRefreshInterval(s.cfg.JWT.TTL))

	// A failed probe still leaves the coordinator ready and signed out.
	if err := coordinator.Initialize(ctx); err != nil {
		logger.Warn("initial session probe failed", zap.Error(err))
	}

	// ----- Handlers -----
	sessionMiddleware := middleware.NewSessionMiddleware(coordinator)

	s.engine.Use(
		middleware.LoggingMiddleware(logger),
		middleware.RecoveryMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.CORSOrigins),
	)

	SetupRouter(s.engine, &Handlers{
		SessionHandler:    sessionHandler.NewSessionHandler(coordinator, authService, logger),
		AccessHandler:     accessHandler.NewAccessHandler(coordinator),
		PurchaseHandler:   subscriptionHandler.NewPurchaseHandler(purchaseService, logger),
		WSHandler:         wsHandler.NewWebSocketHandler(hub, s.cfg.CORSOrigins, logger),
		SessionMiddleware: sessionMiddleware,
		MetricsGatherer:   registry,
	})

	// ----- Start HTTP -----
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// tokenRefreshInterval checks often enough to refresh well before expiry.
func tokenRefreshInterval(ttl time.Duration) time.Duration {
	every := ttl / 6
	if every < 10*time.Second {
		every = 10 * time.Second
	}
	return every
}
