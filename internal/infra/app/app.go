package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/core/port"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/config"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/database"
	kafkainfra "github.com/WyiZhng/dense-platform-iam/internal/infra/kafka"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/logger"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/monitor"
	redisinfra "github.com/WyiZhng/dense-platform-iam/internal/infra/redis"
	"github.com/WyiZhng/dense-platform-iam/internal/infra/security"
	postgresrepo "github.com/WyiZhng/dense-platform-iam/internal/repository/postgres"
	redisrepo "github.com/WyiZhng/dense-platform-iam/internal/repository/redis"
	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/middleware"
	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/routes"
	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitPrefix := cfg.Redis.RateLimitPrefix
	if rateLimitPrefix == "" {
		rateLimitPrefix = "dense:rate-limit"
	}
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: rateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	secmon := monitor.NewSecurityMonitor(monitor.Config{
		FailedLoginThreshold:  cfg.Monitor.FailedLoginThreshold,
		FailedLoginWindow:     cfg.Monitor.FailedLoginWindow,
		SuspiciousIPThreshold: cfg.Monitor.SuspiciousIPThreshold,
		AlertHistorySize:      cfg.Monitor.AlertHistorySize,
	}, log)
	activityTracker := monitor.NewActivityTracker(cfg.Monitor.ActivityWindowSize)

	auditService := usecase.NewAuditService(repos.Audit, activityTracker, secmon, eventPublisher, log)

	passwordValidator := security.DefaultPasswordValidator()
	passwordService := usecase.NewPasswordService(repos.Users, auditService, passwordValidator, log)

	sessionService := usecase.NewSessionService(repos.Sessions, eventPublisher, auditService, cfg.Session.TokenTTL, log)

	rbacService := usecase.NewRBACService(repos.Roles, repos.Permissions, repos.Users, repos, eventPublisher, auditService, log)

	resetService := usecase.NewResetService(
		repos.Tokens,
		repos.Users,
		repos,
		sessionService,
		passwordService,
		rateLimitStore,
		eventPublisher,
		auditService,
		cfg.Reset.TokenTTL,
		usecase.ResetRateLimit{
			Window:      rateLimitWindow,
			MaxAttempts: cfg.RateLimit.PasswordResetMaxAttempts,
		},
		log,
	)

	authService := usecase.NewAuthService(
		passwordService,
		sessionService,
		secmon,
		rateLimitStore,
		auditService,
		usecase.LoginRateLimit{
			Window:      rateLimitWindow,
			MaxAttempts: cfg.RateLimit.LoginMaxAttempts,
		},
		log,
	)

	if err := rbacService.InitializeDefaults(ctx); err != nil {
		log.Warn("failed to seed default roles and permissions", zap.Error(err))
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		log.Warn("failed to init http metrics", zap.Error(err))
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Database:    pool,
		Cache:       redisClient,
		Metrics:     metrics,
		Services: routes.ServiceSet{
			Auth:      authService,
			Passwords: passwordService,
			Sessions:  sessionService,
			RBAC:      rbacService,
			Reset:     resetService,
			Audit:     auditService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
