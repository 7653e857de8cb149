package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/WyiZhng/dense-platform-iam/internal/infra/config"
	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/handlers"
	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/middleware"
	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Passwords *usecase.PasswordService
	Sessions  *usecase.SessionService
	RBAC      *usecase.RBACService
	Reset     *usecase.ResetService
	Audit     *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
	Metrics     *middleware.HTTPMetrics
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Sessions)

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Sessions)

		authGroup := api.Group("/auth")
		loginGroup := authGroup.Group("")
		if mw := buildLoginMiddlewares(deps); len(mw) > 0 {
			loginGroup.Use(mw...)
		}
		authHandler.RegisterPublicRoutes(loginGroup)

		protectedAuth := authGroup.Group("")
		protectedAuth.Use(authMiddleware)
		authHandler.RegisterProtectedRoutes(protectedAuth)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, deps.Services.Reset)

		passwordGroup := api.Group("/password")
		resetGroup := passwordGroup.Group("")
		if mw := buildPasswordResetMiddlewares(deps); len(mw) > 0 {
			resetGroup.Use(mw...)
		}
		passwordHandler.RegisterPublicRoutes(resetGroup)

		protectedPassword := passwordGroup.Group("")
		protectedPassword.Use(authMiddleware)
		passwordHandler.RegisterProtectedRoutes(protectedPassword)

		if deps.Services.RBAC != nil {
			rbacHandler := handlers.NewRBACHandler(deps.Services.RBAC)

			selfGroup := api.Group("/me")
			selfGroup.Use(authMiddleware)
			rbacHandler.RegisterSelfServiceRoutes(selfGroup)

			adminGroup := api.Group("/rbac")
			adminGroup.Use(authMiddleware)
			adminGroup.Use(middleware.RequirePermission(deps.Services.RBAC, "roles", "manage"))
			rbacHandler.RegisterRoutes(adminGroup)
		}

		if deps.Services.RBAC != nil {
			maintenanceHandler := handlers.NewMaintenanceHandler(deps.Services.Sessions, deps.Services.Reset)

			maintenanceGroup := api.Group("/maintenance")
			maintenanceGroup.Use(authMiddleware)
			maintenanceGroup.Use(middleware.RequireAdmin(deps.Services.RBAC))
			maintenanceHandler.RegisterRoutes(maintenanceGroup)
		}

		if deps.Services.Audit != nil && deps.Services.RBAC != nil {
			auditHandler := handlers.NewAuditHandler(deps.Services.Audit)

			auditGroup := api.Group("/audit")
			auditGroup.Use(authMiddleware)
			auditGroup.Use(middleware.RequirePermission(deps.Services.RBAC, "audit", "read"))
			auditHandler.RegisterRoutes(auditGroup)
		}
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func buildPasswordResetMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.PasswordResetMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Hour
	}

	rule := middleware.RateLimitRule{
		Name:       "password_reset_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
