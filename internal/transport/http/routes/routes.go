package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/infra/config"
	"github.com/filograficos/identity-service/internal/transport/http/handlers"
	"github.com/filograficos/identity-service/internal/transport/http/middleware"
	"github.com/filograficos/identity-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Passwords    *usecase.PasswordService
	Sessions     *usecase.SessionService
	Admin        *usecase.AdminService
	Policies     *usecase.PolicyService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
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
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Auth)

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
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Policies)
		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration)
		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords)
		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		adminHandler := handlers.NewAdminHandler(deps.Services.Admin, deps.Services.Policies)

		authGroup := api.Group("/auth")
		{
			registerLimit := limitRule(deps, "auth_register_ip", rateLimitConfig(deps).RegisterMaxAttempts)
			authGroup.POST("/register", withLimit(registerLimit, registrationHandler.Register)...)
			authGroup.POST("/verify", registrationHandler.Verify)
			authGroup.POST("/verify/resend", withLimit(registerLimit, registrationHandler.ResendVerification)...)

			loginLimit := limitRule(deps, "auth_login_ip", rateLimitConfig(deps).LoginMaxAttempts)
			authGroup.POST("/login", withLimit(loginLimit, authHandler.Login)...)
			authGroup.POST("/challenge", withLimit(loginLimit, authHandler.Challenge)...)

			authGroup.POST("/validate", authHandler.Validate)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		passwordGroup := api.Group("/password")
		{
			passwordGroup.POST("/change", authMiddleware, passwordHandler.Change)

			recoveryLimit := limitRule(deps, "password_recovery_ip", rateLimitConfig(deps).RecoveryMaxAttempts)
			passwordGroup.POST("/recover", withLimit(recoveryLimit, passwordHandler.Recover)...)
			passwordGroup.POST("/reset", withLimit(recoveryLimit, passwordHandler.Reset)...)
		}

		sessionGroup := api.Group("/sessions")
		sessionGroup.Use(authMiddleware)
		{
			sessionGroup.GET("", sessionHandler.List)
			sessionGroup.DELETE("/others", sessionHandler.RevokeOthers)
			sessionGroup.DELETE("/:id", sessionHandler.Revoke)
		}

		adminGroup := api.Group("/admin")
		adminGroup.Use(authMiddleware, middleware.RequireRole(domain.RoleAdmin))
		{
			adminGroup.GET("/identities", adminHandler.List)
			adminGroup.POST("/identities/:id/unlock", adminHandler.Unlock)
			adminGroup.POST("/identities/:id/status", adminHandler.SetStatus)
			adminGroup.DELETE("/identities/:id", adminHandler.DeleteCustomer)
			adminGroup.GET("/policy", adminHandler.GetPolicy)
			adminGroup.PUT("/policy", adminHandler.UpdatePolicy)
		}
	}

	return r
}

func rateLimitConfig(deps Dependencies) config.RateLimitSettings {
	if deps.Config == nil {
		return config.RateLimitSettings{}
	}
	return deps.Config.RateLimit
}

func limitRule(deps Dependencies, name string, limit int) gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := rateLimitConfig(deps).WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}

func withLimit(limit gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}
