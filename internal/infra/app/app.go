package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/config"
	"github.com/filograficos/identity-service/internal/infra/database"
	kafkainfra "github.com/filograficos/identity-service/internal/infra/kafka"
	"github.com/filograficos/identity-service/internal/infra/logger"
	"github.com/filograficos/identity-service/internal/infra/notify"
	redisinfra "github.com/filograficos/identity-service/internal/infra/redis"
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/infra/telemetry"
	postgresrepo "github.com/filograficos/identity-service/internal/repository/postgres"
	redisrepo "github.com/filograficos/identity-service/internal/repository/redis"
	"github.com/filograficos/identity-service/internal/transport/http/middleware"
	"github.com/filograficos/identity-service/internal/transport/http/routes"
	"github.com/filograficos/identity-service/internal/usecase"
)

// Application owns the wired service graph and the long-lived connections it
// must release on shutdown.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
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

	signer, err := security.NewTokenSigner(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return nil, fmt.Errorf("init token signer: %w", err)
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
	otpStore := redisrepo.NewOTPRepository(redisClient.Client(), cfg.Redis.OTPPrefix)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var producer *kafkainfra.Producer
	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	var notifier port.Notifier
	if producer != nil {
		notifier = notify.NewBusNotifier(producer, log)
	} else {
		notifier = notify.NewLogNotifier(log)
	}
	notifier = notify.NewLinkNotifier(notifier, cfg.Security.VerificationURL)

	blacklist := security.NewBlacklist(cfg.Security.PasswordBlacklist)
	validator := security.DefaultPasswordValidator(blacklist)

	policies := usecase.NewPolicyService(repos.Policies, policyDefaults(cfg.Policy), log)
	if _, err := policies.Reload(ctx); err != nil {
		log.Warn("policy reload failed, continuing with defaults", zap.Error(err))
	}

	locks := usecase.NewKeyedMutex()

	lockouts := usecase.NewLockoutService(
		repos.Identities, repos.Credentials, repos.Attempts, repos.Sessions,
		policies, events, log,
	)
	mfa := usecase.NewMFAService(
		repos.Identities, repos.Credentials, otpStore,
		policies, notifier, events, security.NewTOTPVerifier(), log,
	)
	sessions := usecase.NewSessionService(
		repos.Identities, repos.Sessions, signer, policies, events, locks, log,
	)
	auth := usecase.NewAuthService(
		repos.Identities, repos.Credentials, lockouts, sessions, mfa, log,
	)
	registration := usecase.NewRegistrationService(
		repos.Identities, repos.Credentials, repos.Verifications,
		policies, validator, notifier, events, log,
	)
	passwords := usecase.NewPasswordService(
		repos.Identities, repos.Credentials, lockouts, sessions, mfa,
		rateLimitStore, policies, validator, notifier, events, locks, log,
	)
	admin := usecase.NewAdminService(
		repos.Identities, repos.Credentials, repos.Attempts, repos.Verifications,
		repos.Sessions, lockouts, sessions, log,
	)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:         auth,
			Registration: registration,
			Passwords:    passwords,
			Sessions:     sessions,
			Admin:        admin,
			Policies:     policies,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		tracer:   tracer,
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
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
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

	a.logger.Info("starting identity API",
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

// policyDefaults seeds the live policy engine from static configuration.
// Zero-valued fields fall back inside PolicyConfig.Normalized.
func policyDefaults(cfg config.PolicySettings) domain.PolicyConfig {
	defaults := domain.DefaultPolicyConfig()
	if cfg.TokenLifetime > 0 {
		defaults.TokenLifetime = cfg.TokenLifetime
	}
	if cfg.SessionLifetime > 0 {
		defaults.SessionLifetime = cfg.SessionLifetime
	}
	if cfg.RenewThreshold > 0 {
		defaults.RenewThreshold = cfg.RenewThreshold
	}
	if cfg.VerificationLifetime > 0 {
		defaults.VerificationLifetime = cfg.VerificationLifetime
	}
	if cfg.OTPLifetime > 0 {
		defaults.OTPLifetime = cfg.OTPLifetime
	}
	if cfg.MaxFailedAttempts > 0 {
		defaults.MaxFailedAttempts = cfg.MaxFailedAttempts
	}
	if cfg.OTPMaxAttempts > 0 {
		defaults.OTPMaxAttempts = cfg.OTPMaxAttempts
	}
	if cfg.LockoutWindowDays > 0 {
		defaults.LockoutWindowDays = cfg.LockoutWindowDays
	}
	if cfg.MaxLockoutsInWindow > 0 {
		defaults.MaxLockoutsInWindow = cfg.MaxLockoutsInWindow
	}
	if cfg.PasswordHistoryLimit > 0 {
		defaults.PasswordHistoryLimit = cfg.PasswordHistoryLimit
	}
	return defaults
}
