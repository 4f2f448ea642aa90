package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/featureflags"
	"github.com/notarydesk/authcore/internal/handler"
	"github.com/notarydesk/authcore/internal/infrastructure/logger"
	"github.com/notarydesk/authcore/internal/infrastructure/redis"
	"github.com/notarydesk/authcore/internal/observability/tracing"
	"github.com/notarydesk/authcore/internal/reliability/circuitbreaker"
	"github.com/notarydesk/authcore/internal/repository"
	"github.com/notarydesk/authcore/internal/repository/migrations"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/audit"
	"github.com/notarydesk/authcore/internal/security/auth"
	"github.com/notarydesk/authcore/internal/security/middleware"
	"github.com/notarydesk/authcore/internal/security/password"
	"github.com/notarydesk/authcore/internal/security/ratelimit"
	"github.com/notarydesk/authcore/internal/service"
	"github.com/notarydesk/authcore/internal/worker"
	"github.com/notarydesk/authcore/pkg/cache"
	"github.com/notarydesk/authcore/pkg/config"
	"github.com/notarydesk/authcore/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting authcore server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "authcore", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// 3. Storage gateway
	checks := map[string]handler.Check{}
	var store domain.UserStore
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := database.NewConnectionPool(ctx, &database.Config{
			DSN:          cfg.DatabaseURL,
			MaxOpenConns: cfg.DBMaxOpenConns,
		}, log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Migrate(ctx, migrations.Migrations); err != nil {
			log.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		checks["database"] = pool.Health
		store = repository.NewPostgresUserRepository(pool.GetDB(), log)
	default:
		log.Warn("using in-memory user store; accounts are lost on restart")
		store = repository.NewMemoryUserRepository()
	}
	if cfg.UserCacheTTL > 0 {
		userCache := cache.New[*domain.User]()
		store = repository.NewCachedUserRepository(store, userCache, cfg.UserCacheTTL)
		go worker.NewCacheJanitor("users", userCache, log, cfg.UserCacheTTL).Start(ctx)
	}

	// 4. Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	if tokenManager.UsingFallbackSecret() {
		log.Warn("JWT_SECRET not set: signing tokens with the built-in fallback secret")
		if cfg.IsProduction() {
			log.Error("refusing to start in production without JWT_SECRET")
			os.Exit(1)
		}
	}
	hashPool := password.NewPool(password.NewHasher(password.DefaultParams()), cfg.HashWorkers)
	auditLogger := audit.NewLogger(log)

	localLimiter := ratelimit.NewLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	defer localLimiter.Stop()
	var sharedLimiter *ratelimit.RedisLimiter
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis unavailable, login throttling stays local", slog.String("error", err.Error()))
		} else {
			defer redisClient.Close()
			checks["redis"] = redisClient.Ping
			sharedLimiter = ratelimit.NewRedisLimiter(redisClient, "login", cfg.LoginRateLimit, cfg.LoginRateWindow)
			breaker = circuitbreaker.NewCircuitBreaker(3, 1, 30*time.Second)
			breaker.OnStateChange(func(from, to circuitbreaker.State) {
				log.Warn("redis limiter breaker state changed",
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			})
		}
	}
	loginThrottle := ratelimit.NewThrottle("login", localLimiter, sharedLimiter, breaker, log)

	// 5. Services
	authService := service.NewAuthService(store, hashPool, tokenManager, cfg.TokenTTL, featureflags.FromEnv(), auditLogger, log)

	accounts, err := service.LoadBootstrapAccountsFile(cfg.BootstrapAccountsFile)
	if err != nil {
		log.Error("failed to load bootstrap accounts", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for _, res := range service.NewBootstrapper(store, hashPool, auditLogger, log).Ensure(ctx, accounts) {
		if res.Err != nil {
			log.Warn("bootstrap account not ensured", slog.String("username", res.Username))
		}
	}

	// 6. HTTP routes
	rootHandler := handler.NewRouter(handler.RouterConfig{
		Auth:               handler.NewAuthHandler(authService, log),
		Users:              handler.NewUsersHandler(authService, security.NewAccessService(log), log),
		Health:             handler.NewHealthHandler(checks, log),
		Guard:              middleware.NewGuard(tokenManager, auditLogger, log),
		LoginLimiter:       loginThrottle,
		Audit:              auditLogger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             log,
	})

	// 7. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("login_rate_limit", cfg.LoginRateLimit),
		slog.Duration("login_rate_window", cfg.LoginRateWindow),
		slog.Duration("token_ttl", cfg.TokenTTL),
		slog.Bool("shared_rate_limit", sharedLimiter != nil),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	log.Info("server stopped")
}
