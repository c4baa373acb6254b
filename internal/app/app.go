package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Muhadev/celm-backend/internal/auth"
	"github.com/Muhadev/celm-backend/internal/config"
	"github.com/Muhadev/celm-backend/internal/event"
	handler "github.com/Muhadev/celm-backend/internal/handler/http"
	"github.com/Muhadev/celm-backend/internal/handle"
	"github.com/Muhadev/celm-backend/internal/notify"
	"github.com/Muhadev/celm-backend/internal/oauth"
	"github.com/Muhadev/celm-backend/internal/repository"
	"github.com/Muhadev/celm-backend/internal/repository/memory"
	"github.com/Muhadev/celm-backend/internal/repository/postgres"
	redisrepo "github.com/Muhadev/celm-backend/internal/repository/redis"
	"github.com/Muhadev/celm-backend/internal/service"
	"github.com/Muhadev/celm-backend/migrations"
	"github.com/Muhadev/celm-backend/pkg/database"
	"github.com/Muhadev/celm-backend/pkg/health"
	"github.com/Muhadev/celm-backend/pkg/httpclient"
	pkgkafka "github.com/Muhadev/celm-backend/pkg/kafka"
	"github.com/Muhadev/celm-backend/pkg/middleware"
	"github.com/Muhadev/celm-backend/pkg/tracing"
)

const serviceName = "onboarding"

// stores groups the repositories one backend provides.
type stores struct {
	accounts repository.AccountRepository
	refresh  repository.RefreshTokenRepository
	resets   repository.PasswordResetRepository
	tx       repository.Transactor
}

// App wires together all dependencies and runs the onboarding service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	tokens         *service.TokenService
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
	janitorWG      sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeBackends()
		}
	}()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	st, err := a.initStores(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	sessions, err := a.initSessions(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	notifier, events := a.initMessaging(healthHandler)

	// OAuth profile lookups go through the retrying, circuit-broken client.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.OAuthTimeout
	oauthClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("oauth-google"),
		logger,
	)
	profiles := oauth.NewResolver(oauthClient, cfg.GoogleUserInfoURL, logger)

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWT())
	hasher := auth.NewTokenHasher(cfg.TokenHashKey)
	passwords := auth.NewPasswordHasher(cfg.BcryptCost)

	tokens := service.NewTokenService(st.accounts, st.refresh, st.resets, st.tx,
		jwtManager, hasher, passwords, notifier, events, cfg.PasswordResetTTL, logger)
	accounts, err := service.NewAccountService(st.accounts, st.tx, tokens, passwords, profiles, logger)
	if err != nil {
		return nil, fmt.Errorf("init account service: %w", err)
	}
	registration := service.NewRegistrationService(service.RegistrationDeps{
		Sessions:   sessions,
		Accounts:   st.accounts,
		Tx:         st.tx,
		Tokens:     tokens,
		Handles:    handle.NewGenerator(st.accounts),
		Hasher:     hasher,
		Passwords:  passwords,
		Notifier:   notifier,
		Events:     events,
		Profiles:   profiles,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	a.tokens = tokens

	router := handler.NewRouter(handler.RouterDeps{
		Registration: registration,
		Accounts:     accounts,
		Tokens:       tokens,
		Health:       healthHandler,
		CORS:         middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		RateLimit:    cfg.RateLimit(),
		Logger:       logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ok = true
	return a, nil
}

func (a *App) initStores(ctx context.Context, h *health.Handler) (*stores, error) {
	if a.cfg.Store == config.StoreMemory {
		a.logger.Warn("using in-memory account store; data is lost on restart")
		mem := memory.NewStore()
		return &stores{
			accounts: mem.Accounts(),
			refresh:  mem.RefreshTokens(),
			resets:   mem.PasswordResets(),
			tx:       mem,
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.PostgresHost),
		slog.Int("port", a.cfg.PostgresPort),
		slog.String("database", a.cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if a.cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
	}

	h.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	tracer := database.QueryTracer{SlowThreshold: a.cfg.SlowQueryThreshold, Logger: a.logger}
	return &stores{
		accounts: postgres.NewAccountRepository(pool, tracer),
		refresh:  postgres.NewRefreshTokenRepository(pool, tracer),
		resets:   postgres.NewPasswordResetRepository(pool, tracer),
		tx:       database.NewTxManager(pool),
	}, nil
}

func (a *App) initSessions(ctx context.Context, h *health.Handler) (repository.SessionRepository, error) {
	if a.cfg.SessionStore == config.SessionStoreMemory {
		a.logger.Warn("using in-memory registration session store")
		return memory.NewSessionRepository(), nil
	}

	client, err := database.NewRedisClient(ctx, a.cfg.Redis(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.logger.Info("connected to Redis", slog.String("addr", a.cfg.RedisAddr))

	h.RegisterCritical("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return redisrepo.NewSessionRepository(client), nil
}

func (a *App) initMessaging(h *health.Handler) (notify.Dispatcher, service.EventPublisher) {
	if a.cfg.Notifier == config.NotifierLog {
		a.logger.Warn("using log notifier; verification and reset tokens are written to the log")
		return notify.NewLogDispatcher(a.logger), event.NewProducer(nil, a.logger)
	}

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	a.producer = producer
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))

	h.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	return notify.NewKafkaDispatcher(producer, a.logger), event.NewProducer(producer, a.logger)
}

// Run starts the HTTP server and the expiry janitor, and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	a.janitorWG.Add(1)
	go func() {
		defer a.janitorWG.Done()
		a.runJanitor(janitorCtx)
	}()

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopJanitor()
	a.janitorWG.Wait()
	return errors.Join(runErr, a.Shutdown())
}

// runJanitor periodically deletes expired refresh and reset records.
func (a *App) runJanitor(ctx context.Context) {
	if a.cfg.JanitorInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh, resets, err := a.tokens.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Error("expired token purge failed", slog.String("error", err.Error()))
				}
				continue
			}
			if refresh+resets > 0 {
				a.logger.Info("expired tokens purged",
					slog.Int64("refresh_tokens", refresh),
					slog.Int64("password_resets", resets),
				)
			}
		}
	}
}

// Shutdown gracefully stops all components in order: the HTTP server drains
// first, then spans are flushed, then the backends close.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.closeBackends(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeBackends() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}
