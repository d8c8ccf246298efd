package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-sessions/internal/core/port"
	"github.com/arklim/social-platform-sessions/internal/infra/audit"
	"github.com/arklim/social-platform-sessions/internal/infra/config"
	"github.com/arklim/social-platform-sessions/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-sessions/internal/infra/kafka"
	"github.com/arklim/social-platform-sessions/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-sessions/internal/infra/redis"
	"github.com/arklim/social-platform-sessions/internal/infra/security"
	"github.com/arklim/social-platform-sessions/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-platform-sessions/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-sessions/internal/repository/redis"
	"github.com/arklim/social-platform-sessions/internal/transport/http/middleware"
	"github.com/arklim/social-platform-sessions/internal/transport/http/routes"
	"github.com/arklim/social-platform-sessions/internal/usecase"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	dispatcher *audit.Dispatcher
	retention  *usecase.RetentionService
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.Tokens.KeyDirectory)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	codec, err := security.NewTokenCodec(keyProvider, security.CodecOptions{
		Issuer:     cfg.Tokens.Issuer,
		AccessTTL:  cfg.Tokens.AccessTokenTTL,
		RefreshTTL: cfg.Tokens.RefreshTokenTTL,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	hasher := security.NewPasswordHasher(security.Argon2Params{
		Time:       cfg.Argon2.Iterations,
		Memory:     cfg.Argon2.Memory,
		Threads:    cfg.Argon2.Parallelism,
		SaltLength: cfg.Argon2.SaltLength,
		KeyLength:  cfg.Argon2.KeyLength,
	})
	validator := security.DefaultPasswordValidator()

	var redisClient *redisinfra.Client
	var familyCache port.FamilyRevocationCache
	if cfg.Redis.Enabled {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		familyCache = redisrepo.NewFamilyRevocationStore(redisClient.Client(), cfg.Redis.FamilyRevokedPrefix)
	} else {
		log.Info("redis disabled, family revocation cache is off")
	}

	var producer *kafkainfra.Producer
	var sink port.SecurityEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			producer = nil
			sink = kafkainfra.NewStubPublisher(log)
		} else {
			sink = kafkainfra.NewAuditPublisher(producer, cfg.App, log)
			log.Info("kafka audit publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		sink = kafkainfra.NewStubPublisher(log)
	}

	rotationMetrics, err := telemetry.NewRotationMetrics(nil)
	if err != nil {
		closeClients(pool, redisClient, producer)
		return nil, fmt.Errorf("init rotation metrics: %w", err)
	}

	dispatcher := audit.NewDispatcher(sink, log, audit.Options{
		BufferSize: cfg.Audit.BufferSize,
		OnDrop:     rotationMetrics.RecordDroppedEvent,
	})

	store := postgresrepo.NewStore(pool)
	repos := store.Repositories()

	recorder := usecase.NewSecurityRecorder(dispatcher, log)

	revocation := usecase.NewRevocationService(repos.RefreshTokens, recorder, log)
	if familyCache != nil {
		revocation = revocation.WithFamilyCache(familyCache, cfg.Tokens.RefreshTokenTTL)
	}

	rotation := usecase.NewRotationService(
		store, repos, codec, revocation, recorder, log,
		cfg.Tokens.GracePeriod, cfg.Retention.AccountRetention,
	).WithMetrics(rotationMetrics)

	auth, err := usecase.NewAuthService(
		store, repos, codec, hasher, validator, revocation, recorder, log,
		cfg.Retention.AccountRetention,
	)
	if err != nil {
		dispatcher.Close()
		closeClients(pool, redisClient, producer)
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	retention := usecase.NewRetentionService(
		repos.RefreshTokens, recorder, log,
		cfg.Retention.SweepInterval, cfg.Retention.TokenRetention,
	)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		dispatcher.Close()
		closeClients(pool, redisClient, producer)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Metrics:     httpMetrics,
		KeyProvider: keyProvider,
		Database:    pool,
		Services: routes.ServiceSet{
			Auth:     auth,
			Rotation: rotation,
		},
	}
	if redisClient != nil {
		deps.Cache = redisClient
	}

	return &Application{
		cfg:        cfg,
		engine:     routes.Register(deps),
		logger:     log,
		pool:       pool,
		redis:      redisClient,
		producer:   producer,
		dispatcher: dispatcher,
		retention:  retention,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
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
	// Closed after the server stops so in-flight requests can still record
	// security events.
	defer a.dispatcher.Close()

	go a.retention.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session authority",
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

func closeClients(pool *pgxpool.Pool, redisClient *redisinfra.Client, producer *kafkainfra.Producer) {
	if producer != nil {
		_ = producer.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if pool != nil {
		pool.Close()
	}
}
