package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/live-quiz/internal/bank"
	"github.com/gokatarajesh/live-quiz/internal/config"
	"github.com/gokatarajesh/live-quiz/internal/logging"
	"github.com/gokatarajesh/live-quiz/internal/server"
	"github.com/gokatarajesh/live-quiz/internal/session"
	ws "github.com/gokatarajesh/live-quiz/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	relay     *session.Relay
	bgCancels []context.CancelFunc
}

// New bootstraps the logger, optional Postgres and Redis, the session
// authority and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	var pool *pgxpool.Pool
	if cfg.Postgres.Enabled() {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	}

	loader, err := newBankLoader(cfg, pool, redisClient, logger)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger)

	var (
		store session.Store
		pub   session.Publisher
		relay *session.Relay
	)
	if redisClient != nil {
		store = session.NewRedisStore(redisClient, session.RedisOptions{
			Prefix:   cfg.Redis.KeyPrefix,
			TTL:      cfg.Redis.StateTTL,
			LockTTL:  cfg.Redis.LockTTL,
			LockWait: cfg.Redis.LockWait,
		}, logger)
		pub = session.NewRedisPublisher(redisClient, cfg.Redis.Channel)
		relay = session.NewRelay(redisClient, hub, cfg.Redis.Channel, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("session state in redis")
	} else {
		store = session.NewMemoryStore()
		pub = session.NewHubPublisher(hub)
		logger.Warn().Msg("REDIS_ADDR not set; session state kept in process")
	}

	metrics := session.NewMetrics(prometheus.DefaultRegisterer)
	svc := session.NewService(store, loader, pub, metrics, logger, session.Options{
		BankID:          cfg.Quiz.BankID,
		QuestionSeconds: cfg.Quiz.DefaultQuestionSeconds,
	})

	server.AllowOrigins(cfg.CORS.AllowedOrigins)
	apiServer := server.NewHTTPServer(cfg, logger,
		server.Deps{Pool: pool, Redis: redisClient},
		session.NewHTTPHandlers(svc, logger),
		session.NewWSHandler(svc, hub, logger),
	)

	return &Application{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     redisClient,
		http:      apiServer,
		relay:     relay,
		bgCancels: make([]context.CancelFunc, 0, 1),
	}, nil
}

// newBankLoader picks the bank source: Postgres, then a YAML file, then the
// built-in sample. Redis, when present, caches whichever is chosen.
func newBankLoader(cfg *config.App, pool *pgxpool.Pool, redisClient *redis.Client, logger zerolog.Logger) (bank.Loader, error) {
	var loader bank.Loader
	switch {
	case pool != nil:
		loader = bank.NewPostgresLoader(pool)
		logger.Info().Msg("question banks from postgres")
	case cfg.Quiz.BankFile != "":
		if _, err := os.Stat(cfg.Quiz.BankFile); err != nil {
			return nil, fmt.Errorf("bank file: %w", err)
		}
		loader = bank.NewFileLoader(cfg.Quiz.BankFile)
		logger.Info().Str("path", cfg.Quiz.BankFile).Msg("question bank from file")
	default:
		loader = bank.NewStaticLoader()
		logger.Info().Msg("using built-in sample question bank")
	}

	if redisClient != nil && cfg.Quiz.BankCacheTTL > 0 {
		loader = bank.NewCache(redisClient, loader, cfg.Quiz.BankCacheTTL, logger)
	}
	return loader, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.relay != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.relay.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("session relay stopped")
			}
		}()
	}
}
