// Package lifecycle wires every component together into a runnable process:
// config, logging, telemetry, database pools, API clients, the circuit
// breaker, and the four background schedulers, plus coordinated startup and
// graceful shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fidlabs/piece-sentinel/httpclient"
	"github.com/fidlabs/piece-sentinel/httpserver"
	"github.com/fidlabs/piece-sentinel/internal/bms"
	"github.com/fidlabs/piece-sentinel/internal/breaker"
	"github.com/fidlabs/piece-sentinel/internal/chainrpc"
	"github.com/fidlabs/piece-sentinel/internal/config"
	"github.com/fidlabs/piece-sentinel/internal/contactindex"
	"github.com/fidlabs/piece-sentinel/internal/dealsource"
	"github.com/fidlabs/piece-sentinel/internal/discovery"
	"github.com/fidlabs/piece-sentinel/internal/proxy"
	"github.com/fidlabs/piece-sentinel/internal/repository"
	"github.com/fidlabs/piece-sentinel/internal/scheduler"
	"github.com/fidlabs/piece-sentinel/internal/urltester"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

// shutdownBound is how long Run waits for schedulers to exit after
// cancellation before giving up on them.
const shutdownBound = 30 * time.Second

// App holds every wired dependency for the running process.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	db     *sqlx.DB
	dealDB *sqlx.DB
	redis  redis.UniversalClient

	httpServer *httpserver.Server

	schedulers []scheduler.Loop

	shutdownTelemetry func(context.Context) error
}

// New builds an App from the process environment. It opens both database
// pools and the Redis client but does not start anything yet; call Run to
// start serving and running the schedulers.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel)

	shutdownTelemetry, err := setupTelemetry(ctx, os.Getenv("OTLP_ENDPOINT"))
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(ctx, "postgres", cfg.DatabaseURL, sqlx.WithDBSystem("postgresql"))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: connect database: %w", err)
	}

	dealDB, err := sqlx.Connect(ctx, "postgres", cfg.DealCatalogURL, sqlx.WithDBSystem("postgresql"))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: connect deal catalog database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	rotator := proxy.NewRotator(redisClient, cfg.Proxy)
	proxyURL, err := rotator.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resolve proxy: %w", err)
	}

	testerOpts := []httpclient.Option{}
	if proxyURL != nil {
		logger.Info().Str("proxy_host", proxyURL.Host).Msg("routing retrieval probes through proxy")
		testerOpts = append(testerOpts, httpclient.WithProxyURL(proxyURL))
	}

	chain := chainrpc.New(cfg.ChainRPCURL)
	contact := contactindex.New(cfg.ContactIndexURL)
	bmsClient := bms.New(cfg.BMSURL)
	tester := urltester.New(testerOpts...)

	deals := dealsource.NewPostgresSource(dealDB)

	provRepo := repository.NewProviderRepository(db)
	urlRepo := repository.NewURLResultRepository(db)
	bmsResultRepo := repository.NewBmsResultRepository(db)

	worker := discovery.New(chain, contact, deals, tester)

	bmsBreaker := breaker.New("bms", cfg.BreakerThreshold, cfg.BreakerCooldown, breaker.WithLogger(logger))

	schedulers := []scheduler.Loop{
		scheduler.NewProviderDiscoveryLoop(deals, provRepo, logger),
		scheduler.NewPeerIDRefreshLoop(chain, provRepo, logger),
		scheduler.NewURLDiscoveryLoop(worker, deals, provRepo, urlRepo, logger),
		scheduler.NewBandwidthLoop(bmsClient, bmsBreaker, provRepo, bmsResultRepo, cfg.BMSDefaultWorkerCount, cfg.BMSTestIntervalDays, logger),
	}

	mux := http.NewServeMux()
	health := httpserver.NewHealthHandler(httpserver.WithVersion(serviceVersion))
	health.AddReadinessCheck("database", db.PingContext)
	health.AddReadinessCheck("deal_catalog", dealDB.PingContext)
	mux.Handle("/ping", health.PingHandler())
	mux.Handle("/livez", health.LiveHandler())
	mux.Handle("/readyz", health.ReadyHandler())
	mux.Handle("/metrics", httpserver.PrometheusHandler())

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Addr = getEnvDefault("HTTP_ADDR", ":8080")
	httpSrv := httpserver.New(
		httpserver.WithConfig(httpCfg),
		httpserver.WithServiceName(serviceName),
		httpserver.WithHandler(mux),
		httpserver.WithLogger(logger),
		httpserver.WithTracing(httpserver.DefaultTracingConfig()),
		httpserver.WithLogging(httpserver.LoggerConfig{
			Logger:    logger,
			SkipPaths: []string{"/ping", "/livez", "/readyz", "/metrics"},
		}),
		httpserver.WithMetrics(httpserver.MetricsConfig{
			SkipPaths: []string{"/ping", "/livez", "/readyz", "/metrics"},
		}),
		httpserver.WithMiddleware(
			httpserver.Recovery(logger),
			httpserver.RequestID(),
		),
	)

	return &App{
		cfg:               cfg,
		log:               logger,
		db:                db,
		dealDB:            dealDB,
		redis:             redisClient,
		httpServer:        httpSrv,
		schedulers:        schedulers,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// Run blocks until ctx is cancelled or a termination signal is received,
// running the HTTP server and every scheduler concurrently. On shutdown it
// gives every scheduler up to shutdownBound to stop; stragglers are logged
// and abandoned rather than blocking process exit.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, s := range a.schedulers {
		wg.Add(1)
		go func(s scheduler.Loop) {
			defer wg.Done()
			s.Run(ctx)
		}(s)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.httpServer.ListenAndServe(ctx)
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			a.log.Error().Err(err).Msg("http server exited unexpectedly")
		}
		stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownBound):
		a.log.Warn().Msg("schedulers did not stop within the shutdown bound, abandoning them")
	}

	return a.Close(context.Background())
}

// Close releases every resource App opened. Safe to call after Run returns.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.redis.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.dealDB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func newLogger(level string) zerolog.Logger {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(l).With().Timestamp().Str("service", serviceName).Logger()
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
