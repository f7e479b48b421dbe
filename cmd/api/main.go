package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-capacity/cmd/mainconfig"
	"github.com/wolfman30/medspa-capacity/internal/admission"
	"github.com/wolfman30/medspa-capacity/internal/api/router"
	"github.com/wolfman30/medspa-capacity/internal/audit"
	"github.com/wolfman30/medspa-capacity/internal/bookings"
	"github.com/wolfman30/medspa-capacity/internal/capacity"
	"github.com/wolfman30/medspa-capacity/internal/catalog"
	appconfig "github.com/wolfman30/medspa-capacity/internal/config"
	"github.com/wolfman30/medspa-capacity/internal/events"
	"github.com/wolfman30/medspa-capacity/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-capacity/internal/http/middleware"
	"github.com/wolfman30/medspa-capacity/internal/observability/metrics"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/settings"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medspa-capacity API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.MemoryBacked(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if !cfg.MemoryBacked() {
		pool = connectPostgresPool(ctx, cfg.DatabaseURL, logger)
		if pool == nil {
			os.Exit(1)
		}
		defer pool.Close()
	}
	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, capacityMetrics := setupMetrics()
	st := buildStores(pool, redisClient, logger)

	handler, err := deliveryHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure event delivery", "error", err)
		os.Exit(1)
	}
	go events.NewDeliverer(st.outboxSource, handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithObserver(capacityMetrics).
		Start(ctx)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunEviction(ctx, time.Minute, 10*time.Minute)

	if cfg.StaffJWTSecret == "" {
		logger.Warn("STAFF_JWT_SECRET not set; staff routes will reject every request")
	}

	r := router.New(routerConfig(cfg, st, capacityMetrics, metricsHandler, limiter, pool, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// stores groups the persistence layer the API runs on.
type stores struct {
	tenants      tenancy.Directory
	catalog      catalog.Catalog
	schedules    schedule.Store
	ledger       bookings.Repository
	settings     settings.Store
	audit        audit.Recorder
	outbox       events.Recorder
	outboxSource events.Source
}

// buildStores wires Postgres-backed stores when pool is set and in-memory
// ones otherwise. Settings live in Redis whenever a client is configured.
func buildStores(pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) stores {
	var st stores
	if pool != nil {
		outbox := events.NewOutboxStore(pool)
		st = stores{
			tenants:      tenancy.NewPostgresDirectory(pool),
			catalog:      catalog.NewPostgresCatalog(pool),
			schedules:    schedule.NewPostgresStore(pool),
			ledger:       bookings.NewPostgresRepository(pool, outbox),
			audit:        audit.NewService(stdlib.OpenDBFromPool(pool)),
			outbox:       outbox,
			outboxSource: outbox,
		}
	} else {
		logger.Warn("running on in-memory stores; data is lost on restart")
		outbox := events.NewMemoryOutbox()
		st = stores{
			tenants:      tenancy.NewMemoryDirectory(tenancy.Tenant{ID: "demo", Slug: "demo", Name: "Demo Clinic", Domains: []string{"localhost"}}),
			catalog:      catalog.NewMemoryCatalog(demoPackages()...),
			schedules:    schedule.NewMemoryStore(),
			ledger:       bookings.NewMemoryRepository(outbox).WithLogger(logger),
			audit:        audit.NewMemoryRecorder(),
			outbox:       outbox,
			outboxSource: outbox,
		}
	}
	if redisClient != nil {
		st.settings = settings.NewRedisStore(redisClient)
	} else {
		st.settings = settings.NewMemoryStore()
	}
	return st
}

func demoPackages() []catalog.Package {
	return []catalog.Package{
		{ID: "demo-facial", TenantID: "demo", Name: "Signature Facial", Visible: true, Tier: schedule.TierBasic},
		{ID: "demo-laser", TenantID: "demo", Name: "Laser Resurfacing", Visible: true, Tier: schedule.TierA},
		{ID: "demo-injectables", TenantID: "demo", Name: "Injectables Consult", Visible: true, Tier: schedule.TierB},
	}
}

func routerConfig(cfg *appconfig.Config, st stores, m *metrics.CapacityMetrics, metricsHandler http.Handler,
	limiter *httpmiddleware.RateLimiter, pool *pgxpool.Pool, logger *logging.Logger) *router.Config {
	agg := capacity.NewAggregator(st.schedules, st.ledger, st.settings, m, logger)
	controller := admission.NewController(admission.Deps{
		Tenants:    st.tenants,
		Catalog:    st.catalog,
		Schedules:  st.schedules,
		Aggregator: agg,
		Ledger:     st.ledger,
		Settings:   st.settings,
		Metrics:    m,
		Logger:     logger,
	})

	var health func(ctx context.Context) error
	if pool != nil {
		health = pool.Ping
	}

	return &router.Config{
		Logger:  logger,
		Tenants: st.tenants,
		Bookings: handlers.NewBookingsHandler(handlers.BookingsConfig{
			Admission: controller,
			Lifecycle: bookings.NewService(st.ledger, logger),
			Ledger:    st.ledger,
			Audit:     st.audit,
			Logger:    logger,
		}),
		Capacity: handlers.NewCapacityHandler(handlers.CapacityConfig{
			Aggregator: agg,
			Schedules:  st.schedules,
			Events:     st.outbox,
			Audit:      st.audit,
			Logger:     logger,
		}),
		Templates:          handlers.NewTemplatesHandler(st.schedules, st.audit, logger),
		Settings:           handlers.NewSettingsHandler(st.settings, logger),
		StaffAuthSecret:    cfg.StaffJWTSecret,
		RateLimiter:        limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Health:             health,
	}
}

// setupMetrics registers capacity metrics plus process collectors on a
// dedicated registry.
func setupMetrics() (http.Handler, *metrics.CapacityMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCapacityMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// connectRedis returns nil when REDIS_ADDR is unset or unreachable, in
// which case settings fall back to process memory.
func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable; settings kept in memory", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// deliveryHandler forwards outbox events to SQS when a queue is configured
// and logs them otherwise.
func deliveryHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.DeliveryHandler, error) {
	if strings.TrimSpace(cfg.BookingEventsQueueURL) == "" {
		return events.NewLogHandler(logger), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return events.NewSQSHandler(mainconfig.NewSQSClient(awsCfg, cfg), cfg.BookingEventsQueueURL), nil
}
