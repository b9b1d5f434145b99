package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/config"
	"github.com/brojonat/nodekit/service/db"
	"github.com/brojonat/nodekit/service/metrics"
	natspkg "github.com/brojonat/nodekit/service/nats"
	"github.com/brojonat/nodekit/service/node"
	"github.com/brojonat/nodekit/service/server"
	"github.com/brojonat/nodekit/service/temporal"
)

func main() {
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"chains", cfg.Chains,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsCollector *metrics.Metrics
	if cfg.MetricsEnabled {
		metricsCollector = metrics.NewMetrics(nil) // nil uses default registry
		logger.Info("Prometheus metrics collector initialized")
	}

	// Optional node table
	var store *db.Store
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		store = db.NewStore(dbPool, metricsCollector)
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
	}

	// A completed call on a pool holding offline nodes asks for an early
	// sweep of that chain.
	sweepRequests := make(chan node.Chain, len(cfg.Chains))
	requestSweep := func(pool *node.Pool) func(context.Context) {
		return func(context.Context) {
			if len(pool.AllowedNodes(false)) == len(pool.Nodes()) {
				return
			}
			select {
			case sweepRequests <- pool.Chain():
			default:
			}
		}
	}

	// One pool and facade per chain, sharing a transport
	var limiter *rate.Limiter
	if cfg.NodeRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.NodeRPS), cfg.NodeBurst)
	}
	transport := client.NewHTTPTransport(&http.Client{Timeout: cfg.RequestTimeout}, limiter, logger)

	services := make(map[node.Chain]*client.Service, len(cfg.Chains))
	serviceList := make([]*client.Service, 0, len(cfg.Chains))
	pools := make([]*node.Pool, 0, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		nodes, err := loadNodes(ctx, cfg, store, chain, logger)
		if err != nil {
			logger.Error("failed to load nodes", "chain", chain, "error", err)
			os.Exit(1)
		}

		pool := node.NewPool(chain, node.SortByPriority(nodes), logger)
		svc := client.New(pool, transport,
			client.WithLogger(logger),
			client.WithMetrics(metricsCollector),
			client.WithRefreshHook(requestSweep(pool)),
		)
		defer svc.Close()

		services[chain] = svc
		serviceList = append(serviceList, svc)
		pools = append(pools, pool)
		logger.Info("initialized node pool", "chain", chain, "nodes", len(nodes))
	}

	// Node events: NATS when configured, in-process otherwise
	var events server.EventSource = server.NewPoolEventSource(pools...)
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger, metricsCollector)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		relay := natspkg.NewRelay(publisher, logger)
		defer relay.Close()
		for _, pool := range pools {
			relay.Watch(pool)
		}

		subscriber, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer subscriber.Close()
		events = subscriber
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	activitiesCfg := temporal.ActivitiesConfig{
		Services:     services,
		HealthPath:   cfg.HealthPath,
		HealthWSPath: cfg.HealthWSPath,
		ProbeTimeout: cfg.RequestTimeout,
		Metrics:      metricsCollector,
		Logger:       logger,
	}
	if store != nil {
		activitiesCfg.Store = store
	}
	activities := temporal.NewActivities(activitiesCfg)

	// Health sweeps: Temporal schedules when configured, in-process ticker otherwise
	var scheduler temporal.Scheduler
	if cfg.TemporalHost != "" {
		temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		scheduler = temporalClient

		worker, err := temporal.NewWorker(temporal.WorkerConfig{
			TemporalHost:      cfg.TemporalHost,
			TemporalNamespace: cfg.TemporalNamespace,
			TaskQueue:         cfg.TemporalTaskQueue,
			Activities:        activities,
			Logger:            logger,
		})
		if err != nil {
			logger.Error("failed to create temporal worker", "error", err)
			os.Exit(1)
		}
		if err := worker.Start(); err != nil {
			logger.Error("failed to start temporal worker", "error", err)
			os.Exit(1)
		}
		defer worker.Stop()

		for _, chain := range cfg.Chains {
			if err := temporalClient.UpsertHealthSchedule(ctx, string(chain), cfg.HealthSweepInterval); err != nil {
				logger.Error("failed to upsert health schedule", "chain", chain, "error", err)
				os.Exit(1)
			}
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case chain := <-sweepRequests:
					if _, err := temporalClient.TriggerSweep(ctx, string(chain)); err != nil && ctx.Err() == nil {
						logger.Warn("triggered sweep failed", "chain", chain, "error", err)
					}
				}
			}
		}()
		logger.Info("connected to temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", cfg.TemporalTaskQueue,
		)
	} else {
		go activities.RunSweeper(ctx, cfg.Chains, cfg.HealthSweepInterval)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case chain := <-sweepRequests:
					if _, err := activities.Sweep(ctx, chain); err != nil && ctx.Err() == nil {
						logger.Warn("triggered sweep failed", "chain", chain, "error", err)
					}
				}
			}
		}()
		logger.Info("temporal not configured, sweeping in-process", "interval", cfg.HealthSweepInterval)
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, serviceList, scheduler, events, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"database", store != nil,
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// loadNodes prefers the node table and falls back to the environment and the
// built-in seeds when the table has no rows for chain.
func loadNodes(ctx context.Context, cfg *config.Config, store *db.Store, chain node.Chain, logger *slog.Logger) ([]*node.Node, error) {
	if store != nil {
		records, err := store.ListNodes(ctx, chain)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			nodes := make([]*node.Node, 0, len(records))
			for _, r := range records {
				n, err := r.Node()
				if err != nil {
					logger.Warn("skipping stored node", "chain", chain, "url", r.URL, "error", err)
					continue
				}
				nodes = append(nodes, n)
			}
			return nodes, nil
		}
	}
	return cfg.Nodes(chain)
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
