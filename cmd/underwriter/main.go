package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card_underwriting/internal/api"
	"card_underwriting/internal/config"
	"card_underwriting/internal/dispatcher"
	"card_underwriting/internal/domain"
	"card_underwriting/internal/logging"
	"card_underwriting/internal/processor"
	"card_underwriting/internal/repository"
	"card_underwriting/internal/repository/memory"
	"card_underwriting/internal/repository/postgres"
	"card_underwriting/internal/service"
	"card_underwriting/pkg/bureau"
	"card_underwriting/pkg/crypto"
	"card_underwriting/pkg/metrics"
	"card_underwriting/pkg/rabbitmq"
	"card_underwriting/pkg/stats"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	appName = "card_underwriting"
)

type storage struct {
	customers    repository.CustomerRepository
	applications repository.ApplicationRepository
	pool         *pgxpool.Pool
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Cannot load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("Starting application", slog.String("name", appName))

	ctx := context.Background()

	store, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("Storage setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	watchlists := memory.NewWatchlistRepository()
	if err := watchlists.Seed(ctx, domain.WatchlistSanctions, cfg.SanctionsList); err != nil {
		logger.Error("Seeding sanctions list failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := watchlists.Seed(ctx, domain.WatchlistPEP, cfg.PEPList); err != nil {
		logger.Error("Seeding PEP list failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	fingerprinter := crypto.NewFingerprinter(cfg.TaxIDSecret, logger)
	recorder, redisClient := setupStatsRecorder(ctx, cfg, logger)
	publisher, producer := setupPublisher(cfg, logger)
	notificationService := service.NewNotificationService(publisher, fingerprinter, 3, 100, logger)

	screener := processor.NewComplianceScreener(watchlists,
		processor.NewRandomAMLChecker(cfg.AMLPassRate, nil), logger,
		processor.WithScreeningLatency(cfg.ComplianceLatency))
	applicationProcessor := processor.NewApplicationProcessor(
		store.applications,
		screener,
		setupBureau(cfg, logger),
		processor.NewRiskEngine(),
		logger,
		processor.WithDecisionRecorder(recorder),
		processor.WithNotifier(notificationService),
		processor.WithMetrics(metricsCollector),
		processor.WithBureauTimeout(cfg.BureauTimeout),
	)

	disp, err := dispatcher.New(dispatcher.Config{
		CoreWorkers:   cfg.DispatcherCoreWorkers,
		MaxWorkers:    cfg.DispatcherMaxWorkers,
		QueueCapacity: cfg.DispatcherQueueCapacity,
		KeepAlive:     cfg.DispatcherKeepAlive,
		ShutdownGrace: cfg.DispatcherShutdownGrace,
	}, applicationProcessor.Process, applicationProcessor.HandleFailure, logger)
	if err != nil {
		logger.Error("Dispatcher setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	applicationService := service.NewApplicationService(store.customers, store.applications, disp, fingerprinter, metricsCollector, logger)

	monitor := service.NewPendingMonitor(store.applications, disp, metricsCollector, cfg.PendingMonitorSchedule, cfg.StalePendingAfter, logger)
	if err := monitor.Start(); err != nil {
		logger.Error("Pending monitor setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// Pick up anything left PENDING by a previous run.
	monitor.RunOnce(ctx)

	apiHandler := api.NewAPIHandler(applicationService, recorder, metricsCollector, logger)
	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, api.NewRouter(apiHandler, nil), logger)

	waitForShutdown(logger, httpServer, metricsServer, monitor, disp, notificationService)

	if producer != nil {
		producer.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if store.pool != nil {
		store.pool.Close()
	}
	logger.Info("Application shutdown complete")
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, using in-memory storage")
		return &storage{
			customers:    memory.NewCustomerRepository(),
			applications: memory.NewApplicationRepository(),
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Connected to PostgreSQL")
	return &storage{
		customers:    postgres.NewCustomerRepository(pool),
		applications: postgres.NewApplicationRepository(pool),
		pool:         pool,
	}, nil
}

func setupStatsRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stats.Recorder, *redis.Client) {
	if cfg.RedisAddr == "" {
		return stats.NewMemoryRecorder(), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis ping failed, decision stats kept in memory", slog.String("error", err.Error()))
		_ = rdb.Close()
		return stats.NewMemoryRecorder(), nil
	}
	return stats.NewRedisRecorder(rdb), rdb
}

func setupPublisher(cfg *config.Config, logger *slog.Logger) (service.Publisher, *rabbitmq.EventProducer) {
	if cfg.RabbitMQURL == "" {
		return service.NewLogPublisher(logger), nil
	}

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, decision events will only be logged", slog.String("error", err.Error()))
		return service.NewLogPublisher(logger), nil
	}
	return producer, producer
}

func setupBureau(cfg *config.Config, logger *slog.Logger) bureau.Gateway {
	var gateway bureau.Gateway
	if cfg.BureauBaseURL != "" {
		gateway = bureau.NewHTTPClient(cfg.BureauBaseURL, cfg.BureauAPIKey, cfg.BureauTimeout)
		logger.Info("Using credit bureau API", slog.String("base_url", cfg.BureauBaseURL))
	} else {
		gateway = bureau.NewSimulator(bureau.WithLatency(cfg.BureauSimLatency, cfg.BureauSimLatency*2))
		logger.Info("Using simulated credit bureau")
	}
	return bureau.NewRateLimited(gateway, cfg.BureauRPS, cfg.BureauBurst)
}

func startHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	monitor *service.PendingMonitor,
	disp *dispatcher.Dispatcher,
	notificationService *service.NotificationService,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	<-monitor.Stop().Done()

	// The dispatcher applies its own grace period on top of ctx.
	if err := disp.Shutdown(context.Background()); err != nil {
		var unfinished *dispatcher.ShutdownError
		if errors.As(err, &unfinished) {
			logger.Warn("Applications left pending at shutdown",
				slog.Int("count", len(unfinished.Unfinished)),
				slog.Any("application_ids", unfinished.Unfinished))
		} else {
			logger.Error("Dispatcher shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := notificationService.Shutdown(ctx); err != nil {
		logger.Error("Notification service shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
