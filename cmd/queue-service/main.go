package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/platefull/jobqueue/internal/api/handler"
	"github.com/platefull/jobqueue/internal/api/router"
	"github.com/platefull/jobqueue/internal/archive"
	"github.com/platefull/jobqueue/internal/config"
	"github.com/platefull/jobqueue/internal/executors"
	"github.com/platefull/jobqueue/internal/ingest"
	"github.com/platefull/jobqueue/internal/queue"
	"github.com/platefull/jobqueue/internal/queue/domain"
	"github.com/platefull/jobqueue/shared/logger"
	"github.com/platefull/jobqueue/shared/postgresql"
	"github.com/platefull/jobqueue/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("QUEUE_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/queue-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting queue service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client for the job archive
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	archiveStorage := archive.NewStorage(dbClient, appLogger)

	// Initialize RabbitMQ client for the enqueue ingress
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Assemble the queue core
	manager := queue.NewManager(queue.Config{
		Logger:             appLogger,
		Workers:            workersFromConfig(cfg.Queue.Workers),
		Batching:           batchingFromConfig(cfg.Queue.Batching),
		Backoff:            durationsFromConfig(cfg.Queue.Backoff),
		DefaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		IdleInterval:       cfg.Queue.IdleInterval.Std(),
		Executors:          executors.NewExecutors(appLogger),
		BatchExecutors:     executors.NewBatchExecutors(appLogger),
		Sink:               archiveStorage,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)

	appLogger.Info("Queue core started")

	// Start the AMQP enqueue ingress
	consumer := ingest.NewConsumer(appLogger, rabbitClient, manager, cfg.RabbitMQ.Consumer.PrefetchCount)

	errChan := make(chan error, 1)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("ingress consumer: %w", err)
		}
	}()

	// Start the HTTP API
	engine := router.SetupRouter(&handler.Dependencies{
		Logger:  appLogger,
		Manager: manager,
		Archive: archiveStorage,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		appLogger.Info("HTTP server listening",
			slog.Int("port", cfg.Server.Port),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	appLogger.Info("Queue service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Service error",
			slog.Any("error", err),
		)
		return err
	}

	// Stop accepting new HTTP work first, then drain the queue core
	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()),
		)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		manager.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Queue core stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Queue core shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if rabbitClient != nil {
			rabbitClient.Close()
		}
		if dbClient != nil {
			dbClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Queue service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*slog.Logger, error) {
	loggerCfg := &logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.EnableCaller,
		TimeFormat: time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval.Std(),
		Heartbeat:          cfg.Connection.Heartbeat.Std(),
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout.Std(),
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// workersFromConfig converts the string-keyed yaml map to typed job types.
func workersFromConfig(workers map[string]int) map[domain.JobType]int {
	out := make(map[domain.JobType]int, len(workers))
	for name, count := range workers {
		out[domain.JobType(name)] = count
	}
	return out
}

// batchingFromConfig converts the yaml batching section to core batch configs.
func batchingFromConfig(batching map[string]config.BatchingConfig) map[domain.JobType]queue.BatchConfig {
	out := make(map[domain.JobType]queue.BatchConfig, len(batching))
	for name, b := range batching {
		out[domain.JobType(name)] = queue.BatchConfig{
			Size:    b.Size,
			Timeout: b.Timeout.Std(),
		}
	}
	return out
}

func durationsFromConfig(durations []config.Duration) []time.Duration {
	out := make([]time.Duration, len(durations))
	for i, d := range durations {
		out[i] = d.Std()
	}
	return out
}
