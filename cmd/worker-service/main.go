package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/khanhnd/jobengine/internal/config"
	"github.com/khanhnd/jobengine/internal/engine"
	"github.com/khanhnd/jobengine/internal/engine/domain"
	enginestorage "github.com/khanhnd/jobengine/internal/engine/storage"
	"github.com/khanhnd/jobengine/internal/ledger"
	"github.com/khanhnd/jobengine/internal/outbox"
	"github.com/khanhnd/jobengine/shared/logger"
	"github.com/khanhnd/jobengine/shared/postgresql"
	"github.com/khanhnd/jobengine/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	db := dbClient.GetDB()
	ledgerStore := ledger.NewStore(db, appLogger.Logger)
	outboxStore := outbox.NewStore(db, appLogger.Logger)
	store := enginestorage.NewStorage(db, ledgerStore, outboxStore, appLogger.Logger)

	registry := engine.NewRegistry()
	if err := registerHandlers(registry); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	jobEngine := engine.NewEngine(&engine.Config{
		Logger:        appLogger.Logger,
		Store:         store,
		RabbitClient:  rabbitClient,
		Registry:      registry,
		Concurrency:   cfg.Engine.Concurrency,
		PrefetchCount: cfg.Engine.PrefetchCount,
		Retry: engine.RetryConfig{
			MaxAttempts: cfg.Engine.MaxAttempts,
			BaseDelay:   cfg.Engine.BaseDelay,
			MaxDelay:    cfg.Engine.MaxDelay,
		},
		DrainTimeout: cfg.Engine.DrainTimeout,
	})

	// The relay starts only after DB and broker are confirmed healthy, with
	// its own cancellation wired to process shutdown
	relay := outbox.NewRelay(outboxStore, rabbitClient, outbox.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
		MaxAttempts:  cfg.Relay.MaxAttempts,
	}, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(relayCtx)
	}()

	errChan := make(chan error, 1)
	go func() {
		if err := jobEngine.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Engine error",
			slog.Any("error", err),
		)
		relayCancel()
		return err
	}

	// Drain: stop intake, let in-flight jobs finish up to the timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Engine.DrainTimeout+5*time.Second)
	defer shutdownCancel()

	abandoned := jobEngine.Shutdown(shutdownCtx)
	if abandoned > 0 {
		appLogger.Warn("Shutdown proceeded with abandoned jobs",
			slog.Int64("abandoned", abandoned),
		)
	}

	cancel()
	relayCancel()
	<-relayDone

	if dbClient != nil {
		dbClient.Close()
	}
	if rabbitClient != nil {
		rabbitClient.Close()
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// registerHandlers binds each job type to its handler in an explicit table.
// The echo handler is a placeholder collaborator that completes every job
// and emits a single processed event.
func registerHandlers(registry *engine.Registry) error {
	return registry.Register("echo", domain.HandlerFunc(
		func(ctx context.Context, payload json.RawMessage, attempt int) domain.Result {
			body, err := json.Marshal(map[string]any{
				"payload": payload,
				"attempt": attempt,
			})
			if err != nil {
				return domain.FatalFailure(fmt.Sprintf("marshal echo result: %v", err))
			}

			return domain.Success(outbox.Event{
				AggregateID: "echo",
				EventType:   "job.echo.completed",
				Payload:     body,
			})
		},
	))
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		JobsExchange:      cfg.Jobs.Exchange,
		EventsExchange:    cfg.Events.Exchange,
		JobsQueue:         cfg.Jobs.Queue,
		JobsRoutingKey:    cfg.Jobs.RoutingKey,
		RetryWaitQueue:    cfg.Retry.WaitQueue,
		RetryRoutingKey:   cfg.Retry.RoutingKey,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
	}, logger)
}
