// Package main is the entry point for the hyperwatch alarm pipeline.
// It initializes all components and starts the HTTP server and the engines.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hyperwatch/internal/api"
	"hyperwatch/internal/banner"
	"hyperwatch/internal/config"
	"hyperwatch/internal/engine"
	"hyperwatch/internal/ingest"
	"hyperwatch/internal/notification"
	"hyperwatch/internal/processor"
	"hyperwatch/internal/queue"
	kafkaqueue "hyperwatch/internal/queue/kafka"
	memoryqueue "hyperwatch/internal/queue/memory"
	mqttqueue "hyperwatch/internal/queue/mqtt"
	"hyperwatch/internal/store"
	memorystor "hyperwatch/internal/store/memory"
	postgresstor "hyperwatch/internal/store/postgres"
	redisstor "hyperwatch/internal/store/redis"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	banner.Print()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := initLogger(&cfg.Logger)
	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
		"workers", cfg.Pipeline.Workers,
	)

	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := deps.processor.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("processor error", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("hyperwatch started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
		"version", banner.Version,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Engines flush their history buffers when their runner stops.
	select {
	case <-processorDone:
	case <-shutdownCtx.Done():
		logger.Warn("processor did not stop before shutdown timeout")
	}
	if err := deps.processor.Stop(); err != nil {
		logger.Error("processor shutdown error", "error", err)
	}

	logger.Info("hyperwatch stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server    *api.Server
	processor *processor.Service
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		recordStore  store.RecordStore
		producer     queue.Producer
		consumers    processor.ConsumerFactory
		cleanupFuncs []func()
	)
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage and broker")

		memStore := memorystor.NewRecordStore()
		recordStore = memStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = memStore.Close() })

		broker := memoryqueue.NewBroker(cfg.Pipeline.Workers, 10000)
		producer = broker
		consumers = func(topic, _ string, worker int) (queue.Consumer, error) {
			return broker.Consumer(topic, worker)
		}
		cleanupFuncs = append(cleanupFuncs, func() { _ = broker.Close() })
	} else {
		logger.Info("initializing production storage (PostgreSQL, Redis)", "transport", cfg.Transport.Kind)

		ctx := context.Background()
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		if err := db.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		alarms, err := redisstor.NewRecordStore(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, func() { _ = alarms.Close() })

		// Alarm records are read and written on every check event; the
		// rest is configuration and history.
		recordStore = store.NewInstrumented(store.NewRouted(
			postgresstor.NewRecordStore(db),
			map[string]store.RecordStore{store.CollectionAlarms: alarms},
		))

		switch cfg.Transport.Kind {
		case config.TransportMQTT:
			client, err := mqttqueue.NewClient(&cfg.MQTT, cfg.Pipeline.Workers, logger)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			producer = client
			consumers = func(topic, _ string, worker int) (queue.Consumer, error) {
				return client.Consumer(topic, worker), nil
			}
			cleanupFuncs = append(cleanupFuncs, func() { _ = client.Close() })
		default:
			kafkaProducer := kafkaqueue.NewProducer(&cfg.Kafka)
			producer = kafkaProducer
			consumers = func(topic, engineName string, _ int) (queue.Consumer, error) {
				group := kafkaqueue.GroupID(&cfg.Kafka, engineName)
				return kafkaqueue.NewConsumer(&cfg.Kafka, topic, group, logger), nil
			}
			cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaProducer.Close() })
		}
	}

	notifier := notification.NewStubNotifier(logger)

	processorService, err := processor.NewService(processor.Deps{
		Config:    cfg,
		Store:     recordStore,
		Producer:  producer,
		Consumers: consumers,
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create processor: %w", err)
	}

	ingestService := ingest.NewService(engine.NewPublisher(producer), cfg.Pipeline.Topics.Entities, logger)

	server := api.NewServer(api.ServerDeps{
		Config:            &cfg.Server,
		Logger:            logger,
		IngestHandler:     api.NewIngestHandler(ingestService, logger),
		FilterRuleHandler: api.NewFilterRuleHandler(recordStore, logger),
		AlarmHandler:      api.NewAlarmHandler(recordStore, processorService.History(), logger),
	})

	return &dependencies{
		server:    server,
		processor: processorService,
	}, cleanup, nil
}

// initLogger creates the application logger from the logger section.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
