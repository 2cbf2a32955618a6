package main

import (
	"context"

	"wasteops/internal/locks/events"
	"wasteops/internal/locks/handler"
	"wasteops/internal/locks/repository"
	"wasteops/internal/locks/service"
	"wasteops/internal/locks/validator"
	"wasteops/pkg/app"
	"wasteops/pkg/broadcast"
	"wasteops/pkg/config"
	"wasteops/pkg/kafka"
	kafka_config "wasteops/pkg/kafka/config"
	kafka_middleware "wasteops/pkg/kafka/middleware"
	"wasteops/pkg/metrics"
)

const ServiceName = "planning-locks"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting planning locks service")

	m := metrics.New()
	serverApp := app.NewApplication(cfg)

	hub := broadcast.NewHub(cfg.WSAllowedOrigins, cfg.Log, m)
	serverApp.OnShutdown("websocket hub", func() error {
		hub.Close()
		return nil
	})

	publishers := events.Fanout{events.NewHubPublisher(hub)}
	if cfg.KafkaEnabled {
		publishers = append(publishers, initKafkaRelay(cfg, serverApp, hub, m))
	}

	repo, db := initRepository(cfg)
	lockService := service.NewLockService(
		repo,
		validator.NewLockValidator(cfg.Log),
		publishers,
		m,
		cfg,
	)
	serverApp.AddWorker("lock-sweeper", func(ctx context.Context) {
		lockService.RunSweeper(ctx, cfg.LockSweepInterval)
	})

	serverApp.SetApp(
		handler.NewHealthHandler(cfg.LockBackend, db, m.Handler(), cfg.Log),
		handler.NewLockHandler(lockService, cfg.Log),
		handler.NewSubscribeHandler(hub),
	)
	serverApp.Run()
}

func initRepository(cfg *config.Config) (repository.ResourceLockRepository, handler.Pinger) {
	if !cfg.UsesMongo() {
		cfg.Log.Info("Lock registry initialized", "backend", cfg.LockBackend)
		return repository.NewMemoryResourceLockRepository(), nil
	}

	cfg.SetMongo()
	ping := handler.PingerFunc(func(ctx context.Context) error {
		return cfg.Client.Mongo.Ping(ctx, nil)
	})
	cfg.Log.Info("Lock registry initialized", "backend", cfg.LockBackend, "database", cfg.MongoDatabaseName)
	return repository.NewMongoResourceLockRepository(cfg), ping
}

// initKafkaRelay publishes local events to the shared topic and relays events
// from other instances to this instance's WebSocket clients.
func initKafkaRelay(cfg *config.Config, serverApp *app.Application, hub *broadcast.Hub, m *metrics.Metrics) events.Publisher {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaLockEventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.MetricsProducerMiddleware(m))
	serverApp.OnShutdown("kafka producer", producer.Close)

	relay := events.NewRelayHandler(cfg.InstanceID, events.NewHubPublisher(hub), cfg.Log)
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.KafkaLockEventsTopic, kafkaCfg.GroupID(cfg.InstanceID), relay, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	serverApp.AddWorker("kafka-relay", func(ctx context.Context) {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Kafka relay stopped", "error", err)
		}
	})
	serverApp.OnShutdown("kafka consumer", consumer.Close)

	// Producer writes run on their own goroutine so the lock service never
	// waits on the broker while holding its ordering lock.
	queue := events.NewQueue(
		events.NewKafkaPublisher(producer, cfg.ServiceName, cfg.InstanceID),
		cfg.KafkaPublishQueue,
		cfg.Log,
	)
	serverApp.AddWorker("kafka-publisher", queue.Run)

	cfg.Log.Info("Kafka relay enabled", "topic", producer.Topic(), "instance_id", cfg.InstanceID)
	return queue
}
