package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/bootstrap"
	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/eventbus"
	"github.com/staffportal/staffportal/pkg/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Database.Driver == "memory" {
		logger.Fatal("outbox relay needs a shared database; database.driver is memory")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("kafka.brokers is required")
	}

	backend, err := bootstrap.OpenBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer backend.Close()

	producer := eventbus.NewKafkaProducer(eventbus.KafkaProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		ClientID:   cfg.Kafka.ClientID,
		EventTopic: cfg.Kafka.EventTopic,
		DLQTopic:   cfg.Kafka.DLQTopic,
	})
	defer producer.Close()

	relay := outbox.NewRelay(backend.Repositories.Outbox, producer, logger, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("outbox relay stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("outbox relay shutting down")
}
