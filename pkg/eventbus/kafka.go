package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "sp-event-id"
	HeaderEventType = "sp-event-type"
	HeaderDLQError  = "sp-dlq-error"
)

type KafkaProducerConfig struct {
	Brokers    []string
	ClientID   string
	EventTopic string
	DLQTopic   string
}

// KafkaProducer publishes pipeline events for downstream consumers
// (reporting, lender integrations).
type KafkaProducer struct {
	writer     *kafka.Writer
	eventTopic string
	dlqTopic   string
}

func NewKafkaProducer(cfg KafkaProducerConfig) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.Hash{},
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaProducer{
		writer:     writer,
		eventTopic: cfg.EventTopic,
		dlqTopic:   cfg.DLQTopic,
	}
}

func (p *KafkaProducer) PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	return p.publish(ctx, p.eventTopic, key, value, headers)
}

func (p *KafkaProducer) PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	if p.dlqTopic == "" {
		return errors.New("dlq topic is not configured")
	}
	return p.publish(ctx, p.dlqTopic, key, value, headers)
}

func (p *KafkaProducer) publish(ctx context.Context, topic string, key, value []byte, headers []kafka.Header) error {
	if topic == "" {
		return errors.New("topic is not configured")
	}

	message := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    time.Now(),
	}

	return p.writer.WriteMessages(ctx, message)
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
