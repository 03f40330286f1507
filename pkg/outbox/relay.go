package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/eventbus"
	"github.com/staffportal/staffportal/pkg/metrics"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

// Publisher is the subset of eventbus.KafkaProducer the relay needs.
type Publisher interface {
	PublishEvent(ctx context.Context, key, value []byte, headers ...kafka.Header) error
	PublishDLQ(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// Relay drains pending outbox rows written by the move transaction.
type Relay struct {
	repo         store.OutboxStore
	publisher    Publisher
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
}

type Message struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   model.JSONB `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

type DLQMessage struct {
	Event    Message   `json:"event"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func NewRelay(repo store.OutboxStore, publisher Publisher, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		repo:         repo,
		publisher:    publisher,
		logger:       logger.Named("outbox"),
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay starting",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessPending(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.ProcessPending(ctx)
		}
	}
}

// ProcessPending publishes one batch and returns how many events were handled.
func (r *Relay) ProcessPending(ctx context.Context) int {
	events, err := r.repo.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Warn("failed to list pending outbox events", zap.Error(err))
		return 0
	}

	handled := 0
	for _, event := range events {
		if err := r.publishEvent(ctx, event); err != nil {
			r.logger.Warn("failed to publish outbox event", zap.Error(err), zap.String("event_id", event.EventID.String()))
			continue
		}
		handled++
	}
	return handled
}

func (r *Relay) publishEvent(ctx context.Context, event model.OutboxEvent) error {
	message := Message{
		EventID:   event.EventID.String(),
		EventType: event.EventType,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: eventbus.HeaderEventID, Value: []byte(message.EventID)},
		{Key: eventbus.HeaderEventType, Value: []byte(message.EventType)},
	}

	// Keyed by application so a consumer sees one application's moves in order.
	key := []byte(message.EventID)
	if applicationID, ok := event.Payload["application_id"].(string); ok && applicationID != "" {
		key = []byte(applicationID)
	}

	if err := r.publisher.PublishEvent(ctx, key, payload, headers...); err != nil {
		r.logger.Warn("failed to publish to kafka, sending to DLQ", zap.Error(err), zap.String("event_id", message.EventID))
		return r.publishDLQ(ctx, event, message, key, err)
	}

	if err := r.repo.MarkPublished(ctx, event.EventID, time.Now().UTC()); err != nil {
		r.logger.Warn("failed to mark event published", zap.Error(err), zap.String("event_id", message.EventID))
		return err
	}

	metrics.OutboxPublished.WithLabelValues("published").Inc()
	return nil
}

func (r *Relay) publishDLQ(ctx context.Context, event model.OutboxEvent, message Message, key []byte, publishErr error) error {
	dlq := DLQMessage{
		Event:    message,
		Error:    publishErr.Error(),
		FailedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(dlq)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: eventbus.HeaderEventID, Value: []byte(message.EventID)},
		{Key: eventbus.HeaderDLQError, Value: []byte(publishErr.Error())},
	}
	if err := r.publisher.PublishDLQ(ctx, key, payload, headers...); err != nil {
		return err
	}

	if err := r.repo.MarkFailed(ctx, event.EventID); err != nil {
		r.logger.Warn("failed to mark event failed", zap.Error(err), zap.String("event_id", message.EventID))
		return err
	}

	metrics.OutboxPublished.WithLabelValues("dead_lettered").Inc()
	return nil
}
