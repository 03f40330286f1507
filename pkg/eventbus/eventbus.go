package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/livehub"
)

const DefaultChannel = "sp:events:live"

// Event is the envelope published on the live channel. Data holds the
// encoded livehub message.
type Event struct {
	Silo          string          `json:"silo"`
	ApplicationID string          `json:"application_id,omitempty"`
	Timestamp     int64           `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// Bus fans live updates out to every api-server instance through redis
// pub/sub. It implements livehub.Emitter; Forward feeds received events
// into the local hub.
type Bus struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewBus(client redis.UniversalClient, channel string, logger *zap.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{client: client, channel: channel, logger: logger.Named("eventbus")}
}

func NewEvent(silo, applicationID string, m livehub.Message) (Event, error) {
	data, err := livehub.Encode(m)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Silo:          silo,
		ApplicationID: applicationID,
		Timestamp:     time.Now().Unix(),
		Data:          data,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context) <-chan *Event {
	sub := b.client.Subscribe(ctx, b.channel)
	ch := make(chan *Event, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed live event", zap.Error(err))
				continue
			}
			ch <- &event
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}

// Deliverer receives events published by other instances. *livehub.Hub
// implements it.
type Deliverer interface {
	Deliver(silo, applicationID string, m livehub.Message) int
}

// Forward delivers every subscribed event to target until ctx is cancelled.
func (b *Bus) Forward(ctx context.Context, target Deliverer) {
	b.forward(b.Subscribe(ctx), target)
}

func (b *Bus) forward(events <-chan *Event, target Deliverer) {
	for event := range events {
		msg, err := livehub.Decode(event.Data)
		if err != nil {
			b.logger.Warn("dropping undecodable live event",
				zap.Error(err),
				zap.String("silo", event.Silo),
			)
			continue
		}
		target.Deliver(event.Silo, event.ApplicationID, msg)
	}
}

func (b *Bus) emit(ctx context.Context, silo, applicationID string, m livehub.Message) {
	event, err := NewEvent(silo, applicationID, m)
	if err != nil {
		b.logger.Error("failed to encode live event", zap.Error(err))
		return
	}
	if err := b.Publish(ctx, event); err != nil {
		b.logger.Warn("failed to publish live event",
			zap.Error(err),
			zap.String("silo", silo),
			zap.String("application_id", applicationID),
		)
	}
}

func (b *Bus) EmitPipelineUpdate(ctx context.Context, silo, applicationID string) {
	b.emit(ctx, silo, applicationID, livehub.PipelineUpdate{ApplicationID: applicationID})
}

func (b *Bus) EmitDocumentUpdate(ctx context.Context, silo, applicationID string) {
	b.emit(ctx, silo, applicationID, livehub.DocumentUpdate{ApplicationID: applicationID})
}

func (b *Bus) EmitChatMessage(ctx context.Context, silo, applicationID, msg string) {
	b.emit(ctx, silo, applicationID, livehub.ChatMessage{ApplicationID: applicationID, Msg: msg})
}

var (
	_ livehub.Emitter = (*Bus)(nil)
	_ Deliverer       = (*livehub.Hub)(nil)
)
