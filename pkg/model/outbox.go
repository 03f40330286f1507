package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

const OutboxEventCardMoved = "pipeline.card_moved"

type OutboxEvent struct {
	EventID     uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventType   string    `gorm:"not null"`
	Payload     JSONB     `gorm:"type:jsonb;not null"`
	Status      string    `gorm:"not null;default:'pending';index"`
	CreatedAt   time.Time `gorm:"autoCreateTime;not null"`
	PublishedAt *time.Time
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// CardMovedPayload is the outbox payload of a successful move.
type CardMovedPayload struct {
	ApplicationID string    `json:"application_id"`
	CardID        string    `json:"card_id"`
	Silo          string    `json:"silo"`
	FromStage     string    `json:"from_stage"`
	ToStage       string    `json:"to_stage"`
	ActorID       string    `json:"actor_id"`
	MovedAt       time.Time `json:"moved_at"`
}
