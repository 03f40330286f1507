package model

import (
	"time"

	"github.com/google/uuid"
)

type PipelineEventType string

const (
	PipelineEventMove PipelineEventType = "MOVE"
)

// PipelineEvent is an append-only stage transition record.
type PipelineEvent struct {
	ID            uuid.UUID         `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Seq           uint64            `gorm:"autoIncrement;uniqueIndex;not null"`
	ApplicationID string            `gorm:"type:varchar(64);not null;index:idx_pipeline_events_app_time"`
	Silo          string            `gorm:"type:varchar(32);not null"`
	Type          PipelineEventType `gorm:"type:varchar(32);not null"`
	FromStage     string            `gorm:"type:varchar(64);not null"`
	ToStage       string            `gorm:"type:varchar(64);not null"`
	ActorID       string            `gorm:"type:varchar(64)"`
	CreatedAt     time.Time         `gorm:"not null;index:idx_pipeline_events_app_time"`
}

func (PipelineEvent) TableName() string {
	return "pipeline_events"
}
