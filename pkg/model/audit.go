package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActorSystem = "system"

	AuditActionMove           = "MOVE"
	AuditActionDocumentUpload = "DOCUMENT_UPLOAD"
	AuditActionDocumentDelete = "DOCUMENT_DELETE"
	AuditActionMessage        = "MESSAGE"

	AuditEntityApplication = "application"
)

type AuditEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ActorID    string    `gorm:"type:varchar(64);not null;index"`
	Action     string    `gorm:"type:varchar(64);not null;index"`
	EntityType string    `gorm:"type:varchar(64);not null"`
	EntityID   string    `gorm:"type:varchar(64);not null;index"`
	Silo       string    `gorm:"type:varchar(32)"`
	Metadata   JSONB     `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}

type MoveAuditMetadata struct {
	FromStageID string `json:"fromStageId"`
	ToStageID   string `json:"toStageId"`
}

type DocumentAuditMetadata struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type MessageAuditMetadata struct {
	Length int `json:"length"`
}
