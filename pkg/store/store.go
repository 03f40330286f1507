package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/staffportal/staffportal/pkg/model"
)

var (
	// ErrNotFound is returned by every backend when a keyed lookup misses.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when the record exists but the caller may not touch it.
	ErrForbidden = errors.New("record belongs to another user or silo")
)

// StageStore persists the configured board columns.
type StageStore interface {
	// List returns all stages ordered by their board order
	List(ctx context.Context) ([]model.Stage, error)

	// Get returns a single stage or ErrNotFound
	Get(ctx context.Context, id string) (*model.Stage, error)

	// Upsert creates or updates the given stages by id
	Upsert(ctx context.Context, stages []model.Stage) error
}

// CardStore persists pipeline cards. Only UpdateStage mutates StageID.
type CardStore interface {
	FindAll(ctx context.Context) ([]model.PipelineCard, error)
	FindBySilo(ctx context.Context, silo string) ([]model.PipelineCard, error)
	FindByID(ctx context.Context, id string) (*model.PipelineCard, error)
	FindByApplicationID(ctx context.Context, applicationID string) (*model.PipelineCard, error)
	Create(ctx context.Context, card *model.PipelineCard) error

	// UpdateStage sets the stage of a card and bumps its version. It does not
	// validate that the stage exists.
	UpdateStage(ctx context.Context, cardID, stageID string) (*model.PipelineCard, error)
}

// EventStore is the append-only stage transition log.
type EventStore interface {
	// Append writes a new event. Calling it twice writes two events.
	Append(ctx context.Context, event *model.PipelineEvent) (*model.PipelineEvent, error)

	// ListByApplication returns the events of an application oldest-first
	ListByApplication(ctx context.Context, applicationID string) ([]model.PipelineEvent, error)

	// EachByApplication streams the events of an application oldest-first in
	// batches, stopping at the first error returned by fn
	EachByApplication(ctx context.Context, applicationID string, batchSize int, fn func(model.PipelineEvent) error) error
}

// AuditStore is the append-only compliance log.
type AuditStore interface {
	Log(ctx context.Context, entry *model.AuditEntry) (*model.AuditEntry, error)
	Close() error
}

type NotificationStore interface {
	Create(ctx context.Context, notification *model.Notification) error

	// ListUnread returns unread notifications visible to userID inside silo:
	// those addressed to the user plus tenant and application-watcher ones.
	ListUnread(ctx context.Context, userID, silo string) ([]model.Notification, error)

	// MarkRead flips Read to true for a notification visible to userID in
	// silo. Already-read notifications are returned unchanged. Notifications
	// the caller cannot see yield ErrForbidden and are left untouched.
	MarkRead(ctx context.Context, id uuid.UUID, userID, silo string, readAt time.Time) (*model.Notification, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, event *model.OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID) error
}

// Tx holds the stores bound to a single transaction.
type Tx struct {
	Cards         CardStore
	Events        EventStore
	Notifications NotificationStore
	Outbox        OutboxStore
}

// Transactor runs fn atomically: either every write made through tx is kept
// or none is.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Repositories bundles the stores of one backend.
type Repositories struct {
	Stages        StageStore
	Cards         CardStore
	Events        EventStore
	Notifications NotificationStore
	Outbox        OutboxStore
	Audit         AuditStore
	Transactor    Transactor
}
