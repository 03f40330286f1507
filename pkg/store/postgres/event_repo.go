package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/staffportal/staffportal/pkg/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, event *model.PipelineEvent) (*model.PipelineEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) ListByApplication(ctx context.Context, applicationID string) ([]model.PipelineEvent, error) {
	var events []model.PipelineEvent
	err := r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at ASC, seq ASC").
		Find(&events).Error
	return events, err
}

func (r *EventRepository) EachByApplication(ctx context.Context, applicationID string, batchSize int, fn func(model.PipelineEvent) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	var batch []model.PipelineEvent
	return r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at ASC, seq ASC").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, event := range batch {
				if err := fn(event); err != nil {
					return err
				}
			}
			return nil
		}).Error
}
