package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

type CardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) FindAll(ctx context.Context) ([]model.PipelineCard, error) {
	var cards []model.PipelineCard
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&cards).Error
	return cards, err
}

func (r *CardRepository) FindBySilo(ctx context.Context, silo string) ([]model.PipelineCard, error) {
	var cards []model.PipelineCard
	err := r.db.WithContext(ctx).
		Where("silo = ?", silo).
		Order("created_at ASC, id ASC").
		Find(&cards).Error
	return cards, err
}

func (r *CardRepository) FindByID(ctx context.Context, id string) (*model.PipelineCard, error) {
	var card model.PipelineCard
	if err := r.db.WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &card, nil
}

func (r *CardRepository) FindByApplicationID(ctx context.Context, applicationID string) (*model.PipelineCard, error) {
	var card model.PipelineCard
	if err := r.db.WithContext(ctx).First(&card, "application_id = ?", applicationID).Error; err != nil {
		return nil, translate(err)
	}
	return &card, nil
}

func (r *CardRepository) Create(ctx context.Context, card *model.PipelineCard) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.ApplicationID == "" {
		card.ApplicationID = card.ID
	}
	if card.Version == 0 {
		card.Version = 1
	}
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *CardRepository) UpdateStage(ctx context.Context, cardID, stageID string) (*model.PipelineCard, error) {
	result := r.db.WithContext(ctx).Model(&model.PipelineCard{}).
		Where("id = ?", cardID).
		Updates(map[string]interface{}{
			"stage_id":   stageID,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return r.FindByID(ctx, cardID)
}
