package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/staffportal/staffportal/pkg/model"
)

type StageRepository struct {
	db *gorm.DB
}

func NewStageRepository(db *gorm.DB) *StageRepository {
	return &StageRepository{db: db}
}

func (r *StageRepository) List(ctx context.Context) ([]model.Stage, error) {
	var stages []model.Stage
	err := r.db.WithContext(ctx).Order("sort_order ASC").Find(&stages).Error
	return stages, err
}

func (r *StageRepository) Get(ctx context.Context, id string) (*model.Stage, error) {
	var stage model.Stage
	if err := r.db.WithContext(ctx).First(&stage, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &stage, nil
}

func (r *StageRepository) Upsert(ctx context.Context, stages []model.Stage) error {
	if len(stages) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range stages {
		stages[i].UpdatedAt = now
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sort_order", "updated_at"}),
	}).Create(&stages).Error
}
