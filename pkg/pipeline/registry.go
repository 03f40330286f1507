package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

// StageRegistry is the read side of the board columns plus startup seeding.
type StageRegistry struct {
	stages store.StageStore
	logger *zap.Logger
}

func NewStageRegistry(stages store.StageStore, logger *zap.Logger) *StageRegistry {
	return &StageRegistry{stages: stages, logger: logger.Named("stages")}
}

// ListStages returns every stage in board order.
func (r *StageRegistry) ListStages(ctx context.Context) ([]model.Stage, error) {
	return r.stages.List(ctx)
}

func (r *StageRegistry) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.stages.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SeedStages validates and upserts the given stage set.
func (r *StageRegistry) SeedStages(ctx context.Context, stages []model.Stage) error {
	if err := ValidateStages(stages); err != nil {
		return err
	}
	if err := r.stages.Upsert(ctx, stages); err != nil {
		return err
	}
	r.logger.Info("stages seeded", zap.Int("count", len(stages)))
	return nil
}

// ValidateStages requires non-empty ids and names, unique ids and a total
// order over Order.
func ValidateStages(stages []model.Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidStageSet)
	}
	ids := make(map[string]struct{}, len(stages))
	orders := make(map[int]string, len(stages))
	for _, stage := range stages {
		if strings.TrimSpace(stage.ID) == "" || strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("%w: stage id and name are required", ErrInvalidStageSet)
		}
		if _, ok := ids[stage.ID]; ok {
			return fmt.Errorf("%w: duplicate stage id %q", ErrInvalidStageSet, stage.ID)
		}
		if other, ok := orders[stage.Order]; ok {
			return fmt.Errorf("%w: stages %q and %q share order %d", ErrInvalidStageSet, other, stage.ID, stage.Order)
		}
		ids[stage.ID] = struct{}{}
		orders[stage.Order] = stage.ID
	}
	return nil
}

func StagesFromConfig(cfg []config.StageConfig) []model.Stage {
	stages := make([]model.Stage, 0, len(cfg))
	for _, s := range cfg {
		stages = append(stages, model.Stage{ID: s.ID, Name: s.Name, Order: s.Order})
	}
	return stages
}
