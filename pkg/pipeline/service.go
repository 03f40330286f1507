// Package pipeline implements the board read model and the card move workflow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/livehub"
	"github.com/staffportal/staffportal/pkg/metrics"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/notification"
	"github.com/staffportal/staffportal/pkg/store"
)

// Actor is the authenticated caller of a write. An empty Silo marks an
// internal caller that is not bound to a tenant.
type Actor struct {
	UserID string
	Silo   string
}

type MoveRequest struct {
	ApplicationID string
	FromStage     string
	ToStage       string
	Actor         Actor
}

type BoardColumn struct {
	StageID   string               `json:"stageId"`
	StageName string               `json:"stageName"`
	Cards     []model.PipelineCard `json:"cards"`
}

type Options struct {
	// StrictFromStage rejects a move whose FromStage no longer matches the
	// card. Off by default, in which case the last write wins.
	StrictFromStage bool

	// Locker, when set, is held for the duration of each move.
	Locker Locker
}

type Service struct {
	stages        *StageRegistry
	cards         store.CardStore
	events        store.EventStore
	audit         store.AuditStore
	transactor    store.Transactor
	notifications *notification.Service
	emitter       livehub.Emitter
	opts          Options
	logger        *zap.Logger
	now           func() time.Time
}

func NewService(repos store.Repositories, notifications *notification.Service, emitter livehub.Emitter, opts Options, logger *zap.Logger) *Service {
	return &Service{
		stages:        NewStageRegistry(repos.Stages, logger),
		cards:         repos.Cards,
		events:        repos.Events,
		audit:         repos.Audit,
		transactor:    repos.Transactor,
		notifications: notifications,
		emitter:       emitter,
		opts:          opts,
		logger:        logger.Named("pipeline"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Stages() *StageRegistry {
	return s.stages
}

// GetBoard returns every stage in order with the silo's cards in it. An
// empty silo selects all cards.
func (s *Service) GetBoard(ctx context.Context, silo string) ([]BoardColumn, error) {
	stages, err := s.stages.ListStages(ctx)
	if err != nil {
		return nil, err
	}

	var cards []model.PipelineCard
	if silo == "" {
		cards, err = s.cards.FindAll(ctx)
	} else {
		cards, err = s.cards.FindBySilo(ctx, silo)
	}
	if err != nil {
		return nil, err
	}

	columns := make([]BoardColumn, len(stages))
	index := make(map[string]int, len(stages))
	for i, stage := range stages {
		columns[i] = BoardColumn{StageID: stage.ID, StageName: stage.Name, Cards: []model.PipelineCard{}}
		index[stage.ID] = i
	}

	for _, card := range cards {
		i, ok := index[card.StageID]
		if !ok {
			s.logger.Warn("card references unknown stage",
				zap.String("card_id", card.ID),
				zap.String("application_id", card.ApplicationID),
				zap.String("stage_id", card.StageID),
			)
			continue
		}
		columns[i].Cards = append(columns[i].Cards, card)
	}

	return columns, nil
}

// ListEvents returns the stage history of an application oldest-first.
func (s *Service) ListEvents(ctx context.Context, applicationID string, actor Actor) ([]model.PipelineEvent, error) {
	if _, err := s.authorize(ctx, applicationID, actor); err != nil {
		return nil, err
	}
	return s.events.ListByApplication(ctx, applicationID)
}

// MoveCard moves the application's card to req.ToStage. The card update,
// event, notification and outbox row commit together; the audit entry and
// the live push follow the commit in that order.
func (s *Service) MoveCard(ctx context.Context, req MoveRequest) (*model.PipelineCard, error) {
	start := time.Now()
	card, err := s.moveCard(ctx, req)
	metrics.PipelineMoveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineMoveFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	metrics.PipelineMoves.WithLabelValues(card.Silo, card.StageID).Inc()
	return card, nil
}

func (s *Service) moveCard(ctx context.Context, req MoveRequest) (*model.PipelineCard, error) {
	applicationID := strings.TrimSpace(req.ApplicationID)
	fromStage := strings.TrimSpace(req.FromStage)
	toStage := strings.TrimSpace(req.ToStage)

	switch {
	case applicationID == "":
		return nil, missingField("applicationId")
	case fromStage == "":
		return nil, missingField("fromStage")
	case toStage == "":
		return nil, missingField("toStage")
	}

	exists, err := s.stages.Exists(ctx, toStage)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStage, toStage)
	}

	if s.opts.Locker != nil {
		unlock, err := s.opts.Locker.Lock(ctx, applicationID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	card, err := s.authorize(ctx, applicationID, req.Actor)
	if err != nil {
		return nil, err
	}
	if s.opts.StrictFromStage && card.StageID != fromStage {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrStageConflict, fromStage, card.StageID)
	}

	actorID := req.Actor.UserID
	if actorID == "" {
		actorID = model.AuditActorSystem
	}
	movedAt := s.now()

	var updated *model.PipelineCard
	err = s.transactor.InTx(ctx, func(tx store.Tx) error {
		var err error
		updated, err = tx.Cards.UpdateStage(ctx, card.ID, toStage)
		if err != nil {
			return err
		}

		if _, err := tx.Events.Append(ctx, &model.PipelineEvent{
			ApplicationID: applicationID,
			Silo:          card.Silo,
			Type:          model.PipelineEventMove,
			FromStage:     fromStage,
			ToStage:       toStage,
			ActorID:       actorID,
			CreatedAt:     movedAt,
		}); err != nil {
			return err
		}

		message := fmt.Sprintf("Application %s moved from %s to %s", applicationID, fromStage, toStage)
		if _, err := s.notifications.WithStore(tx.Notifications).Create(ctx, card.Silo,
			notification.ApplicationWatchers(), model.NotificationApplicationUpdate, message, applicationID); err != nil {
			return err
		}

		payload, err := model.ToJSONB(model.CardMovedPayload{
			ApplicationID: applicationID,
			CardID:        card.ID,
			Silo:          card.Silo,
			FromStage:     fromStage,
			ToStage:       toStage,
			ActorID:       actorID,
			MovedAt:       movedAt,
		})
		if err != nil {
			return err
		}
		return tx.Outbox.Enqueue(ctx, &model.OutboxEvent{
			EventType: model.OutboxEventCardMoved,
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, err
	}

	metadata, err := model.ToJSONB(model.MoveAuditMetadata{FromStageID: fromStage, ToStageID: toStage})
	if err != nil {
		return nil, err
	}
	if _, err := s.audit.Log(ctx, &model.AuditEntry{
		ActorID:    actorID,
		Action:     model.AuditActionMove,
		EntityType: model.AuditEntityApplication,
		EntityID:   applicationID,
		Silo:       card.Silo,
		Metadata:   metadata,
		CreatedAt:  movedAt,
	}); err != nil {
		s.logger.Error("failed to write move audit entry", zap.Error(err), zap.String("application_id", applicationID))
		return nil, fmt.Errorf("move committed but audit failed: %w", err)
	}

	s.emitter.EmitPipelineUpdate(ctx, card.Silo, applicationID)

	s.logger.Info("card moved",
		zap.String("application_id", applicationID),
		zap.String("silo", card.Silo),
		zap.String("from_stage", fromStage),
		zap.String("to_stage", toStage),
		zap.String("actor_id", actorID),
	)
	return updated, nil
}

// authorize resolves the application's card and checks it belongs to the
// actor's silo.
func (s *Service) authorize(ctx context.Context, applicationID string, actor Actor) (*model.PipelineCard, error) {
	card, err := s.cards.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if actor.Silo != "" && card.Silo != actor.Silo {
		return nil, ErrForbidden
	}
	return card, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidStage):
		return "invalid_stage"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStageConflict):
		return "stage_conflict"
	case errors.Is(err, ErrMoveInProgress):
		return "locked"
	default:
		return "internal"
	}
}
