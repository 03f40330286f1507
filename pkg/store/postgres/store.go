package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/model"
	"github.com/staffportal/staffportal/pkg/store"
)

var (
	_ store.StageStore        = (*StageRepository)(nil)
	_ store.CardStore         = (*CardRepository)(nil)
	_ store.EventStore        = (*EventRepository)(nil)
	_ store.NotificationStore = (*NotificationRepository)(nil)
	_ store.OutboxStore       = (*OutboxRepository)(nil)
	_ store.AuditStore        = (*AuditRepository)(nil)
	_ store.Transactor        = (*Store)(nil)
)

type Store struct {
	db *gorm.DB
}

func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return &Store{db: db}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Stage{},
		&model.PipelineCard{},
		&model.PipelineEvent{},
		&model.AuditEntry{},
		&model.Notification{},
		&model.OutboxEvent{},
	)
}

// Repositories wires every postgres repository. The audit store is included
// so callers that pick another audit backend can simply override it.
func (s *Store) Repositories() store.Repositories {
	return store.Repositories{
		Stages:        NewStageRepository(s.db),
		Cards:         NewCardRepository(s.db),
		Events:        NewEventRepository(s.db),
		Notifications: NewNotificationRepository(s.db),
		Outbox:        NewOutboxRepository(s.db),
		Audit:         NewAuditRepository(s.db),
		Transactor:    s,
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(store.Tx{
			Cards:         NewCardRepository(tx),
			Events:        NewEventRepository(tx),
			Notifications: NewNotificationRepository(tx),
			Outbox:        NewOutboxRepository(tx),
		})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
