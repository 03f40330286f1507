package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/model"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id          UUID,
	actor_id    String,
	action      LowCardinality(String),
	entity_type LowCardinality(String),
	entity_id   String,
	silo        LowCardinality(String),
	metadata    String,
	created_at  DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (entity_type, entity_id, created_at)`

// AuditStore writes audit entries to ClickHouse. Reads are a reporting
// concern and go straight to ClickHouse, not through this store.
type AuditStore struct {
	conn   driver.Conn
	logger *zap.Logger
}

func NewAuditStore(addr string, database string, username string, password string, logger *zap.Logger) (*AuditStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, createAuditTable); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	return &AuditStore{conn: conn, logger: logger}, nil
}

func (s *AuditStore) Log(ctx context.Context, entry *model.AuditEntry) (*model.AuditEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ActorID == "" {
		entry.ActorID = model.AuditActorSystem
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, err
	}

	err = s.conn.Exec(ctx,
		"INSERT INTO audit_entries (id, actor_id, action, entity_type, entity_id, silo, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Silo,
		string(metadata),
		entry.CreatedAt,
	)
	if err != nil {
		s.logger.Error("failed to insert audit entry", zap.Error(err), zap.String("action", entry.Action))
		return nil, err
	}
	return entry, nil
}

func (s *AuditStore) Close() error {
	return s.conn.Close()
}
