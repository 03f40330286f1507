// Package bootstrap builds the shared process dependencies from config.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/documents"
	"github.com/staffportal/staffportal/pkg/store"
	"github.com/staffportal/staffportal/pkg/store/clickhouse"
	"github.com/staffportal/staffportal/pkg/store/memory"
	"github.com/staffportal/staffportal/pkg/store/postgres"
)

func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

// Backend is an opened storage backend plus whatever must be closed with it.
type Backend struct {
	Repositories store.Repositories
	Postgres     *postgres.Store
	Memory       *memory.Store
	closers      []func() error
}

func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenBackend opens database.driver and swaps in the configured audit store.
func OpenBackend(cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		b.Memory = memory.NewStore()
		b.Repositories = b.Memory.Repositories()
	case "postgres", "":
		db, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(); err != nil {
				b.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		b.Postgres = db
		b.Repositories = db.Repositories()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	switch cfg.Audit.Driver {
	case "clickhouse":
		if len(cfg.ClickHouse.Hosts) == 0 {
			b.Close()
			return nil, fmt.Errorf("audit driver clickhouse needs clickhouse.hosts")
		}
		logger.Info("using clickhouse for audit storage")
		audit, err := clickhouse.NewAuditStore(
			cfg.ClickHouse.Hosts[0],
			cfg.ClickHouse.Database,
			cfg.ClickHouse.User,
			cfg.ClickHouse.Password,
			logger,
		)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to initialize clickhouse audit store: %w", err)
		}
		b.closers = append(b.closers, audit.Close)
		b.Repositories.Audit = audit
	case "memory":
		if b.Memory == nil {
			b.Memory = memory.NewStore()
		}
		b.Repositories.Audit = b.Memory.Repositories().Audit
	default:
		logger.Info("using database for audit storage")
	}

	return b, nil
}

// OpenBlobStore returns the document store for documents.driver along with
// its close function.
func OpenBlobStore(ctx context.Context, cfg config.DocumentsConfig) (documents.BlobStore, func() error, error) {
	switch cfg.Driver {
	case "gcs":
		gcs, err := documents.NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsJSON)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs.Close, nil
	case "memory", "":
		return documents.NewMemoryStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown documents driver %q", cfg.Driver)
	}
}
