package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CharlyBGood/planificadorfinanciero/internal/bridge"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway/drive"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway/memory"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway/postgres"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.New()

	result := &BackendResult{
		Gateway: store,
		Auth:    store,
		Logos:   f.logoStore(ctx, config, store),
		Cleanup: store.Close,
	}
	result.Bridge = f.changeBridge(config, store)

	f.logger.Info("Initialized memory backend", "bridge_enabled", result.Bridge != nil)
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := sqlite.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	result := &BackendResult{
		Gateway: store,
		Auth:    store,
		Logos:   f.logoStore(ctx, config, store),
		Cleanup: store.Close,
	}
	result.Bridge = f.changeBridge(config, store)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"bridge_enabled", result.Bridge != nil)
	return result, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.New(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	// Postgres realtime rides on LISTEN/NOTIFY; no bridge needed.
	result := &BackendResult{
		Gateway: store,
		Auth:    store,
		Logos:   f.logoStore(ctx, config, nil),
		Cleanup: store.Close,
	}

	f.logger.Info("Initialized Postgres backend")
	return result, nil
}

// logoStore prefers Drive when configured, falling back to whatever the
// adapter itself offers. Logo storage is optional end to end.
func (f *DefaultFactory) logoStore(ctx context.Context, config Config, fallback gateway.LogoStore) gateway.LogoStore {
	if config.GoogleDriveFolderID == "" {
		return fallback
	}

	client, err := drive.NewFromEnv(ctx)
	if err != nil {
		f.logger.Warn("Failed to initialize Drive logo storage, continuing without it", "error", err)
		return fallback
	}
	f.logger.Info("Initialized Drive logo storage", "folder_id", config.GoogleDriveFolderID)
	return client
}

func (f *DefaultFactory) changeBridge(config Config, feed bridge.Feed) *bridge.Bridge {
	if config.AMQPURL == "" {
		return nil
	}

	client, err := bridge.NewClient(config.AMQPURL, config.AMQPExchange)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP bridge, continuing without replication", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP change bridge", "exchange", config.AMQPExchange)
	return bridge.New(client, feed)
}
