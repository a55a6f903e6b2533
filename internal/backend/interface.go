package backend

import (
	"context"

	"github.com/CharlyBGood/planificadorfinanciero/internal/bridge"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired backend and optional cleanup function.
type BackendResult struct {
	Gateway gateway.Gateway
	Auth    gateway.Authenticator
	// Logos is nil when no logo storage is configured; document writes
	// then proceed without logos.
	Logos gateway.LogoStore
	// Bridge is non-nil when AMQP replication is configured for a
	// backend without native cross-instance realtime.
	Bridge  *bridge.Bridge
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string

	// AMQP change bridge (memory and sqlite backends)
	AMQPURL      string
	AMQPExchange string

	// Google Drive logo storage
	GoogleDriveFolderID string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
