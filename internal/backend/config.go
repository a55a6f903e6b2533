package backend

import (
	"fmt"

	"github.com/CharlyBGood/planificadorfinanciero/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresDSN:  appConfig.PostgresDSN,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,

		GoogleDriveFolderID: appConfig.GoogleDriveFolderID,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}

	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres backend")
		}

	case MemoryBackend:
		// No additional requirements.
	}

	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("AMQP exchange is required when an AMQP URL is configured")
	}

	return nil
}
