package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// SQLite
	SQLiteDBPath string

	// Postgres
	PostgresDSN string

	// Auth tokens
	JWTSecret string
	TokenTTL  time.Duration

	// Write behavior: optimistic or confirm
	WriteStrategy string

	// AMQP change bridge (optional)
	AMQPURL      string
	AMQPExchange string

	// Google Drive logo storage (optional)
	GoogleDriveFolderID string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/planificador.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		WriteStrategy: getEnv("WRITE_STRATEGY", "optimistic"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "planificador_changes"),

		GoogleDriveFolderID: getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite", "postgres"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "postgres" {
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if parsedURL, err := url.Parse(c.PostgresDSN); err != nil {
			errors = append(errors, fmt.Sprintf("invalid postgres DSN: %v", err))
		} else if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid postgres DSN scheme '%s': must be 'postgres' or 'postgresql'", parsedURL.Scheme))
		}
	}

	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}

	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	} else if c.TokenTTL > 30*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at most 720 hours", c.TokenTTL))
	}

	if c.WriteStrategy != "optimistic" && c.WriteStrategy != "confirm" {
		errors = append(errors, fmt.Sprintf("invalid write strategy '%s': must be 'optimistic' or 'confirm'", c.WriteStrategy))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
