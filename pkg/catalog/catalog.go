// Package catalog persists one record per accepted image together with its
// named metadata attributes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("catalog record not found")

// Record is one catalog row keyed by the normalized object key.
type Record struct {
	ID        string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the set of atomic per-key operations the pipeline relies on.
type Store interface {
	// Create inserts a record for id if none exists. It reports whether this
	// call created it; an existing record is left untouched and is not an error.
	Create(ctx context.Context, id string) (bool, error)
	// SetAttribute sets one metadata attribute of an existing record, leaving
	// every other attribute as it is. Returns ErrNotFound if id is unknown.
	SetAttribute(ctx context.Context, id, name, value string) error
	// Get returns a copy of the record.
	Get(ctx context.Context, id string) (*Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
	OpTimeout   time.Duration
	MaxConns    int32
}

// Open creates a Store based on the given configuration. The postgres driver
// applies pending schema migrations first when AutoMigrate is set.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory catalog store; records are lost on exit")
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.AutoMigrate {
			if err := Migrate(cfg.DSN, cfg.Table, logger); err != nil {
				return nil, err
			}
		}
		return NewPostgresStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported catalog driver: %s", cfg.Driver)
	}
}
