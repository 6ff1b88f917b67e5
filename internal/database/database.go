// Package database provides the session snapshot store with support for multiple backends.
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/factchecker/labdesk/internal/config"
	"github.com/factchecker/labdesk/internal/models"
)

// Store defines the interface for session persistence.
type Store interface {
	// SaveSnapshot replaces the snapshot stored under key.
	SaveSnapshot(ctx context.Context, key string, snap *models.Snapshot) error
	// LoadSnapshot returns the snapshot stored under key, or nil if none exists.
	LoadSnapshot(ctx context.Context, key string) (*models.Snapshot, error)
	// DeleteSnapshot removes the snapshot stored under key. Missing keys are not an error.
	DeleteSnapshot(ctx context.Context, key string) error

	// Lifecycle
	Close() error
	Migrate() error
}

// NewStore opens the backend named by the configured driver.
func NewStore(cfg *config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(cfg.Path)
	case "bolt":
		return NewBoltStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func encodeSnapshot(snap *models.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version > models.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}
