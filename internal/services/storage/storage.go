package storage

import (
	"context"
	"fmt"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Storage interface defines persistence operations. Chat turns are keyed by
// (user_id, domain); metrics records are append-only.
type Storage interface {
	// SaveTurn persists one completed exchange
	SaveTurn(ctx context.Context, userID, domain string, turn models.Turn) error

	// RecentTurns returns up to limit turns for (userID, domain),
	// ordered newest-first
	RecentTurns(ctx context.Context, userID, domain string, limit int) ([]models.Turn, error)

	// SaveMetric persists a per-request metrics record
	SaveMetric(ctx context.Context, rec models.MetricsRecord) error

	Close() error
}

// Manager manages different storage backends
type Manager struct {
	storage Storage
	logger  *logrus.Logger
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var storage Storage
	var err error

	switch cfg.Storage.Type {
	case "sqlite":
		storage, err = NewSQLiteStorage(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
	case "redis":
		storage, err = NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
	case "memory":
		storage = NewMemoryStorage(logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	logger.WithField("type", cfg.Storage.Type).Info("Storage initialized")

	return &Manager{
		storage: storage,
		logger:  logger,
	}, nil
}

// Delegate methods to underlying storage
func (m *Manager) SaveTurn(ctx context.Context, userID, domain string, turn models.Turn) error {
	return m.storage.SaveTurn(ctx, userID, domain, turn)
}

func (m *Manager) RecentTurns(ctx context.Context, userID, domain string, limit int) ([]models.Turn, error) {
	return m.storage.RecentTurns(ctx, userID, domain, limit)
}

func (m *Manager) SaveMetric(ctx context.Context, rec models.MetricsRecord) error {
	return m.storage.SaveMetric(ctx, rec)
}

func (m *Manager) Close() error {
	return m.storage.Close()
}
