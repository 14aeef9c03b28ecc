package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements Storage using an in-memory cache. Intended for
// development and tests; nothing survives a restart.
type MemoryStorage struct {
	histories *cache.Cache
	metrics   []models.MetricsRecord
	mu        sync.Mutex
	logger    *logrus.Logger
}

func NewMemoryStorage(logger *logrus.Logger) *MemoryStorage {
	return &MemoryStorage{
		histories: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger:    logger,
	}
}

func (m *MemoryStorage) SaveTurn(ctx context.Context, userID, domain string, turn models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("history:%s:%s", userID, domain)
	var turns []models.Turn
	if val, found := m.histories.Get(key); found {
		turns = val.([]models.Turn)
	}
	turns = append(turns, turn)
	m.histories.Set(key, turns, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) RecentTurns(ctx context.Context, userID, domain string, limit int) ([]models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("history:%s:%s", userID, domain)
	val, found := m.histories.Get(key)
	if !found {
		return nil, nil
	}

	turns := val.([]models.Turn)
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	// Newest-first, matching the other backends
	out := make([]models.Turn, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		out = append(out, turns[i])
	}
	return out, nil
}

func (m *MemoryStorage) SaveMetric(ctx context.Context, rec models.MetricsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, rec)
	return nil
}

// Metrics returns a copy of all persisted metrics records
func (m *MemoryStorage) Metrics() []models.MetricsRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MetricsRecord, len(m.metrics))
	copy(out, m.metrics)
	return out
}

func (m *MemoryStorage) Close() error {
	return nil
}
