package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// How many turns are retained per (user, domain) list. Larger than the
// in-memory window so older context survives a window bump.
const redisHistoryDepth = 200

// RedisStorage implements Storage using Redis lists, newest entry at the head
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		logger: logger,
	}, nil
}

func historyKey(userID, domain string) string {
	return fmt.Sprintf("chat_history:%s:%s", userID, domain)
}

func (r *RedisStorage) SaveTurn(ctx context.Context, userID, domain string, turn models.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}

	key := historyKey(userID, domain)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, redisHistoryDepth-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) RecentTurns(ctx context.Context, userID, domain string, limit int) ([]models.Turn, error) {
	entries, err := r.client.LRange(ctx, historyKey(userID, domain), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	turns := make([]models.Turn, 0, len(entries))
	for _, entry := range entries {
		var t models.Turn
		if err := json.Unmarshal([]byte(entry), &t); err != nil {
			r.logger.WithError(err).Warn("Skipping malformed history entry")
			continue
		}
		turns = append(turns, t)
	}

	return turns, nil
}

func (r *RedisStorage) SaveMetric(ctx context.Context, rec models.MetricsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.LPush(ctx, "request_metrics", data).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
