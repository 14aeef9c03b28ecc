package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/klyra-ai/klyra-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// MetricStore is the slice of the storage layer the collector depends on
type MetricStore interface {
	SaveMetric(ctx context.Context, rec models.MetricsRecord) error
}

// GlobalSnapshot is the process-wide view exposed on the health endpoint
type GlobalSnapshot struct {
	LifetimeRequests   int64  `json:"lifetime_requests"`
	SuccessfulRequests int64  `json:"successful_requests"`
	FailedRequests     int64  `json:"failed_requests"`
	Uptime             string `json:"uptime"`
	ActiveUsers        int    `json:"active_users"`
}

// Collector keeps per-user and global request aggregates in memory and
// persists one record per request. Aggregates reset on restart; the persisted
// records are the durable trail.
type Collector struct {
	mu    sync.Mutex
	users map[string]*models.UserMetrics

	lifetimeRequests   int64
	successfulRequests int64
	failedRequests     int64
	startTime          time.Time

	store  MetricStore
	logger *logrus.Logger
}

func NewCollector(store MetricStore, logger *logrus.Logger) *Collector {
	return &Collector{
		users:     make(map[string]*models.UserMetrics),
		startTime: time.Now(),
		store:     store,
		logger:    logger,
	}
}

// Record updates the in-memory aggregates and persists a metrics record.
// Persistence is best-effort: a failure is logged, never surfaced, since the
// response has already been finalized by the time this runs.
func (c *Collector) Record(ctx context.Context, userID string, latency time.Duration, success bool, errMsg string) {
	now := time.Now()
	seconds := latency.Seconds()

	c.mu.Lock()
	user, exists := c.users[userID]
	if !exists {
		user = &models.UserMetrics{}
		c.users[userID] = user
	}

	user.TotalRequests++
	user.LastRequestTime = now
	if success {
		user.SuccessfulRequests++
		user.TotalResponseTime += seconds
		user.AverageResponseTime = user.TotalResponseTime / float64(user.SuccessfulRequests)
	} else {
		user.FailedRequests++
	}

	c.lifetimeRequests++
	if success {
		c.successfulRequests++
	} else {
		c.failedRequests++
	}
	c.mu.Unlock()

	rec := models.MetricsRecord{
		UserID:       userID,
		RequestTime:  now,
		ResponseTime: seconds,
		Success:      success,
		ErrorMessage: errMsg,
	}
	if err := c.store.SaveMetric(ctx, rec); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Error("Failed to persist metrics record")
	}
}

// UserSnapshot returns a copy of the aggregates for one user
func (c *Collector) UserSnapshot(userID string) models.UserMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if user, exists := c.users[userID]; exists {
		return *user
	}
	return models.UserMetrics{}
}

// GlobalSnapshot returns the process-wide aggregates
func (c *Collector) GlobalSnapshot() GlobalSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return GlobalSnapshot{
		LifetimeRequests:   c.lifetimeRequests,
		SuccessfulRequests: c.successfulRequests,
		FailedRequests:     c.failedRequests,
		Uptime:             time.Since(c.startTime).String(),
		ActiveUsers:        len(c.users),
	}
}
