package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aluiziolira/go-linkcheck/models"
)

const (
	defaultQueueName = "linkcheck:dead-links"
	queueTTL         = 30 * 24 * time.Hour
)

// DeadLink is the queue entry for one inaccessible record.
type DeadLink struct {
	RunID      string        `json:"run_id"`
	URL        string        `json:"url"`
	Section    string        `json:"section,omitempty"`
	Status     models.Status `json:"status"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// DeadLinkQueue pushes dead links onto a Redis list for replacement
// tooling to consume.
type DeadLinkQueue struct {
	client    *redis.Client
	queueName string
}

// NewDeadLinkQueue wraps client. A nil client makes every call a no-op.
func NewDeadLinkQueue(client *redis.Client, queueName string) *DeadLinkQueue {
	if queueName == "" {
		queueName = defaultQueueName
	}
	return &DeadLinkQueue{client: client, queueName: queueName}
}

// NewRedisClient opens a client for addr without connecting.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Push enqueues every inaccessible record and returns how many were sent.
func (q *DeadLinkQueue) Push(ctx context.Context, runID string, records []models.Record) (int, error) {
	var entries []any
	for _, r := range records {
		if r.Status.Accessible() {
			continue
		}
		data, err := json.Marshal(DeadLink{
			RunID:      runID,
			URL:        r.URL,
			Section:    r.Section,
			Status:     r.Status,
			StatusCode: r.StatusCode,
			Error:      r.ErrorMessage,
			CheckedAt:  r.CheckedAt,
		})
		if err != nil {
			return 0, fmt.Errorf("marshal dead link: %w", err)
		}
		entries = append(entries, data)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if q.client == nil {
		slog.Warn("redis client unavailable, dead links not queued", slog.Int("count", len(entries)))
		return 0, nil
	}

	if err := q.client.LPush(ctx, q.queueName, entries...).Err(); err != nil {
		return 0, fmt.Errorf("enqueue dead links: %w", err)
	}
	if err := q.client.Expire(ctx, q.queueName, queueTTL).Err(); err != nil {
		slog.Warn("set dead link queue ttl", slog.String("queue", q.queueName), slog.Any("error", err))
	}

	slog.Info("dead links queued", slog.String("queue", q.queueName), slog.Int("count", len(entries)))
	return len(entries), nil
}

// Length returns the number of queued entries.
func (q *DeadLinkQueue) Length(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, nil
	}
	n, err := q.client.LLen(ctx, q.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Close releases the client connection pool.
func (q *DeadLinkQueue) Close() error {
	if q.client == nil {
		return nil
	}
	return q.client.Close()
}
