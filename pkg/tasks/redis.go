package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/storage"
)

// RedisDispatcher pushes sync tasks onto a Redis list consumed by the
// ingestion pipeline. Pushes are retried a bounded number of times; a
// message may therefore be delivered more than once, never fewer.
type RedisDispatcher struct {
	client   *redis.Client
	queue    string
	retries  int
	interval time.Duration
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewRedisDispatcher creates a dispatcher for the configured queue
func NewRedisDispatcher(client *redis.Client, cfg storage.Config, metrics *observability.Metrics, logger *observability.Logger) *RedisDispatcher {
	retries := cfg.DispatchRetries
	if retries < 1 {
		retries = 1
	}
	return &RedisDispatcher{
		client:   client,
		queue:    cfg.QueueName,
		retries:  retries,
		interval: cfg.DispatchInterval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch enqueues one message per task. Returns *DispatchFailedError if
// any task cannot be enqueued after retries; tasks already pushed stay on
// the queue (consumers must tolerate duplicates on caller retry).
func (d *RedisDispatcher) Dispatch(ctx context.Context, syncTasks []SyncTask) error {
	for _, task := range syncTasks {
		if err := task.Validate(); err != nil {
			return &DispatchFailedError{Queue: d.queue, Err: err}
		}

		payload, err := json.Marshal(task)
		if err != nil {
			return &DispatchFailedError{Queue: d.queue, Err: fmt.Errorf("failed to marshal task: %w", err)}
		}

		if err := d.push(ctx, payload); err != nil {
			if d.metrics != nil {
				d.metrics.DispatchFailuresTotal.Inc()
			}
			return &DispatchFailedError{Queue: d.queue, Err: err}
		}

		if d.metrics != nil {
			d.metrics.SyncTasksQueuedTotal.Inc()
		}
		if d.logger != nil {
			d.logger.WithFields(map[string]interface{}{
				"queue":         d.queue,
				"datasource_id": task.DatasourceID,
				"priority":      task.Priority,
			}).Debug("sync task queued")
		}
	}

	return nil
}

func (d *RedisDispatcher) push(ctx context.Context, payload []byte) error {
	var lastErr error

	for attempt := 0; attempt < d.retries; attempt++ {
		if attempt > 0 && d.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.interval):
			}
		}

		if err := d.client.RPush(ctx, d.queue, payload).Err(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("rpush failed after %d attempts: %w", d.retries, lastErr)
}
