package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/deskbooking/config"
	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrDuplicateTask is returned by Submit when a task with the same id is still pending or
// ran within the retention window.
var ErrDuplicateTask = errors.New("task already submitted")

// Task is a lifecycle job handed to the queue to run at RunAt.
type Task struct {
	ID        string         `json:"id"`
	Kind      domain.JobKind `json:"kind"`
	BookingID string         `json:"booking_id"`
	Locale    string         `json:"locale,omitempty"`
	RunAt     time.Time      `json:"run_at"`
}

// RedisQueue keeps a sorted set of task ids scored by run time and one payload key per
// task. The payload key doubles as the dedupe guard.
type RedisQueue struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisQueue(cfg config.RedisConfig, retention time.Duration) *RedisQueue {
	return NewRedisQueueWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), retention)
}

func NewRedisQueueWithClient(client *redis.Client, retention time.Duration) *RedisQueue {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &RedisQueue{client: client, retention: retention}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Submit schedules the task at task.RunAt. A second submit of the same id is rejected
// with ErrDuplicateTask.
func (q *RedisQueue) Submit(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	ttl := time.Until(task.RunAt)
	if ttl < 0 {
		ttl = 0
	}
	ok, err := q.client.SetNX(ctx, taskKey(task.ID), payload, ttl+q.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, ErrDuplicateTask)
	}

	if err := q.client.ZAdd(ctx, scheduleKey(), redis.Z{Score: float64(task.RunAt.UnixMilli()), Member: task.ID}).Err(); err != nil {
		_ = q.client.Del(ctx, taskKey(task.ID)).Err()
		return err
	}
	return nil
}

// Revoke drops a pending task. Unknown or already-run ids are not an error.
func (q *RedisQueue) Revoke(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, scheduleKey(), id)
	pipe.Del(ctx, taskKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

// Due claims up to limit tasks whose run time is at or before now. A task is claimed by
// whoever removes it from the schedule first; its payload stays behind as a tombstone
// for the retention window.
func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	ids, err := q.client.ZRangeByScore(ctx, scheduleKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, scheduleKey(), id).Result()
		if err != nil {
			return tasks, err
		}
		if removed == 0 {
			continue
		}

		data, err := q.client.Get(ctx, taskKey(id)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return tasks, err
		}

		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return tasks, fmt.Errorf("decode task %s: %w", id, err)
		}
		if err := q.client.Expire(ctx, taskKey(id), q.retention).Err(); err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Pending reports whether the task is still waiting in the schedule.
func (q *RedisQueue) Pending(ctx context.Context, id string) (bool, error) {
	_, err := q.client.ZScore(ctx, scheduleKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}

func scheduleKey() string {
	return "tasks:scheduled"
}

func taskKey(id string) string {
	return fmt.Sprintf("task:%s", id)
}
