package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/deskbooking/internal/queue"
)

// Queue is an in-memory task queue with the same dedupe rules as the Redis one, minus
// tombstone expiry: a claimed id stays rejected until Revoke.
type Queue struct {
	mu      sync.Mutex
	pending map[string]queue.Task
	claimed map[string]queue.Task
	Revoked []string
}

func NewQueue() *Queue {
	return &Queue{pending: map[string]queue.Task{}, claimed: map[string]queue.Task{}}
}

func (q *Queue) Submit(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[task.ID]; ok {
		return fmt.Errorf("task %s: %w", task.ID, queue.ErrDuplicateTask)
	}
	if _, ok := q.claimed[task.ID]; ok {
		return fmt.Errorf("task %s: %w", task.ID, queue.ErrDuplicateTask)
	}
	q.pending[task.ID] = task
	return nil
}

func (q *Queue) Revoke(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	delete(q.claimed, id)
	q.Revoked = append(q.Revoked, id)
	return nil
}

func (q *Queue) Due(_ context.Context, now time.Time, limit int) ([]queue.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]queue.Task, 0)
	for _, t := range q.pending {
		if !t.RunAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, t := range due {
		delete(q.pending, t.ID)
		q.claimed[t.ID] = t
	}
	return due, nil
}

// Pending returns a copy of the not yet claimed tasks keyed by id.
func (q *Queue) Pending() map[string]queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]queue.Task, len(q.pending))
	for id, t := range q.pending {
		out[id] = t
	}
	return out
}
