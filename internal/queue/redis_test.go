package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, retention time.Duration) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueueWithClient(client, retention), mr
}

func task(kind domain.JobKind, bookingID string, runAt time.Time) Task {
	return Task{ID: domain.JobID(kind, bookingID), Kind: kind, BookingID: bookingID, RunAt: runAt}
}

func TestRedisQueue_SubmitRejectsDuplicate(t *testing.T) {
	q, _ := newTestQueue(t, time.Minute)
	ctx := context.Background()
	runAt := time.Now().Add(time.Hour)

	require.NoError(t, q.Submit(ctx, task(domain.JobMakeBookingOver, "b1", runAt)))
	err := q.Submit(ctx, task(domain.JobMakeBookingOver, "b1", runAt))
	assert.True(t, errors.Is(err, ErrDuplicateTask))

	assert.NoError(t, q.Submit(ctx, task(domain.JobMakeBookingOver, "b2", runAt)))
}

func TestRedisQueue_DueClaimsOnlyDueTasks(t *testing.T) {
	q, _ := newTestQueue(t, time.Minute)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Submit(ctx, task(domain.JobNotifyOncoming, "b1", now.Add(-time.Minute))))
	require.NoError(t, q.Submit(ctx, task(domain.JobCheckBookingActivate, "b1", now)))
	require.NoError(t, q.Submit(ctx, task(domain.JobMakeBookingOver, "b1", now.Add(time.Hour))))

	tasks, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, domain.JobNotifyOncoming, tasks[0].Kind)
	assert.Equal(t, domain.JobCheckBookingActivate, tasks[1].Kind)
	assert.Equal(t, "b1", tasks[1].BookingID)

	again, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	pending, err := q.Pending(ctx, domain.JobID(domain.JobMakeBookingOver, "b1"))
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestRedisQueue_TombstoneRejectsResubmitUntilRetentionPasses(t *testing.T) {
	q, mr := newTestQueue(t, time.Minute)
	ctx := context.Background()
	now := time.Now()
	tk := task(domain.JobNotifyEndingSoon, "b1", now.Add(-time.Second))

	require.NoError(t, q.Submit(ctx, tk))
	tasks, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	assert.True(t, errors.Is(q.Submit(ctx, tk), ErrDuplicateTask))

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, q.Submit(ctx, tk))
}

func TestRedisQueue_Revoke(t *testing.T) {
	q, _ := newTestQueue(t, time.Minute)
	ctx := context.Background()
	now := time.Now()
	tk := task(domain.JobCheckBookingActivate, "b1", now.Add(-time.Second))

	require.NoError(t, q.Submit(ctx, tk))
	require.NoError(t, q.Revoke(ctx, tk.ID))

	tasks, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// revoking an unknown or already revoked id is fine
	assert.NoError(t, q.Revoke(ctx, tk.ID))
	assert.NoError(t, q.Revoke(ctx, "never_submitted"))

	// a revoked id can be scheduled again
	assert.NoError(t, q.Submit(ctx, tk))
}
