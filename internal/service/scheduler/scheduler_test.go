package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/testfixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store *testfixtures.Store
	queue *testfixtures.Queue
	clock *testfixtures.Clock
	sched *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: testfixtures.NewStore(),
		queue: testfixtures.NewQueue(),
		clock: testfixtures.NewClock(start),
	}
	f.store.AddTable(domain.Table{ID: "t1"})
	f.sched = NewScheduler(f.store.JobRepo(), f.queue, DefaultTiming(), "ru", WithClock(f.clock.Now))
	return f
}

func (f *fixture) booking(id string, from, to, deadline time.Time) *domain.Booking {
	b := domain.Booking{ID: id, TableID: "t1", UserID: "u1", DateFrom: from, DateTo: to, DateActivateUntil: deadline, Status: domain.BookingStatusWaiting}
	f.store.PutBooking(b)
	return &b
}

func jobTimes(jobs []domain.Job) map[domain.JobKind]time.Time {
	out := make(map[domain.JobKind]time.Time, len(jobs))
	for _, j := range jobs {
		out[j.Kind] = j.TimeExecute
	}
	return out
}

func TestPlan_FutureBooking(t *testing.T) {
	f := newFixture(t)
	b := f.booking("b1", start.Add(2*time.Hour), start.Add(3*time.Hour), start.Add(3*time.Hour))

	jobs := f.sched.Plan(b, "en", start)
	times := jobTimes(jobs)

	require.Len(t, jobs, 5)
	assert.Equal(t, start.Add(3*time.Hour), times[domain.JobCheckBookingActivate])
	assert.Equal(t, start.Add(3*time.Hour), times[domain.JobMakeBookingOver])
	assert.Equal(t, start.Add(time.Hour), times[domain.JobNotifyOncoming])
	assert.Equal(t, start.Add(2*time.Hour), times[domain.JobNotifyActivationOpen])
	assert.Equal(t, start.Add(2*time.Hour+45*time.Minute), times[domain.JobNotifyEndingSoon])

	for _, j := range jobs {
		assert.Equal(t, domain.JobID(j.Kind, "b1"), j.ID)
		assert.Equal(t, "b1", j.Params.BookingID)
		if j.Kind.IsNotification() {
			assert.Equal(t, "en", j.Params.Locale)
		} else {
			assert.Empty(t, j.Params.Locale)
		}
	}
}

func TestPlan_ShortBookingStartingNow(t *testing.T) {
	f := newFixture(t)
	b := f.booking("b1", start, start.Add(20*time.Minute), start.Add(20*time.Minute))

	times := jobTimes(f.sched.Plan(b, "", start))

	assert.NotContains(t, times, domain.JobNotifyOncoming)
	assert.Equal(t, start, times[domain.JobNotifyActivationOpen])
	assert.Equal(t, start.Add(5*time.Minute), times[domain.JobNotifyEndingSoon])
	assert.Equal(t, start.Add(20*time.Minute), times[domain.JobCheckBookingActivate])
}

func TestScheduleBooking_RescheduleKeepsOneRowPerKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking("b1", start.Add(2*time.Hour), start.Add(3*time.Hour), start.Add(3*time.Hour))

	require.NoError(t, f.sched.ScheduleBooking(ctx, b, "ru"))
	require.NoError(t, f.sched.ScheduleBooking(ctx, b, "ru"))

	assert.Len(t, f.store.Jobs("b1"), 5)
}

func TestSweep_SubmitsWithinLookaheadOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking("b1", start.Add(10*time.Minute), start.Add(20*time.Minute), start.Add(20*time.Minute))
	require.NoError(t, f.sched.ScheduleBooking(ctx, b, ""))

	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	// activation_open (now), ending_soon (+5m), check_activate (+20m) is outside the window
	assert.Equal(t, 2, res.Submitted)

	pending := f.queue.Pending()
	opening := pending[domain.JobID(domain.JobNotifyActivationOpen, "b1")]
	assert.Equal(t, "ru", opening.Locale, "notify kinds fall back to the default locale")
	assert.Equal(t, "b1", opening.BookingID)
	assert.Equal(t, start.Add(5*time.Minute), pending[domain.JobID(domain.JobNotifyEndingSoon, "b1")].RunAt)

	res, err = f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Submitted)
	assert.Equal(t, 2, res.Skipped)

	f.clock.Advance(10 * time.Minute)
	res, err = f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted, "check_activate and make_over enter the window")
	check, ok := f.queue.Pending()[domain.JobID(domain.JobCheckBookingActivate, "b1")]
	require.True(t, ok)
	assert.Empty(t, check.Locale)
}

func TestSweep_MalformedJobIDIsCounted(t *testing.T) {
	jobs := &MockJobRepository{}
	q := testfixtures.NewQueue()
	s := NewScheduler(jobs, q, DefaultTiming(), "ru", WithClock(func() time.Time { return start }))

	jobs.On("ListDue", mock.Anything, start.Add(15*time.Minute), 500).Return([]domain.Job{
		{ID: "mystery_b1", BookingID: "b1", TimeExecute: start},
		{ID: "make_booking_over_b2", Kind: domain.JobMakeBookingOver, BookingID: "b2", TimeExecute: start},
	}, nil).Once()
	jobs.On("MarkSubmitted", mock.Anything, start, []string{"mystery_b1", "make_booking_over_b2"}).Return(nil).Once()

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Submitted: 1, Failed: 1}, res)
	jobs.AssertExpectations(t)
}

func TestSweep_PendingRowsDoNotStarveLaterJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sched = NewScheduler(f.store.JobRepo(), f.queue, DefaultTiming(), "ru", WithClock(f.clock.Now), WithBatchSize(2))
	f.booking("b1", start, start.Add(10*time.Minute), start.Add(10*time.Minute))
	f.booking("b2", start.Add(5*time.Minute), start.Add(10*time.Minute), start.Add(10*time.Minute))

	require.NoError(t, f.store.JobRepo().Upsert(ctx,
		domain.Job{ID: domain.JobID(domain.JobCheckBookingActivate, "b1"), Kind: domain.JobCheckBookingActivate, BookingID: "b1", TimeExecute: start},
		domain.Job{ID: domain.JobID(domain.JobMakeBookingOver, "b1"), Kind: domain.JobMakeBookingOver, BookingID: "b1", TimeExecute: start},
		domain.Job{ID: domain.JobID(domain.JobMakeBookingOver, "b2"), Kind: domain.JobMakeBookingOver, BookingID: "b2", TimeExecute: start.Add(5 * time.Minute)},
	))

	res, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Submitted: 2}, res)
	assert.NotContains(t, f.queue.Pending(), domain.JobID(domain.JobMakeBookingOver, "b2"))

	// b1 tasks are still waiting in the queue and would fill the batch again
	res, err = f.sched.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Submitted: 1, Skipped: 1}, res)
	assert.Contains(t, f.queue.Pending(), domain.JobID(domain.JobMakeBookingOver, "b2"))
}

func TestSweep_RescheduleClearsSubmittedMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking("b1", start.Add(10*time.Minute), start.Add(20*time.Minute), start.Add(20*time.Minute))
	require.NoError(t, f.sched.ScheduleBooking(ctx, b, ""))

	_, err := f.sched.Sweep(ctx)
	require.NoError(t, err)
	opening := domain.JobID(domain.JobNotifyActivationOpen, "b1")
	for _, j := range f.store.Jobs("b1") {
		if j.ID == opening {
			require.NotNil(t, j.SubmittedAt)
			assert.Equal(t, start, *j.SubmittedAt)
		}
	}

	require.NoError(t, f.sched.ScheduleBooking(ctx, b, ""))
	for _, j := range f.store.Jobs("b1") {
		assert.Nil(t, j.SubmittedAt, j.ID)
	}
}

func TestSweep_MarkSubmittedError(t *testing.T) {
	jobs := &MockJobRepository{}
	s := NewScheduler(jobs, testfixtures.NewQueue(), DefaultTiming(), "ru", WithClock(func() time.Time { return start }))

	jobs.On("ListDue", mock.Anything, mock.Anything, mock.Anything).Return([]domain.Job{
		{ID: "make_booking_over_b1", Kind: domain.JobMakeBookingOver, BookingID: "b1", TimeExecute: start},
	}, nil).Once()
	jobs.On("MarkSubmitted", mock.Anything, start, []string{"make_booking_over_b1"}).Return(errors.New("db down")).Once()

	res, err := s.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, res.Submitted)
	jobs.AssertExpectations(t)
}

func TestSweep_ListError(t *testing.T) {
	jobs := &MockJobRepository{}
	s := NewScheduler(jobs, testfixtures.NewQueue(), DefaultTiming(), "ru")

	jobs.On("ListDue", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	_, err := s.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRevoke_RemovesRowsAndTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking("b1", start.Add(5*time.Minute), start.Add(20*time.Minute), start.Add(20*time.Minute))
	require.NoError(t, f.sched.ScheduleBooking(ctx, b, "en"))
	_, err := f.sched.Sweep(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sched.Revoke(ctx, "b1", domain.JobCheckBookingActivate, domain.JobNotifyActivationOpen))

	for _, j := range f.store.Jobs("b1") {
		assert.NotEqual(t, domain.JobCheckBookingActivate, j.Kind)
		assert.NotEqual(t, domain.JobNotifyActivationOpen, j.Kind)
	}
	assert.NotContains(t, f.queue.Pending(), domain.JobID(domain.JobNotifyActivationOpen, "b1"))

	require.NoError(t, f.sched.Revoke(ctx, "b1"))
	assert.Empty(t, f.store.Jobs("b1"))
	assert.Empty(t, f.queue.Pending())

	// revoking again is harmless
	assert.NoError(t, f.sched.Revoke(ctx, "b1"))
}

func TestPurge_DeletesExecutedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.booking("b1", start.Add(2*time.Hour), start.Add(3*time.Hour), start.Add(3*time.Hour))
	require.NoError(t, f.sched.ScheduleBooking(ctx, b, "ru"))

	require.NoError(t, f.sched.MarkExecuted(ctx, domain.JobID(domain.JobNotifyOncoming, "b1")))
	n, err := f.sched.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, f.store.Jobs("b1"), 4)
}

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Upsert(ctx context.Context, jobs ...domain.Job) error {
	args := m.Called(ctx, jobs)
	return args.Error(0)
}

func (m *MockJobRepository) ListDue(ctx context.Context, until time.Time, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, until, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepository) MarkSubmitted(ctx context.Context, at time.Time, ids ...string) error {
	args := m.Called(ctx, at, ids)
	return args.Error(0)
}

func (m *MockJobRepository) ListForBooking(ctx context.Context, bookingID string) ([]domain.Job, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *MockJobRepository) MarkExecuted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) DeleteForBooking(ctx context.Context, bookingID string, kinds ...domain.JobKind) (int64, error) {
	args := m.Called(ctx, bookingID, kinds)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockJobRepository) PurgeExecuted(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
