package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/queue"
	"github.com/Domenick1991/deskbooking/internal/repository"
)

// TaskQueue is the execution substrate jobs are promoted into.
type TaskQueue interface {
	Submit(ctx context.Context, task queue.Task) error
	Revoke(ctx context.Context, id string) error
}

type Timing struct {
	Grace          time.Duration
	OncomingNotice time.Duration
	EndingSoon     time.Duration
	Lookahead      time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Grace:          60 * time.Minute,
		OncomingNotice: 60 * time.Minute,
		EndingSoon:     15 * time.Minute,
		Lookahead:      15 * time.Minute,
	}
}

type SweepResult struct {
	Submitted int
	Skipped   int
	Failed    int
}

// Scheduler persists the lifecycle jobs of each booking and promotes due ones into the
// task queue.
type Scheduler struct {
	jobs           repository.JobRepository
	queue          TaskQueue
	timing         Timing
	fallbackLocale string
	batch          int
	now            func() time.Time
	logger         *slog.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) { s.batch = n }
}

func NewScheduler(jobs repository.JobRepository, q TaskQueue, timing Timing, fallbackLocale string, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:           jobs,
		queue:          q,
		timing:         timing,
		fallbackLocale: fallbackLocale,
		batch:          500,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan returns the jobs a freshly created booking needs. Notifications whose moment has
// already passed are left out.
func (s *Scheduler) Plan(b *domain.Booking, locale string, now time.Time) []domain.Job {
	jobs := []domain.Job{
		s.job(domain.JobCheckBookingActivate, b, b.DateActivateUntil, ""),
		s.job(domain.JobMakeBookingOver, b, b.DateTo, ""),
	}

	if at := b.DateFrom.Add(-s.timing.OncomingNotice); at.After(now) {
		jobs = append(jobs, s.job(domain.JobNotifyOncoming, b, at, locale))
	}

	at := b.DateActivateUntil.Add(-s.timing.Grace)
	if at.Before(now) {
		at = now
	}
	jobs = append(jobs, s.job(domain.JobNotifyActivationOpen, b, at, locale))

	if at := b.DateTo.Add(-s.timing.EndingSoon); at.After(now) {
		jobs = append(jobs, s.job(domain.JobNotifyEndingSoon, b, at, locale))
	}
	return jobs
}

func (s *Scheduler) job(kind domain.JobKind, b *domain.Booking, at time.Time, locale string) domain.Job {
	return domain.Job{
		ID:          domain.JobID(kind, b.ID),
		Kind:        kind,
		BookingID:   b.ID,
		TimeExecute: at.UTC(),
		Params:      domain.JobParams{BookingID: b.ID, Locale: locale},
	}
}

// ScheduleBooking stores the booking's jobs. Call it in the transaction that creates the
// booking.
func (s *Scheduler) ScheduleBooking(ctx context.Context, b *domain.Booking, locale string) error {
	if err := s.jobs.Upsert(ctx, s.Plan(b, locale, s.now())...); err != nil {
		return fmt.Errorf("schedule jobs for booking %s: %w", b.ID, err)
	}
	return nil
}

// Sweep submits every not yet executed job due within the lookahead window. Each task
// is scheduled at its own execution time. Jobs already known to the queue are skipped.
// Every listed row is stamped as submitted so rows that keep failing or stay pending
// rotate behind fresh ones instead of filling each batch.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	now := s.now()
	due, err := s.jobs.ListDue(ctx, now.Add(s.timing.Lookahead), s.batch)
	if err != nil {
		return res, fmt.Errorf("list due jobs: %w", err)
	}

	seen := make([]string, 0, len(due))
	for _, job := range due {
		seen = append(seen, job.ID)

		kind, bookingID, err := domain.ParseJobID(job.ID)
		if err != nil {
			s.logger.Error("skip job with malformed id", "job_id", job.ID, "error", err)
			res.Failed++
			continue
		}

		locale := job.Params.Locale
		if kind.IsNotification() && locale == "" {
			locale = s.fallbackLocale
		}

		err = s.queue.Submit(ctx, queue.Task{
			ID:        job.ID,
			Kind:      kind,
			BookingID: bookingID,
			Locale:    locale,
			RunAt:     job.TimeExecute,
		})
		switch {
		case err == nil:
			res.Submitted++
		case errors.Is(err, queue.ErrDuplicateTask):
			res.Skipped++
		default:
			s.logger.Error("submit job", "job_id", job.ID, "error", err)
			res.Failed++
		}
	}

	if err := s.jobs.MarkSubmitted(ctx, now, seen...); err != nil {
		return res, fmt.Errorf("mark submitted jobs: %w", err)
	}

	if res.Submitted > 0 || res.Failed > 0 {
		s.logger.Info("job sweep", "submitted", res.Submitted, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// Purge deletes executed job rows.
func (s *Scheduler) Purge(ctx context.Context) (int64, error) {
	n, err := s.jobs.PurgeExecuted(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge executed jobs: %w", err)
	}
	return n, nil
}

// Revoke drops the booking's queued tasks and job rows of the given kinds, all kinds when
// none are given. It is safe for tasks that were never submitted or already ran.
func (s *Scheduler) Revoke(ctx context.Context, bookingID string, kinds ...domain.JobKind) error {
	targets := kinds
	if len(targets) == 0 {
		targets = domain.JobKinds
	}

	var errs []error
	for _, kind := range targets {
		if err := s.queue.Revoke(ctx, domain.JobID(kind, bookingID)); err != nil {
			errs = append(errs, fmt.Errorf("revoke task %s: %w", domain.JobID(kind, bookingID), err))
		}
	}
	if _, err := s.jobs.DeleteForBooking(ctx, bookingID, kinds...); err != nil {
		errs = append(errs, fmt.Errorf("delete jobs of booking %s: %w", bookingID, err))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) MarkExecuted(ctx context.Context, jobID string) error {
	return s.jobs.MarkExecuted(ctx, jobID)
}

// RunEvery calls fn on a ticker until ctx is canceled, logging failures under name.
func RunEvery(ctx context.Context, logger *slog.Logger, name string, every time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Error("periodic task failed", "task", name, "error", err)
			}
		}
	}
}
