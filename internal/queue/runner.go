package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"golang.org/x/sync/errgroup"
)

type Handler func(ctx context.Context, task Task) error

type Source interface {
	Due(ctx context.Context, now time.Time, limit int) ([]Task, error)
}

// Runner polls the queue on a ticker and executes claimed tasks with bounded concurrency.
type Runner struct {
	source      Source
	handler     Handler
	interval    time.Duration
	concurrency int
	batch       int
	now         func() time.Time
	logger      *slog.Logger
}

type RunnerOption func(*Runner)

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

func NewRunner(source Source, handler Handler, interval time.Duration, concurrency int, opts ...RunnerOption) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	r := &Runner{
		source:      source,
		handler:     handler,
		interval:    interval,
		concurrency: concurrency,
		batch:       concurrency * 16,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("poll task queue", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims the due tasks and waits for all of them to finish. Handler errors are
// logged and never stop the batch.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	tasks, err := r.source.Due(ctx, r.now(), r.batch)
	if err != nil && len(tasks) == 0 {
		return 0, err
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			if herr := r.handler(ctx, task); herr != nil {
				r.logger.Error("task failed",
					"task_id", task.ID,
					"kind", task.Kind,
					"booking_id", task.BookingID,
					"error_kind", domain.ErrorKind(herr),
					"error", herr)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(tasks), err
}
