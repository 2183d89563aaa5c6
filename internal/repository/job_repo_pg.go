package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
)

type JobRepository interface {
	Upsert(ctx context.Context, jobs ...domain.Job) error
	// ListDue returns not yet executed jobs due by until. Jobs never handed to the queue
	// come first, then those submitted longest ago.
	ListDue(ctx context.Context, until time.Time, limit int) ([]domain.Job, error)
	MarkSubmitted(ctx context.Context, at time.Time, ids ...string) error
	ListForBooking(ctx context.Context, bookingID string) ([]domain.Job, error)
	MarkExecuted(ctx context.Context, id string) error
	// DeleteForBooking removes the booking's rows of the given kinds, or all of them when
	// kinds is empty.
	DeleteForBooking(ctx context.Context, bookingID string, kinds ...domain.JobKind) (int64, error)
	PurgeExecuted(ctx context.Context) (int64, error)
}

const jobColumns = `job_id, kind, booking_id, time_execute, params, executed, submitted_at, created_at`

type PGJobRepository struct {
	db DB
}

func NewJobRepository(db DB) JobRepository {
	return &PGJobRepository{db: db}
}

// Upsert writes one row per job. Rescheduling an existing (kind, booking) pair replaces
// its time and parameters and clears the executed and submitted marks.
func (r *PGJobRepository) Upsert(ctx context.Context, jobs ...domain.Job) error {
	q := conn(ctx, r.db)
	for _, job := range jobs {
		params, err := json.Marshal(job.Params)
		if err != nil {
			return fmt.Errorf("marshal params of %s: %w", job.ID, err)
		}
		if _, err := q.Exec(ctx, `INSERT INTO booking_jobs (job_id, kind, booking_id, time_execute, params, executed)
			VALUES ($1, $2, $3, $4, $5, false)
			ON CONFLICT (job_id) DO UPDATE SET time_execute = EXCLUDED.time_execute, params = EXCLUDED.params, executed = false, submitted_at = NULL`,
			job.ID, string(job.Kind), job.BookingID, job.TimeExecute, params); err != nil {
			return fmt.Errorf("upsert job %s: %w", job.ID, err)
		}
	}
	return nil
}

func (r *PGJobRepository) ListDue(ctx context.Context, until time.Time, limit int) ([]domain.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM booking_jobs
		WHERE executed = false AND time_execute <= $1
		ORDER BY submitted_at NULLS FIRST, time_execute, job_id
		LIMIT $2`, until, limit)
}

func (r *PGJobRepository) MarkSubmitted(ctx context.Context, at time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := conn(ctx, r.db).Exec(ctx, `UPDATE booking_jobs SET submitted_at = $1 WHERE job_id = ANY($2)`, at, ids)
	return err
}

func (r *PGJobRepository) ListForBooking(ctx context.Context, bookingID string) ([]domain.Job, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM booking_jobs WHERE booking_id=$1 ORDER BY time_execute, job_id`, bookingID)
}

func (r *PGJobRepository) list(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		var (
			job    domain.Job
			params []byte
		)
		if err := rows.Scan(&job.ID, &job.Kind, &job.BookingID, &job.TimeExecute, &params, &job.Executed, &job.SubmittedAt, &job.CreatedAt); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &job.Params); err != nil {
				return nil, fmt.Errorf("decode params of %s: %w", job.ID, err)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *PGJobRepository) MarkExecuted(ctx context.Context, id string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `UPDATE booking_jobs SET executed = true WHERE job_id=$1`, id)
	return err
}

func (r *PGJobRepository) DeleteForBooking(ctx context.Context, bookingID string, kinds ...domain.JobKind) (int64, error) {
	q := conn(ctx, r.db)
	if len(kinds) == 0 {
		cmd, err := q.Exec(ctx, `DELETE FROM booking_jobs WHERE booking_id=$1`, bookingID)
		if err != nil {
			return 0, err
		}
		return cmd.RowsAffected(), nil
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	cmd, err := q.Exec(ctx, `DELETE FROM booking_jobs WHERE booking_id=$1 AND kind = ANY($2)`, bookingID, names)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *PGJobRepository) PurgeExecuted(ctx context.Context) (int64, error) {
	cmd, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM booking_jobs WHERE executed = true`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

var _ JobRepository = (*PGJobRepository)(nil)
