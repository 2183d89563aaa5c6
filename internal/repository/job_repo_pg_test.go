package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGJobRepository_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	job := domain.Job{
		ID:          domain.JobID(domain.JobMakeBookingOver, "b1"),
		Kind:        domain.JobMakeBookingOver,
		BookingID:   "b1",
		TimeExecute: base.Add(time.Hour),
		Params:      domain.JobParams{BookingID: "b1"},
	}

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (job_id) DO UPDATE`)).
		WithArgs("make_booking_over_b1", "make_booking_over", "b1", job.TimeExecute, []byte(`{"booking_id":"b1"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Upsert(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGJobRepository_ListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	until := base.Add(15 * time.Minute)
	submitted := base.Add(-time.Minute)

	rows := pgxmock.NewRows([]string{"job_id", "kind", "booking_id", "time_execute", "params", "executed", "submitted_at", "created_at"}).
		AddRow("notify_oncoming_b1", domain.JobNotifyOncoming, "b1", base, []byte(`{"booking_id":"b1","locale":"en"}`), false, nil, base).
		AddRow("check_booking_activate_b2", domain.JobCheckBookingActivate, "b2", base, []byte(`{"booking_id":"b2"}`), false, &submitted, base)

	mock.ExpectQuery(`WHERE executed = false AND time_execute <= \$1\s+ORDER BY submitted_at NULLS FIRST, time_execute, job_id`).
		WithArgs(until, 100).
		WillReturnRows(rows)

	jobs, err := repo.ListDue(context.Background(), until, 100)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "en", jobs[0].Params.Locale)
	assert.Nil(t, jobs[0].SubmittedAt)
	assert.Equal(t, domain.JobCheckBookingActivate, jobs[1].Kind)
	assert.Empty(t, jobs[1].Params.Locale)
	require.NotNil(t, jobs[1].SubmittedAt)
	assert.Equal(t, submitted, *jobs[1].SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGJobRepository_MarkSubmitted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE booking_jobs SET submitted_at = $1 WHERE job_id = ANY($2)`)).
		WithArgs(base, []string{"notify_oncoming_b1", "make_booking_over_b1"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, repo.MarkSubmitted(context.Background(), base, "notify_oncoming_b1", "make_booking_over_b1"))
	// nothing listed, nothing written
	require.NoError(t, repo.MarkSubmitted(context.Background(), base))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGJobRepository_DeleteForBooking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM booking_jobs WHERE booking_id=$1 AND kind = ANY($2)`)).
		WithArgs("b1", []string{"check_booking_activate", "notify_oncoming"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM booking_jobs WHERE booking_id=$1`)).
		WithArgs("b1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.DeleteForBooking(context.Background(), "b1", domain.JobCheckBookingActivate, domain.JobNotifyOncoming)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteForBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for range schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
