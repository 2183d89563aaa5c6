package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/interval"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingCols = []string{"id", "table_id", "user_id", "group_id", "date_from", "date_to", "date_activate_until", "status", "theme", "code", "created_at", "updated_at"}

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func bookingRow(rows *pgxmock.Rows, id string, status domain.BookingStatus) *pgxmock.Rows {
	return rows.AddRow(id, "t1", "u1", nil, base, base.Add(time.Hour), base.Add(time.Hour), status, "", nil, base, base)
}

func TestNewBookingRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewBookingRepository(pool)
	assert.NotNil(t, repo)
}

func TestPGBookingRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE id=$1`)).
		WithArgs("b1").
		WillReturnRows(bookingRow(pgxmock.NewRows(bookingCols), "b1", domain.BookingStatusWaiting))

	b, err := repo.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, domain.BookingStatusWaiting, b.Status)
	assert.Nil(t, b.GroupID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGBookingRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE id=$1`)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPGBookingRepository_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)
	expected := []domain.BookingStatus{domain.BookingStatusWaiting}

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 AND status = ANY($3)`)).
		WithArgs("active", "b1", []string{"waiting"}).
		WillReturnRows(bookingRow(pgxmock.NewRows(bookingCols), "b1", domain.BookingStatusActive))

	b, err := repo.UpdateStatus(context.Background(), "b1", expected, domain.BookingStatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusActive, b.Status)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE bookings SET status=$1`)).
		WithArgs("active", "b1", []string{"waiting"}).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.UpdateStatus(context.Background(), "b1", expected, domain.BookingStatusActive)
	assert.True(t, errors.Is(err, domain.ErrStatusChanged))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGBookingRepository_DeleteIfStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM bookings WHERE id=$1 AND status=$2`)).
		WithArgs("b1", "waiting").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM bookings WHERE id=$1 AND status=$2`)).
		WithArgs("b2", "waiting").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, repo.DeleteIfStatus(context.Background(), "b1", domain.BookingStatusWaiting))
	err = repo.DeleteIfStatus(context.Background(), "b2", domain.BookingStatusWaiting)
	assert.True(t, errors.Is(err, domain.ErrStatusChanged))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGBookingRepository_ListOverlapping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)
	iv := interval.New(base, base.Add(30*time.Minute))

	rows := pgxmock.NewRows(bookingCols)
	bookingRow(rows, "b1", domain.BookingStatusWaiting)
	bookingRow(rows, "b2", domain.BookingStatusActive)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE table_id=$1 AND status = ANY($2) AND date_from < $4 AND date_to > $3`)).
		WithArgs("t1", []string{"waiting", "active"}, iv.From, iv.To).
		WillReturnRows(rows)

	bookings, err := repo.ListOverlapping(context.Background(), "t1", iv)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "b2", bookings[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGBookingRepository_ListUserOverlapping_AnyTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)
	iv := interval.New(base.Add(30*time.Minute), base.Add(90*time.Minute))

	// a desk booking of the user counts as well, so the query is not narrowed by table kind
	mock.ExpectQuery(`(?s)^SELECT id, .* FROM bookings\s+WHERE user_id=\$1 AND status = ANY\(\$2\) AND date_from < \$4 AND date_to > \$3`).
		WithArgs("u1", []string{"waiting", "active"}, iv.From, iv.To).
		WillReturnRows(bookingRow(pgxmock.NewRows(bookingCols), "desk-booking", domain.BookingStatusWaiting))

	bookings, err := repo.ListUserOverlapping(context.Background(), "u1", iv)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "desk-booking", bookings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGBookingRepository_ExpireStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewBookingRepository(mock)
	now := base.Add(2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE bookings SET status=$1, updated_at=now()`)).
		WithArgs("over", "waiting", "active", now).
		WillReturnRows(bookingRow(pgxmock.NewRows(bookingCols), "b1", domain.BookingStatusOver))

	swept, err := repo.ExpireStale(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, domain.BookingStatusOver, swept[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGTransactor_WithinTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tx := NewTransactor(mock)
	repo := NewBookingRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM bookings`)).
		WithArgs("b1", "waiting").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err = tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return tx.WithinTx(ctx, func(ctx context.Context) error {
			return repo.DeleteIfStatus(ctx, "b1", domain.BookingStatusWaiting)
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGTransactor_WithinTx_RollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tx := NewTransactor(mock)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = tx.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
