package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/interval"
	"github.com/jackc/pgx/v5"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, expected []domain.BookingStatus, status domain.BookingStatus) (*domain.Booking, error)
	DeleteIfStatus(ctx context.Context, id string, expected domain.BookingStatus) error
	ListOverlapping(ctx context.Context, tableID string, iv interval.Interval) ([]domain.Booking, error)
	ListUserOverlapping(ctx context.Context, userID string, iv interval.Interval) ([]domain.Booking, error)
	ListForTables(ctx context.Context, tableIDs []string, iv interval.Interval) ([]domain.Booking, error)
	ListByUser(ctx context.Context, userID string, iv interval.Interval) ([]domain.Booking, error)
	ListByGroup(ctx context.Context, groupID string) ([]domain.Booking, error)
	ExpireStale(ctx context.Context, now time.Time) ([]domain.Booking, error)
}

const bookingColumns = `id, table_id, user_id, group_id, date_from, date_to, date_activate_until, status, theme, code, created_at, updated_at`

type PGBookingRepository struct {
	db DB
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.TableID, &b.UserID, &b.GroupID, &b.DateFrom, &b.DateTo, &b.DateActivateUntil, &b.Status, &b.Theme, &b.Code, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	return conn(ctx, r.db).QueryRow(ctx, `INSERT INTO bookings (id, table_id, user_id, group_id, date_from, date_to, date_activate_until, status, theme, code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		booking.ID, booking.TableID, booking.UserID, booking.GroupID, booking.DateFrom, booking.DateTo, booking.DateActivateUntil, string(booking.Status), booking.Theme, booking.Code).
		Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(conn(ctx, r.db).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "booking "+id)
	}
	return b, nil
}

// UpdateStatus moves the booking to status only if it currently holds one of expected.
// A booking that left the expected statuses yields domain.ErrStatusChanged.
func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, expected []domain.BookingStatus, status domain.BookingStatus) (*domain.Booking, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 AND status = ANY($3) RETURNING `+bookingColumns,
		string(status), id, statusStrings(expected))
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", id, domain.ErrStatusChanged)
		}
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) DeleteIfStatus(ctx context.Context, id string, expected domain.BookingStatus) error {
	cmd, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM bookings WHERE id=$1 AND status=$2`, id, string(expected))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", id, domain.ErrStatusChanged)
	}
	return nil
}

func (r *PGBookingRepository) ListOverlapping(ctx context.Context, tableID string, iv interval.Interval) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE table_id=$1 AND status = ANY($2) AND date_from < $4 AND date_to > $3
		ORDER BY date_from`, tableID, statusStrings(domain.OccupyingStatuses), iv.From, iv.To)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ListUserOverlapping returns the user's occupying bookings on any table that overlap iv.
func (r *PGBookingRepository) ListUserOverlapping(ctx context.Context, userID string, iv interval.Interval) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE user_id=$1 AND status = ANY($2) AND date_from < $4 AND date_to > $3
		ORDER BY date_from`, userID, statusStrings(domain.OccupyingStatuses), iv.From, iv.To)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListForTables(ctx context.Context, tableIDs []string, iv interval.Interval) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE table_id = ANY($1) AND status = ANY($2) AND date_from < $4 AND date_to > $3
		ORDER BY table_id, date_from`, tableIDs, statusStrings(domain.OccupyingStatuses), iv.From, iv.To)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID string, iv interval.Interval) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE user_id=$1 AND date_from < $3 AND date_to > $2
		ORDER BY date_from`, userID, iv.From, iv.To)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListByGroup(ctx context.Context, groupID string) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE group_id=$1 ORDER BY created_at, id`, groupID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// ExpireStale ends waiting bookings past their activation deadline and active bookings
// past their end, returning the rows it changed.
func (r *PGBookingRepository) ExpireStale(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `UPDATE bookings SET status=$1, updated_at=now()
		WHERE (status=$2 AND date_activate_until <= $4) OR (status=$3 AND date_to <= $4)
		RETURNING `+bookingColumns,
		string(domain.BookingStatusOver), string(domain.BookingStatusWaiting), string(domain.BookingStatusActive), now)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
