package domain

import "time"

type BookingStatus string

const (
	BookingStatusWaiting      BookingStatus = "waiting"
	BookingStatusActive       BookingStatus = "active"
	BookingStatusOver         BookingStatus = "over"
	BookingStatusCanceled     BookingStatus = "canceled"
	BookingStatusAutoCanceled BookingStatus = "auto_canceled"
	BookingStatusAutoOver     BookingStatus = "auto_over"
)

// OccupyingStatuses are the statuses that hold a table for their interval.
var OccupyingStatuses = []BookingStatus{BookingStatusWaiting, BookingStatusActive}

// Occupies reports whether the status blocks the booking interval for other bookings.
func (s BookingStatus) Occupies() bool {
	return s == BookingStatusWaiting || s == BookingStatusActive
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return !s.Occupies()
}

// Ended reports whether the booking finished after being held (manually or forced).
func (s BookingStatus) Ended() bool {
	return s == BookingStatusOver || s == BookingStatusAutoOver
}

type Booking struct {
	ID                string
	TableID           string
	UserID            string
	GroupID           *string
	DateFrom          time.Time
	DateTo            time.Time
	DateActivateUntil time.Time
	Status            BookingStatus
	Theme             string
	Code              *int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Table is a bookable resource. Unified tables belong to shared/meeting room kinds.
type Table struct {
	ID      string
	RoomID  string
	Title   string
	Unified bool
}

type Account struct {
	ID      string
	Email   string
	Phone   string
	Locale  string
	IsAdmin bool
}

// Principal is the actor performing an operation.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// CanManage reports whether the principal owns the booking or is an administrator.
func (p Principal) CanManage(b *Booking) bool {
	return p.IsAdmin || (b != nil && b.UserID == p.UserID)
}
