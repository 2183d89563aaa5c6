package domain

import "time"

type GroupKind string

const (
	GroupKindMeeting   GroupKind = "meeting"
	GroupKindWorkplace GroupKind = "workplace"
)

// Guest is an external contact invited to a group booking without a system account.
type Guest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type GroupBooking struct {
	ID        string
	AuthorID  string
	Kind      GroupKind
	Guests    []Guest
	DateFrom  time.Time
	DateTo    time.Time
	CreatedAt time.Time
	Bookings  []Booking
}
