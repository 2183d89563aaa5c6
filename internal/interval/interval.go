// Package interval holds the pure time-range logic behind booking conflicts and
// activation deadlines.
package interval

import (
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
)

// Interval is a half-open time range [From, To).
type Interval struct {
	From time.Time `json:"date_from"`
	To   time.Time `json:"date_to"`
}

func New(from, to time.Time) Interval {
	return Interval{From: from.UTC(), To: to.UTC()}
}

// Valid reports whether the range is non-empty.
func (i Interval) Valid() bool {
	return i.From.Before(i.To)
}

// Overlaps reports whether two half-open ranges share any instant. Ranges that only touch
// at an endpoint do not overlap.
func Overlaps(a, b Interval) bool {
	return a.From.Before(b.To) && a.To.After(b.From)
}

// BookingInterval returns the interval a booking occupies.
func BookingInterval(b domain.Booking) Interval {
	return Interval{From: b.DateFrom, To: b.DateTo}
}

// FirstConflict returns the first occupying booking whose interval overlaps candidate.
// Bookings in the ignoreGroup (when non-empty) are skipped.
func FirstConflict(existing []domain.Booking, candidate Interval, ignoreGroup string) (domain.Booking, bool) {
	for _, b := range existing {
		if !b.Status.Occupies() {
			continue
		}
		if ignoreGroup != "" && b.GroupID != nil && *b.GroupID == ignoreGroup {
			continue
		}
		if Overlaps(BookingInterval(b), candidate) {
			return b, true
		}
	}
	return domain.Booking{}, false
}

// IsOverflowed reports whether any occupying booking of a table overlaps candidate.
func IsOverflowed(tableBookings []domain.Booking, candidate Interval) bool {
	_, found := FirstConflict(tableBookings, candidate, "")
	return found
}

// IsUserOverflowed applies the same test across a user's bookings, but only for unified
// (meeting-kind) resources. Ordinary desks never conflict per user.
func IsUserOverflowed(userBookings []domain.Booking, unified bool, candidate Interval) bool {
	if !unified {
		return false
	}
	return IsOverflowed(userBookings, candidate)
}
