package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobKind names a lifecycle job. The set is closed: jobs are dispatched through an
// explicit table keyed by kind.
type JobKind string

const (
	JobCheckBookingActivate JobKind = "check_booking_activate"
	JobMakeBookingOver      JobKind = "make_booking_over"
	JobNotifyOncoming       JobKind = "notify_oncoming"
	JobNotifyActivationOpen JobKind = "notify_activation_open"
	JobNotifyEndingSoon     JobKind = "notify_ending_soon"
)

// JobKinds lists every lifecycle job kind.
var JobKinds = []JobKind{
	JobCheckBookingActivate,
	JobMakeBookingOver,
	JobNotifyOncoming,
	JobNotifyActivationOpen,
	JobNotifyEndingSoon,
}

// Valid reports whether k is one of the known kinds.
func (k JobKind) Valid() bool {
	for _, known := range JobKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsNotification reports whether the kind sends a message to the booking owner.
func (k JobKind) IsNotification() bool {
	return strings.HasPrefix(string(k), "notify_")
}

// JobParams is the payload stored with a job and carried into the task queue.
type JobParams struct {
	BookingID string `json:"booking_id"`
	Locale    string `json:"locale,omitempty"`
}

// Job is a JobStore row: a named future action for one booking.
type Job struct {
	ID          string
	Kind        JobKind
	BookingID   string
	TimeExecute time.Time
	Params      JobParams
	Executed    bool
	// SubmittedAt is the last time a sweep handed the job to the task queue.
	SubmittedAt *time.Time
	CreatedAt   time.Time
}

// JobID builds the compound key {kind}_{booking-id}. It doubles as the task-queue id.
func JobID(kind JobKind, bookingID string) string {
	return string(kind) + "_" + bookingID
}

// ParseJobID splits a compound key back into its kind and booking id.
func ParseJobID(id string) (JobKind, string, error) {
	for _, kind := range JobKinds {
		prefix := string(kind) + "_"
		if strings.HasPrefix(id, prefix) && len(id) > len(prefix) {
			return kind, id[len(prefix):], nil
		}
	}
	return "", "", fmt.Errorf("unknown job id %q: %w", id, ErrMissingParameter)
}
