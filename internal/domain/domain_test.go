package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus(t *testing.T) {
	tests := []struct {
		status   BookingStatus
		occupies bool
		ended    bool
	}{
		{BookingStatusWaiting, true, false},
		{BookingStatusActive, true, false},
		{BookingStatusOver, false, true},
		{BookingStatusAutoOver, false, true},
		{BookingStatusCanceled, false, false},
		{BookingStatusAutoCanceled, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.occupies, tt.status.Occupies())
			assert.Equal(t, !tt.occupies, tt.status.Terminal())
			assert.Equal(t, tt.ended, tt.status.Ended())
		})
	}
}

func TestPrincipal_CanManage(t *testing.T) {
	b := &Booking{UserID: "u1"}

	assert.True(t, Principal{UserID: "u1"}.CanManage(b))
	assert.False(t, Principal{UserID: "u2"}.CanManage(b))
	assert.True(t, Principal{UserID: "u2", IsAdmin: true}.CanManage(b))
	assert.False(t, Principal{UserID: "u1"}.CanManage(nil))
}

func TestJobID_RoundTrip(t *testing.T) {
	for _, kind := range JobKinds {
		id := JobID(kind, "7b0c-uuid")
		gotKind, bookingID, err := ParseJobID(id)
		require.NoError(t, err)
		assert.Equal(t, kind, gotKind)
		assert.Equal(t, "7b0c-uuid", bookingID)
	}

	_, _, err := ParseJobID("notify_oncoming_")
	assert.ErrorIs(t, err, ErrMissingParameter)
	_, _, err = ParseJobID("send_invoice_b1")
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestJobKind(t *testing.T) {
	assert.True(t, JobNotifyEndingSoon.IsNotification())
	assert.False(t, JobMakeBookingOver.IsNotification())
	assert.False(t, JobKind("reindex").Valid())
}

func TestErrorKind(t *testing.T) {
	verr := &ValidationError{}
	assert.False(t, verr.HasErrors())
	verr.Add("date_to", "must be after date_from")
	verr.Add("table_id", "is required")

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ConflictError{Scope: ConflictScopeTable, TableID: "t1"}, "conflict_table"},
		{fmt.Errorf("create: %w", &ConflictError{Scope: ConflictScopeUser, UserID: "u1"}), "conflict_user"},
		{verr, "validation"},
		{&TransportError{Channel: "sms", Err: errors.New("timeout")}, "transport"},
		{fmt.Errorf("booking b1: %w", ErrNotFound), "not_found"},
		{ErrDeadlinePassed, "deadline_passed"},
		{ErrStatusChanged, "status_changed"},
		{errors.New("boom"), "unexpected"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err))
	}

	assert.Equal(t, "validation failed: date_to: must be after date_from; table_id: is required", verr.Error())
}
