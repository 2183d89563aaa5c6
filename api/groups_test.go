package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/service/group"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGroupUseCase struct {
	mock.Mock
}

func (m *MockGroupUseCase) CreateGroupBooking(ctx context.Context, principal domain.Principal, input group.CreateGroupInput) (*domain.GroupBooking, error) {
	args := m.Called(ctx, principal, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroupBooking), args.Error(1)
}

func (m *MockGroupUseCase) CancelGroup(ctx context.Context, principal domain.Principal, id string) error {
	args := m.Called(ctx, principal, id)
	return args.Error(0)
}

func (m *MockGroupUseCase) LeaveGroup(ctx context.Context, principal domain.Principal, id string) error {
	args := m.Called(ctx, principal, id)
	return args.Error(0)
}

func (m *MockGroupUseCase) GetGroup(ctx context.Context, principal domain.Principal, id string) (*domain.GroupBooking, error) {
	args := m.Called(ctx, principal, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroupBooking), args.Error(1)
}

var _ group.GroupUseCase = (*MockGroupUseCase)(nil)

func sampleGroup() *domain.GroupBooking {
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	gid := "g1"
	first := sampleBooking(domain.BookingStatusWaiting)
	first.GroupID = &gid
	second := sampleBooking(domain.BookingStatusWaiting)
	second.ID, second.UserID, second.GroupID = "b2", "u2", &gid
	return &domain.GroupBooking{
		ID:       gid,
		AuthorID: "u1",
		Kind:     domain.GroupKindMeeting,
		DateFrom: from,
		DateTo:   from.Add(time.Hour),
		Bookings: []domain.Booking{*first, *second},
	}
}

// ============ Тесты GroupHandler ============

func TestGroupHandler_create(t *testing.T) {
	mockService := &MockGroupUseCase{}
	handler := NewGroupHandler(mockService)

	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	input := group.CreateGroupInput{
		Kind:           domain.GroupKindMeeting,
		TableIDs:       []string{"room-1"},
		ParticipantIDs: []string{"u2"},
		DateFrom:       from,
		DateTo:         from.Add(time.Hour),
	}
	c, w := newTestContext("POST", "/groups", input)

	mockService.On("CreateGroupBooking", c.Request.Context(), owner, input).Return(sampleGroup(), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response groupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "g1", response.ID)
	assert.Equal(t, "meeting", response.Kind)
	require.Len(t, response.Bookings, 2)
	assert.Equal(t, "g1", *response.Bookings[1].GroupID)
	mockService.AssertExpectations(t)
}

func TestGroupHandler_create_Conflict(t *testing.T) {
	mockService := &MockGroupUseCase{}
	handler := NewGroupHandler(mockService)

	input := group.CreateGroupInput{Kind: domain.GroupKindMeeting, TableIDs: []string{"room-1"}}
	c, w := newTestContext("POST", "/groups", input)

	mockService.On("CreateGroupBooking", c.Request.Context(), owner, input).
		Return(nil, &domain.ConflictError{Scope: domain.ConflictScopeTable, TableID: "room-1"})

	handler.create(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict_table", decodeError(t, w).Code)
}

func TestGroupHandler_get(t *testing.T) {
	mockService := &MockGroupUseCase{}
	handler := NewGroupHandler(mockService)

	c, w := newTestContext("GET", "/groups/g1", nil)
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	mockService.On("GetGroup", c.Request.Context(), owner, "g1").Return(sampleGroup(), nil)

	handler.get(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestGroupHandler_cancel(t *testing.T) {
	mockService := &MockGroupUseCase{}
	handler := NewGroupHandler(mockService)

	c, _ := newTestContext("DELETE", "/groups/g1", nil)
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	mockService.On("CancelGroup", c.Request.Context(), owner, "g1").Return(nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	mockService.AssertExpectations(t)
}

func TestGroupHandler_cancel_Forbidden(t *testing.T) {
	mockService := &MockGroupUseCase{}
	handler := NewGroupHandler(mockService)

	c, w := newTestContext("DELETE", "/groups/g1", nil)
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	mockService.On("CancelGroup", c.Request.Context(), owner, "g1").Return(domain.ErrForbidden)

	handler.cancel(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGroupHandler_leave(t *testing.T) {
	mockService := &MockGroupUseCase{}
	handler := NewGroupHandler(mockService)

	c, _ := newTestContext("POST", "/groups/g1/leave", nil)
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	mockService.On("LeaveGroup", c.Request.Context(), owner, "g1").Return(nil)

	handler.leave(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	mockService.AssertExpectations(t)
}
