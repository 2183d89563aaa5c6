package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type bookingResponse struct {
	ID                string  `json:"id"`
	TableID           string  `json:"table_id"`
	UserID            string  `json:"user_id"`
	GroupID           *string `json:"group_id,omitempty"`
	DateFrom          string  `json:"date_from"`
	DateTo            string  `json:"date_to"`
	DateActivateUntil string  `json:"date_activate_until"`
	Status            string  `json:"status"`
	Theme             string  `json:"theme,omitempty"`
}

type listBookingsQuery struct {
	UserID   string    `form:"user_id"`
	DateFrom time.Time `form:"date_from" time_format:"2006-01-02T15:04:05Z07:00" binding:"required"`
	DateTo   time.Time `form:"date_to" time_format:"2006-01-02T15:04:05Z07:00" binding:"required"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/", h.list)
	router.GET("/:id", h.get)
	router.POST("/:id/activate", h.activate)
	router.POST("/:id/end", h.end)
	router.DELETE("/:id", h.cancel)
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                b.ID,
		TableID:           b.TableID,
		UserID:            b.UserID,
		GroupID:           b.GroupID,
		DateFrom:          b.DateFrom.UTC().Format(time.RFC3339),
		DateTo:            b.DateTo.UTC().Format(time.RFC3339),
		DateActivateUntil: b.DateActivateUntil.UTC().Format(time.RFC3339),
		Status:            string(b.Status),
		Theme:             b.Theme,
	}
}

func (h *BookingHandler) create(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), principal, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) list(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var q listBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.service.ListUserBookings(c.Request.Context(), principal, q.UserID, q.DateFrom, q.DateTo)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]bookingResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toBookingResponse(&list[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) get(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) activate(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	b, err := h.service.ActivateBooking(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) end(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	b, err := h.service.EndBooking(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.service.CancelBooking(c.Request.Context(), principal, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
