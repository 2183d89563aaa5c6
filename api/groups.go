package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/service/group"
	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	service group.GroupUseCase
}

type groupResponse struct {
	ID       string            `json:"id"`
	AuthorID string            `json:"author_id"`
	Kind     string            `json:"kind"`
	Guests   []domain.Guest    `json:"guests,omitempty"`
	DateFrom string            `json:"date_from"`
	DateTo   string            `json:"date_to"`
	Bookings []bookingResponse `json:"bookings"`
}

func NewGroupHandler(service group.GroupUseCase) *GroupHandler {
	return &GroupHandler{service: service}
}

func (h *GroupHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.DELETE("/:id", h.cancel)
	router.POST("/:id/leave", h.leave)
}

func toGroupResponse(g *domain.GroupBooking) groupResponse {
	resp := groupResponse{
		ID:       g.ID,
		AuthorID: g.AuthorID,
		Kind:     string(g.Kind),
		Guests:   g.Guests,
		DateFrom: g.DateFrom.UTC().Format(time.RFC3339),
		DateTo:   g.DateTo.UTC().Format(time.RFC3339),
		Bookings: make([]bookingResponse, 0, len(g.Bookings)),
	}
	for i := range g.Bookings {
		resp.Bookings = append(resp.Bookings, toBookingResponse(&g.Bookings[i]))
	}
	return resp
}

func (h *GroupHandler) create(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req group.CreateGroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	g, err := h.service.CreateGroupBooking(c.Request.Context(), principal, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toGroupResponse(g))
}

func (h *GroupHandler) get(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	g, err := h.service.GetGroup(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGroupResponse(g))
}

func (h *GroupHandler) cancel(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.service.CancelGroup(c.Request.Context(), principal, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) leave(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.service.LeaveGroup(c.Request.Context(), principal, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
