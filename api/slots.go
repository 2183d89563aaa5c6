package api

import (
	"net/http"

	"github.com/Domenick1991/deskbooking/internal/interval"
	"github.com/Domenick1991/deskbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

// SlotHandler answers availability questions without reserving anything.
type SlotHandler struct {
	service booking.BookingUseCase
}

type checkSlotsRequest struct {
	TableIDs  []string            `json:"table_ids"`
	Intervals []interval.Interval `json:"intervals"`
}

func NewSlotHandler(service booking.BookingUseCase) *SlotHandler {
	return &SlotHandler{service: service}
}

func (h *SlotHandler) Register(router *gin.RouterGroup) {
	router.POST("/check", h.check)
}

func (h *SlotHandler) check(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}
	var req checkSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	slots, err := h.service.CheckSlots(c.Request.Context(), req.TableIDs, req.Intervals)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}
