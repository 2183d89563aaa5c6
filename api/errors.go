package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/Domenick1991/deskbooking/internal/logging"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func statusFor(err error) int {
	var conflict *domain.ConflictError
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDeadlinePassed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStatusChanged):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{Code: domain.ErrorKind(err), Error: err.Error()}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		resp.Fields = vErr.FieldErrors
	}
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), nil).Error("request failed", "error", err)
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Error: err.Error()})
}
