// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/trip"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps trip and driver sentinel errors to status codes.
// Anything unrecognised is a 500 and the detail stays in the request log.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrValidation),
		errors.Is(err, driver.ErrInvalidStatus),
		errors.Is(err, driver.ErrInvalidLocation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrUnauthorized):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrInvalidTransition),
		errors.Is(err, trip.ErrConflict),
		errors.Is(err, trip.ErrDriverUnavailable),
		errors.Is(err, driver.ErrDriverBusy):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
