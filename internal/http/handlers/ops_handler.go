// README: Operational endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/trip"
)

type OpsHandler struct {
	trips *trip.Service
}

func NewOpsHandler(trips *trip.Service) *OpsHandler {
	return &OpsHandler{trips: trips}
}

// Sweep runs one timeout sweep on demand. Partial results are reported even
// when some trips failed.
func (h *OpsHandler) Sweep(c *gin.Context) {
	res, err := h.trips.Sweep(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		writeJSON(c, http.StatusInternalServerError, gin.H{"result": res, "error": "sweep incomplete"})
		return
	}
	writeJSON(c, http.StatusOK, res)
}
