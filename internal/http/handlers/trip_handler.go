// README: Trip handlers for staff: create, list, get, resend, cancel.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type TripHandler struct {
	trips *trip.Service
}

func NewTripHandler(svc *trip.Service) *TripHandler {
	return &TripHandler{trips: svc}
}

func (h *TripHandler) Create(c *gin.Context) {
	var cmd trip.CreateCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd.RequesterID = types.ID(middleware.CallerUID(c))
	t, err := h.trips.Create(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, t)
}

// List returns trips newest first. Non-admins only see trips they requested.
func (h *TripHandler) List(c *gin.Context) {
	var f trip.Filter
	if middleware.CallerRole(c) != middleware.RoleAdmin {
		f.RequesterID = types.IDPtr(types.ID(middleware.CallerUID(c)))
	}
	if v := c.Query("status"); v != "" {
		f.Status = trip.Status(v)
		if !f.Status.Valid() {
			writeError(c, http.StatusBadRequest, "invalid status")
			return
		}
	}
	if v := c.Query("station_id"); v != "" {
		f.StationID = types.IDPtr(types.ID(v))
	}
	if v := c.Query("driver_id"); v != "" {
		f.DriverID = types.IDPtr(types.ID(v))
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(key); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(c, http.StatusBadRequest, "invalid "+key)
				return
			}
			*dst = &ts
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	trips, err := h.trips.List(c.Request.Context(), f)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": trips})
}

func (h *TripHandler) Get(c *gin.Context) {
	t, ok := h.loadVisible(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TripHandler) Resend(c *gin.Context) {
	t, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.trips.Resend(c.Request.Context(), t.ID, types.IDPtr(types.ID(middleware.CallerUID(c))))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *TripHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if err := bindOptionalJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, ok := h.loadOwned(c)
	if !ok {
		return
	}
	out, err := h.trips.Cancel(c.Request.Context(), trip.CancelCommand{
		TripID:    t.ID,
		ActorType: trip.ActorOperator,
		ActorID:   types.IDPtr(types.ID(middleware.CallerUID(c))),
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}

// loadVisible allows admins, the requester and the assigned driver.
func (h *TripHandler) loadVisible(c *gin.Context) (*trip.Trip, bool) {
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	uid := types.ID(middleware.CallerUID(c))
	if middleware.CallerRole(c) == middleware.RoleAdmin || t.RequesterID == uid || t.IsDrivenBy(uid) {
		return t, true
	}
	writeServiceError(c, trip.ErrUnauthorized)
	return nil, false
}

// loadOwned allows admins and the requester.
func (h *TripHandler) loadOwned(c *gin.Context) (*trip.Trip, bool) {
	t, err := h.trips.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	if middleware.CallerRole(c) != middleware.RoleAdmin && t.RequesterID != types.ID(middleware.CallerUID(c)) {
		writeServiceError(c, trip.ErrUnauthorized)
		return nil, false
	}
	return t, true
}
