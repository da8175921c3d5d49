// README: Driver handlers: respond to assignments, run trips, report location and availability.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type DriverHandler struct {
	trips   *trip.Service
	drivers *driver.Service
}

func NewDriverHandler(trips *trip.Service, drivers *driver.Service) *DriverHandler {
	return &DriverHandler{trips: trips, drivers: drivers}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func (h *DriverHandler) Active(c *gin.Context) {
	t, err := h.trips.ActiveForDriver(c.Request.Context(), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *DriverHandler) Accept(c *gin.Context) {
	t, err := h.trips.Accept(c.Request.Context(), types.ID(c.Param("id")), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type rejectReq struct {
	Reason string `json:"reason"`
}

// Reject returns the trip as it stands after reassignment, which is usually
// assigned to someone else and so no longer visible to this driver.
func (h *DriverHandler) Reject(c *gin.Context) {
	var req rejectReq
	if err := bindOptionalJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Reject(c.Request.Context(), trip.RejectCommand{
		TripID:   types.ID(c.Param("id")),
		DriverID: callerID(c),
		Reason:   req.Reason,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip_id": t.ID, "status": t.Status})
}

func (h *DriverHandler) Start(c *gin.Context) {
	t, err := h.trips.Start(c.Request.Context(), types.ID(c.Param("id")), callerID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type completeReq struct {
	ActualFare *float64 `json:"actual_fare"`
}

func (h *DriverHandler) Complete(c *gin.Context) {
	var req completeReq
	if err := bindOptionalJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.Complete(c.Request.Context(), trip.CompleteCommand{
		TripID:     types.ID(c.Param("id")),
		DriverID:   callerID(c),
		ActualFare: req.ActualFare,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

type locationReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	d, err := h.drivers.UpdateLocation(c.Request.Context(), callerID(c), types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type availabilityReq struct {
	Status driver.Status `json:"status" binding:"required"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	d, err := h.drivers.SetAvailability(c.Request.Context(), callerID(c), req.Status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

// Nearby serves the operator map view.
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, err1 := queryFloat(c, "lat", 0)
	lng, err2 := queryFloat(c, "lng", 0)
	radius, err3 := queryFloat(c, "radius_km", 5)
	limit, err4 := queryFloat(c, "limit", 50)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || c.Query("lat") == "" || c.Query("lng") == "" || radius <= 0 {
		writeError(c, http.StatusBadRequest, "lat, lng and a positive radius_km are required")
		return
	}
	out, err := h.drivers.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, int(limit))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if out == nil {
		out = []driver.NearbyDriver{}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}
