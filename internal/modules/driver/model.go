// README: Driver records as seen by the dispatcher.
package driver

import (
	"time"

	"ridedispatch/internal/types"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
	StatusBreak   Status = "break"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBusy, StatusOffline, StatusBreak:
		return true
	}
	return false
}

// Location is the driver's last reported position.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l Location) Point() types.Point {
	return types.Point{Lat: l.Lat, Lng: l.Lng}
}

type Driver struct {
	ID          types.ID  `json:"id"`
	StationID   *types.ID `json:"station_id,omitempty"`
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone"`
	Status      Status    `json:"status"`
	Location    *Location `json:"location,omitempty"`
	TotalTrips  int       `json:"total_trips"`
	Balance     float64   `json:"balance"`
	DeviceToken string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status    Status
	StationID *types.ID
}

// NearbyDriver is one hit from a radius search.
type NearbyDriver struct {
	DriverID   types.ID `json:"driver_id"`
	DistanceKm float64  `json:"distance_km"`
}
