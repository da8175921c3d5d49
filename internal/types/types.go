// README: Shared identifiers and coordinates.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether both coordinates are unset.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// Valid reports whether the point lies within latitude/longitude bounds. The
// zero point is what a request without coordinates decodes to, so it is
// rejected as missing.
func (p Point) Valid() bool {
	if p.IsZero() {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func IDPtr(id ID) *ID {
	return &id
}
