// README: Matching candidates and search scope.
package matching

import (
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/types"
)

// Scope limits the driver pool. A nil StationID searches every station.
type Scope struct {
	StationID *types.ID
}

// Candidate is an eligible driver and its straight-line distance to pickup.
type Candidate struct {
	Driver     driver.Driver
	DistanceKm float64
}
