// README: Station tariff settings and fare breakdown.
package pricing

// Tariff is the per-station fare configuration.
type Tariff struct {
	BaseRate       float64 `json:"base_rate"`
	PerKmRate      float64 `json:"per_km_rate"`
	NightSurcharge float64 `json:"night_surcharge"` // multiplier applied to the per-km portion at night
	NightStartHour int     `json:"night_start_hour"`
	NightEndHour   int     `json:"night_end_hour"`
	MinFare        float64 `json:"min_fare"`
}

// Breakdown is the priced result stored on a trip.
type Breakdown struct {
	BaseRate       float64 `json:"base_rate"`
	PerKmRate      float64 `json:"per_km_rate"`
	Distance       float64 `json:"distance"`
	IsNightTime    bool    `json:"is_night_time"`
	NightSurcharge float64 `json:"night_surcharge"`
	Total          float64 `json:"total"`
}

// IsNight reports whether hour falls in the tariff's night window
// [NightStartHour, NightEndHour). The window wraps past midnight when start is
// after end (e.g. 22 -> 6). Equal start and end means no night window.
func (t Tariff) IsNight(hour int) bool {
	start, end := t.NightStartHour, t.NightEndHour
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}
