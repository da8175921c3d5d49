// README: Common money helpers used across modules.
package types

import "math"

// Round2 rounds a monetary or distance value to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
