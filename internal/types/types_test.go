package types

import (
	"math"
	"testing"
)

func TestPoint_Valid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"city coordinate", Point{Lat: 41.0, Lng: 29.0}, true},
		{"equator off meridian", Point{Lat: 0, Lng: 29.0}, true},
		{"meridian off equator", Point{Lat: 41.0, Lng: 0}, true},
		{"bounds inclusive", Point{Lat: -90, Lng: 180}, true},
		{"missing coordinates", Point{}, false},
		{"latitude out of range", Point{Lat: 91, Lng: 29}, false},
		{"longitude out of range", Point{Lat: 41, Lng: -181}, false},
		{"not a number", Point{Lat: math.NaN(), Lng: 29}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("%+v.Valid() = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}
