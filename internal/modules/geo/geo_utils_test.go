package geo

import (
	"math"
	"testing"

	"ridedispatch/internal/types"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name: "same point",
			lat1: 41.0, lng1: 29.0,
			lat2: 41.0, lng2: 29.0,
			wantKm:    0,
			tolerance: 0,
		},
		{
			name: "short city hop",
			lat1: 41.000, lng1: 29.000,
			lat2: 41.010, lng2: 29.010,
			wantKm:    1.39,
			tolerance: 0.001,
		},
		{
			name: "New York to Los Angeles (~3944km)",
			lat1: 40.7128, lng1: -74.0060,
			lat2: 34.0522, lng2: -118.2437,
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_RoundedToTwoDecimals(t *testing.T) {
	got := DistanceKm(25.0340, 121.5645, 25.0478, 121.5170)
	if got != math.Round(got*100)/100 {
		t.Fatalf("distance %v has more than two decimals", got)
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	d1 := DistanceKm(25.0, 121.0, 26.0, 122.0)
	d2 := Between(types.Point{Lat: 26.0, Lng: 122.0}, types.Point{Lat: 25.0, Lng: 121.0})
	if d1 != d2 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestETAMinutes(t *testing.T) {
	cases := []struct {
		km   float64
		want int
	}{
		{0, 0},
		{1.39, 3},
		{10, 15},
		{40, 60},
		{40.01, 61},
	}
	for _, tc := range cases {
		if got := ETAMinutes(tc.km); got != tc.want {
			t.Errorf("ETAMinutes(%v) = %d, want %d", tc.km, got, tc.want)
		}
	}
}
