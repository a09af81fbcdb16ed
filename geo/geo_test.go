package geo

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wfunc/tagserver/gameerr"
)

func TestDistance_EquatorTenthDegree(t *testing.T) {
	d := Distance(Point{Lat: 0, Lng: 0}, Point{Lat: 0.1, Lng: 0})

	if math.Abs(d-11119) > 11119*0.01 {
		t.Errorf("Expected ~11119m, got %.2f", d)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	a := Point{Lat: 37.5665, Lng: 126.9780}
	b := Point{Lat: 35.1796, Lng: 129.0756}

	if Distance(a, b) != Distance(b, a) {
		t.Errorf("Distance is not symmetric: %v vs %v", Distance(a, b), Distance(b, a))
	}
	if Distance(a, a) != 0 {
		t.Errorf("Expected zero distance to self, got %v", Distance(a, a))
	}
}

func TestDistance_TriangleInequality(t *testing.T) {
	a := Point{Lat: 51.5074, Lng: -0.1278}
	b := Point{Lat: 48.8566, Lng: 2.3522}
	c := Point{Lat: 52.5200, Lng: 13.4050}

	if Distance(a, c) > Distance(a, b)+Distance(b, c)+1e-6 {
		t.Error("Triangle inequality violated")
	}
}

func TestPoint_Validate(t *testing.T) {
	cases := []struct {
		name string
		p    Point
		ok   bool
	}{
		{"origin", Point{0, 0}, true},
		{"corner", Point{90, -180}, true},
		{"lat too big", Point{90.0001, 0}, false},
		{"lng too small", Point{0, -180.5}, false},
		{"nan", Point{math.NaN(), 0}, false},
		{"inf", Point{0, math.Inf(1)}, false},
	}

	for _, tc := range cases {
		err := tc.p.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, gameerr.ErrStructuralInvalid) {
			t.Errorf("%s: expected structural error, got %v", tc.name, err)
		}
	}
}

func TestInSafeZone(t *testing.T) {
	zones := []SafeZone{{Name: "home", Center: Point{Lat: 0, Lng: 0}, Radius: 100}}

	if !InSafeZone(Point{Lat: 0.0005, Lng: 0}, zones) {
		t.Error("Expected ~55m point to be inside the 100m zone")
	}
	if InSafeZone(Point{Lat: 0.002, Lng: 0}, zones) {
		t.Error("Expected ~222m point to be outside the 100m zone")
	}
	if InSafeZone(Point{Lat: 0, Lng: 0}, nil) {
		t.Error("No zones should never contain a point")
	}
}

func TestSafeZone_Validate(t *testing.T) {
	if err := (SafeZone{Center: Point{1, 1}, Radius: 1000}).Validate(); err != nil {
		t.Errorf("1000m zone should be valid, got %v", err)
	}
	if err := (SafeZone{Center: Point{1, 1}, Radius: 1001}).Validate(); !errors.Is(err, gameerr.ErrInvalidSettings) {
		t.Errorf("Expected invalid settings for 1001m zone, got %v", err)
	}
}

func TestInQuietHours(t *testing.T) {
	// 2024-01-01 是周一
	monday := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

	daytime := []QuietHoursRule{{Days: []time.Weekday{time.Monday}, Start: 9 * 60, End: 17 * 60}}
	if !InQuietHours(monday(9, 0), daytime) {
		t.Error("Start minute should be inside the window")
	}
	if InQuietHours(monday(17, 0), daytime) {
		t.Error("End minute should be outside the window")
	}
	if InQuietHours(monday(12, 0).AddDate(0, 0, 1), daytime) {
		t.Error("Tuesday should not match a Monday rule")
	}

	overnight := []QuietHoursRule{{Days: []time.Weekday{time.Monday}, Start: 22 * 60, End: 6 * 60}}
	if !InQuietHours(monday(23, 30), overnight) {
		t.Error("23:30 should be inside the overnight window")
	}
	if !InQuietHours(monday(5, 59), overnight) {
		t.Error("05:59 should be inside the overnight window")
	}
	if InQuietHours(monday(6, 0), overnight) {
		t.Error("06:00 should be outside the overnight window")
	}
	if InQuietHours(monday(12, 0), overnight) {
		t.Error("Noon should be outside the overnight window")
	}
}

func TestAngleDiff_Wraps(t *testing.T) {
	if d := AngleDiff(math.Pi-0.01, -math.Pi+0.01); math.Abs(d-0.02) > 1e-9 {
		t.Errorf("Expected 0.02 across the ±π seam, got %v", d)
	}
}
