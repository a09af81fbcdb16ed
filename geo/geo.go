// geo/geo.go
package geo

import (
	"math"
	"time"

	"github.com/wfunc/tagserver/gameerr"
)

// EarthRadius in meters.
const EarthRadius = 6371000.0

// MaxSafeZoneRadius 安全区最大半径(米)
const MaxSafeZoneRadius = 1000.0

// Point 经纬度坐标
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a single position report from a device.
type Location struct {
	Point
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SafeZone 禁止抓人的圆形区域
type SafeZone struct {
	Name   string  `json:"name,omitempty"`
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

// QuietHoursRule is a recurring weekly window; Start and End are minutes of the day.
// End < Start wraps past midnight.
type QuietHoursRule struct {
	Days  []time.Weekday `json:"days"`
	Start int            `json:"start"`
	End   int            `json:"end"`
}

// Validate rejects NaN/Inf and out-of-range coordinates.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return gameerr.ErrInvalidCoordinate
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return gameerr.ErrInvalidCoordinate
	}
	return nil
}

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// 浮点误差可能让 h 略大于 1
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Bearing returns the initial bearing from a to b in radians, in (-π, π].
func Bearing(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return math.Atan2(y, x)
}

// AngleDiff returns the absolute smallest difference between two angles in radians.
func AngleDiff(a, b float64) float64 {
	d := math.Mod(b-a, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return math.Abs(d)
}

// Contains reports whether p lies inside the zone, boundary included.
func (z SafeZone) Contains(p Point) bool {
	return Distance(p, z.Center) <= z.Radius
}

// InSafeZone reports whether p lies inside any zone.
func InSafeZone(p Point, zones []SafeZone) bool {
	_, ok := FindSafeZone(p, zones)
	return ok
}

// FindSafeZone returns the first zone containing p.
func FindSafeZone(p Point, zones []SafeZone) (SafeZone, bool) {
	for _, z := range zones {
		if z.Contains(p) {
			return z, true
		}
	}
	return SafeZone{}, false
}

// Active reports whether now falls inside the rule. now is evaluated in its own location.
func (r QuietHoursRule) Active(now time.Time) bool {
	if !r.hasDay(now.Weekday()) {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if r.End < r.Start {
		return minute >= r.Start || minute < r.End
	}
	return minute >= r.Start && minute < r.End
}

func (r QuietHoursRule) hasDay(day time.Weekday) bool {
	for _, d := range r.Days {
		if d == day {
			return true
		}
	}
	return false
}

// InQuietHours reports whether any rule is active at now.
func InQuietHours(now time.Time, rules []QuietHoursRule) bool {
	for _, r := range rules {
		if r.Active(now) {
			return true
		}
	}
	return false
}

// Validate checks zone shape.
func (z SafeZone) Validate() error {
	if err := z.Center.Validate(); err != nil {
		return err
	}
	if z.Radius <= 0 || z.Radius > MaxSafeZoneRadius {
		return gameerr.ErrInvalidSettings
	}
	return nil
}

// Validate checks that minutes and weekdays are in range.
func (r QuietHoursRule) Validate() error {
	if r.Start < 0 || r.Start >= 24*60 || r.End < 0 || r.End >= 24*60 {
		return gameerr.ErrInvalidSettings
	}
	for _, d := range r.Days {
		if d < time.Sunday || d > time.Saturday {
			return gameerr.ErrInvalidSettings
		}
	}
	return nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
