package geo

import (
	"errors"
	"math"
	"sort"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusKm is the mean Earth radius used by all distance helpers.
const EarthRadiusKm = 6371.0

const metersPerDegree = EarthRadiusKm * 1000 * math.Pi / 180

var ErrInvalidCoordinate = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// Point is a WGS84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineKm returns the great-circle distance between a and b in kilometers.
func HaversineKm(a, b Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, ErrInvalidCoordinate
	}
	if a == b {
		return 0, nil
	}
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dlat := lat2 - lat1
	dlng := toRad(b.Lng - a.Lng)

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c, nil
}

// PointToSegmentMeters projects p onto segment ab in a local equirectangular
// plane (longitude scaled by cos of the mean latitude) and returns the planar
// distance to the clamped projection. Not valid near the poles or for very long segments.
func PointToSegmentMeters(p, a, b Point) (float64, error) {
	if !p.Valid() || !a.Valid() || !b.Valid() {
		return 0, ErrInvalidCoordinate
	}
	k := math.Cos(toRad((a.Lat + b.Lat) / 2))

	ax, ay := a.Lng*k, a.Lat
	bx, by := b.Lng*k, b.Lat
	px, py := p.Lng*k, p.Lat

	dx, dy := bx-ax, by-ay
	t := 0.0
	if l2 := dx*dx + dy*dy; l2 > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / l2
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(px-cx, py-cy) * metersPerDegree, nil
}

// PointToRouteMeters is the minimum segment distance from p to route.
func PointToRouteMeters(p Point, route []Point) (float64, error) {
	switch len(route) {
	case 0:
		return 0, errors.New("route has no points")
	case 1:
		return PointToSegmentMeters(p, route[0], route[0])
	}
	best := math.Inf(1)
	for i := 0; i < len(route)-1; i++ {
		d, err := PointToSegmentMeters(p, route[i], route[i+1])
		if err != nil {
			return 0, err
		}
		if d < best {
			best = d
		}
	}
	return best, nil
}

// Nearby is a point with its distance from a reference position.
type Nearby[T any] struct {
	Item       T
	DistanceKm float64
}

// WithinRadius keeps the items whose position lies within radiusKm of center
// (inclusive), sorted by ascending distance. Items with invalid positions are skipped.
func WithinRadius[T any](center Point, items []T, pos func(T) Point, radiusKm float64) []Nearby[T] {
	out := make([]Nearby[T], 0, len(items))
	for _, it := range items {
		d, err := HaversineKm(center, pos(it))
		if err != nil {
			continue
		}
		if d <= radiusKm {
			out = append(out, Nearby[T]{Item: it, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// FilterAlongRoute returns the assets lying within bufferMeters of the route, keeping input order.
func FilterAlongRoute[T any](items []T, pos func(T) Point, route []Point, bufferMeters float64) []T {
	if len(route) == 0 {
		return nil
	}
	var out []T
	for _, it := range items {
		d, err := PointToRouteMeters(pos(it), route)
		if err != nil {
			continue
		}
		if d <= bufferMeters {
			out = append(out, it)
		}
	}
	return out
}

// DecodePolyline decodes a Google encoded polyline into points.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline cannot be empty")
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	points := make([]Point, 0, len(coords))
	for _, c := range coords {
		p := Point{Lat: c[0], Lng: c[1]}
		if !p.Valid() {
			return nil, ErrInvalidCoordinate
		}
		points = append(points, p)
	}
	return points, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
