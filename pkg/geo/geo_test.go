package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKm(t *testing.T) {
	angelsCamp := Point{Lat: 38.0675, Lng: -120.5436}
	murphys := Point{Lat: 38.1391, Lng: -120.4561}

	d, err := HaversineKm(angelsCamp, murphys)
	require.NoError(t, err)
	assert.InDelta(t, 11.046, d, 0.1)

	d, err = HaversineKm(angelsCamp, angelsCamp)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)

	_, err = HaversineKm(angelsCamp, Point{Lat: math.NaN(), Lng: 1})
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = HaversineKm(angelsCamp, Point{Lat: 200, Lng: -300})
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestPointToSegmentMeters(t *testing.T) {
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 0.01}

	t.Run("perpendicular", func(t *testing.T) {
		d, err := PointToSegmentMeters(Point{Lat: 0.001, Lng: 0.005}, a, b)
		require.NoError(t, err)
		assert.InDelta(t, 111.19, d, 0.5)
	})

	t.Run("clamped past the end", func(t *testing.T) {
		d, err := PointToSegmentMeters(Point{Lat: 0, Lng: 0.02}, a, b)
		require.NoError(t, err)
		assert.InDelta(t, 1111.9, d, 1)
	})

	t.Run("degenerate segment", func(t *testing.T) {
		d, err := PointToSegmentMeters(Point{Lat: 0.001, Lng: 0}, a, a)
		require.NoError(t, err)
		assert.InDelta(t, 111.19, d, 0.5)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := PointToSegmentMeters(Point{Lat: math.NaN()}, a, b)
		assert.Error(t, err)
	})
}

type tollStation struct {
	name string
	at   Point
}

func TestFilterAlongRoute(t *testing.T) {
	route := []Point{{Lat: 12.90, Lng: 77.50}, {Lat: 12.95, Lng: 77.55}, {Lat: 13.00, Lng: 77.55}}
	stations := []tollStation{
		{name: "on-route", at: Point{Lat: 12.925, Lng: 77.525}},
		{name: "second-leg", at: Point{Lat: 12.975, Lng: 77.5505}},
		{name: "far", at: Point{Lat: 12.80, Lng: 77.40}},
	}
	got := FilterAlongRoute(stations, func(s tollStation) Point { return s.at }, route, 100)
	require.Len(t, got, 2)
	assert.Equal(t, "on-route", got[0].name)
	assert.Equal(t, "second-leg", got[1].name)

	assert.Nil(t, FilterAlongRoute(stations, func(s tollStation) Point { return s.at }, nil, 100))
}

func TestWithinRadiusInclusiveAndSorted(t *testing.T) {
	center := Point{Lat: 12.9716, Lng: 77.5946}
	// one degree of latitude is ~111.19 km
	kmToLat := func(km float64) float64 { return km / (EarthRadiusKm * math.Pi / 180) }

	items := []Point{
		{Lat: center.Lat + kmToLat(2.1), Lng: center.Lng},
		{Lat: center.Lat + kmToLat(1.5), Lng: center.Lng},
		{Lat: center.Lat + kmToLat(0.5), Lng: center.Lng},
	}
	got := WithinRadius(center, items, func(p Point) Point { return p }, 2.0)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5, got[0].DistanceKm, 0.001)
	assert.InDelta(t, 1.5, got[1].DistanceKm, 0.001)

	edge := Point{Lat: center.Lat + kmToLat(2.0), Lng: center.Lng}
	d, err := HaversineKm(center, edge)
	require.NoError(t, err)
	got = WithinRadius(center, []Point{edge}, func(p Point) Point { return p }, d)
	assert.Len(t, got, 1)
}

func TestPolylineRoundTrip(t *testing.T) {
	pts, err := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.InDelta(t, 38.5, pts[0].Lat, 1e-5)
	assert.InDelta(t, -120.2, pts[0].Lng, 1e-5)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", EncodePolyline(pts))

	_, err = DecodePolyline("")
	assert.Error(t, err)
}
