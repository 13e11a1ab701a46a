// Package city holds the record type indexed by cityserve and the decoding of
// the cities.json dump it is usually loaded from.
package city

import (
	"fmt"
	"math"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/s2"
)

const (
	earthRadiusKm = 6371.0088

	// GeohashPrecision gives cells of roughly 5m x 5m, enough to tell apart
	// neighbouring places sharing a name.
	GeohashPrecision = 9
)

// Coord is a WGS84 coordinate in degrees.
type Coord struct {
	Lat float64 `json:"lat" msgpack:"la"`
	Lon float64 `json:"lon" msgpack:"lo"`
}

// City is one named place. Values are never mutated once decoded, so copies
// held by the index and by callers cannot drift apart.
//
// Sample JSON:
//
//	{"country":"UA","name":"Hurzuf","_id":707860,"coord":{"lon":34.283333,"lat":44.549999}}
type City struct {
	ID      int64  `json:"_id" msgpack:"i"`
	Country string `json:"country" msgpack:"c"`
	Name    string `json:"name" msgpack:"n"`
	Coord   Coord  `json:"coord" msgpack:"g"`
}

// String returns "Name, CC".
func (c City) String() string {
	if c.Country == "" {
		return c.Name
	}
	return fmt.Sprintf("%s, %s", c.Name, c.Country)
}

// LatLng converts the coordinate to an s2 point.
func (c Coord) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

// Valid reports whether the coordinate is finite and within range.
func (c Coord) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.LatLng().IsValid()
}

// DistanceKm returns the great circle distance between two coordinates.
func (c Coord) DistanceKm(other Coord) float64 {
	return c.LatLng().Distance(other.LatLng()).Radians() * earthRadiusKm
}

// Geohash encodes the coordinate with GeohashPrecision characters.
func (c Coord) Geohash() string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lon, GeohashPrecision)
}
