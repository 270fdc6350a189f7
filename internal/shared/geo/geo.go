package geo

import (
	"math"

	"github.com/twpayne/go-polyline"
)

const (
	earthRadiusM = 6371000.0
	metersPerFt  = 0.3048

	// arrivalEpsilonM is how close to the final waypoint counts as "already
	// there"; callers treat anything under 25 ft as arrived.
	arrivalEpsilonM = 0.5
)

// Coordinate is an immutable position value. The zero value {0,0,0} is the
// "position unknown" sentinel, never a real fix at the origin.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// IsZero reports whether c is the unknown-position sentinel.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0 && c.Alt == 0
}

// RoutePoint is one labeled waypoint on a route.
type RoutePoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineM(lat1, lng1, lat2, lng2) / 1000
}

// HaversineM returns the great-circle distance between two points in metres.
func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// PointToSegmentDistance returns the distance from p to the segment a-b,
// treating raw lat/lng degrees as planar coordinates. That flattening is
// only valid over short segments; it is used as a comparison metric for
// picking the nearest segment, not as a real-world distance. The projection
// parameter is clamped to [0,1], so beyond either endpoint the distance is
// to that endpoint rather than the infinite line.
func PointToSegmentDistance(a, b, p Coordinate) float64 {
	dx := b.Lat - a.Lat
	dy := b.Lng - a.Lng

	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		// Degenerate segment: plain point distance.
		return math.Hypot(p.Lat-a.Lat, p.Lng-a.Lng)
	}

	t := ((p.Lat-a.Lat)*dx + (p.Lng-a.Lng)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	projLat := a.Lat + t*dx
	projLng := a.Lng + t*dy
	return math.Hypot(p.Lat-projLat, p.Lng-projLng)
}

// NearestSegment returns the index of the waypoint pair (i, i+1) closest to
// from, ties going to the lowest index. Returns -1 for routes with fewer
// than two points.
func NearestSegment(points []RoutePoint, from Coordinate) int {
	if len(points) < 2 {
		return -1
	}

	best := 0
	bestDist := math.MaxFloat64
	for i := 0; i < len(points)-1; i++ {
		a := Coordinate{Lat: points[i].Lat, Lng: points[i].Lng}
		b := Coordinate{Lat: points[i+1].Lat, Lng: points[i+1].Lng}
		d := PointToSegmentDistance(a, b, from)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// RemainingDistanceFeet returns the distance left to walk along the route
// from the given position, in whole feet: great-circle distance to the far
// endpoint of the nearest segment, plus great-circle legs over every
// waypoint pair after it. Segment selection deliberately uses the flat
// degree metric above while the summed legs use haversine; that mix matches
// the mobile client this backend grew out of. Returns 0 once the position
// is within epsilon of the final waypoint.
func RemainingDistanceFeet(points []RoutePoint, from Coordinate) int {
	if len(points) < 2 {
		return 0
	}

	last := points[len(points)-1]
	if HaversineM(from.Lat, from.Lng, last.Lat, last.Lng) <= arrivalEpsilonM {
		return 0
	}

	seg := NearestSegment(points, from)
	far := points[seg+1]

	meters := HaversineM(from.Lat, from.Lng, far.Lat, far.Lng)
	for i := seg + 1; i < len(points)-1; i++ {
		meters += HaversineM(points[i].Lat, points[i].Lng, points[i+1].Lat, points[i+1].Lng)
	}

	return int(math.Floor(meters / metersPerFt))
}

// EncodePath encodes a coordinate sequence as a precision-5 polyline
// string. Altitude is not carried by the encoding.
func EncodePath(coords []Coordinate) string {
	pairs := make([][]float64, len(coords))
	for i, c := range coords {
		pairs[i] = []float64{c.Lat, c.Lng}
	}
	return string(polyline.EncodeCoords(pairs))
}

// DecodePath decodes a polyline string produced by EncodePath. Round trips
// are lossy at the fifth decimal digit. Malformed input decodes to nil.
func DecodePath(path string) []Coordinate {
	pairs, _, err := polyline.DecodeCoords([]byte(path))
	if err != nil {
		return nil
	}
	coords := make([]Coordinate, len(pairs))
	for i, p := range pairs {
		coords[i] = Coordinate{Lat: p[0], Lng: p[1]}
	}
	return coords
}
