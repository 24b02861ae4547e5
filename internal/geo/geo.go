package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// ErrInvalidCoordinates signals a latitude outside [-90,90] or a longitude outside [-180,180].
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint validates and creates a Point.
func NewPoint(lat, lon float64) (Point, error) {
	if !ValidateCoordinates(lat, lon) {
		return Point{}, fmt.Errorf("lat=%g lon=%g: %w", lat, lon, ErrInvalidCoordinates)
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// String renders the point as "lat,lon".
func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// WKT renders the point in well-known-text order (lon lat).
func (p Point) WKT() string {
	return fmt.Sprintf("POINT(%s %s)", formatCoord(p.Lon), formatCoord(p.Lat))
}

// ParsePoint parses "lat,lon".
func ParsePoint(s string) (Point, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("point %q: expected \"lat,lon\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: latitude: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: longitude: %w", s, err)
	}
	return NewPoint(lat, lon)
}

// BoundingBox is an axis-aligned box given by its top-left and bottom-right corners.
type BoundingBox struct {
	TopLeft     Point
	BottomRight Point
}

// NewBoundingBox validates and creates a BoundingBox.
func NewBoundingBox(topLeft, bottomRight Point) (BoundingBox, error) {
	if !ValidateCoordinates(topLeft.Lat, topLeft.Lon) || !ValidateCoordinates(bottomRight.Lat, bottomRight.Lon) {
		return BoundingBox{}, ErrInvalidCoordinates
	}
	if topLeft.Lat < bottomRight.Lat {
		return BoundingBox{}, fmt.Errorf("bounding box top latitude %g is below bottom latitude %g",
			topLeft.Lat, bottomRight.Lat)
	}
	return BoundingBox{TopLeft: topLeft, BottomRight: bottomRight}, nil
}

// Polygon returns the box as a closed counter-clockwise polygon.
func (b BoundingBox) Polygon() Polygon {
	return Polygon{Points: []Point{
		{Lat: b.BottomRight.Lat, Lon: b.TopLeft.Lon},
		{Lat: b.BottomRight.Lat, Lon: b.BottomRight.Lon},
		{Lat: b.TopLeft.Lat, Lon: b.BottomRight.Lon},
		{Lat: b.TopLeft.Lat, Lon: b.TopLeft.Lon},
		{Lat: b.BottomRight.Lat, Lon: b.TopLeft.Lon},
	}}
}

// Polygon is a closed ring of points; the first and last point are equal.
type Polygon struct {
	Points []Point
}

// NewPolygon validates and creates a Polygon, closing the ring if needed.
func NewPolygon(points ...Point) (Polygon, error) {
	if len(points) < 3 {
		return Polygon{}, fmt.Errorf("polygon needs at least 3 points, got %d", len(points))
	}
	for _, p := range points {
		if !ValidateCoordinates(p.Lat, p.Lon) {
			return Polygon{}, fmt.Errorf("polygon point %s: %w", p, ErrInvalidCoordinates)
		}
	}
	ring := make([]Point, len(points), len(points)+1)
	copy(ring, points)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	if len(ring) < 4 {
		return Polygon{}, errors.New("polygon needs at least 3 distinct points")
	}
	return Polygon{Points: ring}, nil
}

// WKT renders the polygon in well-known-text.
func (p Polygon) WKT() string {
	parts := make([]string, len(p.Points))
	for i, pt := range p.Points {
		parts[i] = formatCoord(pt.Lon) + " " + formatCoord(pt.Lat)
	}
	return "POLYGON((" + strings.Join(parts, ", ") + "))"
}

// Contains reports whether pt lies inside the polygon (ray casting, boundary excluded).
func (p Polygon) Contains(pt Point) bool {
	inside := false
	n := len(p.Points)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p.Points[i], p.Points[j]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) &&
			pt.Lon < (b.Lon-a.Lon)*(pt.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lon {
			inside = !inside
		}
	}
	return inside
}

// Haversine returns the great-circle distance in meters between two points
// specified by latitude and longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
