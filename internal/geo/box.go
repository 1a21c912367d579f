// Package geo holds the bounding-box math used to place the video layer and
// the loading indicator over a user selection.
package geo

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDegenerateBox is returned when a box has equal corners or zero/NaN span.
	ErrDegenerateBox = errors.New("degenerate bounding box")
	// ErrInvertedBox is returned when the southwest latitude lies north of the northeast one.
	ErrInvertedBox = errors.New("inverted bounding box")
	// ErrOutOfRange is returned for coordinates outside the WGS84 domain.
	ErrOutOfRange = errors.New("coordinate out of range")
)

// LatLon is a geographic point in decimal degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

func (p LatLon) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}

// Box is an axis-aligned rectangle. When NE.Lon < SW.Lon the box crosses the
// antimeridian.
type Box struct {
	SW LatLon
	NE LatLon
}

// NewBox builds a box from the four form values.
func NewBox(lonMin, latMin, lonMax, latMax float64) Box {
	return Box{
		SW: LatLon{Lat: latMin, Lon: lonMin},
		NE: LatLon{Lat: latMax, Lon: lonMax},
	}
}

// Width returns the longitudinal span in degrees, accounting for wrap.
func (b Box) Width() float64 {
	w := b.NE.Lon - b.SW.Lon
	if w < 0 {
		w += 360
	}
	return w
}

// Height returns the latitudinal span in degrees.
func (b Box) Height() float64 {
	return b.NE.Lat - b.SW.Lat
}

// Centroid returns the midpoint of the two corners.
func (b Box) Centroid() LatLon {
	return LatLon{
		Lat: b.SW.Lat + b.Height()/2,
		Lon: normalizeLon(b.SW.Lon + b.Width()/2),
	}
}

// Contains reports whether p lies inside b (edges inclusive).
func (b Box) Contains(p LatLon) bool {
	if p.Lat < b.SW.Lat || p.Lat > b.NE.Lat {
		return false
	}
	off := p.Lon - b.SW.Lon
	if off < 0 {
		off += 360
	}
	return off <= b.Width()
}

func (b Box) String() string {
	return fmt.Sprintf("[%s, %s]", b.SW, b.NE)
}

// Validate checks that b can back a job submission.
func Validate(b Box) (Box, error) {
	for _, v := range []float64{b.SW.Lat, b.SW.Lon, b.NE.Lat, b.NE.Lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Box{}, fmt.Errorf("%w: non-finite coordinate", ErrDegenerateBox)
		}
	}
	if b.SW == b.NE {
		return Box{}, fmt.Errorf("%w: corners are equal %s", ErrDegenerateBox, b.SW)
	}
	if b.SW.Lat < -90 || b.SW.Lat > 90 || b.NE.Lat < -90 || b.NE.Lat > 90 {
		return Box{}, fmt.Errorf("%w: latitude must be within [-90, 90]", ErrOutOfRange)
	}
	if b.SW.Lon < -180 || b.SW.Lon > 180 || b.NE.Lon < -180 || b.NE.Lon > 180 {
		return Box{}, fmt.Errorf("%w: longitude must be within [-180, 180]", ErrOutOfRange)
	}
	if b.SW.Lat > b.NE.Lat {
		return Box{}, fmt.Errorf("%w: south latitude %.6f is north of %.6f", ErrInvertedBox, b.SW.Lat, b.NE.Lat)
	}
	if b.Width() == 0 || b.Height() == 0 {
		return Box{}, fmt.Errorf("%w: zero width or height", ErrDegenerateBox)
	}
	return b, nil
}

// HalfBound returns a box sharing b's centroid with half its width and height.
func HalfBound(b Box) Box {
	c := b.Centroid()
	hw := b.Width() / 4
	hh := b.Height() / 4
	return Box{
		SW: LatLon{Lat: c.Lat - hh, Lon: normalizeLon(c.Lon - hw)},
		NE: LatLon{Lat: c.Lat + hh, Lon: normalizeLon(c.Lon + hw)},
	}
}

func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
