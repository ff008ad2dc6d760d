/*
Copyright © 2019 the ncsynth authors.
This file is part of ncsynth.

ncsynth is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncsynth is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncsynth.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncsynth

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// CoordinateEpsilon is the tolerance used when ordering latitudes and
// longitudes. It absorbs float32 round-trip error, about 1 metre at
// the equator.
const CoordinateEpsilon = 0.00001

// PointKey is an immutable coordinate used to look up a value in the
// sparse data of a Variable. Time and depth are optional.
//
// Variables hash keys bit for bit (see Equal). The tolerant ordering used
// to build axes and sort records is provided separately by Compare.
type PointKey struct {
	lat, lon float32
	t        time.Time
	depth    float64
	hasTime  bool
	hasDepth bool
}

// NewPointKey returns a key without time or depth.
func NewPointKey(lat, lon float32) PointKey {
	return PointKey{lat: lat, lon: lon}
}

// NewTimePointKey returns a key with a timestamp and no depth.
func NewTimePointKey(t time.Time, lat, lon float32) PointKey {
	return PointKey{lat: lat, lon: lon, t: normalizeTime(t), hasTime: true}
}

// NewDepthPointKey returns a key with a depth and no timestamp.
func NewDepthPointKey(lat, lon float32, depth float64) PointKey {
	return PointKey{lat: lat, lon: lon, depth: depth, hasDepth: true}
}

// NewTimeDepthPointKey returns a key with both a timestamp and a depth.
func NewTimeDepthPointKey(t time.Time, lat, lon float32, depth float64) PointKey {
	return PointKey{lat: lat, lon: lon, t: normalizeTime(t), depth: depth, hasTime: true, hasDepth: true}
}

// normalizeTime strips the monotonic clock reading and the location so
// that equal instants compare equal with ==.
func normalizeTime(t time.Time) time.Time {
	return t.Round(0).UTC()
}

// Lat returns the latitude of k.
func (k PointKey) Lat() float32 { return k.lat }

// Lon returns the longitude of k.
func (k PointKey) Lon() float32 { return k.lon }

// Time returns the timestamp of k and whether k has one.
func (k PointKey) Time() (time.Time, bool) { return k.t, k.hasTime }

// Depth returns the depth of k and whether k has one.
func (k PointKey) Depth() (float64, bool) { return k.depth, k.hasDepth }

func (k PointKey) String() string {
	s := fmt.Sprintf("(%g, %g", k.lat, k.lon)
	if k.hasTime {
		s += ", " + k.t.Format(time.RFC3339)
	}
	if k.hasDepth {
		s += fmt.Sprintf(", %gm", k.depth)
	}
	return s + ")"
}

// exactKey is the representation of a PointKey used for hashing. Floating
// point values are compared by their bits, so -0 and +0 are different
// keys and NaN can be stored and found again.
type exactKey struct {
	lat, lon uint32
	depth    uint64
	t        time.Time
	hasTime  bool
	hasDepth bool
}

func (k PointKey) exact() exactKey {
	return exactKey{
		lat:      math.Float32bits(k.lat),
		lon:      math.Float32bits(k.lon),
		depth:    math.Float64bits(k.depth),
		t:        k.t,
		hasTime:  k.hasTime,
		hasDepth: k.hasDepth,
	}
}

func (e exactKey) point() PointKey {
	return PointKey{
		lat:      math.Float32frombits(e.lat),
		lon:      math.Float32frombits(e.lon),
		depth:    math.Float64frombits(e.depth),
		t:        e.t,
		hasTime:  e.hasTime,
		hasDepth: e.hasDepth,
	}
}

// Equal reports whether k and o are exactly the same coordinate.
func (k PointKey) Equal(o PointKey) bool {
	return k.exact() == o.exact()
}

// Compare orders keys by time, then latitude, then longitude, then depth.
// Latitudes and longitudes closer than CoordinateEpsilon compare as equal.
// A key without time or depth sorts after one that has it.
// Compare returns -1, 0 or +1.
func Compare(a, b PointKey) int {
	if c := compareOptionalTime(a.t, a.hasTime, b.t, b.hasTime); c != 0 {
		return c
	}
	if c := compareTolerant(float64(a.lat), float64(b.lat)); c != 0 {
		return c
	}
	if c := compareTolerant(float64(a.lon), float64(b.lon)); c != 0 {
		return c
	}
	switch {
	case a.hasDepth && !b.hasDepth:
		return -1
	case !a.hasDepth && b.hasDepth:
		return 1
	case a.depth < b.depth:
		return -1
	case a.depth > b.depth:
		return 1
	}
	return 0
}

// compareTotal refines Compare with the exact coordinate values so that
// sorting a set of keys gives the same result whatever order they were
// visited in.
func compareTotal(a, b PointKey) int {
	if c := Compare(a, b); c != 0 {
		return c
	}
	if c := compareExact(float64(a.lat), float64(b.lat)); c != 0 {
		return c
	}
	return compareExact(float64(a.lon), float64(b.lon))
}

func compareOptionalTime(a time.Time, hasA bool, b time.Time, hasB bool) int {
	switch {
	case hasA && !hasB:
		return -1
	case !hasA && hasB:
		return 1
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareTolerant(a, b float64) int {
	if floats.EqualWithinAbs(a, b, CoordinateEpsilon) {
		return 0
	}
	return compareExact(a, b)
}

func compareExact(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
