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
	"sort"
	"time"
)

// Shape is the dimensionality of a Variable.
type Shape int

// Shapes of variables. A Plain variable only varies with latitude and
// longitude.
const (
	Plain Shape = iota
	TimeOnly
	DepthOnly
	TimeAndDepth
)

func (s Shape) String() string {
	switch s {
	case Plain:
		return "plain"
	case TimeOnly:
		return "time"
	case DepthOnly:
		return "depth"
	case TimeAndDepth:
		return "time+depth"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// HasTime reports whether variables of shape s vary with time.
func (s Shape) HasTime() bool { return s == TimeOnly || s == TimeAndDepth }

// HasDepth reports whether variables of shape s vary with depth.
func (s Shape) HasDepth() bool { return s == DepthOnly || s == TimeAndDepth }

// Key returns the key a variable of shape s stores c under. Fields of c
// that s does not use are ignored.
func (s Shape) Key(c Coord) PointKey {
	switch s {
	case TimeOnly:
		return NewTimePointKey(c.Time, c.Lat, c.Lon)
	case DepthOnly:
		return NewDepthPointKey(c.Lat, c.Lon, c.Depth)
	case TimeAndDepth:
		return NewTimeDepthPointKey(c.Time, c.Lat, c.Lon, c.Depth)
	default:
		return NewPointKey(c.Lat, c.Lon)
	}
}

// Coord is a partial coordinate. Which fields matter depends on the
// Shape of the variable it is given to.
type Coord struct {
	Time     time.Time
	Lat, Lon float32
	Depth    float64
}

// Attribute is a NetCDF attribute with a text value.
type Attribute struct {
	Key, Value string
}

// attributes is a string map that remembers insertion order.
type attributes struct {
	keys   []string
	values map[string]string
}

func (a *attributes) set(k, v string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[k]; !ok {
		a.keys = append(a.keys, k)
	}
	a.values[k] = v
}

func (a *attributes) get(k string) (string, bool) {
	v, ok := a.values[k]
	return v, ok
}

func (a *attributes) list() []Attribute {
	o := make([]Attribute, len(a.keys))
	for i, k := range a.keys {
		o[i] = Attribute{Key: k, Value: a.values[k]}
	}
	return o
}

// Variable is a named, unit-tagged set of sparse data points.
type Variable struct {
	name  string
	shape Shape
	attrs attributes
	data  map[exactKey]float64
}

// NewVariable creates a variable that only varies with latitude and longitude.
func NewVariable(name, units string) *Variable {
	return newVariable(name, units, Plain)
}

// NewTimeVariable creates a variable that varies with time, latitude and longitude.
func NewTimeVariable(name, units string) *Variable {
	return newVariable(name, units, TimeOnly)
}

// NewDepthVariable creates a variable that varies with latitude, longitude and depth.
func NewDepthVariable(name, units string) *Variable {
	return newVariable(name, units, DepthOnly)
}

// NewTimeDepthVariable creates a variable that varies with time, latitude,
// longitude and depth.
func NewTimeDepthVariable(name, units string) *Variable {
	return newVariable(name, units, TimeAndDepth)
}

func newVariable(name, units string, s Shape) *Variable {
	v := &Variable{
		name:  name,
		shape: s,
		data:  make(map[exactKey]float64),
	}
	v.attrs.set("units", units)
	return v
}

// Name returns the name of the variable.
func (v *Variable) Name() string { return v.name }

// Shape returns the shape of the variable.
func (v *Variable) Shape() Shape { return v.shape }

// Units returns the units attribute of the variable.
func (v *Variable) Units() string {
	u, _ := v.attrs.get("units")
	return u
}

// SetAttribute sets attribute k to val, keeping the position of k if it
// was already set.
func (v *Variable) SetAttribute(k, val string) { v.attrs.set(k, val) }

// Attribute returns the value of attribute k.
func (v *Variable) Attribute(k string) (string, bool) { return v.attrs.get(k) }

// Attributes returns the attributes of v in the order they were first set.
func (v *Variable) Attributes() []Attribute { return v.attrs.list() }

// AddDataPoint stores val at c, replacing any value already there.
func (v *Variable) AddDataPoint(c Coord, val float64) {
	v.data[v.shape.Key(c).exact()] = val
}

// Value returns the value stored at c, if any.
func (v *Variable) Value(c Coord) (float64, bool) {
	return v.ValueAt(v.shape.Key(c))
}

// ValueAt returns the value stored at k, if any.
func (v *Variable) ValueAt(k PointKey) (float64, bool) {
	val, ok := v.data[k.exact()]
	return val, ok
}

// Len returns the number of data points in v.
func (v *Variable) Len() int { return len(v.data) }

// Keys returns the keys of every data point in v, sorted with Compare.
func (v *Variable) Keys() []PointKey {
	o := make([]PointKey, 0, len(v.data))
	for k := range v.data {
		o = append(o, k.point())
	}
	sort.Slice(o, func(i, j int) bool { return compareTotal(o[i], o[j]) < 0 })
	return o
}

// eachKey calls f for every key of v in no particular order.
func (v *Variable) eachKey(f func(PointKey)) {
	for k := range v.data {
		f(k.point())
	}
}

// Dates returns the distinct timestamps used by v in ascending order. It is
// empty for variables without a time dimension.
func (v *Variable) Dates() []time.Time {
	if !v.shape.HasTime() {
		return nil
	}
	seen := make(map[time.Time]struct{})
	for k := range v.data {
		seen[k.t] = struct{}{}
	}
	return sortedTimes(seen)
}

func sortedTimes(set map[time.Time]struct{}) []time.Time {
	o := make([]time.Time, 0, len(set))
	for t := range set {
		o = append(o, t)
	}
	sort.Slice(o, func(i, j int) bool { return o[i].Before(o[j]) })
	return o
}
