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
	"math"
	"sort"
	"time"

	"github.com/ctessum/geom"
)

// Dataset is a single hypercube: a set of variables sharing latitude,
// longitude, depth and time axes. The axes are not given explicitly;
// they are derived from the coordinates the variables actually use.
type Dataset struct {
	variables       []*Variable
	vectorVariables []*VectorVariable
	attrs           attributes
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return new(Dataset)
}

// AddVariable appends v to the dataset. A nil v is ignored.
func (d *Dataset) AddVariable(v *Variable) {
	if v != nil {
		d.variables = append(d.variables, v)
	}
}

// AddVectorVariable appends vv to the dataset. A nil vv is ignored.
func (d *Dataset) AddVectorVariable(vv *VectorVariable) {
	if vv != nil {
		d.vectorVariables = append(d.vectorVariables, vv)
	}
}

// SetAttribute sets a global attribute that will be written to the file.
func (d *Dataset) SetAttribute(k, val string) { d.attrs.set(k, val) }

// Attributes returns the global attributes in the order they were first set.
func (d *Dataset) Attributes() []Attribute { return d.attrs.list() }

// VectorVariables returns the vector variables of d in insertion order.
func (d *Dataset) VectorVariables() []*VectorVariable { return d.vectorVariables }

// Variables returns a function that returns every scalar variable of d,
// one per call, and nil once they are exhausted: first the variables
// added with AddVariable, then the U and V components of each vector
// variable. Each call to Variables starts a new pass.
func (d *Dataset) Variables() func() *Variable {
	i := 0
	return func() *Variable {
		n := len(d.variables)
		switch {
		case i < n:
			v := d.variables[i]
			i++
			return v
		case i < n+2*len(d.vectorVariables):
			vv := d.vectorVariables[(i-n)/2]
			c := (i - n) % 2
			i++
			if c == 0 {
				return vv.U()
			}
			return vv.V()
		}
		return nil
	}
}

// each calls f for every scalar variable of d.
func (d *Dataset) each(f func(*Variable)) {
	next := d.Variables()
	for v := next(); v != nil; v = next() {
		f(v)
	}
}

// HasTime reports whether any variable of d varies with time.
func (d *Dataset) HasTime() bool {
	var o bool
	d.each(func(v *Variable) { o = o || v.Shape().HasTime() })
	return o
}

// HasDepth reports whether any variable of d varies with depth.
func (d *Dataset) HasDepth() bool {
	var o bool
	d.each(func(v *Variable) { o = o || v.Shape().HasDepth() })
	return o
}

// Axes holds the coordinate values used by a Dataset, each in
// ascending order without duplicates.
type Axes struct {
	Latitudes  []float32
	Longitudes []float32
	Depths     []float64
}

// Axes returns the latitudes, longitudes and depths used by any data
// point of any variable of d. Values closer together than
// CoordinateEpsilon are merged, keeping the smallest.
func (d *Dataset) Axes() Axes {
	lats := make(map[float32]struct{})
	lons := make(map[float32]struct{})
	depths := make(map[float64]struct{})
	d.each(func(v *Variable) {
		v.eachKey(func(k PointKey) {
			lats[k.lat] = struct{}{}
			lons[k.lon] = struct{}{}
			if k.hasDepth {
				depths[k.depth] = struct{}{}
			}
		})
	})
	o := Axes{
		Latitudes:  float32Axis(lats),
		Longitudes: float32Axis(lons),
	}
	if len(depths) > 0 {
		vals := make([]float64, 0, len(depths))
		for v := range depths {
			vals = append(vals, v)
		}
		o.Depths = uniqueAxis(vals)
	}
	return o
}

func float32Axis(set map[float32]struct{}) []float32 {
	if len(set) == 0 {
		return nil
	}
	vals := make([]float64, 0, len(set))
	for v := range set {
		vals = append(vals, float64(v))
	}
	vals = uniqueAxis(vals)
	o := make([]float32, len(vals))
	for i, v := range vals {
		o[i] = float32(v)
	}
	return o
}

// uniqueAxis sorts vals and drops NaNs and any value within
// CoordinateEpsilon of the previous value kept.
func uniqueAxis(vals []float64) []float64 {
	sort.Float64s(vals)
	o := vals[:0]
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if len(o) > 0 && compareTolerant(o[len(o)-1], v) == 0 {
			continue
		}
		o = append(o, v)
	}
	return o
}

// Times returns every timestamp used by any variable of d in ascending
// order. Timestamps that no variable uses are not included, even when
// they fall in a gap of an otherwise regular series.
func (d *Dataset) Times() []time.Time {
	set := make(map[time.Time]struct{})
	d.each(func(v *Variable) {
		if !v.Shape().HasTime() {
			return
		}
		for k := range v.data {
			set[k.t] = struct{}{}
		}
	})
	return sortedTimes(set)
}

// Bounds returns the extent of the data points of d, with longitude
// along X and latitude along Y. It returns nil if d has no data.
// Points with a NaN coordinate are ignored.
func (d *Dataset) Bounds() *geom.Bounds {
	var b *geom.Bounds
	d.each(func(v *Variable) {
		v.eachKey(func(k PointKey) {
			if math.IsNaN(float64(k.lat)) || math.IsNaN(float64(k.lon)) {
				return
			}
			p := geom.NewBoundsPoint(geom.Point{X: float64(k.lon), Y: float64(k.lat)})
			if b == nil {
				b = p
			} else {
				b.Extend(p)
			}
		})
	})
	return b
}
