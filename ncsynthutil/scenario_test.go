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

package ncsynthutil

import (
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spatialmodel/ncsynth"
	"gonum.org/v1/gonum/floats"
)

const smallScenario = `
StartDate = "2019-01-01T00:00:00Z"
EndDate = "2019-01-01T03:00:00Z"

[Attributes]
title = "small"

[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 10.0, Max = 12.0, Steps = 3 }
Depths = [0.0, -2.0]

  [[Grid.Variable]]
  Name = "bathymetry"
  Units = "m"
  Value = "-lat - lon"

  [[Grid.Variable]]
  Name = "temp"
  Units = "C"
  Time = true
  Depth = true
  Value = "hour * 100 + lat * 10 + depth"
  Where = "hour != 1"
  Attributes = { long_name = "temperature" }

  [[Grid.Vector]]
  Group = "wind"
  U = { Name = "wu", Units = "ms-1", Time = true, Value = "hour" }
  V = { Name = "wv", Units = "ms-1", Time = true, Value = "-hour" }
`

// variables returns the variables of d by name.
func variables(d *ncsynth.Dataset) map[string]*ncsynth.Variable {
	o := make(map[string]*ncsynth.Variable)
	next := d.Variables()
	for v := next(); v != nil; v = next() {
		o[v.Name()] = v
	}
	return o
}

func TestRangeCoordinates(t *testing.T) {
	tests := []struct {
		r    Range
		want []float32
	}{
		{Range{Min: 0, Max: 1, Steps: 5}, []float32{0, 0.25, 0.5, 0.75, 1}},
		{Range{Min: -50, Max: 50, Steps: 3}, []float32{-50, 0, 50}},
		{Range{Min: 5, Max: 7, Steps: 1}, []float32{5}},
	}
	for _, test := range tests {
		if got := test.r.Coordinates(); !reflect.DeepEqual(got, test.want) {
			t.Errorf("%+v: %v != %v", test.r, got, test.want)
		}
	}
	c := Range{Min: -22, Max: -10, Steps: 21}.Coordinates()
	if c[0] != -22 || c[20] != -10 {
		t.Errorf("ends of %v", c)
	}
}

func TestGridHours(t *testing.T) {
	tests := []struct {
		name string
		g    Grid
		n    int
		want []int
	}{
		{"default", Grid{}, 3, []int{0, 1, 2}},
		{"skip", Grid{SkipHours: []int{2, 3}}, 6, []int{0, 1, 4, 5}},
		{"offset step", Grid{HourOffset: 3, HourStep: 3}, 9, []int{3, 6, 9}},
		{"none", Grid{}, 0, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.g.hours(test.n); !reflect.DeepEqual(got, test.want) {
				t.Errorf("%v != %v", got, test.want)
			}
		})
	}
}

func TestScenarioDatasets(t *testing.T) {
	s, err := ReadScenario(strings.NewReader(smallScenario))
	if err != nil {
		t.Fatal(err)
	}
	start, end, err := s.Period()
	if err != nil {
		t.Fatal(err)
	}
	ds, err := s.Datasets(start, end, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 {
		t.Fatalf("%d datasets", len(ds))
	}
	d := ds[0]
	if want := []ncsynth.Attribute{{Key: "title", Value: "small"}}; !reflect.DeepEqual(d.Attributes(), want) {
		t.Errorf("attributes = %v", d.Attributes())
	}
	vars := variables(d)
	if len(vars) != 4 {
		t.Fatalf("variables = %v", vars)
	}

	b := vars["bathymetry"]
	if b.Shape() != ncsynth.Plain || b.Len() != 6 {
		t.Errorf("bathymetry: %s with %d points", b.Shape(), b.Len())
	}
	if v, ok := b.Value(ncsynth.Coord{Lat: 1, Lon: 12}); !ok || v != -13 {
		t.Errorf("bathymetry = %v, %v", v, ok)
	}

	temp := vars["temp"]
	if ln, _ := temp.Attribute("long_name"); ln != "temperature" {
		t.Errorf("long_name = %q", ln)
	}
	// Hour 1 is left out by the Where expression.
	wantDates := []time.Time{start, start.Add(2 * time.Hour)}
	if got := temp.Dates(); !reflect.DeepEqual(got, wantDates) {
		t.Errorf("dates = %v, want %v", got, wantDates)
	}
	c := ncsynth.Coord{Time: start.Add(2 * time.Hour), Lat: 1, Lon: 11, Depth: -2}
	if v, ok := temp.Value(c); !ok || v != 208 {
		t.Errorf("temp = %v, %v", v, ok)
	}
	if _, ok := temp.Value(ncsynth.Coord{Time: start.Add(time.Hour), Lat: 1, Lon: 11, Depth: -2}); ok {
		t.Error("temp has a value at hour 1")
	}

	vv := d.VectorVariables()
	if len(vv) != 1 || vv[0].Group() != "wind" {
		t.Fatalf("vector variables = %v", vv)
	}
	if v, ok := vv[0].V().Value(ncsynth.Coord{Time: start.Add(2 * time.Hour), Lat: 0, Lon: 10}); !ok || v != -2 {
		t.Errorf("wv = %v, %v", v, ok)
	}
	if len(vv[0].U().Dates()) != 3 {
		t.Errorf("wu dates = %v", vv[0].U().Dates())
	}
}

func TestReadScenarioInvalid(t *testing.T) {
	const header = `
StartDate = "2019-01-01T00:00:00Z"
EndDate = "2019-01-02T00:00:00Z"
`
	tests := []struct {
		name, toml string
	}{
		{"not toml", `StartDate = `},
		{"no dates", `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
`},
		{"bad date", `
StartDate = "yesterday"
EndDate = "2019-01-02T00:00:00Z"
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
`},
		{"no grids", header},
		{"no steps", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
`},
		{"reversed range", header + `
[[Grid]]
Lat = { Min = 1.0, Max = 0.5, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
`},
		{"unknown parameter", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Variable]]
  Name = "a"
  Value = "x + 1"
`},
		{"syntax error", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Variable]]
  Name = "a"
  Value = "(lat +"
`},
		{"no name", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Variable]]
  Value = "lat"
`},
		{"depth without depths", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Variable]]
  Name = "a"
  Depth = true
  Value = "depth"
`},
		{"vector shapes", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Vector]]
  Group = "wind"
  U = { Name = "u", Time = true, Value = "lat" }
  V = { Name = "v", Value = "lon" }
`},
		{"vector component missing", header + `
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Vector]]
  Group = "wind"
  U = { Name = "u", Value = "lat" }
`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ReadScenario(strings.NewReader(test.toml)); err == nil {
				t.Error("no error")
			}
		})
	}
}

func TestScenarioDatasetsPeriod(t *testing.T) {
	s, err := ReadScenario(strings.NewReader(smallScenario))
	if err != nil {
		t.Fatal(err)
	}
	start, _, _ := s.Period()
	if _, err := s.Datasets(start, start, 1); err == nil {
		t.Error("empty period accepted")
	}
}

func TestScenarioDatasetsSeed(t *testing.T) {
	const noisy = `
StartDate = "2019-01-01T00:00:00Z"
EndDate = "2019-01-01T02:00:00Z"
[[Grid]]
Lat = { Min = 0.0, Max = 1.0, Steps = 2 }
Lon = { Min = 0.0, Max = 1.0, Steps = 2 }
  [[Grid.Variable]]
  Name = "noise"
  Time = true
  Value = "random()"
`
	s, err := ReadScenario(strings.NewReader(noisy))
	if err != nil {
		t.Fatal(err)
	}
	start, end, _ := s.Period()
	values := func(seed int64) []float64 {
		ds, err := s.Datasets(start, end, seed)
		if err != nil {
			t.Fatal(err)
		}
		v := variables(ds[0])["noise"]
		var o []float64
		for _, k := range v.Keys() {
			x, _ := v.ValueAt(k)
			o = append(o, x)
		}
		return o
	}
	a, b, c := values(7), values(7), values(8)
	if len(a) != 8 {
		t.Fatalf("%d values", len(a))
	}
	if !floats.Equal(a, b) {
		t.Errorf("same seed: %v != %v", a, b)
	}
	if floats.Equal(a, c) {
		t.Errorf("different seeds give the same values %v", a)
	}
	for _, x := range a {
		if x < 0 || x >= 1 {
			t.Errorf("random() = %v", x)
		}
	}
}

func TestExprFunctions(t *testing.T) {
	fns := exprFunctions(rand.New(rand.NewSource(1)))
	tests := []struct {
		expr   string
		params map[string]interface{}
		want   float64
	}{
		{"abs(-2) + sqrt(9)", nil, 5},
		{"sin(0) + cos(0)", nil, 1},
		{"abs((hour + lat + lon) % 40 - 20)", map[string]interface{}{"hour": 1.0, "lat": -22.0, "lon": 142.0}, 19},
		{"(hour - lat) % 40", map[string]interface{}{"hour": 0.0, "lat": 50.0}, -10},
		// sin(0) is the middle of the range.
		{"linear(0, 0, 0, 10, 50, 0, 0)", nil, 5},
		// A quarter wavelength along the rotated axis is the maximum.
		{"linear(0, 12.5, 0, 10, 50, 90, 0)", nil, 10},
		// cos(0) + sin(0) = 1 is three quarters of the range.
		{"radial(0, 0, -10, 2, 50, 0)", nil, -1},
	}
	for _, test := range tests {
		t.Run(test.expr, func(t *testing.T) {
			e, err := compileExpr(test.expr, fns)
			if err != nil {
				t.Fatal(err)
			}
			got, err := e.Evaluate(test.params)
			if err != nil {
				t.Fatal(err)
			}
			if !floats.EqualWithinAbs(got.(float64), test.want, 1e-9) {
				t.Errorf("%v != %v", got, test.want)
			}
		})
	}

	for _, bad := range []string{"abs(1, 2)", "linear(1)", "random(1)"} {
		e, err := compileExpr(bad, fns)
		if err != nil {
			continue
		}
		if _, err := e.Evaluate(nil); err == nil {
			t.Errorf("%s: no error", bad)
		}
	}
}

func TestNoisyGradientsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		lat, lon := rng.Float64()*100-50, rng.Float64()*100-50
		if v := linearGradient(rng, lat, lon, 0, 10, 50, 30, 1); v < 0 || v > 10 || math.IsNaN(v) {
			t.Fatalf("linear = %v", v)
		}
		if v := radialGradient(rng, lat, lon, -10, 2, 50, 1); v < -10 || v > 2 || math.IsNaN(v) {
			t.Fatalf("radial = %v", v)
		}
	}
}
