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
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// TimeEpoch is the origin of the time axis of generated files.
var TimeEpoch = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

// TimeUnits is the units attribute of the time axis.
const TimeUnits = "hours since 1990-01-01"

// HoursSinceEpoch returns the number of whole hours between TimeEpoch
// and t, truncated toward zero.
func HoursSinceEpoch(t time.Time) int32 {
	return int32(t.Sub(TimeEpoch) / time.Hour)
}

// Names of the axes. Each dataset after the first adds its index to them.
const (
	latName   = "lat"
	lonName   = "lon"
	timeName  = "time"
	depthName = "zc"
)

// Generator writes datasets as dense grids.
type Generator struct {
	// Log receives progress messages.
	Log logrus.FieldLogger
}

// NewGenerator returns a generator that logs to the standard logrus
// logger.
func NewGenerator() *Generator {
	return &Generator{Log: logrus.StandardLogger()}
}

func (g *Generator) log() logrus.FieldLogger {
	if g == nil || g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

// Generate writes datasets to a new NetCDF file at path using a default
// Generator.
func Generate(path string, datasets ...*Dataset) error {
	return NewGenerator().Generate(path, datasets...)
}

// Generate writes datasets to a new NetCDF file at path. The file is
// written next to path under a temporary name and renamed to path once
// it is complete, so a failed run leaves any existing file at path
// untouched.
func (g *Generator) Generate(path string, datasets ...*Dataset) error {
	if path == "" {
		return fmt.Errorf("ncsynth: %w: no output file", ErrPrecondition)
	}
	if err := checkDatasets(datasets); err != nil {
		return err
	}
	f, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".")
	if err != nil {
		return fmt.Errorf("ncsynth: creating output file: %w", err)
	}
	tmp := f.Name()
	if err := g.Materialize(NewCDFSink(f), datasets...); err != nil {
		f.Close()
		if rmErr := os.Remove(tmp); rmErr != nil {
			g.log().WithError(rmErr).Warnf("ncsynth: removing incomplete file %s", tmp)
		}
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ncsynth: creating output file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ncsynth: moving output file into place: %w", err)
	}
	return nil
}

func checkDatasets(datasets []*Dataset) error {
	if len(datasets) == 0 {
		return fmt.Errorf("ncsynth: %w: no datasets", ErrPrecondition)
	}
	for i, d := range datasets {
		if d == nil {
			return fmt.Errorf("ncsynth: %w: dataset %d is nil", ErrPrecondition, i)
		}
	}
	return nil
}

// Materialize writes every dataset to s as its own hypercube and then
// flushes and closes s. The first dataset's axes are called lat, lon,
// time and zc; the axes of dataset i > 0 are suffixed with i. The time
// axis of the first dataset with time-varying variables is the record
// dimension; the time axes of later datasets have a fixed length.
//
// s is flushed and closed whenever Materialize gets past its argument
// checks, and the first error encountered is returned.
func (g *Generator) Materialize(s Sink, datasets ...*Dataset) (err error) {
	if s == nil {
		return fmt.Errorf("ncsynth: %w: no sink", ErrPrecondition)
	}
	if err := checkDatasets(datasets); err != nil {
		return err
	}
	start := time.Now()
	log := g.log()

	defer func() {
		if ferr := s.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err == nil {
			log.WithField("elapsed", time.Since(start)).Info("ncsynth finished writing file")
		}
	}()

	p, err := plan(datasets)
	if err != nil {
		return err
	}
	if err := p.declare(s); err != nil {
		return err
	}
	if err := s.Commit(); err != nil {
		return err
	}
	for _, c := range p.cubes {
		log.WithFields(logrus.Fields{
			"dataset":   c.index,
			"lat":       len(c.axes.Latitudes),
			"lon":       len(c.axes.Longitudes),
			"depth":     len(c.axes.Depths),
			"records":   len(c.times),
			"variables": len(c.fields),
		}).Info("ncsynth writing hypercube")
		if err := c.writeAxes(s); err != nil {
			return err
		}
		if err := c.writeData(s, log); err != nil {
			return err
		}
	}
	return nil
}

// layout is the arrangement of a set of datasets in one file.
type layout struct {
	cubes  []*cube
	global cdfAttrs
}

// cube is the arrangement of one dataset.
type cube struct {
	index  int
	suffix string
	axes   Axes
	times  []time.Time

	// timeLen is the length of the time dimension, or 0 if the dataset
	// has no time-varying variables.
	timeLen int

	fields []*field
}

func (c *cube) name(axis string) string { return axis + c.suffix }

// field is a variable together with the buffer it is written from.
type field struct {
	v    *Variable
	dims []string
	fill float64
	buf  *sparse.DenseArray
}

func plan(datasets []*Dataset) (*layout, error) {
	p := new(layout)
	names := make(map[string]int)
	claim := func(i int, name string) error {
		if j, ok := names[name]; ok {
			return fmt.Errorf("ncsynth: %w: name %q used in dataset %d and dataset %d",
				ErrConflict, name, j, i)
		}
		names[name] = i
		return nil
	}
	unlimited := false
	var bounds *geom.Bounds

	for i, d := range datasets {
		c := &cube{index: i, axes: d.Axes()}
		if i > 0 {
			c.suffix = strconv.Itoa(i)
		}
		if len(c.axes.Latitudes) == 0 || len(c.axes.Longitudes) == 0 {
			return nil, fmt.Errorf("ncsynth: %w: dataset %d has no data points", ErrConflict, i)
		}
		axes := []string{latName, lonName}
		if d.HasTime() {
			c.times = d.Times()
			if len(c.times) == 0 {
				return nil, fmt.Errorf("ncsynth: %w: dataset %d has time-varying variables but no timestamps",
					ErrConflict, i)
			}
			c.timeLen = len(c.times)
			if !unlimited {
				c.timeLen = Unlimited
				unlimited = true
			}
			axes = append(axes, timeName)
		}
		if d.HasDepth() {
			if len(c.axes.Depths) == 0 {
				return nil, fmt.Errorf("ncsynth: %w: dataset %d has depth-varying variables but no depths",
					ErrConflict, i)
			}
			axes = append(axes, depthName)
		}
		for _, a := range axes {
			if err := claim(i, c.name(a)); err != nil {
				return nil, err
			}
		}

		next := d.Variables()
		for v := next(); v != nil; v = next() {
			if err := claim(i, v.Name()); err != nil {
				return nil, err
			}
			f, err := c.newField(v)
			if err != nil {
				return nil, err
			}
			c.fields = append(c.fields, f)
		}

		for _, a := range d.Attributes() {
			if err := p.addGlobal(a); err != nil {
				return nil, err
			}
		}
		if b := d.Bounds(); b != nil {
			if bounds == nil {
				bounds = b
			} else {
				bounds.Extend(b)
			}
		}
		p.cubes = append(p.cubes, c)
	}

	p.defaultGlobal("Conventions", "CF-1.6")
	if bounds != nil {
		p.defaultGlobal("geospatial_lat_min", []float64{bounds.Min.Y})
		p.defaultGlobal("geospatial_lat_max", []float64{bounds.Max.Y})
		p.defaultGlobal("geospatial_lon_min", []float64{bounds.Min.X})
		p.defaultGlobal("geospatial_lon_max", []float64{bounds.Max.X})
	}
	return p, nil
}

// addGlobal adds a global attribute, failing if another dataset set it
// to a different value.
func (p *layout) addGlobal(a Attribute) error {
	for _, g := range p.global {
		if g.key != a.Key {
			continue
		}
		if g.value != a.Value {
			return fmt.Errorf("ncsynth: %w: global attribute %q is both %q and %q",
				ErrConflict, a.Key, g.value, a.Value)
		}
		return nil
	}
	p.global.set(a.Key, a.Value)
	return nil
}

func (p *layout) defaultGlobal(k string, v interface{}) {
	for _, g := range p.global {
		if g.key == k {
			return
		}
	}
	p.global.set(k, v)
}

// newField lays out v in c. Variables are stored as doubles, and cells
// without data get the variable's fill value, NaN unless the variable
// sets _FillValue.
func (c *cube) newField(v *Variable) (*field, error) {
	f := &field{v: v, fill: math.NaN()}
	if s, ok := v.Attribute("_FillValue"); ok {
		fv, err := cast.ToFloat64E(s)
		if err != nil {
			return nil, fmt.Errorf("ncsynth: variable %s: %w: invalid _FillValue %q",
				v.Name(), ErrConflict, s)
		}
		f.fill = fv
	}
	shape := []int{len(c.axes.Latitudes), len(c.axes.Longitudes)}
	switch v.Shape() {
	case Plain:
		f.dims = []string{c.name(latName), c.name(lonName)}
	case TimeOnly:
		f.dims = []string{c.name(timeName), c.name(latName), c.name(lonName)}
	case DepthOnly:
		f.dims = []string{c.name(latName), c.name(lonName), c.name(depthName)}
		shape = append(shape, len(c.axes.Depths))
	case TimeAndDepth:
		f.dims = []string{c.name(timeName), c.name(latName), c.name(lonName), c.name(depthName)}
		shape = append(shape, len(c.axes.Depths))
	default:
		return nil, fmt.Errorf("ncsynth: variable %s: unknown shape %s", v.Name(), v.Shape())
	}
	f.buf = sparse.ZerosDense(shape...)
	return f, nil
}

func (p *layout) declare(s Sink) error {
	for _, c := range p.cubes {
		if err := c.declare(s); err != nil {
			return err
		}
	}
	for _, a := range p.global {
		if err := s.SetAttribute("", a.key, a.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *cube) declare(s Sink) error {
	lat, lon := c.name(latName), c.name(lonName)
	if err := s.DeclareDimension(lat, len(c.axes.Latitudes)); err != nil {
		return err
	}
	if err := s.DeclareDimension(lon, len(c.axes.Longitudes)); err != nil {
		return err
	}
	if c.timeLen != 0 {
		if err := s.DeclareDimension(c.name(timeName), c.timeLen); err != nil {
			return err
		}
	}
	if len(c.axes.Depths) > 0 {
		if err := s.DeclareDimension(c.name(depthName), len(c.axes.Depths)); err != nil {
			return err
		}
	}

	if err := declareAxis(s, lat, Float, cdfAttrs{
		{"units", "degrees_north"},
		{"standard_name", "latitude"},
		{"long_name", "latitude"},
		{"axis", "Y"},
	}); err != nil {
		return err
	}
	if err := declareAxis(s, lon, Float, cdfAttrs{
		{"units", "degrees_east"},
		{"standard_name", "longitude"},
		{"long_name", "longitude"},
		{"axis", "X"},
	}); err != nil {
		return err
	}
	if c.timeLen != 0 {
		if err := declareAxis(s, c.name(timeName), Int, cdfAttrs{
			{"units", TimeUnits},
			{"standard_name", "time"},
			{"long_name", "time"},
			{"axis", "T"},
		}); err != nil {
			return err
		}
	}
	if len(c.axes.Depths) > 0 {
		if err := declareAxis(s, c.name(depthName), Double, cdfAttrs{
			{"units", "m"},
			{"standard_name", "depth"},
			{"long_name", "depth"},
			{"positive", "up"},
			{"axis", "Z"},
		}); err != nil {
			return err
		}
	}

	for _, f := range c.fields {
		if err := s.DeclareField(f.v.Name(), Double, f.dims); err != nil {
			return err
		}
		for _, a := range f.v.Attributes() {
			if a.Key == "_FillValue" {
				continue
			}
			if err := s.SetAttribute(f.v.Name(), a.Key, a.Value); err != nil {
				return err
			}
		}
		if err := s.SetAttribute(f.v.Name(), "_FillValue", []float64{f.fill}); err != nil {
			return err
		}
	}
	return nil
}

func declareAxis(s Sink, name string, t DataType, attrs cdfAttrs) error {
	if err := s.DeclareField(name, t, []string{name}); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := s.SetAttribute(name, a.key, a.value); err != nil {
			return err
		}
	}
	return nil
}

func (c *cube) writeAxes(s Sink) error {
	lats, lons := c.axes.Latitudes, c.axes.Longitudes
	if err := s.WriteBlock(c.name(latName), []int{0}, []int{len(lats)}, lats); err != nil {
		return err
	}
	if err := s.WriteBlock(c.name(lonName), []int{0}, []int{len(lons)}, lons); err != nil {
		return err
	}
	if z := c.axes.Depths; len(z) > 0 {
		if err := s.WriteBlock(c.name(depthName), []int{0}, []int{len(z)}, z); err != nil {
			return err
		}
	}
	return nil
}

// writeData writes the variables that do not vary with time once, and
// then one record per timestamp for the others.
func (c *cube) writeData(s Sink, log logrus.FieldLogger) error {
	var timed []*field
	for _, f := range c.fields {
		if f.v.Shape().HasTime() {
			timed = append(timed, f)
			continue
		}
		f.load(c, time.Time{})
		if err := s.WriteBlock(f.v.Name(), make([]int, len(f.buf.Shape)), f.buf.Shape, f.buf.Elements); err != nil {
			return err
		}
	}
	if c.timeLen == 0 {
		return nil
	}
	tName := c.name(timeName)
	for r, t := range c.times {
		h := HoursSinceEpoch(t)
		log.WithFields(logrus.Fields{
			"dataset": c.index,
			"record":  r,
			"time":    t,
		}).Debug("ncsynth writing record")
		if err := s.WriteBlock(tName, []int{r}, []int{1}, []int32{h}); err != nil {
			return err
		}
		for _, f := range timed {
			f.load(c, t)
			origin := make([]int, len(f.buf.Shape)+1)
			origin[0] = r
			shape := append([]int{1}, f.buf.Shape...)
			if err := s.WriteBlock(f.v.Name(), origin, shape, f.buf.Elements); err != nil {
				return err
			}
		}
	}
	return nil
}

// load refills every cell of the buffer of f with the values of f at
// time t, which is ignored by variables that do not vary with time.
// The buffer is filled in row-major order: latitude, longitude, depth.
func (f *field) load(c *cube, t time.Time) {
	e := f.buf.Elements
	n := 0
	set := func(co Coord) {
		if val, ok := f.v.Value(co); ok {
			e[n] = val
		} else {
			e[n] = f.fill
		}
		n++
	}
	depth := f.v.Shape().HasDepth()
	for _, lat := range c.axes.Latitudes {
		for _, lon := range c.axes.Longitudes {
			if !depth {
				set(Coord{Time: t, Lat: lat, Lon: lon})
				continue
			}
			for _, z := range c.axes.Depths {
				set(Coord{Time: t, Lat: lat, Lon: lon, Depth: z})
			}
		}
	}
}
