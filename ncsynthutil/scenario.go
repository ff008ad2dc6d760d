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
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Knetic/govaluate"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spatialmodel/ncsynth"
	"github.com/spf13/cast"
)

// Scenario describes the contents of a synthetic file. Each Grid becomes
// one hypercube. Values are expressions of the parameters hour, lat, lon
// and depth, where hour counts from StartDate.
type Scenario struct {
	// StartDate (inclusive) and EndDate (exclusive) bound the hours
	// that are generated, in RFC 3339 format.
	StartDate, EndDate string

	// Attributes are global attributes of the file.
	Attributes map[string]string

	Grids []*Grid `toml:"Grid"`
}

// Grid is one set of axes and the variables defined on it.
type Grid struct {
	Lat, Lon Range
	Depths   []float64

	// HourOffset is the first hour generated. Hours advance by HourStep
	// (default 1) for as many hours as lie between StartDate and EndDate.
	HourOffset, HourStep int

	// SkipHours are hours for which no data is generated at all.
	SkipHours []int

	Attributes map[string]string

	Variables []*VariableSpec `toml:"Variable"`
	Vectors   []*VectorSpec   `toml:"Vector"`
}

// Range is a set of Steps evenly spaced coordinates from Min to Max.
type Range struct {
	Min, Max float64
	Steps    int
}

// VariableSpec describes one variable.
type VariableSpec struct {
	Name, Units string

	// Time and Depth set whether the variable varies with time and depth.
	Time, Depth bool

	// Value is the expression giving the value at each point.
	Value string

	// Where, if set, is a boolean expression. Points where it is false
	// are left empty.
	Where string

	Attributes map[string]string
}

// VectorSpec describes a vector variable from its eastward and
// northward components.
type VectorSpec struct {
	Group string
	U, V  *VariableSpec
}

// Validate implements validation.Validatable.
func (s *Scenario) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.StartDate, validation.Required, validation.Date(time.RFC3339)),
		validation.Field(&s.EndDate, validation.Required, validation.Date(time.RFC3339)),
		validation.Field(&s.Grids, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (g *Grid) Validate() error {
	needDepth := func(value interface{}) error {
		if len(g.Depths) > 0 {
			return nil
		}
		for _, v := range g.Variables {
			if v != nil && v.Depth {
				return fmt.Errorf("variable %s varies with depth but there are no depths", v.Name)
			}
		}
		for _, v := range g.Vectors {
			if v != nil && v.U != nil && v.U.Depth {
				return fmt.Errorf("vector %s varies with depth but there are no depths", v.Group)
			}
		}
		return nil
	}
	return validation.ValidateStruct(g,
		validation.Field(&g.Lat),
		validation.Field(&g.Lon),
		validation.Field(&g.Depths, validation.By(needDepth)),
		validation.Field(&g.HourOffset, validation.Min(0)),
		validation.Field(&g.HourStep, validation.Min(0)),
		validation.Field(&g.Variables),
		validation.Field(&g.Vectors),
	)
}

// Validate implements validation.Validatable.
func (r Range) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Max, validation.Min(r.Min)),
		validation.Field(&r.Steps, validation.Required, validation.Min(1)),
	)
}

// Validate implements validation.Validatable.
func (v *VariableSpec) Validate() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.Name, validation.Required),
		validation.Field(&v.Value, validation.Required, validation.By(checkExpr)),
		validation.Field(&v.Where, validation.By(checkExpr)),
	)
}

// Validate implements validation.Validatable.
func (v *VectorSpec) Validate() error {
	sameShape := func(value interface{}) error {
		if v.U == nil || v.V == nil {
			return nil
		}
		if v.U.Time != v.V.Time || v.U.Depth != v.V.Depth {
			return errors.New("must vary with time and depth the same way as U")
		}
		return nil
	}
	return validation.ValidateStruct(v,
		validation.Field(&v.Group, validation.Required),
		validation.Field(&v.U, validation.Required),
		validation.Field(&v.V, validation.Required, validation.By(sameShape)),
	)
}

func checkExpr(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := compileExpr(s, exprFunctions(nil))
	return err
}

// Coordinates returns the coordinates in r.
func (r Range) Coordinates() []float32 {
	o := make([]float32, r.Steps)
	if r.Steps == 1 {
		o[0] = float32(r.Min)
		return o
	}
	min, max := float32(r.Min), float32(r.Max)
	for i := range o {
		o[i] = min + (max-min)*float32(i)/float32(r.Steps-1)
	}
	return o
}

// hours returns the hours generated for g when nbHours hours are
// requested.
func (g *Grid) hours(nbHours int) []int {
	step := g.HourStep
	if step <= 0 {
		step = 1
	}
	skip := make(map[int]bool)
	for _, h := range g.SkipHours {
		skip[h] = true
	}
	var o []int
	for h := g.HourOffset; h < nbHours+g.HourOffset; h += step {
		if !skip[h] {
			o = append(o, h)
		}
	}
	return o
}

// ReadScenario reads and validates a TOML scenario.
func ReadScenario(r io.Reader) (*Scenario, error) {
	s := new(Scenario)
	if _, err := toml.DecodeReader(r, s); err != nil {
		return nil, fmt.Errorf("ncsynthutil: reading scenario: %v", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("ncsynthutil: invalid scenario: %v", err)
	}
	return s, nil
}

// LoadScenario reads and validates the TOML scenario in file path.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncsynthutil: opening scenario: %v", err)
	}
	defer f.Close()
	return ReadScenario(f)
}

// Period returns the scenario's start and end dates.
func (s *Scenario) Period() (start, end time.Time, err error) {
	start, err = cast.ToTimeE(s.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("ncsynthutil: StartDate: %v", err)
	}
	end, err = cast.ToTimeE(s.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("ncsynthutil: EndDate: %v", err)
	}
	return start, end, nil
}

// Datasets evaluates the scenario for the whole hours between start and
// end. The noise in the values is drawn from a source seeded with seed,
// so the same arguments always give the same datasets.
func (s *Scenario) Datasets(start, end time.Time, seed int64) ([]*ncsynth.Dataset, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("ncsynthutil: end date %v is not after start date %v", end, start)
	}
	nbHours := int(end.Sub(start) / time.Hour)
	fns := exprFunctions(rand.New(rand.NewSource(seed)))
	var o []*ncsynth.Dataset
	for i, g := range s.Grids {
		d, err := g.dataset(start, nbHours, fns)
		if err != nil {
			return nil, fmt.Errorf("ncsynthutil: grid %d: %v", i, err)
		}
		setAttributes(d.SetAttribute, s.Attributes)
		o = append(o, d)
	}
	return o, nil
}

// setAttributes sets the attributes in m in key order.
func setAttributes(set func(k, v string), m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, m[k])
	}
}

// expr is a compiled VariableSpec.
type expr struct {
	v            *ncsynth.Variable
	value, where *govaluate.EvaluableExpression
}

func (vs *VariableSpec) compile(fns map[string]govaluate.ExpressionFunction) (*expr, error) {
	var v *ncsynth.Variable
	switch {
	case vs.Time && vs.Depth:
		v = ncsynth.NewTimeDepthVariable(vs.Name, vs.Units)
	case vs.Time:
		v = ncsynth.NewTimeVariable(vs.Name, vs.Units)
	case vs.Depth:
		v = ncsynth.NewDepthVariable(vs.Name, vs.Units)
	default:
		v = ncsynth.NewVariable(vs.Name, vs.Units)
	}
	setAttributes(v.SetAttribute, vs.Attributes)
	e := &expr{v: v}
	var err error
	if e.value, err = compileExpr(vs.Value, fns); err != nil {
		return nil, err
	}
	if vs.Where != "" {
		if e.where, err = compileExpr(vs.Where, fns); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// eval adds the value of e at c to its variable. p holds the parameters
// other than the coordinates.
func (e *expr) eval(c ncsynth.Coord, p map[string]interface{}) error {
	p["lat"] = float64(c.Lat)
	p["lon"] = float64(c.Lon)
	p["depth"] = c.Depth
	if e.where != nil {
		w, err := e.where.Evaluate(p)
		if err != nil {
			return fmt.Errorf("%s: %v", e.v.Name(), err)
		}
		keep, ok := w.(bool)
		if !ok {
			return fmt.Errorf("%s: Where expression gives %T, not a boolean", e.v.Name(), w)
		}
		if !keep {
			return nil
		}
	}
	val, err := e.value.Evaluate(p)
	if err != nil {
		return fmt.Errorf("%s: %v", e.v.Name(), err)
	}
	f, ok := val.(float64)
	if !ok {
		return fmt.Errorf("%s: Value expression gives %T, not a number", e.v.Name(), val)
	}
	e.v.AddDataPoint(c, f)
	return nil
}

func (g *Grid) dataset(start time.Time, nbHours int, fns map[string]govaluate.ExpressionFunction) (*ncsynth.Dataset, error) {
	d := ncsynth.NewDataset()
	setAttributes(d.SetAttribute, g.Attributes)
	var timed, static []*expr
	add := func(e *expr) {
		if e.v.Shape().HasTime() {
			timed = append(timed, e)
		} else {
			static = append(static, e)
		}
	}
	for _, vs := range g.Variables {
		e, err := vs.compile(fns)
		if err != nil {
			return nil, err
		}
		d.AddVariable(e.v)
		add(e)
	}
	for _, vs := range g.Vectors {
		u, err := vs.U.compile(fns)
		if err != nil {
			return nil, err
		}
		v, err := vs.V.compile(fns)
		if err != nil {
			return nil, err
		}
		vv, err := ncsynth.NewVectorVariable(vs.Group, u.v, v.v)
		if err != nil {
			return nil, err
		}
		d.AddVectorVariable(vv)
		add(u)
		add(v)
	}

	lats, lons := g.Lat.Coordinates(), g.Lon.Coordinates()
	p := map[string]interface{}{"hour": 0.0}
	frame := func(t time.Time, exprs []*expr) error {
		for _, lat := range lats {
			for _, lon := range lons {
				for _, e := range exprs {
					c := ncsynth.Coord{Time: t, Lat: lat, Lon: lon}
					if !e.v.Shape().HasDepth() {
						if err := e.eval(c, p); err != nil {
							return err
						}
						continue
					}
					for _, z := range g.Depths {
						c.Depth = z
						if err := e.eval(c, p); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	}
	if err := frame(time.Time{}, static); err != nil {
		return nil, err
	}
	if len(timed) == 0 {
		return d, nil
	}
	for _, h := range g.hours(nbHours) {
		p["hour"] = float64(h)
		if err := frame(start.Add(time.Duration(h)*time.Hour), timed); err != nil {
			return nil, fmt.Errorf("hour %d: %v", h, err)
		}
	}
	return d, nil
}
