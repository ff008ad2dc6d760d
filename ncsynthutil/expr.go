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
	"fmt"
	"math"
	"math/rand"

	"github.com/Knetic/govaluate"
)

// exprParams are the parameters available to scenario expressions.
var exprParams = []string{"hour", "lat", "lon", "depth"}

// exprFunctions returns the functions available to scenario expressions.
// random and the noise terms of linear and radial draw from rng.
//
// 'abs(x)', 'sin(x)', 'cos(x)' and 'sqrt(x)' are the usual math functions.
//
// 'random()' returns a number in [0, 1).
//
// 'linear(lat, lon, min, max, wavelength, angle, noise)' draws parallel
// bands between min and max, rotated by angle degrees.
//
// 'radial(lat, lon, min, max, diameter, noise)' draws a field of round
// blobs between min and max.
func exprFunctions(rng *rand.Rand) map[string]govaluate.ExpressionFunction {
	unary := func(name string, f func(float64) float64) govaluate.ExpressionFunction {
		return func(args ...interface{}) (interface{}, error) {
			x, err := floatArgs(name, 1, args)
			if err != nil {
				return nil, err
			}
			return f(x[0]), nil
		}
	}
	return map[string]govaluate.ExpressionFunction{
		"abs":  unary("abs", math.Abs),
		"sin":  unary("sin", math.Sin),
		"cos":  unary("cos", math.Cos),
		"sqrt": unary("sqrt", math.Sqrt),
		"random": func(args ...interface{}) (interface{}, error) {
			if len(args) != 0 {
				return nil, fmt.Errorf("ncsynthutil: got %d arguments for function 'random', but needs 0", len(args))
			}
			return rng.Float64(), nil
		},
		"linear": func(args ...interface{}) (interface{}, error) {
			x, err := floatArgs("linear", 7, args)
			if err != nil {
				return nil, err
			}
			return linearGradient(rng, x[0], x[1], x[2], x[3], x[4], x[5], x[6]), nil
		},
		"radial": func(args ...interface{}) (interface{}, error) {
			x, err := floatArgs("radial", 6, args)
			if err != nil {
				return nil, err
			}
			return radialGradient(rng, x[0], x[1], x[2], x[3], x[4], x[5]), nil
		},
	}
}

func floatArgs(name string, n int, args []interface{}) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("ncsynthutil: got %d arguments for function '%s', but needs %d", len(args), name, n)
	}
	o := make([]float64, n)
	for i, a := range args {
		f, ok := a.(float64)
		if !ok {
			return nil, fmt.Errorf("ncsynthutil: argument %d of function '%s' is %T, not a number", i+1, name, a)
		}
		o[i] = f
	}
	return o, nil
}

// jitter moves a coordinate by up to ±45*noise degrees.
func jitter(rng *rand.Rand, x, noise float64) float64 {
	if noise == 0 {
		return x
	}
	return x + (rng.Float64()-0.5)*90*noise
}

func linearGradient(rng *rand.Rand, lat, lon, min, max, wavelength, angle, noise float64) float64 {
	lat, lon = jitter(rng, lat, noise), jitter(rng, lon, noise)
	rad := angle * math.Pi / 180
	w := math.Sin(2 * math.Pi * (lat*math.Cos(rad) + lon*math.Sin(rad)) / wavelength)
	return min + (w+1)/2*(max-min)
}

func radialGradient(rng *rand.Rand, lat, lon, min, max, diameter, noise float64) float64 {
	lat, lon = jitter(rng, lat, noise), jitter(rng, lon, noise)
	w := math.Cos(2*math.Pi*lat/diameter) + math.Sin(2*math.Pi*lon/diameter)
	return min + (w+2)/4*(max-min)
}

// compileExpr parses expression and checks that it only refers to the
// known parameters.
func compileExpr(expression string, fns map[string]govaluate.ExpressionFunction) (*govaluate.EvaluableExpression, error) {
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expression, fns)
	if err != nil {
		return nil, fmt.Errorf("ncsynthutil: parsing expression '%s': %v", expression, err)
	}
	for _, v := range e.Vars() {
		known := false
		for _, p := range exprParams {
			known = known || v == p
		}
		if !known {
			return nil, fmt.Errorf("ncsynthutil: expression '%s' uses unknown variable '%s'; "+
				"available variables are %v", expression, v, exprParams)
		}
	}
	return e, nil
}
