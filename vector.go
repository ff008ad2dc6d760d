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

import "fmt"

// VectorVariable pairs the eastward (U) and northward (V) components of
// a vector field such as a current or the wind. Both components are
// written as ordinary scalar variables.
type VectorVariable struct {
	group string
	u, v  *Variable
}

// NewVectorVariable groups u and v under the given name and sets their
// standard_name attributes to "eastward_<group>" and
// "northward_<group>". u and v must have the same Shape.
func NewVectorVariable(group string, u, v *Variable) (*VectorVariable, error) {
	if u == nil || v == nil {
		return nil, fmt.Errorf("ncsynth: vector variable %q: %w: missing component", group, ErrPrecondition)
	}
	if u.Shape() != v.Shape() {
		return nil, fmt.Errorf("ncsynth: vector variable %q: %w: u is %s but v is %s",
			group, ErrPrecondition, u.Shape(), v.Shape())
	}
	u.SetAttribute("standard_name", "eastward_"+group)
	v.SetAttribute("standard_name", "northward_"+group)
	return &VectorVariable{group: group, u: u, v: v}, nil
}

// Group returns the name of the vector quantity, e.g. "wind".
func (vv *VectorVariable) Group() string { return vv.group }

// U returns the eastward component.
func (vv *VectorVariable) U() *Variable { return vv.u }

// V returns the northward component.
func (vv *VectorVariable) V() *Variable { return vv.v }

// Shape returns the shape shared by both components.
func (vv *VectorVariable) Shape() Shape { return vv.u.Shape() }
