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

// Unlimited is the length of a dimension that grows as records are
// written.
const Unlimited = -1

// DataType is the storage type of a field.
type DataType int

// Field storage types.
const (
	Int DataType = iota
	Float
	Double
)

func (t DataType) String() string {
	switch t {
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// A Sink receives the structure and the data of an array file.
// All declarations happen before Commit, all writes after it.
type Sink interface {
	// DeclareDimension declares a dimension of the given length, or
	// Unlimited.
	DeclareDimension(name string, length int) error

	// DeclareField declares a field with the given dimensions,
	// outermost first.
	DeclareField(name string, t DataType, dims []string) error

	// SetAttribute sets an attribute of a field, or a global attribute
	// if field is empty. Values are strings or slices of
	// int32, float32 or float64.
	SetAttribute(field, key string, value interface{}) error

	// Commit ends the declaration phase.
	Commit() error

	// WriteBlock writes a dense block of values, in row-major order, whose
	// corner is at origin and whose extent along each dimension is shape.
	// values is a []int32, []float32 or []float64 matching the field type.
	WriteBlock(field string, origin, shape []int, values interface{}) error

	// Flush makes the data written so far durable.
	Flush() error

	// Close releases the sink.
	Close() error
}
