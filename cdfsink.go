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
	"io"
	"os"

	"github.com/ctessum/cdf"
)

// CDFSink is a Sink that writes a NetCDF classic file. The cdf package
// panics on malformed headers, so declarations are checked and buffered
// here and only turned into a header by Commit.
type CDFSink struct {
	f *os.File

	dims   []cdfDim
	fields []*cdfField
	global cdfAttrs

	file   *cdf.File
	closed bool
}

type cdfDim struct {
	name   string
	length int
}

type cdfField struct {
	name  string
	t     DataType
	dims  []string
	attrs cdfAttrs
}

type cdfAttr struct {
	key   string
	value interface{}
}

// cdfAttrs keeps attributes in the order they were first set.
type cdfAttrs []cdfAttr

func (a *cdfAttrs) set(k string, v interface{}) {
	for i := range *a {
		if (*a)[i].key == k {
			(*a)[i].value = v
			return
		}
	}
	*a = append(*a, cdfAttr{key: k, value: v})
}

// NewCDFSink returns a sink writing to f, which must be open for
// reading and writing. The sink takes ownership of f.
func NewCDFSink(f *os.File) *CDFSink {
	return &CDFSink{f: f}
}

// CreateCDF creates (or truncates) the file at path and returns a sink
// writing to it.
func CreateCDF(path string) (*CDFSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ncsynth: creating output file: %w", err)
	}
	return NewCDFSink(f), nil
}

func (s *CDFSink) declaring(op string) error {
	if s.closed {
		return fmt.Errorf("ncsynth: %s: sink is closed", op)
	}
	if s.file != nil {
		return fmt.Errorf("ncsynth: %s: structure already committed", op)
	}
	return nil
}

func (s *CDFSink) dim(name string) (cdfDim, bool) {
	for _, d := range s.dims {
		if d.name == name {
			return d, true
		}
	}
	return cdfDim{}, false
}

func (s *CDFSink) field(name string) *cdfField {
	for _, f := range s.fields {
		if f.name == name {
			return f
		}
	}
	return nil
}

// DeclareDimension implements Sink. A file can have only one Unlimited
// dimension, and fixed dimensions must have a positive length.
func (s *CDFSink) DeclareDimension(name string, length int) error {
	if err := s.declaring("declaring dimension"); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("ncsynth: dimension with empty name: %w", ErrConflict)
	}
	if _, ok := s.dim(name); ok {
		return fmt.Errorf("ncsynth: dimension %q declared twice: %w", name, ErrConflict)
	}
	switch {
	case length == Unlimited:
		for _, d := range s.dims {
			if d.length == Unlimited {
				return fmt.Errorf("ncsynth: dimension %q: %w: %q is already unlimited",
					name, ErrConflict, d.name)
			}
		}
	case length <= 0:
		return fmt.Errorf("ncsynth: dimension %q: %w: invalid length %d", name, ErrConflict, length)
	}
	s.dims = append(s.dims, cdfDim{name: name, length: length})
	return nil
}

// DeclareField implements Sink. An Unlimited dimension may only be the
// outermost dimension of a field.
func (s *CDFSink) DeclareField(name string, t DataType, dims []string) error {
	if err := s.declaring("declaring field"); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("ncsynth: field with empty name: %w", ErrConflict)
	}
	if s.field(name) != nil {
		return fmt.Errorf("ncsynth: field %q declared twice: %w", name, ErrConflict)
	}
	switch t {
	case Int, Float, Double:
	default:
		return fmt.Errorf("ncsynth: field %q: unsupported type %s", name, t)
	}
	for i, dn := range dims {
		d, ok := s.dim(dn)
		if !ok {
			return fmt.Errorf("ncsynth: field %q: %w: unknown dimension %q", name, ErrConflict, dn)
		}
		if d.length == Unlimited && i != 0 {
			return fmt.Errorf("ncsynth: field %q: %w: unlimited dimension %q is not outermost",
				name, ErrConflict, dn)
		}
	}
	s.fields = append(s.fields, &cdfField{name: name, t: t, dims: append([]string(nil), dims...)})
	return nil
}

// SetAttribute implements Sink. Setting an attribute twice keeps the
// last value.
func (s *CDFSink) SetAttribute(field, key string, value interface{}) error {
	if err := s.declaring("setting attribute"); err != nil {
		return err
	}
	switch value.(type) {
	case string, []int32, []float32, []float64:
	default:
		return fmt.Errorf("ncsynth: attribute %s:%s: unsupported value type %T", field, key, value)
	}
	if field == "" {
		s.global.set(key, value)
		return nil
	}
	f := s.field(field)
	if f == nil {
		return fmt.Errorf("ncsynth: attribute %s:%s: no such field", field, key)
	}
	f.attrs.set(key, value)
	return nil
}

// Commit implements Sink by writing the file header.
func (s *CDFSink) Commit() error {
	if err := s.declaring("commit"); err != nil {
		return err
	}
	if len(s.fields) == 0 {
		return fmt.Errorf("ncsynth: commit: no fields declared")
	}
	names := make([]string, len(s.dims))
	lengths := make([]int, len(s.dims))
	for i, d := range s.dims {
		names[i] = d.name
		if d.length != Unlimited {
			lengths[i] = d.length
		}
	}
	h := cdf.NewHeader(names, lengths)
	for _, f := range s.fields {
		h.AddVariable(f.name, f.dims, zeroValues(f.t))
		for _, a := range f.attrs {
			h.AddAttribute(f.name, a.key, a.value)
		}
	}
	for _, a := range s.global {
		h.AddAttribute("", a.key, a.value)
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("ncsynth: invalid file header: %v", errs)
	}
	file, err := cdf.Create(s.f, h)
	if err != nil {
		return fmt.Errorf("ncsynth: writing file header: %w", err)
	}
	s.file = file
	return nil
}

func zeroValues(t DataType) interface{} {
	switch t {
	case Int:
		return []int32{0}
	case Float:
		return []float32{0}
	}
	return []float64{0}
}

// WriteBlock implements Sink. Inside the outermost dimension along which
// the block is more than one element thick, it must span every dimension
// completely, so that it maps onto a contiguous run of each record.
func (s *CDFSink) WriteBlock(field string, origin, shape []int, values interface{}) error {
	if s.closed {
		return fmt.Errorf("ncsynth: writing %s: sink is closed", field)
	}
	if s.file == nil {
		return fmt.Errorf("ncsynth: writing %s: structure not committed", field)
	}
	f := s.field(field)
	if f == nil {
		return fmt.Errorf("ncsynth: writing %s: no such field", field)
	}
	if len(origin) != len(f.dims) || len(shape) != len(f.dims) {
		return fmt.Errorf("ncsynth: writing %s: block has %d/%d dimensions, field has %d",
			field, len(origin), len(shape), len(f.dims))
	}
	count, err := valueCount(f.t, values)
	if err != nil {
		return fmt.Errorf("ncsynth: writing %s: %v", field, err)
	}
	want := 1
	for _, n := range shape {
		want *= n
	}
	if count != want {
		return fmt.Errorf("ncsynth: writing %s: block of shape %v needs %d values, got %d",
			field, shape, want, count)
	}
	if count == 0 {
		return nil
	}
	end := make([]int, len(origin))
	spread := false
	for i, dn := range f.dims {
		d, _ := s.dim(dn)
		if origin[i] < 0 || shape[i] < 1 ||
			(d.length != Unlimited && origin[i]+shape[i] > d.length) {
			return fmt.Errorf("ncsynth: writing %s: block %v+%v out of bounds along %s",
				field, origin, shape, dn)
		}
		if spread && (origin[i] != 0 || shape[i] != d.length) {
			return fmt.Errorf("ncsynth: writing %s: block %v+%v is not contiguous", field, origin, shape)
		}
		spread = spread || shape[i] > 1
		end[i] = origin[i] + shape[i] - 1
	}
	w := s.file.Writer(field, origin, end)
	n, err := w.Write(values)
	if err == io.EOF && n == count {
		// The writer reports EOF when it stops exactly at end.
		err = nil
	}
	if err != nil {
		return fmt.Errorf("ncsynth: writing %s: %w", field, err)
	}
	if n != count {
		return fmt.Errorf("ncsynth: writing %s: wrote %d of %d values", field, n, count)
	}
	return nil
}

func valueCount(t DataType, values interface{}) (int, error) {
	switch v := values.(type) {
	case []int32:
		if t == Int {
			return len(v), nil
		}
	case []float32:
		if t == Float {
			return len(v), nil
		}
	case []float64:
		if t == Double {
			return len(v), nil
		}
	}
	return 0, fmt.Errorf("%T values for a %s field", values, t)
}

// Flush implements Sink by recording the number of records in the
// header and syncing the file. It does nothing before Commit.
func (s *CDFSink) Flush() error {
	if s.closed {
		return fmt.Errorf("ncsynth: flush: sink is closed")
	}
	if s.file == nil {
		return nil
	}
	if err := cdf.UpdateNumRecs(s.f); err != nil {
		return fmt.Errorf("ncsynth: updating record count: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("ncsynth: flush: %w", err)
	}
	return nil
}

// Close implements Sink by closing the underlying file.
func (s *CDFSink) Close() error {
	if s.closed {
		return fmt.Errorf("ncsynth: close: sink is closed")
	}
	s.closed = true
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("ncsynth: close: %w", err)
	}
	return nil
}

// Name returns the name of the underlying file.
func (s *CDFSink) Name() string { return s.f.Name() }
