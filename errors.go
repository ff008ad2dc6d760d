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

import "errors"

var (
	// ErrPrecondition is returned when the arguments can not describe a
	// file at all: no output, no datasets, mismatched vector components.
	// Nothing has been written when it is returned.
	ErrPrecondition = errors.New("invalid arguments")

	// ErrConflict is returned when the datasets can not be laid out in a
	// single file, for example when two variables share a name.
	ErrConflict = errors.New("structural conflict")
)
