// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package mexcall

import "fmt"

// Wrong number of inputs or outputs
type ArgumentCountError struct {
	Outputs bool // true if the output count was wrong
	Got     int
	Min     int
	Max     int
}

func (e *ArgumentCountError) Error() string {
	what := "input"
	if e.Outputs {
		what = "output"
	}
	if e.Got < e.Min {
		return fmt.Sprintf("median3: not enough %s elements, got %d, need at least %d", what, e.Got, e.Min)
	}
	return fmt.Sprintf("median3: too many %s elements, got %d, allow at most %d", what, e.Got, e.Max)
}

// Argument with the wrong number of dimensions or element count
type ShapeError struct {
	Arg    int // 1-based argument position
	Name   string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("median3: input %d (%s) %s", e.Arg, e.Name, e.Reason)
}

// Argument of the wrong element class
type TypeError struct {
	Arg  int // 1-based argument position
	Name string
	Got  Class
	Want string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("median3: input %d (%s) must be %s, got %s", e.Arg, e.Name, e.Want, e.Got)
}
