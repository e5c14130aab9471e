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

// Package mexcall exposes the 3D median filter through a positional calling
// convention modelled after host-environment extension functions: typed
// n-dimensional arrays in, one array out, and typed errors for bad calls.
package mexcall

import "fmt"

// Element class of an Array
type Class int

const (
	ClassSingle  Class = iota // 32-bit float
	ClassDouble               // 64-bit float
	ClassLogical              // boolean
)

func (c Class) String() string {
	switch c {
	case ClassSingle:
		return "single"
	case ClassDouble:
		return "double"
	case ClassLogical:
		return "logical"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// A dense n-dimensional array in column-major order, first dimension varying fastest.
// Only the payload slice matching Class is used
type Array struct {
	Class    Class
	Dims     []int
	Singles  []float32
	Doubles  []float64
	Logicals []bool
}

// Creates a single precision array with the given dims. Data is not copied, allocated if nil
func NewSingle(data []float32, dims ...int) *Array {
	if data == nil {
		data = make([]float32, product(dims))
	}
	return &Array{Class: ClassSingle, Dims: append([]int(nil), dims...), Singles: data}
}

// Creates a logical array with the given dims. Data is not copied, allocated if nil
func NewLogical(data []bool, dims ...int) *Array {
	if data == nil {
		data = make([]bool, product(dims))
	}
	return &Array{Class: ClassLogical, Dims: append([]int(nil), dims...), Logicals: data}
}

// Creates a 1x1 double array holding the given scalar
func NewScalar(v float64) *Array {
	return &Array{Class: ClassDouble, Dims: []int{1, 1}, Doubles: []float64{v}}
}

// Number of elements as given by the dimensions
func (a *Array) NumElements() int {
	return product(a.Dims)
}

// Number of elements actually present in the payload for the array class
func (a *Array) payloadLen() int {
	switch a.Class {
	case ClassSingle:
		return len(a.Singles)
	case ClassDouble:
		return len(a.Doubles)
	case ClassLogical:
		return len(a.Logicals)
	}
	return 0
}

func (a *Array) isNumeric() bool {
	return a.Class == ClassSingle || a.Class == ClassDouble
}

// First element of a numeric array as float64
func (a *Array) scalar() float64 {
	if a.Class == ClassSingle {
		return float64(a.Singles[0])
	}
	return a.Doubles[0]
}

func product(dims []int) int {
	if len(dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
