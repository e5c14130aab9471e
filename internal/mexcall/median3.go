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

import (
	"math"
	"runtime"

	"github.com/mlnoga/median3/internal/median"
)

const (
	minInputs = 1
	maxInputs = 9
)

// Names of the positional inputs, for error messages
var inputNames = [maxInputs]string{
	"field", "inclusion mask", "neighbor mask", "change threshold",
	"inclusion low", "inclusion high", "neighbor low", "neighbor high", "repair special values",
}

// A validated median3 call, ready to run
type Call struct {
	Field     *Array
	Naxisn    [3]int32
	Inclusion []bool // nil if not given
	Neighbor  []bool // nil if not given
	Config    median.Config
}

// Filters the field with the 3x3x3 median, returning one single precision array
// of the field's dimensions. Inputs in order: field (single, 3D), inclusion mask
// (logical, 3D), neighbor mask (logical, 3D), change threshold, inclusion low,
// inclusion high, neighbor low, neighbor high, repair special values (nonzero is true).
// Trailing inputs may be omitted.
func Median3(nlhs int, rhs []*Array) ([]*Array, error) {
	call, err := Resolve(nlhs, rhs)
	if err != nil {
		return nil, err
	}
	out, _ := call.Run(runtime.GOMAXPROCS(0))
	return []*Array{out}, nil
}

// Validates the arguments of a median3 call and resolves defaults for omitted inputs
func Resolve(nlhs int, rhs []*Array) (*Call, error) {
	if len(rhs) < minInputs || len(rhs) > maxInputs {
		return nil, &ArgumentCountError{Got: len(rhs), Min: minInputs, Max: maxInputs}
	}
	if nlhs != 1 {
		return nil, &ArgumentCountError{Outputs: true, Got: nlhs, Min: 1, Max: 1}
	}

	field := rhs[0]
	if field == nil || field.Class != ClassSingle {
		return nil, typeError(0, field, "single")
	}
	if len(field.Dims) != 3 {
		return nil, &ShapeError{Arg: 1, Name: inputNames[0], Reason: "must be a 3D array"}
	}
	if field.payloadLen() != field.NumElements() {
		return nil, &ShapeError{Arg: 1, Name: inputNames[0], Reason: "has fewer or more elements than its dimensions"}
	}
	call := &Call{Field: field, Config: median.NewConfig()}
	for i, d := range field.Dims {
		if d < 0 || d > math.MaxInt32 {
			return nil, &ShapeError{Arg: 1, Name: inputNames[0], Reason: "has a dimension out of range"}
		}
		call.Naxisn[i] = int32(d)
	}

	var err error
	if len(rhs) > 1 {
		if call.Inclusion, err = resolveMask(1, rhs[1], field); err != nil {
			return nil, err
		}
	}
	if len(rhs) > 2 {
		if call.Neighbor, err = resolveMask(2, rhs[2], field); err != nil {
			return nil, err
		}
	}

	// numeric scalars in positional order, defaults already set by NewConfig
	c := &call.Config
	targets := []*float32{&c.ChangeThreshold, &c.InclusionLow, &c.InclusionHigh, &c.NeighborLow, &c.NeighborHigh}
	for i, target := range targets {
		arg := i + 3
		if arg >= len(rhs) {
			break
		}
		v, err := resolveScalar(arg, rhs[arg])
		if err != nil {
			return nil, err
		}
		*target = float32(v)
	}
	if len(rhs) > 8 {
		v, err := resolveScalar(8, rhs[8])
		if err != nil {
			return nil, err
		}
		c.RepairSpecialValues = v != 0
	}
	return call, nil
}

// Runs the validated call on up to the given number of threads
func (call *Call) Run(threads int) (*Array, median.Report) {
	out := NewSingle(nil, call.Field.Dims...)
	// shapes were validated by Resolve, so the filter cannot fail
	report, _ := median.Filter3x3x3(out.Singles, call.Field.Singles, call.Naxisn, call.Inclusion, call.Neighbor, call.Config, threads)
	return out, report
}

func resolveMask(arg int, a *Array, field *Array) ([]bool, error) {
	if a == nil || len(a.Dims) != 3 {
		return nil, &ShapeError{Arg: arg + 1, Name: inputNames[arg], Reason: "must be a 3D array"}
	}
	if a.Class != ClassLogical {
		return nil, typeError(arg, a, "logical")
	}
	if a.NumElements() != field.NumElements() || a.payloadLen() != a.NumElements() {
		return nil, &ShapeError{Arg: arg + 1, Name: inputNames[arg], Reason: "must have as many elements as the field"}
	}
	return a.Logicals, nil
}

func resolveScalar(arg int, a *Array) (float64, error) {
	if a == nil || !a.isNumeric() {
		return 0, typeError(arg, a, "a numeric scalar")
	}
	if a.payloadLen() == 0 {
		return 0, &TypeError{Arg: arg + 1, Name: inputNames[arg], Got: a.Class, Want: "a non-empty numeric scalar"}
	}
	return a.scalar(), nil
}

func typeError(arg int, a *Array, want string) *TypeError {
	got := Class(-1)
	if a != nil {
		got = a.Class
	}
	return &TypeError{Arg: arg + 1, Name: inputNames[arg], Got: got, Want: want}
}
