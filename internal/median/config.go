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

package median

import (
	"fmt"
	"math"
)

// Enumerated type for the handling of eligible voxels whose neighborhood yields fewer than two finite samples
type SparseMode int

const (
	SparseZero        SparseMode = iota // output zero, as a freshly allocated output array would hold
	SparsePassthrough                   // output the original value, like ineligible voxels
)

// Resolved settings for the masked 3x3x3 median filter. All fields are always populated;
// use NewConfig for the defaults. Passed by value, never modified during filtering.
type Config struct {
	InclusionLow        float32    `json:"inclusionLow"`        // Lowest value eligible for filtering, inclusive
	InclusionHigh       float32    `json:"inclusionHigh"`       // Highest value eligible for filtering, inclusive
	NeighborLow         float32    `json:"neighborLow"`         // Lowest value usable as neighbor, inclusive
	NeighborHigh        float32    `json:"neighborHigh"`        // Highest value usable as neighbor, inclusive
	ChangeThreshold     float32    `json:"changeThreshold"`     // >0: keep only changes of at least this size. <0: keep only changes up to -this. 0: keep all
	RepairSpecialValues bool       `json:"repairSpecialValues"` // Replace NaN and Inf voxels by the median of their finite neighbors
	Sparse              SparseMode `json:"sparse"`              // Output for eligible voxels with fewer than two samples
}

// Returns the default configuration: full float32 ranges, change gate off, special values repaired
func NewConfig() Config {
	return Config{
		InclusionLow:        -math.MaxFloat32,
		InclusionHigh:       math.MaxFloat32,
		NeighborLow:         -math.MaxFloat32,
		NeighborHigh:        math.MaxFloat32,
		ChangeThreshold:     0,
		RepairSpecialValues: true,
		Sparse:              SparseZero,
	}
}

func (c Config) String() string {
	return fmt.Sprintf("incl [%g,%g] neigh [%g,%g] sf %g repair %v sparse %d",
		c.InclusionLow, c.InclusionHigh, c.NeighborLow, c.NeighborHigh, c.ChangeThreshold, c.RepairSpecialValues, c.Sparse)
}

// Counts of what happened to the voxels of one filter run
type Report struct {
	Voxels   int64 // Total number of voxels
	Eligible int64 // Voxels passing mask, range and special value checks
	Filtered int64 // Eligible voxels that received a median estimate
	Sparse   int64 // Eligible voxels with fewer than two finite samples
	Reverted int64 // Voxels set back to their original value by the change gate
}

func (r Report) String() string {
	return fmt.Sprintf("voxels %d eligible %d filtered %d sparse %d reverted %d",
		r.Voxels, r.Eligible, r.Filtered, r.Sparse, r.Reverted)
}

func (r *Report) add(o Report) {
	r.Eligible += o.Eligible
	r.Filtered += o.Filtered
	r.Sparse += o.Sparse
	r.Reverted += o.Reverted
}

// True for IEEE NaN and +/-Inf
func isSpecial(v float32) bool {
	return math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
}
