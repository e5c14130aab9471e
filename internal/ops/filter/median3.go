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

package filter

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mlnoga/median3/internal/fits"
	"github.com/mlnoga/median3/internal/median"
	"github.com/mlnoga/median3/internal/ops"
	"github.com/mlnoga/median3/internal/stats"
)

// Applies the masked, edge-aware 3x3x3 median filter to each volume.
// Mask file names are optional. Threshold fields missing from JSON take their defaults
type OpMedian3 struct {
	ops.OpUnaryBase
	InclusionMask string `json:"inclusionMask"` // file with voxels to filter, blank for all
	NeighborMask  string `json:"neighborMask"`  // file with voxels usable as neighbors, blank for all
	median.Config
	Threads int        `json:"threads"` // goroutines per volume, 0 for context default
	mutex   sync.Mutex `json:"-"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpMedian3Defaults() }) } // register the operator for JSON decoding

func NewOpMedian3Defaults() *OpMedian3 { return NewOpMedian3("", "", median.NewConfig()) }

func NewOpMedian3(inclusionMask, neighborMask string, config median.Config) *OpMedian3 {
	op := &OpMedian3{
		OpUnaryBase:   ops.OpUnaryBase{OpBase: ops.OpBase{Type: "median3", Active: true}},
		InclusionMask: inclusionMask,
		NeighborMask:  neighborMask,
		Config:        config,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpMedian3) UnmarshalJSON(data []byte) error {
	type defaults OpMedian3
	def := defaults(*NewOpMedian3Defaults())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	// copied field by field, as the mutex must not be passed by value
	op.OpUnaryBase = def.OpUnaryBase
	op.InclusionMask = def.InclusionMask
	op.NeighborMask = def.NeighborMask
	op.Config = def.Config
	op.Threads = def.Threads
	op.mutex = sync.Mutex{}

	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpMedian3) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if err = op.init(c); err != nil {
		return nil, err
	} // lazy init of masks

	naxisn, err := f.Naxis3()
	if err != nil {
		return nil, err
	}
	var inclusion, neighbor []bool
	if c.InclusionMask != nil {
		if c.InclusionMask.Naxisn != naxisn {
			return nil, fmt.Errorf("%d: Volume dimensions %v differ from inclusion mask dimensions %v",
				f.ID, naxisn, c.InclusionMask.Naxisn)
		}
		inclusion = c.InclusionMask.Data
	}
	if c.NeighborMask != nil {
		if c.NeighborMask.Naxisn != naxisn {
			return nil, fmt.Errorf("%d: Volume dimensions %v differ from neighbor mask dimensions %v",
				f.ID, naxisn, c.NeighborMask.Naxisn)
		}
		neighbor = c.NeighborMask.Data
	}

	// input, output and masks are resident at the same time
	neededMB := (len(f.Data)*8 + len(inclusion) + len(neighbor)) / 1024 / 1024
	if c.MemoryMB > 0 && neededMB > c.MemoryMB {
		fmt.Fprintf(c.Log, "%d: Warning: filtering needs %d MiB, more than %d MiB physical memory\n", f.ID, neededMB, c.MemoryMB)
	}

	threads := op.Threads
	if threads <= 0 {
		threads = c.MaxThreads
	}

	out := fits.NewImageFromImage(f)
	report, err := median.Filter3x3x3(out.Data, f.Data, naxisn, inclusion, neighbor, op.Config, threads)
	if err != nil {
		return nil, fmt.Errorf("%d: %s", f.ID, err.Error())
	}
	out.Header.History = append(out.Header.History, "median3 3x3x3 "+op.Config.String())

	change := stats.CompareVolumes(f.Data, out.Data)
	fmt.Fprintf(c.Log, "%d: Median3 with %v: %v; %v\n", f.ID, op.Config, report, change)
	return out, nil
}

// Load inclusion and neighbor masks if applicable
func (op *OpMedian3) init(c *ops.Context) error {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if !((op.InclusionMask != "" && c.InclusionMask == nil) ||
		(op.NeighborMask != "" && c.NeighborMask == nil)) {
		return nil
	}

	masks, err := ops.LoadMasks(c, op.InclusionMask, op.NeighborMask)
	if err != nil {
		return err
	}
	if masks[0] != nil {
		c.InclusionMask = masks[0]
	}
	if masks[1] != nil {
		c.NeighborMask = masks[1]
	}
	return nil
}
