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
)

// Applies the masked 3x3x3 median filter to a volume with dimensions naxisn (x varies fastest),
// returning a new array of the same size and a report. Masks may be nil, meaning all voxels
// are included resp. usable as neighbors. Up to threads goroutines work on separate z slabs.
func Filter(data []float32, naxisn [3]int32, inclusion, neighbor []bool, c Config, threads int) ([]float32, Report, error) {
	output := make([]float32, len(data))
	r, err := Filter3x3x3(output, data, naxisn, inclusion, neighbor, c, threads)
	if err != nil {
		return nil, r, err
	}
	return output, r, nil
}

// Applies the masked 3x3x3 median filter to data, and stores results in output, which must not alias data.
// Every voxel of output is written: with the original value if ineligible, with the median estimate of
// its neighborhood if eligible, or as per c.Sparse if its neighborhood is too sparse. The change gate
// runs after all voxels are filtered.
func Filter3x3x3(output, data []float32, naxisn [3]int32, inclusion, neighbor []bool, c Config, threads int) (r Report, err error) {
	if err = checkShapes(output, data, naxisn, inclusion, neighbor); err != nil {
		return r, err
	}
	r.Voxels = int64(len(data))
	if len(data) == 0 {
		return r, nil
	}
	if threads < 1 {
		threads = 1
	}

	// filter in slabs of z planes. All reads go to data and the masks, so slabs are independent
	depth := int(naxisn[2])
	plane := int(naxisn[0]) * int(naxisn[1])
	slabs := splitRange(depth, threads)
	reports := make([]Report, len(slabs))
	runParallel(len(slabs), threads, func(s int) {
		reports[s] = filterSlab(output, data, naxisn, inclusion, neighbor, &c, slabs[s][0], slabs[s][1])
	})

	// gate only after every slab is complete
	gates := make([]int64, len(slabs))
	runParallel(len(slabs), threads, func(s int) {
		gates[s] = applyChangeGate(output, data, inclusion, &c, slabs[s][0]*plane, slabs[s][1]*plane)
	})

	for s := range slabs {
		r.add(reports[s])
		r.Reverted += gates[s]
	}
	return r, nil
}

// Filters z planes [z0, z1) of the volume
func filterSlab(output, data []float32, naxisn [3]int32, inclusion, neighbor []bool, c *Config, z0, z1 int) (r Report) {
	var samples [27]float32
	width, height := int(naxisn[0]), int(naxisn[1])
	plane := width * height

	for z := z0; z < z1; z++ {
		for y := 0; y < height; y++ {
			offset := y*width + z*plane
			for x := 0; x < width; x++ {
				i := offset + x
				v := data[i]
				if !c.Eligible(v, inclusion == nil || inclusion[i]) {
					output[i] = v
					continue
				}
				r.Eligible++

				n := CollectNeighbors(&samples, data, naxisn, neighbor, c, x, y, z)
				if m, ok := MedianOfSamples(samples[:n]); ok {
					output[i] = m
					r.Filtered++
					continue
				}
				r.Sparse++
				if c.Sparse == SparsePassthrough {
					output[i] = v
				} else {
					output[i] = 0
				}
			}
		}
	}
	return r
}

// Verifies that data, output and the masks match the given dimensions
func checkShapes(output, data []float32, naxisn [3]int32, inclusion, neighbor []bool) error {
	if naxisn[0] < 0 || naxisn[1] < 0 || naxisn[2] < 0 {
		return fmt.Errorf("negative dimensions %v", naxisn)
	}
	voxels := int(naxisn[0]) * int(naxisn[1]) * int(naxisn[2])
	if len(data) != voxels {
		return fmt.Errorf("data has %d voxels; dimensions %v need %d", len(data), naxisn, voxels)
	}
	if len(output) != voxels {
		return fmt.Errorf("output has %d voxels; dimensions %v need %d", len(output), naxisn, voxels)
	}
	if inclusion != nil && len(inclusion) != voxels {
		return fmt.Errorf("inclusion mask has %d voxels; dimensions %v need %d", len(inclusion), naxisn, voxels)
	}
	if neighbor != nil && len(neighbor) != voxels {
		return fmt.Errorf("neighbor mask has %d voxels; dimensions %v need %d", len(neighbor), naxisn, voxels)
	}
	return nil
}

// Splits [0,n) into at most parts contiguous ranges of near-equal size
func splitRange(n, parts int) [][2]int {
	if parts > n {
		parts = n
	}
	if parts < 1 {
		parts = 1
	}
	ranges := make([][2]int, parts)
	for p := 0; p < parts; p++ {
		ranges[p] = [2]int{p * n / parts, (p + 1) * n / parts}
	}
	return ranges
}

// Runs fn(0)...fn(tasks-1) with at most maxThreads concurrent goroutines, and waits for all of them
func runParallel(tasks, maxThreads int, fn func(task int)) {
	if maxThreads <= 1 || tasks <= 1 {
		for t := 0; t < tasks; t++ {
			fn(t)
		}
		return
	}
	limiter := make(chan bool, maxThreads)
	for t := 0; t < tasks; t++ {
		limiter <- true
		go func(t int) {
			defer func() { <-limiter }()
			fn(t)
		}(t)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
}
