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

package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/median3/internal/qsort"
	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat"
)

// Number of random samples for the approximate median
const numMedianSamples = 64 * 1024

// Basic statistics on a volume. Min, max, mean, standard deviation and location cover finite voxels only
type Stats struct {
	Voxels   int     // Total number of voxels
	NaNs     int     // Number of NaN voxels
	Infs     int     // Number of infinite voxels
	Min      float32 // Minimum
	Max      float32 // Maximum
	Mean     float32 // Mean (average)
	StdDev   float32 // Standard deviation (norm 2, sigma)
	Location float32 // Median, approximated by random sampling for large volumes
	Peak     float32 // Center of the fullest histogram bin
}

// Calculates statistics for a data array
func NewStats(data []float32) *Stats {
	s := &Stats{Voxels: len(data)}
	finite := make([]float64, 0, len(data))
	s.Min, s.Max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, d := range data {
		switch {
		case math.IsNaN(float64(d)):
			s.NaNs++
		case math.IsInf(float64(d), 0):
			s.Infs++
		default:
			if d < s.Min {
				s.Min = d
			}
			if d > s.Max {
				s.Max = d
			}
			finite = append(finite, float64(d))
		}
	}
	if len(finite) == 0 {
		nan := float32(math.NaN())
		s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Peak = nan, nan, nan, nan, nan, nan
		return s
	}

	mean, stdDev := stat.MeanStdDev(finite, nil)
	s.Mean, s.StdDev = float32(mean), float32(stdDev)
	if len(finite) == 1 {
		s.StdDev = 0
	}

	samples := make([]float32, numMedianSamples)
	s.Location = FastApproxMedian(data, samples)

	bins := make([]int32, 256)
	Histogram(data, s.Min, s.Max, bins)
	s.Peak = GetPeak(bins, s.Min, s.Max)
	return s
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Voxels %d NaN %d Inf %d Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Peak %.6g",
		s.Voxels, s.NaNs, s.Infs, s.Min, s.Max, s.Mean, s.StdDev, s.Location, s.Peak)
}

// Approximates the median of the finite values in data. If there are more values than samples,
// draws len(samples) random values with replacement, else computes the exact median.
// Returns NaN if there are no finite values
func FastApproxMedian(data []float32, samples []float32) float32 {
	if len(data) <= len(samples) {
		n := 0
		for _, d := range data {
			if !isSpecial(d) {
				samples[n] = d
				n++
			}
		}
		return qsort.QSelectMedianFloat32(samples[:n])
	}

	rng := fastrand.RNG{}
	n := 0
	for tries := 0; n < len(samples) && tries < 4*len(samples); tries++ {
		d := data[rng.Uint32n(uint32(len(data)))]
		if !isSpecial(d) {
			samples[n] = d
			n++
		}
	}
	return qsort.QSelectMedianFloat32(samples[:n])
}

// Calculates histogram of the finite data between min and max into given bins.
// Values outside [min,max] are ignored
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if len(bins) == 0 || !(max >= min) {
		return
	}
	scale := float32(0)
	if max > min {
		scale = float32(len(bins)-1) / (max - min)
	}
	for _, d := range data {
		if isSpecial(d) || d < min || d > max {
			continue
		}
		bins[int((d-min)*scale)]++
	}
}

// Returns the location of the center of the fullest histogram bin
func GetPeak(bins []int32, min, max float32) float32 {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	if len(bins) < 2 {
		return min
	}
	return min + (float32(maxIndex)+0.5)*(max-min)/float32(len(bins)-1)
}

// Summary of the differences between an original and a filtered volume
type Change struct {
	Changed  int     // Voxels whose value differs
	Repaired int     // Voxels which were NaN or infinite and are now finite
	MaxAbs   float32 // Largest absolute change among finite pairs
	MeanAbs  float32 // Mean absolute change among changed finite pairs
}

// Compares two volumes of equal size voxel by voxel. NaN compares equal to NaN
func CompareVolumes(before, after []float32) Change {
	var c Change
	sum := float64(0)
	finiteChanged := 0
	for i, b := range before {
		a := after[i]
		if a == b || (math.IsNaN(float64(a)) && math.IsNaN(float64(b))) {
			continue
		}
		c.Changed++
		if isSpecial(b) {
			if !isSpecial(a) {
				c.Repaired++
			}
			continue
		}
		if isSpecial(a) {
			continue
		}
		diff := float32(math.Abs(float64(a - b)))
		if diff > c.MaxAbs {
			c.MaxAbs = diff
		}
		sum += float64(diff)
		finiteChanged++
	}
	if finiteChanged > 0 {
		c.MeanAbs = float32(sum / float64(finiteChanged))
	}
	return c
}

func (c Change) String() string {
	return fmt.Sprintf("changed %d repaired %d max abs %.6g mean abs %.6g", c.Changed, c.Repaired, c.MaxAbs, c.MeanAbs)
}

func isSpecial(v float32) bool {
	return math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
}
