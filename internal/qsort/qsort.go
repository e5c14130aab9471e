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

package qsort

import (
	"math"
)

// Below this length, insertion sort beats partitioning
const insertionSortThreshold = 12

// Sorts an array of float32 in ascending order, in place.
// Recurses into the smaller partition and loops on the larger one, so stack depth stays logarithmic.
// Array must not contain IEEE NaN
func QSortFloat32(a []float32) {
	for len(a) > insertionSortThreshold {
		index := QPartitionFloat32(a)
		if index+1 < len(a)-index-1 {
			QSortFloat32(a[:index+1])
			a = a[index+1:]
		} else {
			QSortFloat32(a[index+1:])
			a = a[:index+1]
		}
	}
	InsertionSortFloat32(a)
}

// Sorts a short array of float32 in ascending order, in place
func InsertionSortFloat32(a []float32) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for ; j >= 0 && a[j] > v; j-- {
			a[j+1] = a[j]
		}
		a[j+1] = v
	}
}

// Partitions an array of float32 around the middle element with Hoare's scheme, and returns the split index.
// Elements a[:index+1] are less or equal to the pivot, elements a[index+1:] greater or equal.
// Array must not contain IEEE NaN
func QPartitionFloat32(a []float32) int {
	pivot := a[(len(a)-1)>>1]
	l, r := -1, len(a)
	for {
		for {
			l++
			if a[l] >= pivot {
				break
			}
		}
		for {
			r--
			if a[r] <= pivot {
				break
			}
		}
		if l >= r {
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// Selects the median of an array of float32. For even lengths, averages the two middle elements.
// Partially reorders the array. Returns NaN for empty arrays.
// Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return float32(math.NaN())
	}
	upper := QSelectFloat32(a, (n>>1)+1)
	if n&1 != 0 {
		return upper
	}
	// after selection, a[:n>>1] holds the lower half; its maximum is the lower middle
	lower := a[0]
	for _, v := range a[1 : n>>1] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Selects the kth lowest element (1-based) from an array of float32. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		index := left + QPartitionFloat32(a[left:right+1])
		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k -= offset
		}
	}
	return a[left]
}
