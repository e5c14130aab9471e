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
	"github.com/mlnoga/median3/internal/qsort"
)

// Reduces a set of finite samples to a single median estimate. Sorts the samples in place.
//
// Two samples yield their mean. Beyond that, the samples are sorted and the elements at
// indices floor(n/2) and ceil(n/2) are averaged. This is NOT the conventional median:
// for even n both indices are n/2, giving the upper of the two middle elements, and for
// odd n the middle element is averaged with its successor. The indexing is kept as is
// for compatibility with existing results.
//
// Returns false if there are fewer than two samples.
func MedianOfSamples(samples []float32) (float32, bool) {
	n := len(samples)
	if n < 2 {
		return 0, false
	}
	if n == 2 {
		return (samples[0] + samples[1]) / 2, true
	}
	qsort.QSortFloat32(samples)
	return (samples[n>>1] + samples[(n+1)>>1]) / 2, true
}
