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

// Reverts filtered voxels in output[start:end] to their original values in data, depending on the
// size of the change and the sign of the change threshold. Only voxels inside the inclusion mask with
// original values strictly inside the inclusion range are considered. Without an inclusion mask,
// or with a zero threshold, nothing happens. Returns the number of reverted voxels
func applyChangeGate(output, data []float32, inclusion []bool, c *Config, start, end int) (reverted int64) {
	sf := c.ChangeThreshold
	if inclusion == nil || !(sf > 0 || sf < 0) {
		return 0
	}
	for i := start; i < end; i++ {
		d := data[i]
		if !inclusion[i] || !(d > c.InclusionLow && d < c.InclusionHigh) {
			continue
		}
		diff := d - output[i]
		if diff < 0 {
			diff = -diff
		}
		if (sf > 0 && diff < sf) || (sf < 0 && diff > -sf) {
			output[i] = d
			reverted++
		}
	}
	return reverted
}

// Applies the change gate to the whole volume. Exported for callers which filter with
// a gate-less configuration first and want to try several thresholds on the same result
func ApplyChangeGate(output, data []float32, inclusion []bool, c Config) int64 {
	return applyChangeGate(output, data, inclusion, &c, 0, len(data))
}
