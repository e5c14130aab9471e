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

// Checks whether a voxel with value v qualifies for filtering. The included flag is the
// inclusion mask entry for the voxel, or true if there is no mask.
// Special values bypass the inclusion range, but are only eligible if they are to be repaired.
func (c *Config) Eligible(v float32, included bool) bool {
	if !included {
		return false
	}
	special := isSpecial(v)
	if !special && (v < c.InclusionLow || v > c.InclusionHigh) {
		return false
	}
	return c.RepairSpecialValues || !special
}

// Checks whether a neighbor value n may contribute as-is. The allowed flag is the neighbor mask
// entry for the neighbor, or true if there is no mask
func (c *Config) usableNeighbor(n float32, allowed bool) bool {
	return allowed && n >= c.NeighborLow && n <= c.NeighborHigh && !isSpecial(n)
}

// Gathers the finite samples of the 3x3x3 neighborhood around voxel (x,y,z), including the voxel itself,
// into samples and returns their count. Offsets outside the volume are skipped, so border voxels see fewer samples.
// A neighbor that is masked out, out of range or not finite is replaced by the center value,
// which is itself dropped if not finite. The neighbor mask may be nil.
func CollectNeighbors(samples *[27]float32, data []float32, naxisn [3]int32, neighbor []bool, c *Config, x, y, z int) int {
	width, height, depth := int(naxisn[0]), int(naxisn[1]), int(naxisn[2])
	plane := width * height
	center := data[x+y*width+z*plane]
	centerFinite := !isSpecial(center)

	n := 0
	for zz := z - 1; zz <= z+1; zz++ {
		if zz < 0 || zz >= depth {
			continue
		}
		for yy := y - 1; yy <= y+1; yy++ {
			if yy < 0 || yy >= height {
				continue
			}
			for xx := x - 1; xx <= x+1; xx++ {
				if xx < 0 || xx >= width {
					continue
				}
				ni := xx + yy*width + zz*plane
				v := data[ni]
				if !c.usableNeighbor(v, neighbor == nil || neighbor[ni]) {
					if !centerFinite {
						continue
					}
					v = center
				}
				samples[n] = v
				n++
			}
		}
	}
	return n
}
