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

package fits

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/median3/internal/stats"
)

// A FITS image or data cube.
// Standard here: https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0 for volumes. By convention, masks are negative
	FileName string // Original file name, if any, for log output.

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y,Z)
	Pixels int     // Number of voxels in the image. Product of Naxisn[]

	Data []float32 // The voxel data

	Stats *stats.Stats // Basic statistics, nil until calculated
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := 1
	for _, naxis := range naxisn {
		numPixels *= int(naxis)
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates a FITS image with the same metadata as the given image. New, zeroed data array will be allocated
func NewImageFromImage(img *Image) *Image {
	res := NewImageFromNaxisn(img.Naxisn, nil)
	res.ID = img.ID
	res.FileName = img.FileName
	res.Header = img.Header.Clone()
	return res
}

// Creates an 8-bit FITS image holding a boolean mask, with 1 for true and 0 for false
func NewImageFromMask(naxisn []int32, mask []bool) *Image {
	img := NewImageFromNaxisn(naxisn, nil)
	img.Bitpix = 8
	for i, m := range mask {
		if m {
			img.Data[i] = 1
		}
	}
	return img
}

// Calculates statistics for the image data, if not already present
func (f *Image) CalcStats() *stats.Stats {
	if f.Stats == nil {
		f.Stats = stats.NewStats(f.Data)
	}
	return f.Stats
}

// Returns the dimensions of the image as a 3D volume. Lower-dimensional images are
// treated as volumes of depth 1 (and height 1), higher-dimensional ones are rejected
func (f *Image) Naxis3() (naxisn [3]int32, err error) {
	if len(f.Naxisn) == 0 || len(f.Naxisn) > 3 {
		return naxisn, fmt.Errorf("%d: Need a 1D, 2D or 3D image, got %d axes", f.ID, len(f.Naxisn))
	}
	naxisn = [3]int32{1, 1, 1}
	copy(naxisn[:], f.Naxisn)
	return naxisn, nil
}

// Interprets the image as a boolean mask. Nonzero voxels are true, zero and NaN voxels false
func (f *Image) ToMask() []bool {
	mask := make([]bool, len(f.Data))
	for i, d := range f.Data {
		mask[i] = d != 0 && !math.IsNaN(float64(d))
	}
	return mask
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

// Returns a deep copy of the header
func (h Header) Clone() Header {
	c := NewHeader()
	for k, v := range h.Bools {
		c.Bools[k] = v
	}
	for k, v := range h.Ints {
		c.Ints[k] = v
	}
	for k, v := range h.Floats {
		c.Floats[k] = v
	}
	for k, v := range h.Strings {
		c.Strings[k] = v
	}
	for k, v := range h.Dates {
		c.Dates[k] = v
	}
	c.Comments = append(c.Comments, h.Comments...)
	c.History = append(c.History, h.History...)
	return c
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
