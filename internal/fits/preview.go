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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/tiff"
)

// Hue and chroma of the highlight for NaN and Inf voxels in slice previews
const (
	SpecialHue    = 330.0
	SpecialChroma = 0.9
)

// Returns the highlight colour for NaN and Inf voxels of a slice. Lightness is chosen
// to contrast with the mean perceptual lightness of the stretched finite voxels
func SpecialColor(data []float32, min, max float32) colorful.Color {
	sum, n := 0.0, 0
	for _, d := range data {
		if isFinite(d) {
			sum += float64(normalize(d, min, max))
			n++
		}
	}
	mean := 0.5
	if n > 0 {
		mean = sum / float64(n)
	}
	l, _, _ := colorful.Color{R: mean, G: mean, B: mean}.Lab()
	lightness := 0.8
	if l > 0.5 {
		lightness = 0.35
	}
	return colorful.Hcl(SpecialHue, SpecialChroma, lightness).Clamped()
}

// Returns the data of the z-th slice of the cube together with its width and height
func (f *Image) slice(z int) (data []float32, width, height int, err error) {
	naxisn, err := f.Naxis3()
	if err != nil {
		return nil, 0, 0, err
	}
	if z < 0 || z >= int(naxisn[2]) {
		return nil, 0, 0, fmt.Errorf("%d: Slice %d out of range 0..%d", f.ID, z, naxisn[2]-1)
	}
	width, height = int(naxisn[0]), int(naxisn[1])
	size := width * height
	return f.Data[z*size : (z+1)*size], width, height, nil
}

// Returns the finite minimum and maximum of the given data, or 0 and 1 if there are no finite values.
// Flat data returns min == max
func finiteRange(data []float32) (min, max float32) {
	min, max = float32(math.MaxFloat32), -float32(math.MaxFloat32)
	for _, d := range data {
		if isFinite(d) {
			if d < min {
				min = d
			}
			if d > max {
				max = d
			}
		}
	}
	if min > max {
		return 0, 1
	}
	return min, max
}

func isFinite(d float32) bool {
	return !math.IsNaN(float64(d)) && !math.IsInf(float64(d), 0)
}

// Scales a value into [0,1] given min and max, clamping out of range values.
// Flat ranges map to 0. Computed in float64 as max-min may overflow float32
func normalize(d, min, max float32) float32 {
	if !(max > min) {
		return 0
	}
	v := (float64(d) - float64(min)) / (float64(max) - float64(min))
	if !(v > 0) {
		return 0
	} else if v > 1 {
		return 1
	}
	return float32(v)
}

// Write the z-th slice of a cube to JPG, stretched linearly to its finite range. NaN and Inf use SpecialColor
func (f *Image) WriteSliceJPGToFile(fileName string, z, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.WriteSliceJPG(writer, z, quality); err != nil {
		return err
	}
	return writer.Flush()
}

// Write the z-th slice of a cube to JPG, stretched linearly to its finite range. NaN and Inf use SpecialColor
func (f *Image) WriteSliceJPG(writer io.Writer, z, quality int) error {
	data, width, height, err := f.slice(z)
	if err != nil {
		return err
	}
	min, max := finiteRange(data)
	sr, sg, sb := SpecialColor(data, min, max).RGB255()
	special := color.RGBA{sr, sg, sb, 255}

	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			d := data[yoffset+x]
			if !isFinite(d) {
				img.SetRGBA(x, y, special)
				continue
			}
			g := uint8(normalize(d, min, max) * 255)
			img.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Write the z-th slice of a cube to a 16-bit TIFF, stretched linearly to its finite range. NaN and Inf use SpecialColor
func (f *Image) WriteSliceTIFF16ToFile(fileName string, z int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := f.WriteSliceTIFF16(writer, z); err != nil {
		return err
	}
	return writer.Flush()
}

// Write the z-th slice of a cube to a 16-bit TIFF, stretched linearly to its finite range. NaN and Inf use SpecialColor
func (f *Image) WriteSliceTIFF16(writer io.Writer, z int) error {
	data, width, height, err := f.slice(z)
	if err != nil {
		return err
	}
	min, max := finiteRange(data)
	r, g, b, _ := SpecialColor(data, min, max).RGBA()
	special := color.RGBA64{uint16(r), uint16(g), uint16(b), 65535}

	img := image.NewRGBA64(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			d := data[yoffset+x]
			if !isFinite(d) {
				img.SetRGBA64(x, y, special)
				continue
			}
			v := uint16(normalize(d, min, max) * 65535)
			img.SetRGBA64(x, y, color.RGBA64{v, v, v, 65535})
		}
	}
	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
