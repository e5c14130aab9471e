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
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/image/tiff"
)

func testCube() *Image {
	naxisn := []int32{4, 3, 2}
	img := NewImageFromNaxisn(naxisn, nil)
	for i := range img.Data {
		img.Data[i] = float32(i)*0.5 - 3
	}
	img.Data[5] = float32(math.NaN())
	img.Data[7] = float32(math.Inf(1))
	img.Data[11] = float32(math.Inf(-1))
	return img
}

func TestCubeRoundTrip(t *testing.T) {
	img := testCube()
	img.Header.Strings["OBJECT"] = "phantom"
	img.Header.Ints["EXPOSURE"] = 12
	img.Header.Floats["PIXSIZE"] = 0.25
	img.Header.History = append(img.Header.History, "median3 filtered")

	buf := bytes.Buffer{}
	if err := img.Write(&buf); err != nil {
		t.Fatalf("write: %s", err)
	}
	if buf.Len()%fitsBlockSize != 0 {
		t.Errorf("len=%d; want multiple of %d", buf.Len(), fitsBlockSize)
	}

	res := NewImage()
	if err := res.Read(&buf, true, io.Discard); err != nil {
		t.Fatalf("read: %s", err)
	}
	if !EqualInt32Slice(res.Naxisn, img.Naxisn) {
		t.Errorf("naxisn=%v; want %v", res.Naxisn, img.Naxisn)
	}
	if res.Bitpix != -32 {
		t.Errorf("bitpix=%d; want -32", res.Bitpix)
	}
	if diff := cmp.Diff(img.Data, res.Data, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if s := res.Header.Strings["OBJECT"]; s != "phantom" {
		t.Errorf("OBJECT=%q; want %q", s, "phantom")
	}
	if v := res.Header.Ints["EXPOSURE"]; v != 12 {
		t.Errorf("EXPOSURE=%d; want 12", v)
	}
	if v := res.Header.Floats["PIXSIZE"]; v != 0.25 {
		t.Errorf("PIXSIZE=%f; want 0.25", v)
	}
	if len(res.Header.History) != 1 || res.Header.History[0] != "median3 filtered" {
		t.Errorf("history=%v; want [median3 filtered]", res.Header.History)
	}
	if len(res.Header.Comments) != 0 {
		t.Errorf("comments=%v; want none", res.Header.Comments)
	}
}

func TestMaskRoundTrip(t *testing.T) {
	naxisn := []int32{3, 2, 2}
	mask := []bool{true, false, true, true, false, false, true, true, false, true, false, true}
	img := NewImageFromMask(naxisn, mask)

	fileName := filepath.Join(t.TempDir(), "mask.fits")
	if err := img.WriteMaskFile(fileName); err != nil {
		t.Fatalf("write: %s", err)
	}
	res, err := NewImageFromFile(fileName, -1, io.Discard)
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	if res.Bitpix != 8 {
		t.Errorf("bitpix=%d; want 8", res.Bitpix)
	}
	if diff := cmp.Diff(mask, res.ToMask()); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
	n3, err := res.Naxis3()
	if err != nil || n3 != [3]int32{3, 2, 2} {
		t.Errorf("naxis3=%v, %v; want [3 2 2]", n3, err)
	}
}

func TestReadGzip(t *testing.T) {
	img := testCube()
	fileName := filepath.Join(t.TempDir(), "cube.fits.gz")
	f, err := os.Create(fileName)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if err := img.Write(gz); err != nil {
		t.Fatal(err)
	}
	gz.Close()
	f.Close()

	res, err := NewImageFromFile(fileName, 0, io.Discard)
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	if diff := cmp.Diff(img.Data, res.Data, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInt16Bzero(t *testing.T) {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "")
	writeInt32(&sb, "BITPIX", 16, "")
	writeInt32(&sb, "NAXIS", 1, "")
	writeInt32(&sb, "NAXIS1", 3, "")
	writeInt32(&sb, "BZERO", 32768, "")
	writeEnd(&sb)
	sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()))

	buf := bytes.NewBufferString(sb.String())
	for _, v := range []int16{-32768, 0, 100} {
		binary.Write(buf, binary.BigEndian, v)
	}

	img := NewImage()
	if err := img.Read(buf, true, io.Discard); err != nil {
		t.Fatalf("read: %s", err)
	}
	want := []float32{0, 32768, 32868}
	if diff := cmp.Diff(want, img.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if img.Bzero != 0 || img.Bscale != 1 {
		t.Errorf("bzero=%f bscale=%f; want 0 1", img.Bzero, img.Bscale)
	}
}

func TestReadRejectsNonFITS(t *testing.T) {
	img := NewImage()
	buf := bytes.NewBufferString(strings.Repeat(" ", fitsBlockSize))
	if err := img.Read(buf, true, io.Discard); err == nil {
		t.Errorf("err=nil; want error for missing SIMPLE and END")
	}
}

func TestNaxis3(t *testing.T) {
	img := NewImageFromNaxisn([]int32{5, 4}, nil)
	n3, err := img.Naxis3()
	if err != nil || n3 != [3]int32{5, 4, 1} {
		t.Errorf("naxis3=%v, %v; want [5 4 1]", n3, err)
	}
	img = NewImageFromNaxisn([]int32{2, 2, 2, 2}, nil)
	if _, err := img.Naxis3(); err == nil {
		t.Errorf("err=nil; want error for 4D image")
	}
}

func TestSlicePreviews(t *testing.T) {
	img := testCube()

	jpg := bytes.Buffer{}
	if err := img.WriteSliceJPG(&jpg, 1, 90); err != nil {
		t.Fatalf("jpg: %s", err)
	}
	decoded, err := jpeg.Decode(&jpg)
	if err != nil {
		t.Fatalf("jpg decode: %s", err)
	}
	if b := decoded.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("jpg bounds=%v; want 4x3", b)
	}

	tif := bytes.Buffer{}
	if err := img.WriteSliceTIFF16(&tif, 0); err != nil {
		t.Fatalf("tiff: %s", err)
	}
	decoded, err = tiff.Decode(&tif)
	if err != nil {
		t.Fatalf("tiff decode: %s", err)
	}
	r, g, b, _ := decoded.At(1, 1).RGBA() // index 5 is NaN
	slice0, _, _, err := img.slice(0)
	if err != nil {
		t.Fatal(err)
	}
	min, max := finiteRange(slice0)
	wr, wg, wb, _ := SpecialColor(slice0, min, max).RGBA()
	if r != wr&0xffff || g != wg&0xffff || b != wb&0xffff {
		t.Errorf("special=%d,%d,%d; want %d,%d,%d", r, g, b, wr, wg, wb)
	}

	if err := img.WriteSliceTIFF16(&tif, 2); err == nil {
		t.Errorf("err=nil; want error for slice out of range")
	}
}

func TestSpecialColorContrast(t *testing.T) {
	dark := []float32{0, 0, 0, 0, 0, 0, 0, 1, float32(math.NaN())}
	bright := []float32{0, 1, 1, 1, 1, 1, 1, 1, float32(math.Inf(1))}

	min, max := finiteRange(dark)
	ld, _, _ := SpecialColor(dark, min, max).Lab()
	min, max = finiteRange(bright)
	lb, _, _ := SpecialColor(bright, min, max).Lab()
	if !(ld > 0.5) {
		t.Errorf("highlight on dark slice L=%f; want > 0.5", ld)
	}
	if !(lb < 0.5) {
		t.Errorf("highlight on bright slice L=%f; want < 0.5", lb)
	}
}

func TestFlatAndExtremeRanges(t *testing.T) {
	flat := []float32{1e8, 1e8, 1e8}
	min, max := finiteRange(flat)
	if min != 1e8 || max != 1e8 {
		t.Errorf("range=%g..%g; want 1e8..1e8", min, max)
	}
	if v := normalize(1e8, min, max); v != 0 {
		t.Errorf("flat normalize=%f; want 0", v)
	}

	wide := []float32{-math.MaxFloat32, 0, math.MaxFloat32}
	min, max = finiteRange(wide)
	for i, want := range []float32{0, 0.5, 1} {
		if v := normalize(wide[i], min, max); math.Abs(float64(v-want)) > 1e-6 {
			t.Errorf("normalize(%g)=%f; want %f", wide[i], v, want)
		}
	}

	img := NewImageFromNaxisn([]int32{3, 1, 1}, flat)
	tif := bytes.Buffer{}
	if err := img.WriteSliceTIFF16(&tif, 0); err != nil {
		t.Fatal(err)
	}
	decoded, err := tiff.Decode(&tif)
	if err != nil {
		t.Fatal(err)
	}
	for x := 0; x < 3; x++ {
		if r, g, b, _ := decoded.At(x, 0).RGBA(); r != 0 || g != 0 || b != 0 {
			t.Errorf("flat pixel %d=%d,%d,%d; want black", x, r, g, b)
		}
	}
}
