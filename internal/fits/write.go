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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"sort"
	"strings"
)

// Keys written from image metadata, never copied from the free-form header maps
var reservedKeys = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "BZERO": true, "BSCALE": true, "END": true,
}

// Writes an in-memory FITS image to a file with given filename.
// Creates/overwrites the file if necessary. Compresses with gzip if .gz or .gzip suffix is present
func (fits *Image) WriteFile(fileName string) error {
	return writeToFile(fileName, fits.Write)
}

func writeToFile(fileName string, write func(w io.Writer) error) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		gz := gzip.NewWriter(f)
		if err := write(gz); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}
	} else {
		w := bufio.NewWriter(f)
		if err := write(w); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return f.Close()
}

// Writes an in-memory FITS image to an io.Writer as 32-bit floats.
// NaN and Inf are written as IEEE special values
func (fits *Image) Write(w io.Writer) error {
	if err := fits.writeHeader(w, -32, "    32-bit floating point"); err != nil {
		return err
	}
	return writeFloat32Array(w, fits.Data)
}

// Writes the image as an 8-bit boolean mask to a file with given filename
func (fits *Image) WriteMaskFile(fileName string) error {
	return writeToFile(fileName, fits.WriteMask)
}

// Writes the image as an 8-bit boolean mask to an io.Writer. Nonzero voxels become 1, all others 0
func (fits *Image) WriteMask(w io.Writer) error {
	if err := fits.writeHeader(w, 8, "    8-bit mask"); err != nil {
		return err
	}
	mask := fits.ToMask()
	buf := make([]byte, bufLen)
	for block := 0; block < len(mask); block += bufLen {
		size := len(mask) - block
		if size > bufLen {
			size = bufLen
		}
		for offset := 0; offset < size; offset++ {
			buf[offset] = 0
			if mask[block+offset] {
				buf[offset] = 1
			}
		}
		if _, err := w.Write(buf[:size]); err != nil {
			return err
		}
	}
	return writePadding(w, len(mask))
}

func (fits *Image) writeHeader(w io.Writer, bitpix int32, bitpixComment string) error {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "    FITS standard 4.0")
	writeInt32(&sb, "BITPIX", bitpix, bitpixComment)
	writeInt32(&sb, "NAXIS", int32(len(fits.Naxisn)), "[1] Number of axis")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), fits.Naxisn[i], "[1] Axis size")
	}
	fits.Header.writeKeys(&sb)
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Writes the remaining header entries in sorted key order, followed by comments and history
func (h *Header) writeKeys(w io.Writer) {
	for _, k := range sortedKeys(h.Bools) {
		writeBool(w, k, h.Bools[k], "")
	}
	for _, k := range sortedKeys(h.Ints) {
		writeInt32(w, k, h.Ints[k], "")
	}
	for _, k := range sortedKeys(h.Floats) {
		v := h.Floats[k]
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			continue // not representable as header value
		}
		writeFloat32(w, k, v, "")
	}
	for _, k := range sortedKeys(h.Strings) {
		writeString(w, k, h.Strings[k], "")
	}
	for _, k := range sortedKeys(h.Dates) {
		writeDate(w, k, h.Dates[k], "")
	}
	for _, c := range h.Comments {
		writeText(w, "COMMENT", c)
	}
	for _, c := range h.History {
		writeText(w, "HISTORY", c)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !reservedKeys[k] && !strings.HasPrefix(k, "NAXIS") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", clip(key, 8), v, clip(comment, 47))
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	fmt.Fprintf(w, "%-8s= %20d / %-47s", clip(key, 8), value, clip(comment, 47))
}

// Writes a FITS header float32 value. Uses an upper case exponent as required by the standard
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	s := fmt.Sprintf("%G", value)
	if !strings.ContainsAny(s, ".E") {
		s += ".0"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", clip(key, 8), s, clip(comment, 47))
}

// Writes a FITS header date value
func writeDate(w io.Writer, key, value, comment string) {
	fmt.Fprintf(w, "%-8s= %20s / %-47s", clip(key, 8), clip(value, 20), clip(comment, 47))
}

// Writes a FITS header string value with escaping. Long values drop the comment and are clipped to one line
func writeString(w io.Writer, key, value, comment string) {
	value = strings.ReplaceAll(clip(value, 68), "'", "")
	if len(value) <= 18 {
		fmt.Fprintf(w, "%-8s= '%s'%s / %-47s", clip(key, 8), value, strings.Repeat(" ", 18-len(value)), clip(comment, 47))
	} else {
		fmt.Fprintf(w, "%-8s= '%s'%s", clip(key, 8), value, strings.Repeat(" ", 68-len(value)))
	}
}

// Writes a COMMENT or HISTORY line
func writeText(w io.Writer, key, text string) {
	fmt.Fprintf(w, "%-8s%-72s", key, clip(text, 72))
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", HeaderLineSize-3))
}

// Writes FITS binary body data in network byte order, followed by zero padding to the block size
func writeFloat32Array(w io.Writer, data []float32) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += bufLen >> 2 {
		size := len(data) - block
		if size > bufLen>>2 {
			size = bufLen >> 2
		}
		for offset := 0; offset < size; offset++ {
			binary.BigEndian.PutUint32(buf[offset<<2:], math.Float32bits(data[block+offset]))
		}
		if _, err := w.Write(buf[:size<<2]); err != nil {
			return err
		}
	}
	return writePadding(w, len(data)<<2)
}

func writePadding(w io.Writer, bytesWritten int) error {
	if rest := bytesWritten % fitsBlockSize; rest > 0 {
		_, err := w.Write(make([]byte, fitsBlockSize-rest))
		return err
	}
	return nil
}
