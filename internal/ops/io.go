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

package ops

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mlnoga/median3/internal/fits"
)

// Load a single FITS volume from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load volume from a file. Ignores any f argument provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if c.RestrictPaths && !IsPathAllowed(op.FileName) {
		return nil, fmt.Errorf("Filename %s outside current directory tree, aborting", op.FileName)
	}

	out := func() (f *fits.Image, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	} // relative paths only
	return !strings.Contains(p, "..") // no going outside the tree
}

func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	f, err = fits.NewImageFromFile(op.FileName, op.ID, c.Log)
	if err != nil {
		return nil, err
	}
	s := f.CalcStats()

	warning := ""
	if s.Max-s.Min < 1e-8 {
		warning = "; WARNING low dynamic range"
	}
	fmt.Fprintf(c.Log, "%d: Loaded %s voxel volume with %v from %s%s\n",
		f.ID, f.DimensionsToString(), s, f.FileName, warning)
	return f, nil
}

// Load many FITS volumes from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if c.RestrictPaths && !IsPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			promises, err := NewOpLoad(len(outs), match).MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			outs = append(outs, promises...)
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the volume id.
// FITS suffixes save the whole volume, JPEG and TIFF suffixes save a preview of one z slice.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
	Slice       int    `json:"slice"` // z slice for previews, -1 for the middle slice
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("", -1) }

func NewOpSave(filenamePattern string, slice int) *OpSave {
	op := &OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
		Slice:       slice,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def := defaults(*NewOpSaveDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSave(def)
	active, err := ActiveFromJSON(data, op.FilePattern != "")
	if err != nil {
		return err
	}
	op.Active = active
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

var fitsSuffixes = []string{
	".fits", ".fit", ".fts",
	".fits.gz", ".fit.gz", ".fts.gz",
	".fits.gzip", ".fit.gzip", ".fts.gzip",
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := op.FilePattern
	if strings.Contains(fileName, "%") {
		fileName = fmt.Sprintf(op.FilePattern, f.ID)
	}
	if c.RestrictPaths && !IsPathAllowed(fileName) {
		return nil, fmt.Errorf("%d: Filename %s outside current directory tree, aborting", f.ID, fileName)
	}
	fnLower := strings.ToLower(fileName)

	isJPG, isTIFF := hasAnySuffix(fnLower, ".jpeg", ".jpg"), hasAnySuffix(fnLower, ".tiff", ".tif")
	slice := 0
	if isJPG || isTIFF {
		if slice, err = op.previewSlice(f); err != nil {
			return nil, err
		}
	}

	if hasAnySuffix(fnLower, fitsSuffixes...) {
		fmt.Fprintf(c.Log, "%d: Writing %s voxel FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err = f.WriteFile(fileName)
	} else if isJPG {
		fmt.Fprintf(c.Log, "%d: Writing slice %d of %s voxel volume as JPEG to %s\n", f.ID, slice, f.DimensionsToString(), fileName)
		err = f.WriteSliceJPGToFile(fileName, slice, 95)
	} else if isTIFF {
		fmt.Fprintf(c.Log, "%d: Writing slice %d of %s voxel volume as 16-bit TIFF to %s\n", f.ID, slice, f.DimensionsToString(), fileName)
		err = f.WriteSliceTIFF16ToFile(fileName, slice)
	} else {
		err = fmt.Errorf("Unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: Error writing to file %s: %s", f.ID, fileName, err.Error())
	}
	return f, nil
}

// Returns the z slice to render in previews, resolving -1 to the middle slice
func (op *OpSave) previewSlice(f *fits.Image) (int, error) {
	if op.Slice >= 0 {
		return op.Slice, nil
	}
	naxisn, err := f.Naxis3()
	if err != nil {
		return 0, err
	}
	return int(naxisn[2]) / 2, nil
}

// Logs statistics of each volume. Takes n inputs, produces the same n outputs
type OpStats struct {
	OpUnaryBase
}

func init() { SetOperatorFactory(func() Operator { return NewOpStats() }) } // register the operator for JSON decoding

func NewOpStats() *OpStats {
	op := &OpStats{OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "stats", Active: true}}}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStats())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpStats(def)
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStats) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	fmt.Fprintf(c.Log, "%d: %s voxels %s\n", f.ID, f.DimensionsToString(), f.CalcStats())
	return f, nil
}
