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

package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/mlnoga/median3/internal/fits"
	"github.com/mlnoga/median3/internal/ops"
)

// Exports per-volume statistics as CSV table, one row per volume sorted by ID.
// The file is rewritten with all rows seen so far after each volume
type OpExportStats struct {
	ops.OpUnaryBase
	FileName string     `json:"fileName"`
	mutex    sync.Mutex `json:"-"`
	rows     [][]string `json:"-"`
	ids      []int      `json:"-"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpExportStatsDefault() }) } // register the operator for JSON decoding

func NewOpExportStatsDefault() *OpExportStats { return NewOpExportStats("") }

func NewOpExportStats(fileName string) *OpExportStats {
	op := &OpExportStats{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "exportStats", Active: fileName != ""}},
		FileName:    fileName,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpExportStats) UnmarshalJSON(data []byte) error {
	type defaults OpExportStats
	def := defaults(*NewOpExportStatsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	// copied field by field, as the mutex must not be passed by value
	op.OpUnaryBase = def.OpUnaryBase
	op.FileName = def.FileName
	op.mutex = sync.Mutex{}
	op.rows, op.ids = nil, nil
	active, err := ops.ActiveFromJSON(data, op.FileName != "")
	if err != nil {
		return err
	}
	op.Active = active

	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op, not def
	return nil
}

var statsColumns = []string{"ID", "File", "Dimensions", "Voxels", "NaNs", "Infs", "Min", "Max", "Mean", "StdDev", "Location", "Peak"}

func (op *OpExportStats) Apply(f *fits.Image, c *ops.Context) (result *fits.Image, err error) {
	if op.FileName == "" {
		fmt.Fprintf(c.Log, "%d: exportStats empty fileName\n", f.ID)
		return f, nil
	}
	if c.RestrictPaths && !ops.IsPathAllowed(op.FileName) {
		return nil, fmt.Errorf("%d: Filename %s outside current directory tree, aborting", f.ID, op.FileName)
	}
	s := f.CalcStats()
	ff := func(v float32) string { return strconv.FormatFloat(float64(v), 'g', 8, 32) }
	row := []string{
		strconv.Itoa(f.ID), f.FileName, f.DimensionsToString(),
		strconv.Itoa(s.Voxels), strconv.Itoa(s.NaNs), strconv.Itoa(s.Infs),
		ff(s.Min), ff(s.Max), ff(s.Mean), ff(s.StdDev), ff(s.Location), ff(s.Peak),
	}

	op.mutex.Lock()         // lock so a single thread is active
	defer op.mutex.Unlock() // always release lock on exit

	pos := sort.SearchInts(op.ids, f.ID)
	op.ids = append(op.ids, 0)
	copy(op.ids[pos+1:], op.ids[pos:])
	op.ids[pos] = f.ID
	op.rows = append(op.rows, nil)
	copy(op.rows[pos+1:], op.rows[pos:])
	op.rows[pos] = row

	fmt.Fprintf(c.Log, "%d: Writing statistics to file %s ...\n", f.ID, op.FileName)
	if err := op.write(); err != nil {
		return nil, fmt.Errorf("%d: Error writing statistics to %s: %s", f.ID, op.FileName, err.Error())
	}
	return f, nil
}

func (op *OpExportStats) write() error {
	file, err := os.Create(op.FileName)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	w := csv.NewWriter(buf)
	if err := w.Write(statsColumns); err != nil {
		return err
	}
	if err := w.WriteAll(op.rows); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return file.Close()
}
