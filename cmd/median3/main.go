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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	nl "github.com/mlnoga/median3/internal"
	"github.com/mlnoga/median3/internal/median"
	"github.com/mlnoga/median3/internal/ops"
	"github.com/mlnoga/median3/internal/ops/filter"
	"github.com/mlnoga/median3/internal/ops/report"
	"github.com/mlnoga/median3/internal/rest"
)

const version = "0.3.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.fits", "save output to `file`. Use a pattern like `out%03d.fits` for multiple inputs")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of one output slice as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var tiff = flag.String("tiff", "", "save 16bit preview of one output slice as TIFF to `file`. `%auto` replaces suffix of output file with .tif")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var statsOut = flag.String("statsOut", "", "save per-volume statistics as CSV to `file`, blank=don't")
var slice = flag.Int64("slice", -1, "z slice to render in previews, -1=middle slice")

var incl = flag.String("incl", "", "filter only voxels which are nonzero in the mask in `file`, blank=all")
var neigh = flag.String("neigh", "", "use only voxels which are nonzero in the mask in `file` as neighbors, blank=all")

var sf = flag.Float64("sf", 0, "change threshold. >0: revert changes smaller than sf, <0: revert changes larger than -sf, 0=keep all. Needs -incl")
var inclLow = flag.Float64("inclLow", -math.MaxFloat32, "filter only voxels with values at or above this threshold")
var inclHigh = flag.Float64("inclHigh", math.MaxFloat32, "filter only voxels with values at or below this threshold")
var neighLow = flag.Float64("neighLow", -math.MaxFloat32, "use only neighbors with values at or above this threshold")
var neighHigh = flag.Float64("neighHigh", math.MaxFloat32, "use only neighbors with values at or below this threshold")
var repair = flag.Int64("repair", 1, "1=replace NaN and Inf voxels with the median of their finite neighbors, 0=keep them")
var sparse = flag.Int64("sparse", 0, "output for voxels with fewer than two finite neighbors. 0=zero, 1=keep original value")
var threads = flag.Int64("threads", 0, "goroutines per volume, 0=number of CPUs")

var addr = flag.String("addr", ":8080", "listen on this address when serving")
var chroot = flag.String("chroot", "", "change filesystem root to `dir` before serving, requires root")
var setuid = flag.Int64("setuid", -1, "change user id to `uid` before serving, -1=keep")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `median3 Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (filter|stats|serve|legal|version) (vol0.fits ... voln.fits)

Commands:
  filter  Apply the masked 3x3x3 median filter to input volumes
  stats   Show input volume statistics
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	*log = autoSuffix(*log, ".log")
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Also auto-select preview output targets
	*jpg = autoSuffix(*jpg, ".jpg")
	*tiff = autoSuffix(*tiff, ".tif")

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "filter":
		err = cmdFilter(args[1:], logWriter)

	case "stats":
		err = runSequence(ops.NewOpSequence(ops.NewOpLoadMany(args[1:]), ops.NewOpStats(), report.NewOpExportStats(*statsOut)), logWriter, false)

	case "serve":
		if err = rest.MakeSandbox(*chroot, int(*setuid), logWriter); err == nil {
			err = rest.Serve(*addr)
		}

	case "legal":
		cmdLegal()

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		c := ops.NewContext(logWriter)
		fmt.Fprintf(logWriter, "Running on %s with %d MiB memory, using %d threads\n", c.CPU, c.MemoryMB, c.MaxThreads)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		nl.LogClose()
		os.Exit(-1)
	}
	nl.LogClose()
}

// Replaces %auto with the output file name with its suffix replaced by the given one
func autoSuffix(value, suffix string) string {
	if value != "%auto" {
		return value
	}
	if *out == "" {
		return ""
	}
	return strings.TrimSuffix(*out, filepath.Ext(*out)) + suffix
}

// Builds the filter configuration from the command line flags
func configFromFlags() median.Config {
	return median.Config{
		InclusionLow:        float32(*inclLow),
		InclusionHigh:       float32(*inclHigh),
		NeighborLow:         float32(*neighLow),
		NeighborHigh:        float32(*neighHigh),
		ChangeThreshold:     float32(*sf),
		RepairSpecialValues: *repair != 0,
		Sparse:              median.SparseMode(*sparse),
	}
}

// Perform median filter command
func cmdFilter(patterns []string, logWriter io.Writer) error {
	if *sparse != int64(median.SparseZero) && *sparse != int64(median.SparsePassthrough) {
		return fmt.Errorf("Invalid sparse mode %d", *sparse)
	}
	if *sf != 0 && *incl == "" {
		fmt.Fprintf(logWriter, "Warning: change threshold %g has no effect without an inclusion mask\n", *sf)
	}

	opMedian3 := filter.NewOpMedian3(*incl, *neigh, configFromFlags())
	opMedian3.Threads = int(*threads)
	seq := ops.NewOpSequence(
		ops.NewOpLoadMany(patterns),
		opMedian3,
		ops.NewOpSave(*out, int(*slice)),
		ops.NewOpSave(*jpg, int(*slice)),
		ops.NewOpSave(*tiff, int(*slice)),
		report.NewOpExportStats(*statsOut),
	)

	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "\nFiltering with these settings:\n%s\n", string(m))
	return runSequence(seq, logWriter, true)
}

// Runs the given operator sequence, materializing outputs with limited concurrency.
// If saving, multiple outputs need a file name pattern
func runSequence(seq *ops.OpSequence, logWriter io.Writer, saving bool) error {
	c := ops.NewContext(logWriter)
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	if saving && len(promises) > 1 && *out != "" && !strings.Contains(*out, "%") {
		return fmt.Errorf("Output file %s needs a pattern like %%03d for %d input volumes", *out, len(promises))
	}
	// volumes are filtered in parallel internally, so only few are in flight at once
	volumeThreads := c.MaxThreads
	if volumeThreads > 2 {
		volumeThreads = 2
	}
	_, err = ops.MaterializeAll(promises, volumeThreads, true)
	return err
}
