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

package filter

import (
	"bytes"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mlnoga/median3/internal/fits"
	"github.com/mlnoga/median3/internal/median"
	"github.com/mlnoga/median3/internal/ops"
	"github.com/valyala/fastrand"
)

func writeTestVolume(t *testing.T, dir string) (fileName string, img *fits.Image) {
	t.Helper()
	img = fits.NewImageFromNaxisn([]int32{6, 5, 4}, nil)
	rng := fastrand.RNG{}
	rng.Seed(42)
	for i := range img.Data {
		img.Data[i] = float32(rng.Uint32n(500))
	}
	img.Data[37] = float32(math.NaN())
	fileName = filepath.Join(dir, "volume.fits")
	if err := img.WriteFile(fileName); err != nil {
		t.Fatal(err)
	}
	return fileName, img
}

func writeTestMask(t *testing.T, dir, name string, naxisn []int32, every int) (fileName string, mask []bool) {
	t.Helper()
	n := int(naxisn[0] * naxisn[1] * naxisn[2])
	mask = make([]bool, n)
	for i := range mask {
		mask[i] = i%every != 0
	}
	fileName = filepath.Join(dir, name)
	if err := fits.NewImageFromMask(naxisn, mask).WriteMaskFile(fileName); err != nil {
		t.Fatal(err)
	}
	return fileName, mask
}

func TestOpMedian3Pipeline(t *testing.T) {
	dir := t.TempDir()
	volName, vol := writeTestVolume(t, dir)
	inclName, incl := writeTestMask(t, dir, "incl.fits", vol.Naxisn, 3)
	neighName, neigh := writeTestMask(t, dir, "neigh.fits", vol.Naxisn, 5)
	outName := filepath.Join(dir, "out.fits")

	config := median.NewConfig()
	config.ChangeThreshold = 2
	config.InclusionHigh = 450
	seq := ops.NewOpSequence(
		ops.NewOpLoad(0, volName),
		NewOpMedian3(inclName, neighName, config),
		ops.NewOpSave(outName, -1),
	)

	log := bytes.Buffer{}
	c := ops.NewContext(&log)
	c.MaxThreads = 3
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	results, err := ops.MaterializeAll(promises, c.MaxThreads, false)
	if err != nil {
		t.Fatalf("err=%s; log=%s", err, log.String())
	}
	if len(results) != 1 {
		t.Fatalf("results=%d; want 1", len(results))
	}

	want, _, err := median.Filter(vol.Data, [3]int32{6, 5, 4}, incl, neigh, config, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, results[0].Data, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("filtered mismatch (-want +got):\n%s", diff)
	}

	saved, err := fits.NewImageFromFile(outName, 1, &log)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, saved.Data, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("saved mismatch (-want +got):\n%s", diff)
	}
	if len(saved.Header.History) == 0 || !strings.HasPrefix(saved.Header.History[0], "median3") {
		t.Errorf("history=%v; want median3 entry", saved.Header.History)
	}
	if !strings.Contains(log.String(), "Median3 with") {
		t.Errorf("log=%q; want median3 report", log.String())
	}
	if c.InclusionMask == nil || c.NeighborMask == nil {
		t.Errorf("masks not cached in context")
	}
}

func TestOpMedian3MaskShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	volName, _ := writeTestVolume(t, dir)
	inclName, _ := writeTestMask(t, dir, "incl.fits", []int32{6, 5, 3}, 2)

	c := ops.NewContext(&bytes.Buffer{})
	seq := ops.NewOpSequence(ops.NewOpLoad(0, volName), NewOpMedian3(inclName, "", median.NewConfig()))
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ops.MaterializeAll(promises, 1, false); err == nil {
		t.Errorf("err=nil; want dimension mismatch")
	}
}

func TestOpMedian3JSONDefaults(t *testing.T) {
	op, err := ops.UnmarshalOperator([]byte(`{"type":"median3","active":true,"changeThreshold":-1.5,"inclusionMask":"m.fits"}`))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := op.(*OpMedian3)
	if !ok {
		t.Fatalf("type=%T; want *OpMedian3", op)
	}
	want := median.NewConfig()
	want.ChangeThreshold = -1.5
	if diff := cmp.Diff(want, m.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if m.InclusionMask != "m.fits" || m.NeighborMask != "" {
		t.Errorf("masks=%q,%q; want m.fits and blank", m.InclusionMask, m.NeighborMask)
	}
	if m.OpUnaryBase.Apply == nil {
		t.Errorf("apply not bound after unmarshaling")
	}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"repairSpecialValues":true`) {
		t.Errorf("json=%s; want repairSpecialValues", string(b))
	}
}
