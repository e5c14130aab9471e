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
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/median3/internal/fits"
)

func constPromise(f *fits.Image, err error) Promise {
	return func() (*fits.Image, error) { return f, err }
}

func TestMaterializeAll(t *testing.T) {
	a, b := fits.NewImageFromNaxisn([]int32{1}, nil), fits.NewImageFromNaxisn([]int32{2}, nil)
	outs, err := MaterializeAll([]Promise{constPromise(a, nil), constPromise(b, nil)}, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 || outs[0] != a || outs[1] != b {
		t.Errorf("outs=%v; want [a b] in order", outs)
	}

	outs, err = MaterializeAll([]Promise{
		constPromise(nil, errors.New("first")), constPromise(a, nil), constPromise(nil, errors.New("second")),
	}, 1, false)
	if err == nil || !strings.Contains(err.Error(), "first") || !strings.Contains(err.Error(), "second") {
		t.Errorf("err=%v; want both errors", err)
	}
	if len(outs) != 1 || outs[0] != a {
		t.Errorf("outs=%v; want [a]", outs)
	}

	if outs, err = MaterializeAll([]Promise{constPromise(a, nil)}, 1, true); err != nil || len(outs) != 0 {
		t.Errorf("outs=%v err=%v; want none when forgetting", outs, err)
	}
}

func TestRemoveNils(t *testing.T) {
	a, b := fits.NewImage(), fits.NewImage()
	res := RemoveNils([]*fits.Image{nil, a, nil, nil, b})
	if len(res) != 2 || res[0] != a || res[1] != b {
		t.Errorf("res=%v; want [a b]", res)
	}
}

func TestSequenceJSON(t *testing.T) {
	seq := NewOpSequence(NewOpLoadMany([]string{"*.fits"}), NewOpStats(), NewOpSave("out%02d.fits", 3))
	b, err := json.Marshal(seq)
	if err != nil {
		t.Fatal(err)
	}

	var res OpSequence
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("unmarshal %s: %s", string(b), err)
	}
	if len(res.Steps) != 3 {
		t.Fatalf("steps=%d; want 3", len(res.Steps))
	}
	for i, want := range []string{"loadMany", "stats", "save"} {
		if got := res.Steps[i].GetType(); got != want {
			t.Errorf("step %d type=%s; want %s", i, got, want)
		}
	}
	save := res.Steps[2].(*OpSave)
	if save.FilePattern != "out%02d.fits" || save.Slice != 3 || save.OpUnaryBase.Apply == nil {
		t.Errorf("save=%+v; want pattern, slice and bound apply", save)
	}

	if _, err := UnmarshalOperator([]byte(`{"type":"frobnicate"}`)); err == nil {
		t.Errorf("err=nil; want unknown operator type")
	}
}

func TestSaveDefaultsFromJSON(t *testing.T) {
	op, err := UnmarshalOperator([]byte(`{"type":"save","active":true,"filePattern":"x.tif"}`))
	if err != nil {
		t.Fatal(err)
	}
	if save := op.(*OpSave); save.Slice != -1 {
		t.Errorf("slice=%d; want -1", save.Slice)
	}
}

func TestActiveFromFileName(t *testing.T) {
	for _, tc := range []struct {
		json string
		want bool
	}{
		{`{"type":"save","filePattern":"x.fits"}`, true},
		{`{"type":"save"}`, false},
		{`{"type":"save","active":false,"filePattern":"x.fits"}`, false},
		{`{"type":"save","active":true}`, true},
		{`{"type":"seq","steps":[{"type":"stats"}]}`, true},
		{`{"type":"seq","steps":[]}`, false},
	} {
		op, err := UnmarshalOperator([]byte(tc.json))
		if err != nil {
			t.Fatalf("%s: %s", tc.json, err)
		}
		if got := op.IsActive(); got != tc.want {
			t.Errorf("%s: active=%v; want %v", tc.json, got, tc.want)
		}
	}
}

func TestLoadSavePreviews(t *testing.T) {
	dir := t.TempDir()
	img := fits.NewImageFromNaxisn([]int32{4, 4, 3}, nil)
	for i := range img.Data {
		img.Data[i] = float32(i)
	}
	in := filepath.Join(dir, "in.fits")
	if err := img.WriteFile(in); err != nil {
		t.Fatal(err)
	}

	log := bytes.Buffer{}
	c := NewContext(&log)
	seq := NewOpSequence(
		NewOpLoadMany([]string{filepath.Join(dir, "*.fits")}),
		NewOpStats(),
		NewOpSave(filepath.Join(dir, "out%d.jpg"), -1),
		NewOpSave(filepath.Join(dir, "out%d.tiff"), 0),
		NewOpSave(filepath.Join(dir, "out%d.fits.gz"), -1),
	)
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := MaterializeAll(promises, c.MaxThreads, true); err != nil {
		t.Fatalf("err=%s; log=%s", err, log.String())
	}
	for _, name := range []string{"out0.jpg", "out0.tiff", "out0.fits.gz"} {
		if st, err := os.Stat(filepath.Join(dir, name)); err != nil || st.Size() == 0 {
			t.Errorf("%s: stat=%v err=%v; want non-empty file", name, st, err)
		}
	}
	res, err := fits.NewImageFromFile(filepath.Join(dir, "out0.fits.gz"), 0, &log)
	if err != nil || res.Pixels != 48 {
		t.Errorf("reloaded %v, %v; want 48 voxels", res, err)
	}
	if !strings.Contains(log.String(), "Found 1 files.") {
		t.Errorf("log=%q; want file count", log.String())
	}
}

func TestRestrictPaths(t *testing.T) {
	c := NewContext(&bytes.Buffer{})
	c.RestrictPaths = true
	for _, name := range []string{"/etc/passwd", "../x.fits", "a/../../b.fits"} {
		if _, err := NewOpLoad(0, name).MakePromises(nil, c); err == nil {
			t.Errorf("%s: err=nil; want path rejected", name)
		}
	}
	if _, err := NewOpLoad(0, "data/x.fits").MakePromises(nil, c); err != nil {
		t.Errorf("err=%v; want relative path accepted", err)
	}
}

func TestCPUDescription(t *testing.T) {
	if s := CPUDescription(); !strings.Contains(s, "logical cores") {
		t.Errorf("cpu=%q; want core count", s)
	}
}
