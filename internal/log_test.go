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

package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLogAlsoToFile(t *testing.T) {
	stdout := bytes.Buffer{}
	logOut = &stdout
	defer func() { logOut = os.Stdout }()

	fileName := filepath.Join(t.TempDir(), "run.log")
	if err := LogAlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}
	LogPrintf("%d: filtered %d voxels\n", 3, 27)
	LogPrint("done")
	if err := LogSync(); err != nil {
		t.Fatal(err)
	}
	if err := LogClose(); err != nil {
		t.Fatal(err)
	}
	LogPrintln("stdout only")

	want := "3: filtered 27 voxels\ndone"
	b, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != want {
		t.Errorf("file=%q; want %q", string(b), want)
	}
	if got := stdout.String(); got != want+"stdout only\n" {
		t.Errorf("stdout=%q; want %q", got, want+"stdout only\n")
	}
}

func TestLogSyncWithoutFile(t *testing.T) {
	if err := LogSync(); err != nil {
		t.Errorf("err=%v; want nil without log file", err)
	}
}
