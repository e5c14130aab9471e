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

package rest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/median3/internal/fits"
)

func init() { gin.SetMode(gin.TestMode) }

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// Changes into a fresh temporary directory for the duration of the test
func chdirTemp(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestPing(t *testing.T) {
	w := httptest.NewRecorder()
	NewRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("code=%d body=%s; want 200 pong", w.Code, w.Body.String())
	}
}

func TestMedian3BadRequest(t *testing.T) {
	r := NewRouter()
	for _, body := range []string{`{"filePatterns":`, `{"median3":{}}`, `{"filePatterns":["a.fits"],"median3":{"changeThreshold":"x"}}`} {
		if w := post(r, "/api/v1/median3", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: code=%d; want 400", body, w.Code)
		}
	}
}

func TestMedian3Run(t *testing.T) {
	chdirTemp(t)
	img := fits.NewImageFromNaxisn([]int32{3, 3, 3}, nil)
	for i := range img.Data {
		img.Data[i] = float32((i * 10) % 27)
	}
	if err := img.WriteFile("in.fits"); err != nil {
		t.Fatal(err)
	}

	w := post(NewRouter(), "/api/v1/median3",
		`{"filePatterns":["*.fits"],"median3":{"type":"median3","active":true,"changeThreshold":0},"save":{"filePattern":"out%d.fits"}}`)
	body := w.Body.String()
	if w.Code != http.StatusOK || strings.Contains(body, "Error") {
		t.Fatalf("code=%d body=%s; want 200 without error", w.Code, body)
	}
	if !strings.Contains(body, "Median3 with") {
		t.Errorf("body=%s; want median3 report", body)
	}

	res, err := fits.NewImageFromFile("out0.fits", 0, &strings.Builder{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Data[13]; got != 13.5 {
		t.Errorf("center=%f; want 13.5", got)
	}
}

func TestStatsRejectsOutsidePaths(t *testing.T) {
	w := post(NewRouter(), "/api/v1/stats", `{"filePatterns":["/etc/*.fits"]}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Error") {
		t.Errorf("code=%d body=%s; want streamed error", w.Code, w.Body.String())
	}
}
