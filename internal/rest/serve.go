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
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/median3/internal/ops"
	"github.com/mlnoga/median3/internal/ops/filter"
	"github.com/mlnoga/median3/internal/ops/report"
)

// Creates the router with all API routes
func NewRouter() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/stats", postStats)
			v1.POST("/median3", postMedian3)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func Serve(addr string) error {
	return NewRouter().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postStatsArgs struct {
	FilePatterns []string `json:"filePatterns" binding:"required"`
}

func postStats(c *gin.Context) {
	var args postStatsArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runPipeline(c, args, ops.NewOpSequence(ops.NewOpLoadMany(args.FilePatterns), ops.NewOpStats()))
}

type postMedian3Args struct {
	FilePatterns []string              `json:"filePatterns" binding:"required"`
	Median3      *filter.OpMedian3     `json:"median3"`
	Save         *ops.OpSave           `json:"save"`
	ExportStats  *report.OpExportStats `json:"exportStats"`
}

func postMedian3(c *gin.Context) {
	var args postMedian3Args
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Median3 == nil {
		args.Median3 = filter.NewOpMedian3Defaults()
	}
	seq := ops.NewOpSequence(ops.NewOpLoadMany(args.FilePatterns), args.Median3)
	if args.Save != nil {
		seq.Append(args.Save)
	}
	if args.ExportStats != nil {
		seq.Append(args.ExportStats)
	}
	runPipeline(c, args, seq)
}

// Runs the operator sequence, streaming log output as plain text
func runPipeline(c *gin.Context, args interface{}, seq *ops.OpSequence) {
	logWriter := c.Writer
	logWriter.Header().Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)
	defer logWriter.Flush()

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	ctx := ops.NewContext(logWriter)
	ctx.RestrictPaths = true
	promises, err := seq.MakePromises(nil, ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		return
	}
	if _, err = ops.MaterializeAll(promises, ctx.MaxThreads, true); err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	}
}
