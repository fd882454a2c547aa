/*
 * vmbo - aggregate statistics report.
 *
 * Copyright 2024, Richard Cornwell
 * Copyright 2009, Ferruccio Vitale
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package report renders the final aggregate statistics table:
// per-process rows, then a totals row, then the allocated-virtual-memory
// summary.
package report

import (
	"fmt"
	"io"

	"github.com/unixo/vmbo/internal/pager"
)

// ProcessRow is one process's contribution to the report.
type ProcessRow struct {
	Procnum     int
	PageCount   int
	Probability float64 // this process's memory-vs-I/O probability
	Stats       pager.Stats
}

// Totals carries the run-wide figures: the engine's access and fault
// counters, the page size, and the I/O counters summed over processes.
type Totals struct {
	MaxAccess  uint64
	PageFaults uint64
	PageSize   uint32
	IORequests uint64
	IOTimeMS   uint64
}

// Render writes the statistics table to w.
func Render(w io.Writer, rows []ProcessRow, totals Totals) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "+==================================================================+")
	fmt.Fprintln(w, "|                            S T A T I S T I C S                   |")
	fmt.Fprintln(w, "+==================================================================+")
	fmt.Fprintln(w, "| PID | PAGE | PROB | MEMORY  |  PAGE   | FAULT | I/O     | AVG    |")
	fmt.Fprintln(w, "|     | CNT  |      | ACCESS  |  FAULT  |  (%)  | REQUEST | TIME   |")
	fmt.Fprintln(w, "+-----+------+------+---------+---------+-------+---------+--------+")

	var allocatedPages int
	var totalFaults uint64
	for _, row := range rows {
		faultPct := 0.0
		if row.Stats.PageFaults != 0 && row.Stats.MemAccesses != 0 {
			faultPct = float64(row.Stats.PageFaults) / float64(row.Stats.MemAccesses) * 100
		}
		avgIOTime := 0.0
		if row.Stats.IORequests != 0 {
			avgIOTime = float64(row.Stats.TotalIOTimeMS) / float64(row.Stats.IORequests)
		}
		fmt.Fprintf(w, "|% 4d |% 5d |% 4.0f%% | % 7d | % 7d | % 4.0f%% | % 7d | % 6.0f |\n",
			row.Procnum, row.PageCount, row.Probability*100,
			row.Stats.MemAccesses, row.Stats.PageFaults, faultPct,
			row.Stats.IORequests, avgIOTime)
		allocatedPages += row.PageCount
		totalFaults += row.Stats.PageFaults
	}

	faultPct := 0.0
	if totals.MaxAccess != 0 {
		faultPct = float64(totals.PageFaults) / float64(totals.MaxAccess) * 100
	}
	avgIOTime := 0.0
	if totals.IORequests != 0 {
		avgIOTime = float64(totals.IOTimeMS) / float64(totals.IORequests)
	}
	fmt.Fprintln(w, "+-----+------+------+---------+---------+-------+---------+--------+")
	fmt.Fprintf(w, "                    | % 7d | % 7d | % 4.0f%% | % 7d | % 6.0f |\n",
		totals.MaxAccess, totalFaults, faultPct, totals.IORequests, avgIOTime)
	fmt.Fprintln(w, "                    +---------+---------+-------+---------+--------+")
	fmt.Fprintln(w)

	allocatedBytes := uint64(allocatedPages) * uint64(totals.PageSize)
	fmt.Fprintf(w, "Virtual pages allocated = % 12d\n", allocatedPages)
	fmt.Fprintf(w, "Virtual memory allocated = %12d (~ %.1f Mb)\n\n",
		allocatedBytes, float64(allocatedBytes)/1048576.0)
}
