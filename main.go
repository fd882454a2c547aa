/*
 * vmbo - Driver: wires configuration, MMU, I/O device and process
 * workload together and prints the final statistics report.
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

// Command vmbo simulates a paged virtual-memory subsystem: N concurrent
// processes generate memory references against a shared MMU (Enhanced
// Second-Chance replacement, optional anticipatory paging) and issue
// asynchronous reads against a FIFO-serialized I/O device, until the
// configured access cap is reached.
package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/unixo/vmbo/internal/config"
	"github.com/unixo/vmbo/internal/iodevice"
	"github.com/unixo/vmbo/internal/mmu"
	"github.com/unixo/vmbo/internal/pager"
	"github.com/unixo/vmbo/internal/report"
	"github.com/unixo/vmbo/internal/simlog"
	"github.com/unixo/vmbo/internal/workload"
)

const version = "vmbo version 2.0.0"

func main() {
	raw, cfg, err := config.Parse()
	if raw.Help {
		config.PrintUsage()
		os.Exit(0)
	}
	if raw.Version {
		fmt.Println(version)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	driverLog := simlog.NewDriverLogger(os.Stdout)

	engine := mmu.New(mmu.Config{
		MaxAccess:    cfg.MaxAccess,
		RAMSize:      cfg.RAMSize,
		FrameSize:    cfg.FrameSize,
		Anticipatory: effectiveAnticipatory(cfg),
		Debug:        cfg.Debug,
		Log:          driverLog,
	})

	procs := make([]*workload.Process, cfg.Processes)
	closers := make([]io.Closer, 0, cfg.Processes)

	device := iodevice.New(iodevice.Config{
		Tmin: cfg.Tmin,
		Tmax: cfg.Tmax,
		Log:  driverLog,
		Rand: rand.New(rand.NewSource(rand.Int63())),
		OnComplete: func(procnum int, elapsed time.Duration) {
			if procnum >= 0 && procnum < len(procs) && procs[procnum] != nil {
				procs[procnum].OnIOComplete(uint64(elapsed.Milliseconds()))
			}
		},
	})

	maxPageCount := 1 << engine.PageBits()
	for i := 0; i < cfg.Processes; i++ {
		pageCount := maxPageCount
		if !cfg.AllMemory {
			// A process without --all-memory gets a modest, varied DSS so
			// distinct processes fault at different rates.
			pageCount = 4 + i%8
			if pageCount > maxPageCount {
				pageCount = maxPageCount
			}
		}
		procLog, closer, err := simlog.OpenProcessLog(i)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		closers = append(closers, closer)

		pt := pager.NewPageTable(pageCount)
		engine.Register(i, pt, procLog)

		procs[i] = workload.New(workload.Config{
			Procnum:         i,
			PageCount:       pageCount,
			PageSize:        cfg.FrameSize,
			MemProbability:  cfg.MemProbability(i),
			Locality:        cfg.Locality,
			ReadOnly:        cfg.ReadOnly,
			ReferenceString: cfg.ReferenceString,
			MMU:             engine,
			IODevice:        device,
			Log:             procLog,
			Rand:            rand.New(rand.NewSource(rand.Int63())),
		})
	}

	engine.Start()
	device.Start()
	for _, p := range procs {
		p.Start()
	}

	// Join order: MMU first (it owns the shutdown decision), then the
	// I/O device, then every process - each process's I/O condition is
	// signaled before it is joined so none is left blocked on a reply
	// that will never arrive.
	<-engine.ShutdownSignal()
	engine.Stop()
	device.Stop()
	for _, p := range procs {
		p.Stop()
	}
	for _, c := range closers {
		c.Close()
	}

	printReport(engine, procs, cfg)
}

// effectiveAnticipatory applies the two auto-off rules: a reference
// string forces anticipatory paging off outright, and so does having too
// few frames per process to make look-ahead worthwhile.
func effectiveAnticipatory(cfg *config.Config) bool {
	if cfg.ReferenceString != nil {
		return false
	}
	maxFrames := int(cfg.RAMSize / cfg.FrameSize)
	if cfg.Processes > 0 && maxFrames/cfg.Processes < 3 {
		return false
	}
	return cfg.Anticipatory
}

func printReport(engine *mmu.Engine, procs []*workload.Process, cfg *config.Config) {
	rows := make([]report.ProcessRow, len(procs))
	var totalIO, totalIOMS uint64
	for i, p := range procs {
		s := p.Stats()
		mmuStats := engine.ProcessStats(p.Procnum())
		s.MemAccesses = mmuStats.MemAccesses
		s.PageFaults = mmuStats.PageFaults
		rows[i] = report.ProcessRow{
			Procnum:     p.Procnum(),
			PageCount:   engine.PageCount(p.Procnum()),
			Probability: cfg.MemProbability(p.Procnum()),
			Stats:       s,
		}
		totalIO += s.IORequests
		totalIOMS += s.TotalIOTimeMS
	}

	hits, faults := engine.Stats()
	totals := report.Totals{
		MaxAccess:  hits + faults,
		PageFaults: faults,
		PageSize:   cfg.FrameSize,
		IORequests: totalIO,
		IOTimeMS:   totalIOMS,
	}
	report.Render(os.Stdout, rows, totals)
}
