/*
 * vmbo - process workload: memory-reference and I/O-request generation.
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

// Package workload generates the memory references and I/O requests each
// simulated process issues until the MMU reports termination. Each
// process is one goroutine; completion of an I/O request is waited on
// through a per-process sync.Cond.
package workload

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/unixo/vmbo/internal/pager"
)

const (
	loopIterations = 8
	itemStride     = 10
	loopBurstPct   = 30
	readWriteSplit = 50
	terminated     = ^uint32(0)
)

// MMU is the subset of mmu.Engine a process depends on.
type MMU interface {
	MemoryAccess(procnum int, vaddr uint32, rw int) uint32
}

// IODevice is the subset of iodevice.Device a process depends on.
type IODevice interface {
	Read(procnum int) bool
}

// Config bundles one process's construction parameters.
type Config struct {
	Procnum        int
	PageCount      int
	PageSize       uint32
	MemProbability  float64  // 0.0..1.0: chance a tick is a memory access rather than I/O
	Locality        int      // 0..100: temporal-locality percent
	ReadOnly        bool
	ReferenceString []uint16 // non-nil activates reference-string mode
	MMU             MMU
	IODevice        IODevice
	Log             *slog.Logger
	Rand            *rand.Rand
}

// Process is one simulated actor: a goroutine alternating between memory
// references and I/O requests against the shared MMU and I/O device.
type Process struct {
	procnum        int
	pageCount      int
	pageSize       uint32
	dss            uint32
	memProbability float64
	locality       int
	readOnly       bool
	refString      []uint16
	refIdx         int

	mmu MMU
	io  IODevice
	log *slog.Logger
	rng *rand.Rand

	lastAddress uint32

	ioMu   sync.Mutex
	ioCond *sync.Cond
	ioDone bool

	statsMu sync.Mutex
	stats   pager.Stats

	wg   sync.WaitGroup
	done chan struct{}
}

// New builds a Process ready to Start.
func New(cfg Config) *Process {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	p := &Process{
		procnum:        cfg.Procnum,
		pageCount:      cfg.PageCount,
		pageSize:       cfg.PageSize,
		dss:            uint32(cfg.PageCount) * cfg.PageSize,
		memProbability: cfg.MemProbability,
		locality:       cfg.Locality,
		readOnly:       cfg.ReadOnly,
		refString:      cfg.ReferenceString,
		mmu:            cfg.MMU,
		io:             cfg.IODevice,
		log:            cfg.Log,
		rng:            rng,
		done:           make(chan struct{}),
	}
	p.ioCond = sync.NewCond(&p.ioMu)
	return p
}

// Procnum reports the process's identifier.
func (p *Process) Procnum() int { return p.procnum }

// Stats returns a snapshot of this process's I/O counters (MemAccesses and
// PageFaults live on the MMU's per-process ledger instead, since only the
// MMU consumer goroutine observes page-table state).
func (p *Process) Stats() pager.Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Start launches the process's goroutine.
func (p *Process) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.log != nil {
			p.log.Info("process started", "proc", p.procnum)
		}
		p.run()
		if p.log != nil {
			p.log.Info("process stopped", "proc", p.procnum)
		}
	}()
}

// Stop unblocks a process possibly waiting on I/O completion and waits for
// its goroutine to exit. The driver must call this only after the I/O
// device has already drained and serviced every outstanding request, so
// this is purely a safety net against a process that never got a real
// completion; it carries no stats update of its own.
func (p *Process) Stop() {
	close(p.done)
	p.unblockIO()
	p.wg.Wait()
}

func (p *Process) unblockIO() {
	p.ioMu.Lock()
	p.ioDone = true
	p.ioCond.Signal()
	p.ioMu.Unlock()
}

// OnIOComplete records a serviced I/O request's elapsed time and wakes the
// process if it is blocked waiting for it. The driver wires this as the
// I/O device's completion callback for this process's procnum; it runs on
// the device's consumer goroutine.
func (p *Process) OnIOComplete(elapsedMS uint64) {
	p.statsMu.Lock()
	p.stats.IORequests++
	p.stats.TotalIOTimeMS += elapsedMS
	p.statsMu.Unlock()
	if p.log != nil {
		p.log.Info(fmt.Sprintf("Request served in %d ms", elapsedMS))
	}
	p.unblockIO()
}

func (p *Process) waitForIO() {
	p.ioMu.Lock()
	for !p.ioDone {
		p.ioCond.Wait()
	}
	p.ioDone = false
	p.ioMu.Unlock()
}

func (p *Process) run() {
	p.logHeader()
	if p.refString != nil {
		p.runReferenceString()
		return
	}
	for {
		select {
		case <-p.done:
			return
		default:
		}
		if p.rng.Float64() < p.memProbability {
			if p.memoryTick() {
				return
			}
		} else {
			if !p.io.Read(p.procnum) {
				return
			}
			if p.log != nil {
				p.log.Info("I/O device access request queued")
			}
			p.waitForIO()
		}
	}
}

func (p *Process) logHeader() {
	if p.log == nil {
		return
	}
	p.log.Info("PROCESS START")
	p.log.Info("======================")
	p.log.Info(fmt.Sprintf("PID           = %d", p.procnum))
	p.log.Info(fmt.Sprintf("VIRTUAL PAGES = %d", p.pageCount))
	p.log.Info(fmt.Sprintf("PROBABILITY   = %.0f%%", p.memProbability*100))
	p.log.Info("======================")
}

func (p *Process) runReferenceString() {
	for {
		select {
		case <-p.done:
			return
		default:
		}
		page := p.refString[p.refIdx%len(p.refString)]
		p.refIdx++
		vaddr := uint32(page) * p.pageSize
		if p.access(vaddr, 0) {
			return
		}
	}
}

// memoryTick performs one memory-access decision: a loop burst with
// probability loopBurstPct, otherwise a single access governed by temporal
// locality. Returns true if the MMU reported termination.
func (p *Process) memoryTick() bool {
	if p.rng.Intn(100) < loopBurstPct {
		return p.loopBurst()
	}
	return p.singleAccess()
}

func (p *Process) loopBurst() bool {
	span := int64(p.dss) - loopIterations*itemStride
	var base uint32
	if span > 0 {
		base = uint32(p.rng.Int63n(span + 1))
	}
	for i := 0; i < loopIterations; i++ {
		addr := base + uint32(i*itemStride)
		if p.access(addr, p.rwBit()) {
			return true
		}
	}
	return false
}

func (p *Process) singleAccess() bool {
	var addr uint32
	if p.rng.Intn(100) < p.locality {
		addr = p.lastAddress + 1024
		if addr >= p.dss {
			addr = p.dss - 1
		}
	} else if p.dss > 0 {
		addr = uint32(p.rng.Int63n(int64(p.dss)))
	}
	return p.access(addr, p.rwBit())
}

func (p *Process) rwBit() int {
	if p.readOnly {
		return 0
	}
	if p.rng.Intn(100) < readWriteSplit {
		return 1
	}
	return 0
}

func (p *Process) access(vaddr uint32, rw int) bool {
	translated := p.mmu.MemoryAccess(p.procnum, vaddr, rw)
	if translated == terminated {
		return true
	}
	p.lastAddress = vaddr
	return false
}
