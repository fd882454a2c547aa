/*
 * vmbo - MMU engine: request rendezvous, translation, Enhanced Second-Chance.
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

// Package mmu implements the paged-memory Memory Management Unit: address
// translation, demand paging, optional anticipatory paging, and the
// Enhanced Second-Chance frame replacement algorithm. One Engine serves
// every process in the simulation; processes rendezvous with it one at a
// time through MemoryAccess.
package mmu

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"time"

	"github.com/unixo/vmbo/internal/pager"
)

// AddressLength is the simulated virtual address width in bits.
const AddressLength = 20

// TerminatedAddr is returned by MemoryAccess once the access cap has been
// reached; no further requests are served after this.
const TerminatedAddr = ^uint32(0)

type request struct {
	procnum int
	vaddr   uint32
	rw      int
	reply   chan uint32
}

// Engine owns every page table, the frame arena, and the counters that
// drive the simulation's shutdown decision. Its zero value is not usable;
// build one with New.
type Engine struct {
	log *slog.Logger

	offsetBits uint
	pageBits   uint
	offsetMask uint32
	pageSize   uint32

	anticipatory bool
	maxAccess    uint64
	debug        int

	outer sync.Mutex // serializes entry: one process in the MMU at a time
	slot  chan *request

	mu        sync.Mutex // guards arena, tables and counters below
	arena     *pager.FrameArena
	tables    map[int]pager.PageTable
	procLogs  map[int]*slog.Logger
	procStats map[int]*pager.Stats
	hits      uint64
	faults    uint64

	// done is closed exactly once, either when the access cap is reached
	// or when the driver calls Stop explicitly. It is the single shutdown
	// signal shared by the MMU consumer goroutine, callers blocked in
	// MemoryAccess, and the driver, which reacts by stopping the I/O
	// device and the processes.
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Config bundles the constructor parameters New needs from the driver's
// validated configuration.
type Config struct {
	MaxAccess    uint64
	RAMSize      uint32
	FrameSize    uint32
	Anticipatory bool
	Debug        int
	Log          *slog.Logger
}

// New partitions RAM into frames and computes the address-split constants
// (mmu_init). FrameSize must be a power of two; callers validate this
// before calling New.
func New(cfg Config) *Engine {
	offsetBits := uint(bits.TrailingZeros32(cfg.FrameSize))
	pageBits := uint(AddressLength) - offsetBits

	e := &Engine{
		log:          cfg.Log,
		offsetBits:   offsetBits,
		pageBits:     pageBits,
		offsetMask:   (uint32(1) << offsetBits) - 1,
		pageSize:     cfg.FrameSize,
		anticipatory: cfg.Anticipatory,
		maxAccess:    cfg.MaxAccess,
		debug:        cfg.Debug,
		slot:         make(chan *request),
		arena:        pager.NewFrameArena(cfg.RAMSize, cfg.FrameSize),
		tables:       make(map[int]pager.PageTable),
		procLogs:     make(map[int]*slog.Logger),
		procStats:    make(map[int]*pager.Stats),
		done:         make(chan struct{}),
	}
	return e
}

// PageBits reports the number of virtual-address bits devoted to the page
// number, the complement of the frame's offset width.
func (e *Engine) PageBits() uint { return e.pageBits }

// MaxFrames reports how many physical frames RAM was partitioned into.
func (e *Engine) MaxFrames() int { return e.arena.MaxFrames() }

// Register installs a process's page table and log sink. Must happen
// before the process issues any MemoryAccess call. The sink receives the
// per-access, page-assignment, eviction and write-back lines the engine
// emits on the process's behalf; a nil logger suppresses them.
func (e *Engine) Register(procnum int, pt pager.PageTable, log *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[procnum] = pt
	e.procLogs[procnum] = log
	e.procStats[procnum] = &pager.Stats{}
}

// PageCount reports the number of pages in procnum's page table.
func (e *Engine) PageCount(procnum int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tables[procnum])
}

// ProcessStats returns a snapshot of procnum's memory-access counters.
func (e *Engine) ProcessStats(procnum int) pager.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.procStats[procnum]; s != nil {
		return *s
	}
	return pager.Stats{}
}

// Start launches the consumer goroutine (the IDLE/SERVING state machine).
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if e.log != nil {
			e.log.Info("mmu started",
				"page_size", e.pageSize,
				"frames", e.arena.MaxFrames(),
				"max_access", e.maxAccess)
		}
		for {
			select {
			case <-e.done:
				if e.log != nil {
					e.log.Info("mmu stopped")
				}
				return
			case req := <-e.slot:
				e.serve(req)
			}
		}
	}()
}

// Stop signals the consumer to exit and waits up to one second for it to
// drain in-flight work. Idempotent: safe to call after the cap-reached
// path has already closed done.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.done) })
	wait := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(wait)
	}()
	select {
	case <-wait:
	case <-time.After(time.Second):
		if e.log != nil {
			e.log.Warn("timed out waiting for mmu to finish")
		}
	}
}

// ShutdownSignal is closed exactly once, either when the access cap is
// reached or when Stop is called, so the driver can react to global
// shutdown without polling the MMU.
func (e *Engine) ShutdownSignal() <-chan struct{} { return e.done }

// MemoryAccess translates vaddr for procnum, paging it in if necessary.
// It serializes entry with the outer lock, so at most one request is
// outstanding at any instant, and hands the request to the consumer goroutine
// over an unbuffered channel with a private reply channel, per the rendezvous
// design. Returns TerminatedAddr once the access cap has been reached.
func (e *Engine) MemoryAccess(procnum int, vaddr uint32, rw int) uint32 {
	e.outer.Lock()
	defer e.outer.Unlock()

	e.mu.Lock()
	capReached := e.hits+e.faults >= e.maxAccess
	e.mu.Unlock()
	if capReached {
		e.once.Do(func() { close(e.done) })
		return TerminatedAddr
	}

	req := &request{procnum: procnum, vaddr: vaddr, rw: rw, reply: make(chan uint32, 1)}
	select {
	case e.slot <- req:
	case <-e.done:
		return TerminatedAddr
	}
	select {
	case translated := <-req.reply:
		return translated
	case <-e.done:
		// The consumer may reach the cap while serving this very request:
		// a reply already produced still belongs to the caller (its stats
		// were counted), so prefer it over the shutdown signal.
		select {
		case translated := <-req.reply:
			return translated
		default:
		}
		return TerminatedAddr
	}
}

// serve runs entirely on the consumer goroutine: it owns the arena and
// page tables for the duration, so no additional locking is needed around
// the replacement scan itself.
func (e *Engine) serve(req *request) {
	page := uint16(req.vaddr >> e.offsetBits)
	offset := req.vaddr & e.offsetMask

	e.mu.Lock()
	plog := e.procLogs[req.procnum]
	if plog != nil {
		op := "Read"
		if req.rw == 1 {
			op = "Write"
		}
		plog.Info(fmt.Sprintf("%s virtual address %d [page %d - offset %d]",
			op, req.vaddr, page, offset))
	}

	frame, hit := e.replace(req.procnum, page, true)
	if e.anticipatory {
		if page > 0 {
			e.replace(req.procnum, page-1, false)
		}
		pt := e.tables[req.procnum]
		if int(page)+1 < len(pt) {
			e.replace(req.procnum, page+1, false)
		}
	}
	translated := frame.PhysAddr + offset
	if plog != nil {
		outcome := "FAULT"
		if hit {
			outcome = "HIT"
		}
		plog.Info(fmt.Sprintf("[PAGE %s] virtual address %d corresponds to physical %d",
			outcome, req.vaddr, translated))
	}
	if req.rw == 1 {
		pt := e.tables[req.procnum]
		pt[page].Dirty = true
	}
	if e.debug > 0 {
		e.dumpPageState(req.procnum, plog)
	}
	hits, faults := e.hits, e.faults
	e.mu.Unlock()

	req.reply <- translated

	if hits+faults >= e.maxAccess {
		e.once.Do(func() { close(e.done) })
	}
}

// dumpPageState appends the process's page-state snapshot to its log, one
// line per page.
func (e *Engine) dumpPageState(procnum int, plog *slog.Logger) {
	if plog == nil {
		return
	}
	for _, p := range e.tables[procnum] {
		if !p.Present {
			plog.Info(fmt.Sprintf("         PAGE %2d :", p.ID))
			continue
		}
		state := "[NOT REF"
		if p.Referenced {
			state = "[REF"
		}
		if p.Dirty {
			state += ", DIRTY]"
		} else {
			state += "]"
		}
		plog.Info(fmt.Sprintf("         PAGE %2d : FRAME %2d %s", p.ID, p.FrameID, state))
	}
	plog.Info("============================================")
}

// replace implements the Enhanced Second-Chance algorithm. Callers must
// hold e.mu. update_stats controls whether hits/faults/page_faults are
// incremented, matching the anticipatory touch's silent-fault semantics.
// The second return value reports a page hit.
func (e *Engine) replace(procnum int, page uint16, updateStats bool) (*pager.Frame, bool) {
	pt := e.tables[procnum]
	p := &pt[page]

	stats := e.procStats[procnum]

	if p.Present {
		if updateStats {
			e.hits++
			if stats != nil {
				stats.MemAccesses++
			}
		}
		p.Referenced = true
		return &e.arena.Frames[p.FrameID], true
	}

	if updateStats {
		e.faults++
		if stats != nil {
			stats.MemAccesses++
			stats.PageFaults++
		}
	}

	if len(e.arena.Free) > 0 {
		return e.admit(procnum, page, p, e.arena.PopFree(), false), false
	}

	victimIdx, victim := e.scanForVictim()
	victimFrameID := e.tables[victim.Procnum][victim.Page].FrameID
	if plog := e.procLogs[procnum]; plog != nil {
		plog.Info(fmt.Sprintf("<-- page %d of process %d removed from memory (frame %d)",
			victim.Page, victim.Procnum, victimFrameID))
	}
	e.tables[victim.Procnum][victim.Page].Evict()
	e.arena.RemoveResidentAt(victimIdx)

	f := &e.arena.Frames[victimFrameID]
	return e.admit(procnum, page, p, f, true), false
}

// scanForVictim walks the resident list (strict FIFO order) applying the
// second-chance rule, writing back dirty pages and clearing reference bits
// as it goes, until it finds an entry with referenced=false and
// dirty=false. It resolves the chosen entry to a value copy and returns
// its index before any mutation of the resident slice happens, so the
// index stays valid for the single removal the caller performs afterward.
func (e *Engine) scanForVictim() (int, pager.ResidentEntry) {
	for {
		for i := 0; i < len(e.arena.Resident); i++ {
			entry := e.arena.Resident[i]
			t := &e.tables[entry.Procnum][entry.Page]
			switch {
			case t.Dirty:
				if plog := e.procLogs[entry.Procnum]; plog != nil {
					plog.Info(fmt.Sprintf("Write-back of page %d", entry.Page))
				}
				t.Dirty = false
				t.Referenced = false
			case !t.Referenced && !t.Dirty:
				return i, entry
			default:
				t.Referenced = false
			}
		}
	}
}

// admit installs frame f as the backing store for (procnum, page),
// updating the page table entry, ownership, used list and resident list.
// reused marks a frame taken from an eviction rather than the free list:
// it is already on the used list, so it moves to the tail instead of
// being appended a second time.
func (e *Engine) admit(procnum int, page uint16, p *pager.Page, f *pager.Frame, reused bool) *pager.Frame {
	f.Valid = true
	f.OwnerPID = procnum
	f.OwnerPage = page
	if reused {
		e.arena.TouchUsed(f.ID)
	} else {
		e.arena.PushUsed(f.ID)
	}

	p.Present = true
	p.Referenced = true
	p.FrameID = f.ID

	e.arena.AppendResident(procnum, page)
	if plog := e.procLogs[procnum]; plog != nil {
		plog.Info(fmt.Sprintf("--> virtual page %d assigned to frame %d", page, f.ID))
	}
	return f
}

// Stats reports the running hit/fault totals.
func (e *Engine) Stats() (hits, faults uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hits, e.faults
}
