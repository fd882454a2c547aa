/*
 * vmbo - Paging primitives: pages, frames, and the resident-page list.
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

// Package pager holds the plain data types shared by the MMU engine and
// the process workload: pages, page tables, frames, and the FIFO list of
// resident (procnum, page) pairs that the Enhanced Second-Chance scan
// walks. None of these types carry locks of their own - the MMU consumer
// goroutine is the sole mutator, as required by the single-writer
// discipline described for the MMU engine.
package pager

// NoFrame marks a page's FrameID when the page is not present.
const NoFrame uint16 = 0xffff

// Page is one entry of a process's page table.
type Page struct {
	ID         uint16
	Present    bool
	Referenced bool
	Dirty      bool
	FrameID    uint16
}

// Evict clears a page back to its never-mapped state.
func (p *Page) Evict() {
	p.Present = false
	p.Referenced = false
	p.Dirty = false
	p.FrameID = NoFrame
}

// PageTable is the fixed-length, per-process array of pages.
type PageTable []Page

// NewPageTable allocates a page table of the given length, every entry
// starting absent.
func NewPageTable(pageCount int) PageTable {
	pt := make(PageTable, pageCount)
	for i := range pt {
		pt[i] = Page{ID: uint16(i), FrameID: NoFrame}
	}
	return pt
}

// Frame is one physical-memory container, dense-indexed 0..F-1.
type Frame struct {
	ID        uint16
	PhysAddr  uint32
	Valid     bool
	OwnerPID  int    // debug back-link, meaningful only when Valid
	OwnerPage uint16 // debug back-link, meaningful only when Valid
}

// ResidentEntry names one (procnum, page) pair currently occupying a
// frame. The slice holding these is the replacement-scan order: strict
// FIFO by admission time.
type ResidentEntry struct {
	Procnum int
	Page    uint16
}

// FrameArena owns every physical frame plus the free/used index lists and
// the resident-page list. The free and used lists are slices of frame IDs
// over a dense frame array rather than pointer-linked nodes, so list
// membership can never outlive the frame it names.
type FrameArena struct {
	Frames   []Frame
	Free     []uint16 // frame IDs, head = Free[0]
	Used     []uint16 // frame IDs, insertion-recency ordered, tail = last
	Resident []ResidentEntry
}

// NewFrameArena partitions ramSize bytes into frames of pageSize bytes
// each, all starting on the free list in id order.
func NewFrameArena(ramSize, pageSize uint32) *FrameArena {
	maxFrames := int(ramSize / pageSize)
	a := &FrameArena{
		Frames: make([]Frame, maxFrames),
		Free:   make([]uint16, maxFrames),
	}
	for i := 0; i < maxFrames; i++ {
		a.Frames[i] = Frame{ID: uint16(i), PhysAddr: uint32(i) * pageSize}
		a.Free[i] = uint16(i)
	}
	return a
}

// MaxFrames returns the total number of physical frames.
func (a *FrameArena) MaxFrames() int { return len(a.Frames) }

// PopFree removes and returns the head of the free list.
func (a *FrameArena) PopFree() *Frame {
	id := a.Free[0]
	a.Free = a.Free[1:]
	return &a.Frames[id]
}

// PushUsed appends a frame id to the tail of the used list (recency order,
// kept for debugging only - it does not drive replacement decisions).
func (a *FrameArena) PushUsed(id uint16) {
	a.Used = append(a.Used, id)
}

// TouchUsed moves an already-used frame id to the tail of the used list.
func (a *FrameArena) TouchUsed(id uint16) {
	for i, fid := range a.Used {
		if fid == id {
			a.Used = append(a.Used[:i], a.Used[i+1:]...)
			break
		}
	}
	a.Used = append(a.Used, id)
}

// AppendResident appends (procnum, page) to the tail of the resident list.
func (a *FrameArena) AppendResident(procnum int, page uint16) {
	a.Resident = append(a.Resident, ResidentEntry{Procnum: procnum, Page: page})
}

// RemoveResidentAt removes the resident entry at index i, preserving the
// relative order of the remaining entries.
func (a *FrameArena) RemoveResidentAt(i int) {
	a.Resident = append(a.Resident[:i], a.Resident[i+1:]...)
}

// Stats accumulates one process's access and I/O counters.
type Stats struct {
	MemAccesses   uint64
	PageFaults    uint64
	IORequests    uint64
	TotalIOTimeMS uint64
}
