package workload

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

type fakeMMU struct {
	mu       sync.Mutex
	accesses []uint32
	cap      int
}

func (m *fakeMMU) MemoryAccess(procnum int, vaddr uint32, rw int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.accesses) >= m.cap {
		return terminated
	}
	m.accesses = append(m.accesses, vaddr)
	return vaddr
}

type fakeIODevice struct {
	mu       sync.Mutex
	requests []int
	onRead   func(procnum int)
}

func (d *fakeIODevice) Read(procnum int) bool {
	d.mu.Lock()
	d.requests = append(d.requests, procnum)
	cb := d.onRead
	d.mu.Unlock()
	if cb != nil {
		cb(procnum)
	}
	return true
}

func TestReferenceStringModeReadsInOrderAndStopsAtCap(t *testing.T) {
	m := &fakeMMU{cap: 6}
	p := New(Config{
		Procnum:         1,
		PageSize:        4096,
		ReferenceString: []uint16{1, 2, 3},
		MMU:             m,
		IODevice:        &fakeIODevice{},
		Rand:            rand.New(rand.NewSource(1)),
	})
	p.Start()
	p.wg.Wait()

	want := []uint32{4096, 8192, 12288, 4096, 8192, 12288}
	if len(m.accesses) != len(want) {
		t.Fatalf("accesses = %v, want %v", m.accesses, want)
	}
	for i := range want {
		if m.accesses[i] != want[i] {
			t.Fatalf("accesses = %v, want %v", m.accesses, want)
		}
	}
}

func TestMemoryOnlyProcessStopsAtMMUCap(t *testing.T) {
	m := &fakeMMU{cap: 20}
	p := New(Config{
		Procnum:        1,
		PageCount:      4,
		PageSize:       4096,
		MemProbability: 1.0,
		Locality:       30,
		MMU:            m,
		IODevice:       &fakeIODevice{},
		Rand:           rand.New(rand.NewSource(42)),
	})
	p.Start()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("process did not stop after MMU reported termination")
	}
	if len(m.accesses) != 20 {
		t.Fatalf("accesses = %d, want 20 (exactly the MMU cap)", len(m.accesses))
	}
}

func TestIOOnlyProcessBlocksUntilSignaled(t *testing.T) {
	m := &fakeMMU{cap: 0}
	io := &fakeIODevice{}
	p := New(Config{
		Procnum:        2,
		MemProbability: 0.0,
		IODevice:       io,
		MMU:            m,
		Rand:           rand.New(rand.NewSource(7)),
	})
	io.onRead = func(procnum int) {
		go p.OnIOComplete(5)
	}
	p.Start()
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	if len(io.requests) == 0 {
		t.Fatalf("expected at least one I/O request to have been issued")
	}
	stats := p.Stats()
	if stats.IORequests == 0 {
		t.Fatalf("expected IORequests stat to be recorded via OnIOComplete")
	}
}
