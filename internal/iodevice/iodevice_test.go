package iodevice

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClampAcceptsAscendingRangeVerbatim(t *testing.T) {
	d := New(Config{Tmin: 5, Tmax: 50})
	if d.tmin != 5*time.Millisecond || d.tmax != 50*time.Millisecond {
		t.Fatalf("tmin=%v tmax=%v, want 5ms/50ms unchanged", d.tmin, d.tmax)
	}
}

func TestClampFixesInvertedRange(t *testing.T) {
	d := New(Config{Tmin: 50, Tmax: 5})
	if d.tmax != d.tmin {
		t.Fatalf("tmax=%v, want clamped to tmin=%v", d.tmax, d.tmin)
	}
}

func TestReadRejectedAfterShutdown(t *testing.T) {
	d := New(Config{Tmin: 1, Tmax: 1})
	d.Start()
	d.Stop()

	if d.Read(1) {
		t.Fatalf("Read() after shutdown should return false and enqueue nothing")
	}
	if len(d.queue) != 0 {
		t.Fatalf("queue = %v, want empty", d.queue)
	}
}

func TestAllEnqueuedRequestsAreServedFIFO(t *testing.T) {
	d := New(Config{Tmin: 0, Tmax: 0, Rand: rand.New(rand.NewSource(1))})

	var mu sync.Mutex
	var order []int
	d.onComplete = func(procnum int, _ time.Duration) {
		mu.Lock()
		order = append(order, procnum)
		mu.Unlock()
	}

	d.Start()
	for i := 1; i <= 4; i++ {
		if !d.Read(i) {
			t.Fatalf("Read(%d) rejected before shutdown", i)
		}
	}
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 {
		t.Fatalf("served %d requests, want 4", len(order))
	}
	for i, p := range order {
		if p != i+1 {
			t.Fatalf("serve order = %v, want strict FIFO 1,2,3,4", order)
		}
	}
	if d.RequestCount() != 4 {
		t.Fatalf("RequestCount() = %d, want 4", d.RequestCount())
	}
}

func TestShutdownDrainsOutstandingRequestsBeforeStopping(t *testing.T) {
	d := New(Config{Tmin: 0, Tmax: 0})

	var served int64
	d.onComplete = func(int, time.Duration) { atomic.AddInt64(&served, 1) }

	d.Start()
	for i := 1; i <= 3; i++ {
		d.Read(i)
	}
	d.Stop()

	if got := atomic.LoadInt64(&served); got != 3 {
		t.Fatalf("served = %d, want 3: shutdown must drain the queue before stopping", got)
	}
}
