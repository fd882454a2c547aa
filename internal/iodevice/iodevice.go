/*
 * vmbo - FIFO-serialized block I/O device.
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

// Package iodevice implements the single block I/O device every process
// shares: requests queue in strict FIFO order and are served one at a
// time with a bounded-random delay. Shutdown is cooperative; requests
// already queued are drained before the consumer stops.
package iodevice

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// CompletionFunc is invoked on the device's own consumer goroutine once a
// request finishes, with the elapsed service time. Implementations must
// not block.
type CompletionFunc func(procnum int, elapsed time.Duration)

type ioRequest struct {
	procnum int
}

// Device serializes asynchronous read requests behind a FIFO queue and
// services them with a delay uniformly chosen in [tmin, tmax].
type Device struct {
	log  *slog.Logger
	tmin time.Duration
	tmax time.Duration
	rnd  *rand.Rand

	onComplete CompletionFunc

	// fifoMu/fifoCond guard the request queue itself: io_device_read
	// appends under fifoMu and signals fifoCond; the consumer waits on
	// fifoCond for queue-non-empty-or-shutdown.
	fifoMu   sync.Mutex
	fifoCond *sync.Cond
	queue    []ioRequest

	// shutdownMu guards the shutdown flag separately from the FIFO, so a
	// late Read can observe shutdown without racing the consumer's queue
	// manipulation.
	shutdownMu sync.Mutex
	shutdown   bool

	reqCount uint64

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Config bundles the constructor parameters.
type Config struct {
	// Tmin/Tmax are the bounds of the uniform service-time distribution,
	// in milliseconds. If Tmax < Tmin the device clamps Tmax to Tmin.
	Tmin, Tmax int
	OnComplete CompletionFunc
	Log        *slog.Logger
	Rand       *rand.Rand
}

// New builds a Device ready to Start. An ascending (Tmin, Tmax) range is
// kept as given; only an inverted range gets clamped.
func New(cfg Config) *Device {
	tmin, tmax := cfg.Tmin, cfg.Tmax
	if tmax < tmin {
		tmax = tmin
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d := &Device{
		log:        cfg.Log,
		tmin:       time.Duration(tmin) * time.Millisecond,
		tmax:       time.Duration(tmax) * time.Millisecond,
		rnd:        rnd,
		onComplete: cfg.OnComplete,
		done:       make(chan struct{}),
	}
	d.fifoCond = sync.NewCond(&d.fifoMu)
	return d
}

// Start launches the consumer goroutine.
func (d *Device) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.log != nil {
			d.log.Info("io device started", "tmin_ms", d.tmin.Milliseconds(), "tmax_ms", d.tmax.Milliseconds())
		}
		d.run()
		if d.log != nil {
			d.log.Info("io device stopped")
		}
	}()
}

// Stop announces shutdown and waits up to one second for the device to
// drain its queue and exit.
func (d *Device) Stop() {
	d.TellToExit()
	wait := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(wait)
	}()
	select {
	case <-wait:
	case <-time.After(time.Second):
		if d.log != nil {
			d.log.Warn("timed out waiting for io device to finish")
		}
	}
}

// Read enqueues a request from procnum at the FIFO tail and wakes the
// consumer. Returns false without queuing anything once shutdown has been
// announced.
func (d *Device) Read(procnum int) bool {
	// The flag is checked under fifoMu, the lock the consumer holds when
	// it decides to stop, so a request is either rejected or queued ahead
	// of that decision and drained.
	d.fifoMu.Lock()
	defer d.fifoMu.Unlock()
	d.shutdownMu.Lock()
	shut := d.shutdown
	d.shutdownMu.Unlock()
	if shut {
		return false
	}

	d.queue = append(d.queue, ioRequest{procnum: procnum})
	d.fifoCond.Signal()
	return true
}

// TellToExit sets the shutdown flag and wakes the consumer without
// waiting for it. Idempotent; any Read arriving afterwards is rejected
// while already-queued requests are still drained and served.
func (d *Device) TellToExit() {
	d.shutdownMu.Lock()
	d.shutdown = true
	d.shutdownMu.Unlock()

	d.fifoMu.Lock()
	d.fifoCond.Broadcast()
	d.fifoMu.Unlock()
	d.closeOnce.Do(func() { close(d.done) })
}

// ShutdownSignal is closed once TellToExit has run, so other actors can
// observe device shutdown without polling.
func (d *Device) ShutdownSignal() <-chan struct{} { return d.done }

func (d *Device) run() {
	for {
		req, ok := d.dequeueOrExit()
		if !ok {
			return
		}
		delay := d.serviceTime()
		time.Sleep(delay)
		d.reqCount++
		if d.onComplete != nil {
			d.onComplete(req.procnum, delay)
		}
	}
}

// dequeueOrExit waits until the queue is non-empty or shutdown has been
// announced. On shutdown it still drains any already-queued requests
// before reporting ok=false, matching the "drain outstanding requests
// before stopping" contract.
func (d *Device) dequeueOrExit() (ioRequest, bool) {
	d.fifoMu.Lock()
	defer d.fifoMu.Unlock()
	for len(d.queue) == 0 {
		d.shutdownMu.Lock()
		shut := d.shutdown
		d.shutdownMu.Unlock()
		if shut {
			return ioRequest{}, false
		}
		d.fifoCond.Wait()
	}
	req := d.queue[0]
	d.queue = d.queue[1:]
	return req, true
}

func (d *Device) serviceTime() time.Duration {
	if d.tmax <= d.tmin {
		return d.tmin
	}
	span := int64(d.tmax - d.tmin)
	return d.tmin + time.Duration(d.rnd.Int63n(span+1))
}

// RequestCount reports how many requests have been fully serviced.
func (d *Device) RequestCount() uint64 { return d.reqCount }
