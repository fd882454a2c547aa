/*
 * vmbo - Wrapper for slog, one handler per process log sink.
 *
 * Copyright 2024, Richard Cornwell
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

// Package simlog provides the per-process line-oriented log sink
// (PROC_%02d.log) and the driver's own status logger. Every sink is a
// plain text slog.Handler writing to its own *os.File, guarded by a
// mutex since slog.Logger methods may be called from the MMU consumer
// goroutine on behalf of several processes in sequence.
package simlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a minimal slog.Handler rendering one bare "message
// attr=value ..." line per record, with no timestamp or level prefix.
type Handler struct {
	out io.Writer
	mu  *sync.Mutex
	lvl slog.Leveler
}

// NewHandler wraps w as a slog.Handler at the given minimum level.
func NewHandler(w io.Writer, lvl slog.Leveler) *Handler {
	if lvl == nil {
		lvl = slog.LevelInfo
	}
	return &Handler{out: w, mu: &sync.Mutex{}, lvl: lvl}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl.Level()
}

func (h *Handler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *Handler) WithGroup(_ string) slog.Handler      { return h }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	parts := []string{r.Message}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})
	line := strings.Join(parts, " ") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

// OpenProcessLog creates (truncating) the log file for process procnum
// and returns a *slog.Logger writing to it, plus a closer for driver
// shutdown.
func OpenProcessLog(procnum int) (*slog.Logger, io.Closer, error) {
	name := fmt.Sprintf("PROC_%02d.log", procnum)
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("simlog: create %s: %w", name, err)
	}
	return slog.New(NewHandler(f, slog.LevelDebug)), f, nil
}

// NewDriverLogger returns the top-level status logger the driver uses for
// subsystem start/stop banners, writing to w (normally os.Stdout).
func NewDriverLogger(w io.Writer) *slog.Logger {
	return slog.New(NewHandler(w, slog.LevelInfo))
}
