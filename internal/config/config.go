/*
 * vmbo - command-line configuration and reference-string parsing.
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

// Package config owns command-line flag registration, validation, and
// reference-string/probability-list decoding. It produces an immutable
// Config value validated before any goroutine starts; configuration
// errors abort the run early. Flag registration uses
// github.com/pborman/getopt/v2; validation itself is a pure function
// (Build) so it can be exercised without touching getopt's global flag
// set.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/unixo/vmbo/internal/mmu"
)

// maxRAMSize is 2^AddressLength, the largest RAM size the simulated
// address width can name.
const maxRAMSize = uint64(1) << mmu.AddressLength

// Raw holds every flag value exactly as the command line supplied it,
// before cross-field validation and the reference-string forced
// overrides are applied.
type Raw struct {
	// NoAnticipatory disables anticipatory paging; the feature defaults
	// to on and -a/--anticipatory switches it off.
	NoAnticipatory bool
	Debug          bool
	Locality       int
	Probabilities  string
	AllMemory      bool
	MemoryRead     int64
	Processes      int
	Probability    float64
	Reference      string
	RAMSize        int64
	FrameSize      int64
	Tmin           int
	Tmax           int
	WriteEnabled   bool
	Help           bool
	Version        bool
}

// Config is the validated, immutable simulation configuration.
type Config struct {
	Processes       int
	RAMSize         uint32
	FrameSize       uint32
	MaxAccess       uint64
	Anticipatory    bool
	Debug           int
	Locality        int
	AllMemory       bool
	Probability     float64
	Probabilities   []float64
	ReferenceString []uint16
	// ReadOnly is true unless --write-enabled was given, or unconditionally
	// true under reference-string mode.
	ReadOnly   bool
	Tmin, Tmax int
}

// RegisterFlags installs every recognized option against getopt's default
// flag set, each with a long name and a single-letter short form, and
// returns the pointers getopt will fill in on Parse.
func RegisterFlags() *Raw {
	r := &Raw{}
	getopt.FlagLong(&r.NoAnticipatory, "anticipatory", 'a', "disable anticipatory paging")
	getopt.FlagLong(&r.Debug, "debug", 'd', "append a page-state dump to the process log after every access")
	getopt.FlagLong(&r.Locality, "locality", 'L', "temporal-locality percent, 0..100")
	getopt.FlagLong(&r.Probabilities, "probabilities", 'l', "colon-separated per-process mem:io probabilities")
	getopt.FlagLong(&r.AllMemory, "all-memory", 'M', "force every process to allocate the maximum page count")
	getopt.FlagLong(&r.MemoryRead, "memory-read", 'm', "total memory-access cap")
	getopt.FlagLong(&r.Processes, "processes", 'p', "number of concurrent processes")
	getopt.FlagLong(&r.Probability, "probability", 'P', "global memory-vs-I/O probability, 0.01..1.0")
	getopt.FlagLong(&r.Reference, "reference", 'r', "colon-separated reference string of page indices")
	getopt.FlagLong(&r.RAMSize, "ram-size", 'R', "RAM size in bytes")
	getopt.FlagLong(&r.FrameSize, "frame-size", 's', "frame size in bytes, must be a power of two")
	getopt.FlagLong(&r.Tmin, "Tmin", 't', "I/O device minimum service time, ms")
	getopt.FlagLong(&r.Tmax, "Tmax", 'T', "I/O device maximum service time, ms")
	getopt.FlagLong(&r.WriteEnabled, "write-enabled", 'w', "permit write accesses (default: read-only)")
	getopt.FlagLong(&r.Version, "version", 'v', "print version and exit")
	getopt.FlagLong(&r.Help, "help", 'h', "print usage and exit")
	return r
}

// Parse registers the flag set, defaults it, parses os.Args through
// getopt, and builds a validated Config. Help/Version requests are
// reported via the returned Raw so main can act on them before Build
// rejects an otherwise-incomplete configuration.
func Parse() (*Raw, *Config, error) {
	raw := defaults()
	// RegisterFlags overwrites the pointed-to fields when a flag is
	// actually supplied; seed the struct returned by RegisterFlags with
	// defaults first so unspecified flags keep their default value.
	r := RegisterFlags()
	*r = *raw
	getopt.Parse()
	if r.Help || r.Version {
		return r, nil, nil
	}
	cfg, err := Build(r)
	return r, cfg, err
}

// defaults returns the built-in option defaults: 5 processes at 80%
// memory probability, 30% locality, 50 accesses, 1 MiB of RAM in 4 KiB
// frames, anticipatory on, no reference string.
func defaults() *Raw {
	return &Raw{
		Locality:    30,
		Processes:   5,
		Probability: 0.8,
		RAMSize:     1 << 20,
		FrameSize:   4096,
		MemoryRead:  50,
		Tmin:        1,
		Tmax:        100,
	}
}

// Build validates raw flag values and applies the reference-string
// forced-override rules, producing an immutable Config. Pure function:
// no flag-set side effects, so it is exercised directly by tests.
func Build(raw *Raw) (*Config, error) {
	if raw.MemoryRead < 0 {
		return nil, errors.New("config: memory-read must be > 0")
	}
	if raw.RAMSize < 0 || uint64(raw.RAMSize) > maxRAMSize {
		return nil, fmt.Errorf("config: ram-size must be in (0, %d]", maxRAMSize)
	}
	if raw.FrameSize < 0 || raw.FrameSize > raw.RAMSize {
		return nil, errors.New("config: frame-size must be positive and not exceed ram-size")
	}
	if raw.Tmin < 0 || raw.Tmax < 0 {
		return nil, errors.New("config: Tmin/Tmax must be >= 0")
	}
	cfg := &Config{
		Processes:    raw.Processes,
		RAMSize:      uint32(raw.RAMSize),
		FrameSize:    uint32(raw.FrameSize),
		MaxAccess:    uint64(raw.MemoryRead),
		Anticipatory: !raw.NoAnticipatory,
		Debug:        debugLevel(raw),
		Locality:     raw.Locality,
		AllMemory:    raw.AllMemory,
		Probability:  raw.Probability,
		Tmin:         raw.Tmin,
		Tmax:         raw.Tmax,
		// Default mode is read-only; -w/--write-enabled is what permits
		// the rw coin flip in the process workload.
		ReadOnly: !raw.WriteEnabled,
	}

	if raw.Probabilities != "" {
		probs, err := parseProbabilities(raw.Probabilities)
		if err != nil {
			return nil, fmt.Errorf("config: probabilities: %w", err)
		}
		cfg.Probabilities = probs
	}

	if raw.Reference != "" {
		refs, err := parseReferenceString(raw.Reference)
		if err != nil {
			return nil, fmt.Errorf("config: reference: %w", err)
		}
		cfg.ReferenceString = refs
		cfg.Processes = 1
		cfg.ReadOnly = true
		cfg.AllMemory = true
		cfg.Anticipatory = false
		cfg.MaxAccess = uint64(len(refs))
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func debugLevel(raw *Raw) int {
	if raw.Debug {
		return 1
	}
	return 0
}

func validate(cfg *Config) error {
	if cfg.Processes <= 0 {
		return errors.New("config: processes must be > 0")
	}
	if cfg.RAMSize == 0 || uint64(cfg.RAMSize) > maxRAMSize {
		return fmt.Errorf("config: ram-size must be in (0, %d]", maxRAMSize)
	}
	if cfg.FrameSize == 0 || cfg.FrameSize&(cfg.FrameSize-1) != 0 {
		return errors.New("config: frame-size must be a power of two")
	}
	if cfg.FrameSize > cfg.RAMSize {
		return errors.New("config: frame-size must not exceed ram-size")
	}
	if cfg.MaxAccess == 0 {
		return errors.New("config: memory-read must be > 0")
	}
	if cfg.Locality < 0 || cfg.Locality > 100 {
		return errors.New("config: locality must be in [0, 100]")
	}
	if cfg.ReferenceString == nil && (cfg.Probability < 0.01 || cfg.Probability > 1.0) {
		return errors.New("config: probability must be in [0.01, 1.0]")
	}
	for _, p := range cfg.Probabilities {
		if p < 0.0 || p > 1.0 {
			return fmt.Errorf("config: per-process probability %v out of range [0.0, 1.0]", p)
		}
	}
	if cfg.Probabilities != nil && len(cfg.Probabilities) != cfg.Processes {
		return fmt.Errorf("config: %d probabilities given for %d processes", len(cfg.Probabilities), cfg.Processes)
	}
	return nil
}

func parseProbabilities(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid probability %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseReferenceString(s string) ([]uint16, error) {
	parts := strings.Split(s, ":")
	out := make([]uint16, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid page index %q: %w", part, err)
		}
		out = append(out, uint16(v))
	}
	return out, nil
}

// MemProbability returns the memory-vs-I/O probability for process i: the
// per-process list entry when Probabilities is set, otherwise the global
// Probability.
func (c *Config) MemProbability(i int) float64 {
	if i < len(c.Probabilities) {
		return c.Probabilities[i]
	}
	return c.Probability
}

// PrintUsage delegates to getopt's own usage renderer.
func PrintUsage() { getopt.Usage() }
