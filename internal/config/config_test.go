package config

import "testing"

func baseRaw() *Raw {
	return &Raw{
		Locality:    30,
		Processes:   5,
		Probability: 0.5,
		RAMSize:     1 << 20,
		FrameSize:   4096,
		MemoryRead:  1000,
		Tmin:        10,
		Tmax:        100,
	}
}

func TestBuildAcceptsDefaults(t *testing.T) {
	cfg, err := Build(baseRaw())
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	if cfg.Processes != 5 || cfg.FrameSize != 4096 {
		t.Fatalf("unexpected cfg = %+v", cfg)
	}
}

func TestAnticipatoryDefaultsOnAndFlagDisables(t *testing.T) {
	cfg, err := Build(baseRaw())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !cfg.Anticipatory {
		t.Fatalf("Anticipatory = false, want true by default")
	}

	r := baseRaw()
	r.NoAnticipatory = true
	cfg, err = Build(r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg.Anticipatory {
		t.Fatalf("Anticipatory = true, want false when -a is given")
	}
}

func TestBuildDefaultsToReadOnly(t *testing.T) {
	cfg, err := Build(baseRaw())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !cfg.ReadOnly {
		t.Fatalf("ReadOnly = false, want true: the default mode is read-only until --write-enabled is given")
	}
}

func TestWriteEnabledClearsReadOnly(t *testing.T) {
	r := baseRaw()
	r.WriteEnabled = true
	cfg, err := Build(r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg.ReadOnly {
		t.Fatalf("ReadOnly = true, want false when --write-enabled is given")
	}
}

func TestBuildRejectsNonPowerOfTwoFrameSize(t *testing.T) {
	r := baseRaw()
	r.FrameSize = 3000
	if _, err := Build(r); err == nil {
		t.Fatalf("Build() with non-power-of-two frame-size should fail")
	}
}

func TestBuildRejectsRAMSizeOverAddressSpace(t *testing.T) {
	r := baseRaw()
	r.RAMSize = (1 << 20) + 1
	if _, err := Build(r); err == nil {
		t.Fatalf("Build() with ram-size exceeding 2^20 should fail")
	}
}

func TestBuildRejectsZeroMemoryRead(t *testing.T) {
	r := baseRaw()
	r.MemoryRead = 0
	if _, err := Build(r); err == nil {
		t.Fatalf("Build() with memory-read=0 should fail")
	}
}

func TestBuildParsesProbabilitiesMatchingProcessCount(t *testing.T) {
	r := baseRaw()
	r.Processes = 3
	r.Probabilities = "0.2:0.5:0.9"
	cfg, err := Build(r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []float64{0.2, 0.5, 0.9}
	for i, w := range want {
		if cfg.Probabilities[i] != w {
			t.Fatalf("Probabilities = %v, want %v", cfg.Probabilities, want)
		}
	}
}

func TestBuildRejectsMismatchedProbabilityCount(t *testing.T) {
	r := baseRaw()
	r.Processes = 2
	r.Probabilities = "0.2:0.5:0.9"
	if _, err := Build(r); err == nil {
		t.Fatalf("Build() should reject a probability list whose length != processes")
	}
}

func TestReferenceStringForcesOverrides(t *testing.T) {
	r := baseRaw()
	r.Processes = 5
	r.Reference = "1:2:3:4:1:2:5:1:2:3:4:5"

	cfg, err := Build(r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cfg.Processes != 1 {
		t.Fatalf("Processes = %d, want 1 (reference-string mode forces N=1)", cfg.Processes)
	}
	if !cfg.ReadOnly {
		t.Fatalf("ReadOnly = false, want true under reference-string mode")
	}
	if !cfg.AllMemory {
		t.Fatalf("AllMemory = false, want true under reference-string mode")
	}
	if cfg.Anticipatory {
		t.Fatalf("Anticipatory = true, want false under reference-string mode")
	}
	if cfg.MaxAccess != 12 {
		t.Fatalf("MaxAccess = %d, want 12 (length of the reference string)", cfg.MaxAccess)
	}
	if len(cfg.ReferenceString) != 12 || cfg.ReferenceString[6] != 5 {
		t.Fatalf("ReferenceString = %v, parsed incorrectly", cfg.ReferenceString)
	}
}

func TestMemProbabilityFallsBackToGlobal(t *testing.T) {
	cfg := &Config{Probability: 0.7}
	if got := cfg.MemProbability(0); got != 0.7 {
		t.Fatalf("MemProbability(0) = %v, want 0.7 (no per-process list set)", got)
	}
}

func TestMemProbabilityUsesPerProcessList(t *testing.T) {
	cfg := &Config{Probability: 0.7, Probabilities: []float64{0.1, 0.9}}
	if got := cfg.MemProbability(1); got != 0.9 {
		t.Fatalf("MemProbability(1) = %v, want 0.9", got)
	}
}
