package pager

import "testing"

func TestNewFrameArenaPartitioning(t *testing.T) {
	a := NewFrameArena(4096*4, 4096)
	if got, want := a.MaxFrames(), 4; got != want {
		t.Fatalf("MaxFrames() = %d, want %d", got, want)
	}
	if len(a.Free) != 4 || len(a.Used) != 0 {
		t.Fatalf("expected all frames free at init, free=%d used=%d", len(a.Free), len(a.Used))
	}
	for i, f := range a.Frames {
		if f.PhysAddr != uint32(i)*4096 {
			t.Errorf("frame %d PhysAddr = %d, want %d", i, f.PhysAddr, uint32(i)*4096)
		}
		if f.Valid {
			t.Errorf("frame %d starts valid, want invalid", i)
		}
	}
}

func TestPopFreePushUsed(t *testing.T) {
	a := NewFrameArena(4096*2, 4096)
	f := a.PopFree()
	if f.ID != 0 {
		t.Fatalf("PopFree() id = %d, want 0", f.ID)
	}
	if len(a.Free) != 1 {
		t.Fatalf("Free has %d entries, want 1", len(a.Free))
	}
	a.PushUsed(f.ID)
	if len(a.Used) != 1 || a.Used[0] != 0 {
		t.Fatalf("Used = %v, want [0]", a.Used)
	}
}

func TestTouchUsedMovesToTail(t *testing.T) {
	a := NewFrameArena(4096*3, 4096)
	a.PushUsed(0)
	a.PushUsed(1)
	a.PushUsed(2)
	a.TouchUsed(0)
	want := []uint16{1, 2, 0}
	for i, id := range want {
		if a.Used[i] != id {
			t.Fatalf("Used = %v, want %v", a.Used, want)
		}
	}
}

func TestResidentFIFOOrderPreservedOnRemoval(t *testing.T) {
	a := NewFrameArena(4096*4, 4096)
	a.AppendResident(0, 1)
	a.AppendResident(0, 2)
	a.AppendResident(1, 1)
	a.RemoveResidentAt(1)
	if len(a.Resident) != 2 {
		t.Fatalf("Resident len = %d, want 2", len(a.Resident))
	}
	if a.Resident[0].Page != 1 || a.Resident[1].Page != 1 {
		t.Fatalf("Resident = %+v, unexpected order", a.Resident)
	}
}

func TestPageEvictClearsAllBits(t *testing.T) {
	p := Page{ID: 3, Present: true, Referenced: true, Dirty: true, FrameID: 7}
	p.Evict()
	if p.Present || p.Referenced || p.Dirty || p.FrameID != NoFrame {
		t.Fatalf("Evict() left page = %+v", p)
	}
}

func TestNewPageTableStartsAbsent(t *testing.T) {
	pt := NewPageTable(5)
	if len(pt) != 5 {
		t.Fatalf("len(pt) = %d, want 5", len(pt))
	}
	for i, p := range pt {
		if p.Present {
			t.Errorf("page %d starts present", i)
		}
		if p.FrameID != NoFrame {
			t.Errorf("page %d FrameID = %d, want NoFrame", i, p.FrameID)
		}
		if int(p.ID) != i {
			t.Errorf("page %d ID = %d", i, p.ID)
		}
	}
}
