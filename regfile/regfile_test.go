package regfile

import "testing"

const testBase Addr = 0x40004000

func TestBankReg(t *testing.T) {
	b := Bank{Name: "A", Base: testBase}
	if got := b.Reg(0x52C); got != 0x4000452C {
		t.Fatalf("Reg=%#x", got)
	}
}

func TestBitHelpers(t *testing.T) {
	s := NewSim()
	a := testBase + 0x400
	SetBit(s, a, 3)
	SetBit(s, a, 0)
	ClearBit(s, a, 0)
	if got := s.Peek(a); got != 0x08 {
		t.Fatalf("after set/clear: %#x", got)
	}
	WriteBit(s, a, 7, true)
	if !TestBit(s, a, 7) || TestBit(s, a, 6) {
		t.Fatalf("WriteBit/TestBit: %#x", s.Peek(a))
	}
}

func TestWriteField_PreservesNeighbours(t *testing.T) {
	s := NewSim()
	a := testBase + 0x52C
	s.Poke(a, 0xFFFFFFFF)
	WriteField(s, a, 8, 4, 0x3)
	if got := s.Peek(a); got != 0xFFFFF3FF {
		t.Fatalf("got %#x", got)
	}
	if v := ReadField(s, a, 8, 4); v != 0x3 {
		t.Fatalf("ReadField=%#x", v)
	}
	// Oversized values are truncated to the field width.
	WriteField(s, a, 0, 4, 0x12)
	if v := ReadField(s, a, 0, 4); v != 0x2 {
		t.Fatalf("truncated field=%#x", v)
	}
}

func TestSim_TraceAndPeekPoke(t *testing.T) {
	s := NewSim()
	s.Poke(testBase, 5)
	if s.Read(testBase) != 5 {
		t.Fatal("read after poke")
	}
	s.Write(testBase+4, 9)
	_ = s.Peek(testBase + 4)

	tr := s.Trace()
	if len(tr) != 2 {
		t.Fatalf("trace len=%d (%v)", len(tr), tr)
	}
	if tr[0].Op != OpRead || tr[1].Op != OpWrite || tr[1].Value != 9 {
		t.Fatalf("trace=%v", tr)
	}
	if w := s.Writes(); len(w) != 1 || w[0].Addr != testBase+4 {
		t.Fatalf("writes=%v", w)
	}
	s.ResetTrace()
	if len(s.Trace()) != 0 {
		t.Fatal("trace not reset")
	}
	s.SetTracing(false)
	s.Write(testBase, 1)
	if len(s.Trace()) != 0 {
		t.Fatal("trace recorded while disabled")
	}
}

func TestSim_Hooks(t *testing.T) {
	s := NewSim()
	ctrl := testBase
	other := testBase + 4

	// Write hook masks bit 0; read hook clears bit 4 after reporting it.
	s.OnWrite(ctrl, func(r Raw, a Addr, old, v uint32) uint32 {
		r.Set(other, old)
		return v &^ 1
	})
	s.OnRead(ctrl, func(r Raw, a Addr, v uint32) uint32 {
		r.Set(a, v&^(1<<4))
		return v
	})

	s.Write(ctrl, 0x13)
	if got := s.Peek(ctrl); got != 0x12 {
		t.Fatalf("stored %#x", got)
	}
	if s.Read(ctrl) != 0x12 {
		t.Fatal("first read should report bit 4")
	}
	if s.Read(ctrl) != 0x02 {
		t.Fatal("second read should see bit 4 cleared")
	}
	s.Write(ctrl, 0)
	if s.Peek(other) != 0x02 {
		t.Fatalf("hook saw old=%#x", s.Peek(other))
	}
}

func TestSim_AfterRunsUnlocked(t *testing.T) {
	s := NewSim()
	fired := false
	s.OnWrite(testBase, func(r Raw, a Addr, old, v uint32) uint32 {
		r.After(func() {
			// Re-entering the file must not deadlock.
			s.Write(testBase+4, s.Read(testBase)+1)
			fired = true
		})
		return v
	})
	s.Write(testBase, 41)
	if !fired || s.Peek(testBase+4) != 42 {
		t.Fatalf("fired=%v v=%d", fired, s.Peek(testBase+4))
	}

	s.Update(func(r Raw) {
		r.Set(testBase+8, 7)
		r.After(func() { s.Write(testBase+12, s.Read(testBase+8)) })
	})
	if s.Peek(testBase+12) != 7 {
		t.Fatal("Update after callback did not run")
	}
}
