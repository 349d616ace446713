package sim

import (
	"bytes"
	"testing"

	"mcal-go/regfile"
)

type countingRaiser struct{ lines []uint8 }

func (c *countingRaiser) RaiseIRQ(line uint8) { c.lines = append(c.lines, line) }

const tmKey = 0x4C4F434B

func TestTM4C_CommitGatesConfig(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "F", Base: 0x40025000}
	TM4CGPIO(s, bank, 1<<0, tmKey)

	// PF0 is not committed: a DEN write cannot reach it.
	s.Write(bank.Reg(tmDEN), 0x03)
	if got := s.Peek(bank.Reg(tmDEN)); got != 0x02 {
		t.Fatalf("DEN=%#x, want 0x02", got)
	}
	// CR ignores writes while locked.
	s.Write(bank.Reg(tmCommit), 0xFF)
	if got := s.Peek(bank.Reg(tmCommit)); got != 0xFE {
		t.Fatalf("CR=%#x while locked", got)
	}
	s.Write(bank.Reg(tmLock), tmKey)
	if s.Peek(bank.Reg(tmLock)) != 0 {
		t.Fatal("LOCK should read 0 once unlocked")
	}
	s.Write(bank.Reg(tmCommit), 0xFF)
	s.Write(bank.Reg(tmDEN), 0x03)
	if got := s.Peek(bank.Reg(tmDEN)); got != 0x03 {
		t.Fatalf("DEN=%#x after commit", got)
	}
}

func TestTM4C_Relock(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "D", Base: 0x40007000}
	m := TM4CGPIO(s, bank, 1<<7, tmKey)
	s.Write(bank.Reg(tmLock), tmKey)
	m.Relock(s)
	s.Write(bank.Reg(tmCommit), 0xFF)
	if got := s.Peek(bank.Reg(tmCommit)); got != 0x7F {
		t.Fatalf("CR=%#x after relock", got)
	}
}

func TestSTM32_SetResetAndDrive(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "A", Base: 0x40010800}
	m := STM32GPIO(s, bank)

	s.Write(bank.Reg(stBSRR), 1<<5|1<<3)
	s.Write(bank.Reg(stBRR), 1<<3)
	if got := s.Peek(bank.Reg(stODR)); got != 1<<5 {
		t.Fatalf("ODR=%#x", got)
	}
	if s.Peek(bank.Reg(stBSRR)) != 0 || s.Peek(bank.Reg(stBRR)) != 0 {
		t.Fatal("BSRR/BRR should read zero")
	}
	if got := s.Read(bank.Reg(stIDR)); got != 1<<5 {
		t.Fatalf("IDR=%#x", got)
	}
	// Reset half of BSRR, set wins when both given.
	s.Write(bank.Reg(stBSRR), 1<<(16+5)|1<<(16+7)|1<<7)
	if got := s.Peek(bank.Reg(stODR)); got != 1<<7 {
		t.Fatalf("ODR=%#x", got)
	}

	m.Drive(0, true)
	if got := s.Read(bank.Reg(stIDR)); got != 1<<7|1 {
		t.Fatalf("driven IDR=%#x", got)
	}
	m.Drive(7, false)
	if got := s.Read(bank.Reg(stIDR)); got != 1 {
		t.Fatalf("IDR=%#x", got)
	}
	m.Release(7)
	if got := s.Read(bank.Reg(stIDR)); got != 1<<7|1 {
		t.Fatalf("released IDR=%#x", got)
	}
	s.Write(bank.Reg(stIDR), 0)
	if s.Peek(bank.Reg(stIDR)) == 0 {
		t.Fatal("IDR accepted a write")
	}
}

func TestSTM32_Watch(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "A", Base: 0x40010800}
	m := STM32GPIO(s, bank)

	var seen []uint16
	m.Watch(func(odr uint16) { seen = append(seen, odr) })
	s.Write(bank.Reg(stBSRR), 1<<4)
	s.Write(bank.Reg(stBSRR), 1<<5)
	s.Write(bank.Reg(stBRR), 1<<4)
	if len(seen) != 3 || seen[0] != 1<<4 || seen[1] != 1<<4|1<<5 || seen[2] != 1<<5 {
		t.Fatalf("seen %#x", seen)
	}
	m.Watch(nil)
	s.Write(bank.Reg(stBSRR), 1)
	if len(seen) != 3 {
		t.Fatal("watch not removed")
	}
}

func TestSysTick_CalibReadOnly(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "STK", Base: 0xE000E010}
	SysTick(s, bank, nil, 15)
	s.Write(bank.Reg(stkCALIB), 0)
	if got := s.Read(bank.Reg(stkCALIB)); got != stkCalibF1 {
		t.Fatalf("CALIB=%#x", got)
	}
}

func TestSysTick_CountAndIRQ(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "STK", Base: 0xE000E010}
	irq := &countingRaiser{}
	m := SysTick(s, bank, irq, 15)

	s.Write(bank.Reg(stkLOAD), 100)
	s.Write(bank.Reg(stkVAL), 0)
	m.Advance(10)
	if s.Peek(bank.Reg(stkVAL)) != 0 {
		t.Fatal("counter moved while disabled")
	}
	s.Write(bank.Reg(stkCTRL), stkEnable|stkTickInt)
	m.Advance(1) // reload
	if got := s.Peek(bank.Reg(stkVAL)); got != 100 {
		t.Fatalf("VAL=%d after reload", got)
	}
	m.Advance(40)
	if got := s.Peek(bank.Reg(stkVAL)); got != 60 {
		t.Fatalf("VAL=%d", got)
	}
	m.Advance(60)
	if len(irq.lines) != 1 || irq.lines[0] != 15 {
		t.Fatalf("irqs=%v", irq.lines)
	}
	if s.Read(bank.Reg(stkCTRL))&stkCountFlag == 0 {
		t.Fatal("COUNTFLAG not set")
	}
	if s.Read(bank.Reg(stkCTRL))&stkCountFlag != 0 {
		t.Fatal("COUNTFLAG not cleared by read")
	}
	m.Advance(1 + 100 + 1 + 100)
	if len(irq.lines) != 3 {
		t.Fatalf("irqs=%v", irq.lines)
	}
}

func TestSysTick_StepOnRead(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "STK", Base: 0xE000E010}
	m := SysTick(s, bank, nil, 15)
	m.Step = 25
	s.Write(bank.Reg(stkLOAD), 100)
	s.Write(bank.Reg(stkCTRL), stkEnable)
	reads := 0
	for s.Read(bank.Reg(stkCTRL))&stkCountFlag == 0 {
		reads++
		if reads > 10 {
			t.Fatal("busy wait never finished")
		}
	}
	if reads != 4 {
		t.Fatalf("reads=%d", reads)
	}
}

func TestUSART_TXAndInject(t *testing.T) {
	s := regfile.NewSim()
	bank := regfile.Bank{Name: "USART2", Base: 0x40004400}
	var out bytes.Buffer
	irq := &countingRaiser{}
	m := USART(s, bank, &out, irq, 38)

	if m.Inject([]byte("x")) != 0 {
		t.Fatal("disabled receiver accepted bytes")
	}
	s.Write(bank.Reg(usCR1), usUE|usTE|usRE|usRXNEIE)

	s.Write(bank.Reg(usSR), ^uint32(usTC))
	if s.Peek(bank.Reg(usSR))&usTC != 0 {
		t.Fatal("TC not cleared")
	}
	s.Write(bank.Reg(usDR), 'A')
	if out.String() != "A" || s.Peek(bank.Reg(usSR))&usTC == 0 {
		t.Fatalf("tx=%q sr=%#x", out.String(), s.Peek(bank.Reg(usSR)))
	}

	if m.Inject([]byte("hi")) != 2 || len(irq.lines) != 1 {
		t.Fatalf("inject irqs=%v", irq.lines)
	}
	if s.Read(bank.Reg(usSR))&usRXNE == 0 {
		t.Fatal("RXNE not set")
	}
	// Software clear of RXNE keeps it set while bytes remain queued.
	s.Write(bank.Reg(usSR), 0)
	if s.Peek(bank.Reg(usSR))&usRXNE == 0 {
		t.Fatal("RXNE lost with data pending")
	}
	if s.Read(bank.Reg(usDR)) != 'h' || s.Read(bank.Reg(usDR)) != 'i' {
		t.Fatal("rx order")
	}
	if s.Peek(bank.Reg(usSR))&usRXNE != 0 || m.Pending() != 0 {
		t.Fatal("RXNE still set on empty queue")
	}
}
