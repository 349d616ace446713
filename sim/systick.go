package sim

import "mcal-go/regfile"

// SysTick register offsets and CTRL bits.
const (
	stkCTRL  = 0x0
	stkLOAD  = 0x4
	stkVAL   = 0x8
	stkCALIB = 0xC

	stkEnable    = 1 << 0
	stkTickInt   = 1 << 1
	stkCountFlag = 1 << 16

	// STM32F1 CALIB: 9000 ticks of HCLK/8 at 72 MHz, no skew.
	stkCalibF1 = 9000
)

// SysTickModel is a 24-bit down counter. It only moves when Advance is
// called, or by Step ticks per CTRL read while enabled so busy-wait
// loops make progress.
type SysTickModel struct {
	s    *regfile.Sim
	bank regfile.Bank
	irq  InterruptRaiser
	line uint8

	Step uint32 // ticks per CTRL read; 0 freezes the counter between Advances
}

func SysTick(s *regfile.Sim, bank regfile.Bank, irq InterruptRaiser, line uint8) *SysTickModel {
	m := &SysTickModel{s: s, bank: bank, irq: irq, line: line}
	ctrl := bank.Reg(stkCTRL)
	calib := bank.Reg(stkCALIB)

	s.Poke(calib, stkCalibF1)
	s.OnWrite(calib, func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 { return old })

	s.OnRead(ctrl, func(r regfile.Raw, a regfile.Addr, v uint32) uint32 {
		if m.Step > 0 && v&stkEnable != 0 {
			m.advance(r, m.Step)
			v = r.Get(a)
		}
		r.Set(a, v&^stkCountFlag) // COUNTFLAG clears on read
		return v
	})
	s.OnWrite(ctrl, func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		return v&^stkCountFlag | old&stkCountFlag
	})
	s.OnWrite(bank.Reg(stkLOAD), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		return v & 0xFFFFFF
	})
	// Any write to VAL clears it and COUNTFLAG.
	s.OnWrite(bank.Reg(stkVAL), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		r.Set(ctrl, r.Get(ctrl)&^stkCountFlag)
		return 0
	})
	return m
}

// Advance runs the counter for n ticks.
func (m *SysTickModel) Advance(n uint32) {
	m.s.Update(func(r regfile.Raw) { m.advance(r, n) })
}

func (m *SysTickModel) advance(r regfile.Raw, n uint32) {
	ctrlA := m.bank.Reg(stkCTRL)
	valA := m.bank.Reg(stkVAL)
	ctrl := r.Get(ctrlA)
	if ctrl&stkEnable == 0 {
		return
	}
	load := r.Get(m.bank.Reg(stkLOAD))
	val := r.Get(valA)
	for n > 0 {
		if val == 0 {
			if load == 0 {
				break
			}
			val = load
			n--
			continue
		}
		if n < val {
			val -= n
			break
		}
		n -= val
		val = 0
		ctrl |= stkCountFlag
		if ctrl&stkTickInt != 0 && m.irq != nil {
			r.After(func() { m.irq.RaiseIRQ(m.line) })
		}
	}
	r.Set(valA, val)
	r.Set(ctrlA, ctrl)
}
