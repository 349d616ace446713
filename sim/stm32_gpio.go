package sim

import "mcal-go/regfile"

// STM32F1 GPIO register offsets.
const (
	stIDR  = 0x08
	stODR  = 0x0C
	stBSRR = 0x10
	stBRR  = 0x14
)

// STM32Bank models the output latch and input sampling of one STM32F1
// GPIO port. BSRR and BRR are write-only and read as zero. IDR follows
// ODR except for bits driven from outside.
type STM32Bank struct {
	s         *regfile.Sim
	bank      regfile.Bank
	driveMask uint32
	driveVal  uint32
	watch     func(odr uint16)
}

func STM32GPIO(s *regfile.Sim, bank regfile.Bank) *STM32Bank {
	m := &STM32Bank{s: s, bank: bank}
	s.OnWrite(bank.Reg(stBSRR), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		odr := r.Get(bank.Reg(stODR))
		odr = odr&^(v>>16) | v&0xFFFF // set wins over reset
		m.latch(r, odr)
		return 0
	})
	s.OnWrite(bank.Reg(stBRR), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		m.latch(r, r.Get(bank.Reg(stODR))&^(v&0xFFFF))
		return 0
	})
	s.OnWrite(bank.Reg(stODR), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		v &= 0xFFFF
		r.Set(bank.Reg(stIDR), m.sample(v))
		return v
	})
	s.OnWrite(bank.Reg(stIDR), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		return old // read-only
	})
	return m
}

func (m *STM32Bank) latch(r regfile.Raw, odr uint32) {
	r.Set(m.bank.Reg(stODR), odr)
	r.Set(m.bank.Reg(stIDR), m.sample(odr))
	if fn := m.watch; fn != nil {
		r.After(func() { fn(uint16(odr)) })
	}
}

// Watch calls fn with the output latch after every BSRR or BRR write, in
// write order. fn runs unlocked and may read the file. A nil fn stops
// watching.
func (m *STM32Bank) Watch(fn func(odr uint16)) {
	m.s.Update(func(regfile.Raw) { m.watch = fn })
}

func (m *STM32Bank) sample(odr uint32) uint32 {
	return (odr&^m.driveMask | m.driveVal&m.driveMask) & 0xFFFF
}

// Drive forces the input level of bit, as an external source would.
func (m *STM32Bank) Drive(bit uint, high bool) {
	m.s.Update(func(r regfile.Raw) {
		m.driveMask |= 1 << bit
		if high {
			m.driveVal |= 1 << bit
		} else {
			m.driveVal &^= 1 << bit
		}
		r.Set(m.bank.Reg(stIDR), m.sample(r.Get(m.bank.Reg(stODR))))
	})
}

// Release stops driving bit; its input follows the output latch again.
func (m *STM32Bank) Release(bit uint) {
	m.s.Update(func(r regfile.Raw) {
		m.driveMask &^= 1 << bit
		r.Set(m.bank.Reg(stIDR), m.sample(r.Get(m.bank.Reg(stODR))))
	})
}
