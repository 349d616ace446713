package sim

import "mcal-go/regfile"

// TM4C GPIO register offsets touched by the lock model.
const (
	tmAFSel  = 0x420
	tmPUR    = 0x510
	tmPDR    = 0x514
	tmDEN    = 0x51C
	tmLock   = 0x520
	tmCommit = 0x524
)

// TM4CBank models the GPIOLOCK/GPIOCR mechanism of one TM4C123 bank.
// Writes to AFSEL, PUR, PDR and DEN only reach bits set in CR, and CR
// itself only accepts writes after the key has been written to LOCK.
type TM4CBank struct {
	bank     regfile.Bank
	key      uint32
	unlocked bool
}

// TM4CGPIO installs the model. Bits in locked start uncommitted.
func TM4CGPIO(s *regfile.Sim, bank regfile.Bank, locked uint32, key uint32) *TM4CBank {
	m := &TM4CBank{bank: bank, key: key}
	s.Poke(bank.Reg(tmCommit), 0xFF&^locked)
	s.Poke(bank.Reg(tmLock), 1)

	s.OnWrite(bank.Reg(tmLock), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		m.unlocked = v == m.key
		if m.unlocked {
			return 0
		}
		return 1
	})
	s.OnWrite(bank.Reg(tmCommit), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		if !m.unlocked {
			return old
		}
		return v & 0xFF
	})
	gate := func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		cr := r.Get(bank.Reg(tmCommit))
		return old&^cr | v&cr
	}
	for _, off := range []uint32{tmAFSel, tmPUR, tmPDR, tmDEN} {
		s.OnWrite(bank.Reg(off), gate)
	}
	return m
}

// Relock writes a non-key value to LOCK, as a reset of the lock would.
func (m *TM4CBank) Relock(s *regfile.Sim) {
	s.Write(m.bank.Reg(tmLock), 0)
}
