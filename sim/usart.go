package sim

import (
	"io"

	"mcal-go/regfile"
)

// STM32F1 USART offsets and bits used by the model.
const (
	usSR  = 0x00
	usDR  = 0x04
	usCR1 = 0x0C

	usRXNE = 1 << 5
	usTC   = 1 << 6
	usTXE  = 1 << 7

	usRE     = 1 << 2
	usTE     = 1 << 3
	usRXNEIE = 1 << 5
	usUE     = 1 << 13
)

// USARTModel transmits DR writes to an io.Writer and queues injected
// bytes for DR reads. RXNE tracks whether the queue is non-empty.
type USARTModel struct {
	s    *regfile.Sim
	bank regfile.Bank
	tx   io.Writer
	irq  InterruptRaiser
	line uint8
	rx   []byte
}

func USART(s *regfile.Sim, bank regfile.Bank, tx io.Writer, irq InterruptRaiser, line uint8) *USARTModel {
	m := &USARTModel{s: s, bank: bank, tx: tx, irq: irq, line: line}
	sr := bank.Reg(usSR)
	s.Poke(sr, usTXE|usTC)

	s.OnWrite(bank.Reg(usDR), func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		cr1 := r.Get(bank.Reg(usCR1))
		if cr1&usUE != 0 && cr1&usTE != 0 && m.tx != nil {
			b := byte(v)
			r.After(func() { _, _ = m.tx.Write([]byte{b}) })
		}
		r.Set(sr, r.Get(sr)|usTXE|usTC)
		return old
	})
	s.OnRead(bank.Reg(usDR), func(r regfile.Raw, a regfile.Addr, v uint32) uint32 {
		if len(m.rx) == 0 {
			return 0
		}
		b := m.rx[0]
		m.rx = m.rx[1:]
		if len(m.rx) == 0 {
			r.Set(sr, r.Get(sr)&^usRXNE)
		}
		return uint32(b)
	})
	// RXNE and TC are cleared by writing zero; other bits are read-only here.
	s.OnWrite(sr, func(r regfile.Raw, a regfile.Addr, old, v uint32) uint32 {
		nv := old & (v | ^uint32(usRXNE|usTC))
		if len(m.rx) > 0 {
			nv |= usRXNE
		}
		return nv
	})
	return m
}

// Inject queues bytes as if they arrived on the RX line. Bytes are dropped
// while the receiver is disabled. It returns how many were accepted.
func (m *USARTModel) Inject(p []byte) int {
	accepted := 0
	m.s.Update(func(r regfile.Raw) {
		cr1 := r.Get(m.bank.Reg(usCR1))
		if cr1&usUE == 0 || cr1&usRE == 0 || len(p) == 0 {
			return
		}
		m.rx = append(m.rx, p...)
		accepted = len(p)
		sr := m.bank.Reg(usSR)
		r.Set(sr, r.Get(sr)|usRXNE)
		if cr1&usRXNEIE != 0 && m.irq != nil {
			r.After(func() { m.irq.RaiseIRQ(m.line) })
		}
	})
	return accepted
}

// Pending returns how many injected bytes have not been read yet.
func (m *USARTModel) Pending() int {
	n := 0
	m.s.Update(func(regfile.Raw) { n = len(m.rx) })
	return n
}
