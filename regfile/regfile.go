// Package regfile models memory-mapped peripheral registers as an
// addressable file of 32-bit words.
package regfile

// Addr is an absolute peripheral register address.
type Addr uint32

// File is the register access capability drivers are written against.
// Both methods complete synchronously.
type File interface {
	Read(a Addr) uint32
	Write(a Addr, v uint32)
}

// Bank is one peripheral instance identified by its base address.
type Bank struct {
	Name string
	Base Addr
}

// Reg returns the address of the register at off from the bank base.
func (b Bank) Reg(off uint32) Addr { return b.Base + Addr(off) }

// ---- bit helpers (read-modify-write) ----

func SetBit(f File, a Addr, bit uint) {
	f.Write(a, f.Read(a)|1<<bit)
}

func ClearBit(f File, a Addr, bit uint) {
	f.Write(a, f.Read(a)&^(1<<bit))
}

func WriteBit(f File, a Addr, bit uint, on bool) {
	if on {
		SetBit(f, a, bit)
	} else {
		ClearBit(f, a, bit)
	}
}

func TestBit(f File, a Addr, bit uint) bool {
	return f.Read(a)&(1<<bit) != 0
}

// WriteField replaces width bits at shift with v.
func WriteField(f File, a Addr, shift, width uint, v uint32) {
	mask := uint32(1)<<width - 1
	old := f.Read(a)
	f.Write(a, old&^(mask<<shift)|(v&mask)<<shift)
}

func ReadField(f File, a Addr, shift, width uint) uint32 {
	mask := uint32(1)<<width - 1
	return f.Read(a) >> shift & mask
}
