//go:build linux

package regfile

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"mcal-go/errcode"
)

// DevMem is the default physical memory device.
const DevMem = "/dev/mem"

// Window is a physical address range to map.
type Window struct {
	Base Addr
	Size uint32
}

type mapping struct {
	base Addr // first mapped address (page aligned)
	end  Addr
	mem  []byte
}

// MMIO is a File backed by mmap'd physical memory.
type MMIO struct {
	f    *os.File
	maps []mapping
}

// OpenMMIO maps each window from path (usually DevMem). Window bases are
// rounded down to a page boundary.
func OpenMMIO(path string, windows ...Window) (*MMIO, error) {
	if len(windows) == 0 {
		return nil, errcode.Wrap(errcode.InvalidConfig, "regfile.OpenMMIO", "no windows")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "regfile.OpenMMIO", Err: err}
	}
	m := &MMIO{f: f}
	page := Addr(os.Getpagesize())
	for _, w := range windows {
		base := w.Base &^ (page - 1)
		size := int(uint32(w.Base-base) + w.Size)
		size = (size + int(page) - 1) &^ (int(page) - 1)
		mem, err := unix.Mmap(int(f.Fd()), int64(base), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			m.Close()
			return nil, &errcode.E{C: errcode.Error, Op: "regfile.OpenMMIO", Msg: "mmap", Err: err}
		}
		m.maps = append(m.maps, mapping{base: base, end: base + Addr(size), mem: mem})
	}
	return m, nil
}

func (m *MMIO) word(a Addr) *uint32 {
	for i := range m.maps {
		mp := &m.maps[i]
		if a >= mp.base && a+4 <= mp.end {
			return (*uint32)(unsafe.Pointer(&mp.mem[a-mp.base]))
		}
	}
	panic("regfile: address outside mapped windows")
}

func (m *MMIO) Read(a Addr) uint32 { return atomic.LoadUint32(m.word(a)) }

func (m *MMIO) Write(a Addr, v uint32) { atomic.StoreUint32(m.word(a), v) }

// Close unmaps every window and closes the device.
func (m *MMIO) Close() error {
	for _, mp := range m.maps {
		unix.Munmap(mp.mem)
	}
	m.maps = nil
	if m.f != nil {
		err := m.f.Close()
		m.f = nil
		return err
	}
	return nil
}
