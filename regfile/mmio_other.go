//go:build !linux

package regfile

import "mcal-go/errcode"

const DevMem = "/dev/mem"

type Window struct {
	Base Addr
	Size uint32
}

// MMIO is unavailable off Linux.
type MMIO struct{}

func OpenMMIO(path string, windows ...Window) (*MMIO, error) {
	return nil, errcode.Unsupported
}

func (m *MMIO) Read(a Addr) uint32     { return 0 }
func (m *MMIO) Write(a Addr, v uint32) {}
func (m *MMIO) Close() error           { return nil }
