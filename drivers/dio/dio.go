// Package dio reads and writes digital channels, ports and channel groups
// on STM32F1 GPIO. Writes to single channels and groups go through the
// atomic set/reset registers, so they are safe against concurrent writes
// to other bits of the same port.
package dio

import (
	"mcal-go/det"
	"mcal-go/errcode"
	"mcal-go/regfile"
	"mcal-go/types"
)

// Identity.
const (
	ModuleID   = 120
	InstanceID = 0
)

// Service ids.
const (
	SIDReadChannel       = 0x00
	SIDWriteChannel      = 0x01
	SIDReadPort          = 0x02
	SIDWritePort         = 0x03
	SIDReadChannelGroup  = 0x04
	SIDWriteChannelGroup = 0x05
	SIDFlipChannel       = 0x11
	SIDGetVersionInfo    = 0x12
)

// Development error ids.
const (
	EParamInvalidChannel = 0x0A
	EParamConfig         = 0x10
	EParamInvalidPort    = 0x14
	EParamInvalidGroup   = 0x1F
	EParamPointer        = 0x20
)

var errCodes = map[uint8]errcode.Code{
	EParamInvalidChannel: errcode.InvalidChannel,
	EParamConfig:         errcode.InvalidConfig,
	EParamInvalidPort:    errcode.InvalidPort,
	EParamInvalidGroup:   errcode.InvalidGroup,
	EParamPointer:        errcode.NullPointer,
}

func init() { det.RegisterCodes(ModuleID, errCodes) }

var version = types.VersionInfo{ModuleID: ModuleID, SWMajor: 1, ARMajor: 22, ARMinor: 11}

// Register offsets within a GPIO port.
const (
	regCRL  = 0x00
	regCRH  = 0x04
	regIDR  = 0x08
	regODR  = 0x0C
	regBSRR = 0x10
	regBRR  = 0x14
)

// Ports on the STM32F103C8.
var Banks = []regfile.Bank{
	{Name: "A", Base: 0x40010800},
	{Name: "B", Base: 0x40010C00},
	{Name: "C", Base: 0x40011000},
}

// ChannelID is a flat channel number: port*16 + pin.
type ChannelID uint8

// PortID indexes Banks.
type PortID uint8

const (
	PortA PortID = iota
	PortB
	PortC
)

const pinsPerPort = 16

type Level uint8

const (
	Low Level = iota
	High
)

// PortLevel is the 16-bit value of a whole port.
type PortLevel uint16

// ChannelGroup is a run of adjacent bits in one port. Offset is the
// position of the lowest bit of Mask.
type ChannelGroup struct {
	Port   PortID
	Mask   uint16
	Offset uint8
}

type Driver struct {
	regs  regfile.File
	det   det.Reporter
	banks []regfile.Bank
}

// New binds the driver to a register file. A nil reporter discards.
func New(regs regfile.File, rep det.Reporter) *Driver {
	if rep == nil {
		rep = det.Discard
	}
	return &Driver{regs: regs, det: rep, banks: Banks}
}

func (d *Driver) report(sid, code uint8) error {
	d.det.ReportError(ModuleID, InstanceID, sid, code)
	return errCodes[code]
}

func (d *Driver) channel(sid uint8, ch ChannelID) (regfile.Bank, uint, error) {
	p := int(ch) / pinsPerPort
	if p >= len(d.banks) {
		return regfile.Bank{}, 0, d.report(sid, EParamInvalidChannel)
	}
	return d.banks[p], uint(ch) % pinsPerPort, nil
}

func (d *Driver) port(sid uint8, p PortID) (regfile.Bank, error) {
	if int(p) >= len(d.banks) {
		return regfile.Bank{}, d.report(sid, EParamInvalidPort)
	}
	return d.banks[p], nil
}

// ReadChannel returns the input level of ch. Invalid channels read Low.
func (d *Driver) ReadChannel(ch ChannelID) Level {
	b, bit, err := d.channel(SIDReadChannel, ch)
	if err != nil {
		return Low
	}
	return Level(d.regs.Read(b.Reg(regIDR)) >> bit & 1)
}

// WriteChannel drives ch through BSRR (High) or BRR (Low).
func (d *Driver) WriteChannel(ch ChannelID, lvl Level) error {
	b, bit, err := d.channel(SIDWriteChannel, ch)
	if err != nil {
		return err
	}
	switch lvl {
	case High:
		d.regs.Write(b.Reg(regBSRR), 1<<bit)
	case Low:
		d.regs.Write(b.Reg(regBRR), 1<<bit)
	default:
		return d.report(SIDWriteChannel, EParamConfig)
	}
	return nil
}

// ReadPort returns the input levels of port p. Invalid ports read 0.
func (d *Driver) ReadPort(p PortID) PortLevel {
	b, err := d.port(SIDReadPort, p)
	if err != nil {
		return 0
	}
	return PortLevel(d.regs.Read(b.Reg(regIDR)))
}

// WritePort sets the whole output latch of p to v.
func (d *Driver) WritePort(p PortID, v PortLevel) error {
	b, err := d.port(SIDWritePort, p)
	if err != nil {
		return err
	}
	d.regs.Write(b.Reg(regODR), uint32(v))
	return nil
}

// FlipChannel toggles the output latch of ch and returns the new level.
func (d *Driver) FlipChannel(ch ChannelID) Level {
	b, bit, err := d.channel(SIDFlipChannel, ch)
	if err != nil {
		return Low
	}
	odr := d.regs.Read(b.Reg(regODR))
	if odr&(1<<bit) != 0 {
		d.regs.Write(b.Reg(regBRR), 1<<bit)
	} else {
		d.regs.Write(b.Reg(regBSRR), 1<<bit)
	}
	return Level(d.regs.Read(b.Reg(regODR)) >> bit & 1)
}

func (d *Driver) group(sid uint8, g *ChannelGroup) (regfile.Bank, error) {
	if g == nil {
		return regfile.Bank{}, d.report(sid, EParamPointer)
	}
	if int(g.Port) >= len(d.banks) || g.Mask == 0 || g.Offset >= pinsPerPort ||
		(g.Mask>>g.Offset)&1 == 0 || g.Mask&(1<<g.Offset-1) != 0 {
		return regfile.Bank{}, d.report(sid, EParamInvalidGroup)
	}
	return d.banks[g.Port], nil
}

// ReadChannelGroup returns the group's input bits shifted down to bit 0.
func (d *Driver) ReadChannelGroup(g *ChannelGroup) PortLevel {
	b, err := d.group(SIDReadChannelGroup, g)
	if err != nil {
		return 0
	}
	return PortLevel(uint16(d.regs.Read(b.Reg(regIDR))) & g.Mask >> g.Offset)
}

// WriteChannelGroup writes v into the group with one BSRR store. Bits of
// v beyond the group are ignored.
func (d *Driver) WriteChannelGroup(g *ChannelGroup, v PortLevel) error {
	b, err := d.group(SIDWriteChannelGroup, g)
	if err != nil {
		return err
	}
	set := uint32(uint16(v) << g.Offset & g.Mask)
	reset := uint32(g.Mask) &^ set
	d.regs.Write(b.Reg(regBSRR), reset<<16|set)
	return nil
}

// GetVersionInfo copies the module version into vi.
func (d *Driver) GetVersionInfo(vi *types.VersionInfo) error {
	if vi == nil {
		return d.report(SIDGetVersionInfo, EParamPointer)
	}
	*vi = version
	return nil
}
