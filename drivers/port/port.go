// Package port is the pin configuration engine. It turns a table of
// logical pin descriptors into ordered register writes across the GPIO
// banks of a Layout, including the unlock/commit sequence for pins that
// leave reset bound to a debug or NMI function.
//
// Every contract violation is reported to the det.Reporter and also
// returned. A failed call performs no register writes.
//
// Init and RefreshDirection must not run concurrently with each other or
// with the mutators. SetDirection and SetMode only read the retained
// table and may be called from interrupt context once Init has returned.
package port

import (
	"mcal-go/det"
	"mcal-go/errcode"
	"mcal-go/regfile"
	"mcal-go/types"
)

// Identity.
const (
	ModuleID   = 124
	VendorID   = 1000
	InstanceID = 0
)

// Service ids.
const (
	SIDInit             = 0x00
	SIDSetPinDirection  = 0x01
	SIDRefreshDirection = 0x02
	SIDGetVersionInfo   = 0x03
	SIDSetPinMode       = 0x04
)

// Development error ids.
const (
	EParamPin              = 0x05
	EDirectionUnchangeable = 0x06
	EParamConfig           = 0x07
	EParamInvalidMode      = 0x08
	EModeUnchangeable      = 0x09
	EUninit                = 0x0A
	EParamPointer          = 0x0B
	EParamInitialValue     = 0x0C
)

var errCodes = map[uint8]errcode.Code{
	EParamPin:              errcode.InvalidPin,
	EDirectionUnchangeable: errcode.AttributeUnchangeable,
	EParamConfig:           errcode.InvalidConfig,
	EParamInvalidMode:      errcode.InvalidMode,
	EModeUnchangeable:      errcode.AttributeUnchangeable,
	EUninit:                errcode.NotInitialized,
	EParamPointer:          errcode.NullPointer,
	EParamInitialValue:     errcode.InvalidValue,
}

func init() { det.RegisterCodes(ModuleID, errCodes) }

var version = types.VersionInfo{
	VendorID: VendorID, ModuleID: ModuleID,
	SWMajor: 1, SWMinor: 0, SWPatch: 0,
	ARMajor: 4, ARMinor: 0, ARRevision: 3,
}

type resolved struct {
	bank int
	bit  uint
}

// Engine owns the configuration state of one GPIO block.
type Engine struct {
	regs regfile.File
	det  det.Reporter
	lay  *Layout

	table []PinDescriptor // caller owned, never mutated
	index map[PinID]int
	where []resolved // parallel to table
	ready bool
}

// New binds an engine to a register file. A nil layout selects TM4C123
// and a nil reporter discards reports.
func New(regs regfile.File, rep det.Reporter, lay *Layout) *Engine {
	if lay == nil {
		lay = TM4C123()
	}
	if rep == nil {
		rep = det.Discard
	}
	return &Engine{regs: regs, det: rep, lay: lay}
}

func (e *Engine) Layout() *Layout { return e.lay }

func (e *Engine) Initialized() bool { return e.ready }

func (e *Engine) fail(sid, code uint8) error {
	e.det.ReportError(ModuleID, InstanceID, sid, code)
	return errCodes[code]
}

// Init validates table and programs every pin it describes. Validation
// covers the whole table before the first write, so a rejected table
// leaves the registers untouched. Init may be repeated to re-apply a
// table; the engine never returns to the uninitialised state.
func (e *Engine) Init(table []PinDescriptor) error {
	if len(table) == 0 {
		return e.fail(SIDInit, EParamConfig)
	}
	index := make(map[PinID]int, len(table))
	where := make([]resolved, len(table))
	for i, d := range table {
		bank, bit, err := e.lay.Resolve(d.ID)
		if err != nil {
			return e.fail(SIDInit, EParamPin)
		}
		if _, dup := index[d.ID]; dup {
			return e.fail(SIDInit, EParamConfig)
		}
		if !d.Enabled {
			index[d.ID] = i
			where[i] = resolved{bank, bit}
			continue
		}
		if d.Direction > Out || d.Resistor > NoResistor {
			return e.fail(SIDInit, EParamConfig)
		}
		if d.Mode > e.lay.MaxMode {
			return e.fail(SIDInit, EParamInvalidMode)
		}
		if d.Direction == Out && d.Initial > NoLevel {
			return e.fail(SIDInit, EParamInitialValue)
		}
		index[d.ID] = i
		where[i] = resolved{bank, bit}
	}

	for i := range table {
		e.apply(&table[i], where[i])
	}

	e.table, e.index, e.where = table, index, where
	e.ready = true
	return nil
}

// apply performs the full Init sequence for one pin.
func (e *Engine) apply(d *PinDescriptor, at resolved) {
	b := e.lay.Banks[at.bank]
	r := e.lay.Regs
	e.unlock(at)

	if !d.Enabled {
		regfile.ClearBit(e.regs, b.Reg(r.Dir), at.bit)
		regfile.ClearBit(e.regs, b.Reg(r.PDR), at.bit)
		regfile.SetBit(e.regs, b.Reg(r.PUR), at.bit)
		regfile.ClearBit(e.regs, b.Reg(r.AFSel), at.bit)
		regfile.ClearBit(e.regs, b.Reg(r.AMSel), at.bit)
		regfile.SetBit(e.regs, b.Reg(r.DEN), at.bit)
		regfile.WriteField(e.regs, b.Reg(r.PCTL), at.bit*4, 4, uint32(ModeGPIO))
		return
	}

	e.writeDirection(at, d.Direction)
	if d.Direction == Out {
		switch d.Initial {
		case High:
			regfile.SetBit(e.regs, b.Reg(r.Data), at.bit)
		case Low:
			regfile.ClearBit(e.regs, b.Reg(r.Data), at.bit)
		}
	} else {
		switch d.Resistor {
		case PullUp:
			regfile.ClearBit(e.regs, b.Reg(r.PDR), at.bit)
			regfile.SetBit(e.regs, b.Reg(r.PUR), at.bit)
		case PullDown:
			regfile.ClearBit(e.regs, b.Reg(r.PUR), at.bit)
			regfile.SetBit(e.regs, b.Reg(r.PDR), at.bit)
		default:
			regfile.ClearBit(e.regs, b.Reg(r.PUR), at.bit)
			regfile.ClearBit(e.regs, b.Reg(r.PDR), at.bit)
		}
	}
	e.writeMode(at, d.Mode)
}

// unlock opens the lock and commits the bit for protected pins. Repeating
// it is harmless.
func (e *Engine) unlock(at resolved) {
	if !e.lay.locked(at.bank, at.bit) {
		return
	}
	b := e.lay.Banks[at.bank]
	e.regs.Write(b.Reg(e.lay.Regs.Lock), e.lay.UnlockKey)
	regfile.SetBit(e.regs, b.Reg(e.lay.Regs.Commit), at.bit)
}

func (e *Engine) writeDirection(at resolved, dir Direction) {
	b := e.lay.Banks[at.bank]
	regfile.WriteBit(e.regs, b.Reg(e.lay.Regs.Dir), at.bit, dir == Out)
}

func (e *Engine) writeMode(at resolved, m Mode) {
	b := e.lay.Banks[at.bank]
	r := e.lay.Regs
	regfile.WriteBit(e.regs, b.Reg(r.AFSel), at.bit, m != ModeGPIO)
	if m == e.lay.ADCMode {
		regfile.SetBit(e.regs, b.Reg(r.AMSel), at.bit)
		regfile.ClearBit(e.regs, b.Reg(r.DEN), at.bit)
	} else {
		regfile.SetBit(e.regs, b.Reg(r.DEN), at.bit)
		regfile.ClearBit(e.regs, b.Reg(r.AMSel), at.bit)
	}
	regfile.WriteField(e.regs, b.Reg(r.PCTL), at.bit*4, 4, uint32(m))
}

func (e *Engine) lookup(sid uint8, id PinID) (int, error) {
	if !e.ready {
		return 0, e.fail(sid, EUninit)
	}
	i, ok := e.index[id]
	if !ok {
		return 0, e.fail(sid, EParamPin)
	}
	return i, nil
}

// SetDirection changes the direction of a direction-changeable pin. The
// initial level is not re-applied.
func (e *Engine) SetDirection(id PinID, dir Direction) error {
	i, err := e.lookup(SIDSetPinDirection, id)
	if err != nil {
		return err
	}
	if !e.table[i].DirectionChangeable {
		return e.fail(SIDSetPinDirection, EDirectionUnchangeable)
	}
	if dir > Out {
		return e.fail(SIDSetPinDirection, EParamConfig)
	}
	e.unlock(e.where[i])
	e.writeDirection(e.where[i], dir)
	return nil
}

// SetMode changes the function of a mode-changeable pin.
func (e *Engine) SetMode(id PinID, m Mode) error {
	i, err := e.lookup(SIDSetPinMode, id)
	if err != nil {
		return err
	}
	if m > e.lay.MaxMode {
		return e.fail(SIDSetPinMode, EParamInvalidMode)
	}
	if !e.table[i].ModeChangeable {
		return e.fail(SIDSetPinMode, EModeUnchangeable)
	}
	e.unlock(e.where[i])
	e.writeMode(e.where[i], m)
	return nil
}

// RefreshDirection restores the direction of every pin whose direction is
// fixed. Pins with a changeable direction are left alone.
func (e *Engine) RefreshDirection() error {
	if !e.ready {
		return e.fail(SIDRefreshDirection, EUninit)
	}
	for i := range e.table {
		d := &e.table[i]
		if d.DirectionChangeable {
			continue
		}
		e.unlock(e.where[i])
		if d.Enabled {
			e.writeDirection(e.where[i], d.Direction)
		} else {
			e.writeDirection(e.where[i], In)
		}
	}
	return nil
}

// GetVersionInfo copies the module version into vi.
func (e *Engine) GetVersionInfo(vi *types.VersionInfo) error {
	if vi == nil {
		return e.fail(SIDGetVersionInfo, EParamPointer)
	}
	*vi = version
	return nil
}

// Descriptor returns the retained descriptor for id.
func (e *Engine) Descriptor(id PinID) (PinDescriptor, bool) {
	if !e.ready {
		return PinDescriptor{}, false
	}
	i, ok := e.index[id]
	if !ok {
		return PinDescriptor{}, false
	}
	return e.table[i], true
}

// State reads the current register configuration of id back.
func (e *Engine) State(id PinID) (types.PinState, error) {
	bank, bit, err := e.lay.Resolve(id)
	if err != nil {
		return types.PinState{}, err
	}
	b := e.lay.Banks[bank]
	r := e.lay.Regs
	tb := func(off uint32) bool { return regfile.TestBit(e.regs, b.Reg(off), bit) }
	return types.PinState{
		ID:        int(id),
		Name:      e.lay.Name(id),
		Output:    tb(r.Dir),
		Level:     tb(r.Data),
		PullUp:    tb(r.PUR),
		PullDown:  tb(r.PDR),
		AltFunc:   tb(r.AFSel),
		Digital:   tb(r.DEN),
		Analog:    tb(r.AMSel),
		Mode:      uint8(regfile.ReadField(e.regs, b.Reg(r.PCTL), bit*4, 4)),
		Committed: tb(r.Commit),
	}, nil
}

// Dump returns the state of every pin in the retained table, in table
// order.
func (e *Engine) Dump() []types.PinState {
	out := make([]types.PinState, 0, len(e.table))
	for _, d := range e.table {
		if st, err := e.State(d.ID); err == nil {
			out = append(out, st)
		}
	}
	return out
}
