package port

import (
	"mcal-go/errcode"
	"mcal-go/regfile"
)

// PinID is a flat logical pin identifier spanning every bank.
type PinID uint8

// BankRange assigns a contiguous window of logical ids to one GPIO bank.
// The bit index of an id is id - IDBase, which lets a bank expose only
// its upper pins (TM4C port C starts at bit 4).
type BankRange struct {
	regfile.Bank
	First  PinID // first valid id, inclusive
	Last   PinID // last valid id, inclusive
	IDBase PinID
}

// Offsets are the per-bank register offsets the engine writes through.
type Offsets struct {
	Data   uint32
	Dir    uint32
	AFSel  uint32
	PUR    uint32
	PDR    uint32
	DEN    uint32
	Lock   uint32
	Commit uint32
	AMSel  uint32
	PCTL   uint32
}

// Layout is the physical register description of a GPIO block. It is
// configuration data: the engine holds no silicon specific constants.
type Layout struct {
	Banks     []BankRange
	Regs      Offsets
	UnlockKey uint32
	Locked    []PinID // pins behind the lock/commit mechanism
	MaxMode   Mode
	ADCMode   Mode
}

// TM4C123 returns the TM4C123GH6PM layout. PC0..PC3 carry JTAG and are
// not addressable; PD7 and PF0 (NMI) are locked out of reset.
func TM4C123() *Layout {
	return &Layout{
		Banks: []BankRange{
			{Bank: regfile.Bank{Name: "A", Base: 0x40004000}, First: 0, Last: 7, IDBase: 0},
			{Bank: regfile.Bank{Name: "B", Base: 0x40005000}, First: 8, Last: 15, IDBase: 8},
			{Bank: regfile.Bank{Name: "C", Base: 0x40006000}, First: 20, Last: 23, IDBase: 16},
			{Bank: regfile.Bank{Name: "D", Base: 0x40007000}, First: 24, Last: 31, IDBase: 24},
			{Bank: regfile.Bank{Name: "E", Base: 0x40024000}, First: 32, Last: 37, IDBase: 32},
			{Bank: regfile.Bank{Name: "F", Base: 0x40025000}, First: 38, Last: 42, IDBase: 38},
		},
		Regs: Offsets{
			Data:   0x3FC,
			Dir:    0x400,
			AFSel:  0x420,
			PUR:    0x510,
			PDR:    0x514,
			DEN:    0x51C,
			Lock:   0x520,
			Commit: 0x524,
			AMSel:  0x528,
			PCTL:   0x52C,
		},
		UnlockKey: 0x4C4F434B,
		Locked:    []PinID{PD7, PF0},
		MaxMode:   ModeADC,
		ADCMode:   ModeADC,
	}
}

// Named TM4C123 pins used by default boards and tests.
const (
	PA0 PinID = 0
	PB0 PinID = 8
	PB1 PinID = 9
	PC4 PinID = 20
	PD7 PinID = 31
	PE0 PinID = 32
	PF0 PinID = 38
	PF1 PinID = 39
	PF2 PinID = 40
	PF3 PinID = 41
	PF4 PinID = 42
)

// Resolve maps id to its bank index and bit. Ids outside every declared
// range yield errcode.InvalidPin.
func (l *Layout) Resolve(id PinID) (bank int, bit uint, err error) {
	for i, b := range l.Banks {
		if id >= b.First && id <= b.Last {
			return i, uint(id - b.IDBase), nil
		}
	}
	return 0, 0, errcode.InvalidPin
}

// Valid returns every addressable id in bank order.
func (l *Layout) Valid() []PinID {
	var out []PinID
	for _, b := range l.Banks {
		for id := int(b.First); id <= int(b.Last); id++ {
			out = append(out, PinID(id))
		}
	}
	return out
}

func (l *Layout) locked(bank int, bit uint) bool {
	b := l.Banks[bank]
	for _, id := range l.Locked {
		if id >= b.First && id <= b.Last && uint(id-b.IDBase) == bit {
			return true
		}
	}
	return false
}

// LockedMask returns the bits of bank that need the unlock sequence.
func (l *Layout) LockedMask(bank int) uint32 {
	var m uint32
	for bit := uint(0); bit < 32; bit++ {
		if l.locked(bank, bit) {
			m |= 1 << bit
		}
	}
	return m
}

// Name renders id as P<bank><bit>, e.g. "PF1". Invalid ids render "P?".
func (l *Layout) Name(id PinID) string {
	bank, bit, err := l.Resolve(id)
	if err != nil {
		return "P?"
	}
	return "P" + l.Banks[bank].Name + string(rune('0'+bit))
}

// Parse is the inverse of Name.
func (l *Layout) Parse(name string) (PinID, error) {
	if len(name) != 3 || name[0] != 'P' || name[2] < '0' || name[2] > '9' {
		return 0, errcode.Wrap(errcode.InvalidPin, "port.Parse", name)
	}
	bit := PinID(name[2] - '0')
	for _, b := range l.Banks {
		if b.Name != name[1:2] {
			continue
		}
		id := b.IDBase + bit
		if id >= b.First && id <= b.Last {
			return id, nil
		}
	}
	return 0, errcode.Wrap(errcode.InvalidPin, "port.Parse", name)
}
