// Package systick drives the Cortex-M SysTick timer in busy-wait,
// single-interval or periodic mode.
//
// StartTimer takes a value in milliseconds and loads value*1000 ticks,
// which assumes a 1 MHz tick (8 MHz AHB divided by 8).
package systick

import (
	"context"
	"sync"

	"mcal-go/det"
	"mcal-go/errcode"
	"mcal-go/regfile"
	"mcal-go/types"
	"mcal-go/x/mathx"
)

// Identity.
const (
	ModuleID   = 100
	InstanceID = 255
)

// Service ids.
const (
	SIDGetVersionInfo      = 0x00
	SIDInit                = 0x01
	SIDDeInit              = 0x02
	SIDGetTimeElapsed      = 0x03
	SIDGetTimeRemaining    = 0x04
	SIDStartTimer          = 0x05
	SIDStopTimer           = 0x06
	SIDEnableNotification  = 0x07
	SIDDisableNotification = 0x08
	SIDSetMode             = 0x09
)

// Development error ids.
const (
	EUninit             = 0x0A
	EBusy               = 0x0B
	EMode               = 0x0C
	EAlreadyInitialized = 0x0D
	EInitFailed         = 0x0E
	EParamChannel       = 0x14
	EParamValue         = 0x15
	EParamPointer       = 0x16
	EParamMode          = 0x1F
)

var errCodes = map[uint8]errcode.Code{
	EUninit:             errcode.NotInitialized,
	EBusy:               errcode.Busy,
	EMode:               errcode.InvalidMode,
	EAlreadyInitialized: errcode.AlreadyInitialized,
	EInitFailed:         errcode.InvalidConfig,
	EParamChannel:       errcode.InvalidChannel,
	EParamValue:         errcode.InvalidValue,
	EParamPointer:       errcode.NullPointer,
	EParamMode:          errcode.InvalidMode,
}

func init() { det.RegisterCodes(ModuleID, errCodes) }

var version = types.VersionInfo{ModuleID: ModuleID, SWMajor: 1, ARMajor: 22, ARMinor: 11}

// Bank is the SysTick block of every Cortex-M core.
var Bank = regfile.Bank{Name: "STK", Base: 0xE000E010}

const (
	regCTRL  = 0x0
	regLOAD  = 0x4
	regVAL   = 0x8
	regCALIB = 0xC

	bitEnable    = 0
	bitTickInt   = 1
	bitClkSource = 2
	bitCountFlag = 16
	bitSkew      = 30
	bitNoRef     = 31

	loadBits     = 24
	ticksPerUnit = 1000
)

type ClockSource uint8

const (
	AHBDiv8 ClockSource = iota
	AHB
)

type Mode uint8

const (
	BusyWait Mode = iota
	SingleInterval
	Periodic
)

// Config selects the clock, the counting mode and the callback run from
// the interrupt handler in the interval modes.
type Config struct {
	Clock    ClockSource
	Mode     Mode
	Callback func()
}

type Timer struct {
	regs regfile.File
	det  det.Reporter

	mu      sync.Mutex
	ready   bool
	mode    Mode
	cb      func()
	oneShot bool
}

// New binds a timer to a register file. A nil reporter discards.
func New(regs regfile.File, rep det.Reporter) *Timer {
	if rep == nil {
		rep = det.Discard
	}
	return &Timer{regs: regs, det: rep}
}

func (t *Timer) report(sid, code uint8) error {
	t.det.ReportError(ModuleID, InstanceID, sid, code)
	return errCodes[code]
}

func reg(off uint32) regfile.Addr { return Bank.Reg(off) }

// Init programs the clock source and stores mode and callback.
func (t *Timer) Init(cfg *Config) error {
	if cfg == nil {
		return t.report(SIDInit, EParamPointer)
	}
	if cfg.Clock > AHB {
		return t.report(SIDInit, EInitFailed)
	}
	if cfg.Mode > Periodic {
		return t.report(SIDInit, EParamMode)
	}
	t.mu.Lock()
	if t.ready {
		t.mu.Unlock()
		return t.report(SIDInit, EAlreadyInitialized)
	}
	t.mode = cfg.Mode
	t.cb = cfg.Callback
	t.oneShot = false
	t.ready = true
	t.mu.Unlock()

	t.regs.Write(reg(regCTRL), uint32(cfg.Clock)<<bitClkSource)
	return nil
}

// DeInit stops the counter and returns the driver to the uninitialised
// state.
func (t *Timer) DeInit() error {
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return t.report(SIDDeInit, EUninit)
	}
	t.ready = false
	t.oneShot = false
	t.mu.Unlock()

	t.regs.Write(reg(regCTRL), 0)
	t.regs.Write(reg(regVAL), 0)
	return nil
}

// state snapshots the fields register sequences depend on. The lock is
// never held across register access: the handler can run from inside an
// access.
func (t *Timer) state() (ready bool, mode Mode, cb func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready, t.mode, t.cb
}

// StartTimer loads value*1000 ticks and starts counting. In busy-wait mode
// it returns once the count expires or ctx is done, stopping the counter
// in both cases. The interval modes arm the interrupt and return at once.
func (t *Timer) StartTimer(ctx context.Context, value uint32) error {
	ready, mode, cb := t.state()
	if !ready {
		return t.report(SIDStartTimer, EUninit)
	}
	load := uint64(value) * ticksPerUnit
	if value == 0 || !mathx.FitsBits(load, loadBits) {
		return t.report(SIDStartTimer, EParamValue)
	}
	if mode != BusyWait && cb == nil {
		return t.report(SIDStartTimer, EParamPointer)
	}

	t.regs.Write(reg(regVAL), 0)
	t.regs.Write(reg(regLOAD), uint32(load))
	if mode == BusyWait {
		return t.busyWait(ctx)
	}
	t.mu.Lock()
	t.oneShot = mode == SingleInterval
	t.mu.Unlock()
	regfile.SetBit(t.regs, reg(regCTRL), bitTickInt)
	regfile.SetBit(t.regs, reg(regCTRL), bitEnable)
	return nil
}

func (t *Timer) busyWait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	regfile.SetBit(t.regs, reg(regCTRL), bitEnable)
	defer regfile.ClearBit(t.regs, reg(regCTRL), bitEnable)
	for !regfile.TestBit(t.regs, reg(regCTRL), bitCountFlag) {
		select {
		case <-ctx.Done():
			return &errcode.E{C: errcode.Timeout, Op: "systick.StartTimer", Err: ctx.Err()}
		default:
		}
	}
	return nil
}

// StopTimer halts the counter and clears the current value.
func (t *Timer) StopTimer() error {
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return t.report(SIDStopTimer, EUninit)
	}
	t.oneShot = false
	t.mu.Unlock()

	regfile.ClearBit(t.regs, reg(regCTRL), bitEnable)
	t.regs.Write(reg(regVAL), 0)
	return nil
}

// SetMode changes the counting mode used by the next StartTimer. It is
// refused while the counter runs.
func (t *Timer) SetMode(m Mode) error {
	if ready, _, _ := t.state(); !ready {
		return t.report(SIDSetMode, EUninit)
	}
	if m > Periodic {
		return t.report(SIDSetMode, EParamMode)
	}
	if t.regs.Read(reg(regCTRL))&(1<<bitEnable) != 0 {
		return t.report(SIDSetMode, EBusy)
	}
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
	return nil
}

func (t *Timer) Mode() Mode {
	_, m, _ := t.state()
	return m
}

// Calibration is the CALIB register. TenMs is the reload value for 10 ms on
// the reference clock, 0 when the vendor left it unknown.
type Calibration struct {
	TenMs uint32
	Skew  bool // TenMs is not an exact 10 ms
	NoRef bool // only the core clock can drive the counter
}

// Calibration reads CALIB. It is valid before Init.
func (t *Timer) Calibration() Calibration {
	v := t.regs.Read(reg(regCALIB))
	return Calibration{
		TenMs: v & (1<<loadBits - 1),
		Skew:  v&(1<<bitSkew) != 0,
		NoRef: v&(1<<bitNoRef) != 0,
	}
}

// GetTimeElapsed returns LOAD - VAL in ticks.
func (t *Timer) GetTimeElapsed() uint32 {
	if ready, _, _ := t.state(); !ready {
		_ = t.report(SIDGetTimeElapsed, EUninit)
		return 0
	}
	return t.regs.Read(reg(regLOAD)) - t.regs.Read(reg(regVAL))
}

// GetTimeRemaining returns VAL in ticks.
func (t *Timer) GetTimeRemaining() uint32 {
	if ready, _, _ := t.state(); !ready {
		_ = t.report(SIDGetTimeRemaining, EUninit)
		return 0
	}
	return t.regs.Read(reg(regVAL))
}

// EnableNotification arms the tick interrupt. Busy-wait mode has no
// notification.
func (t *Timer) EnableNotification() error {
	ready, mode, cb := t.state()
	switch {
	case !ready:
		return t.report(SIDEnableNotification, EUninit)
	case mode == BusyWait:
		return t.report(SIDEnableNotification, EMode)
	case cb == nil:
		return t.report(SIDEnableNotification, EParamPointer)
	}
	regfile.SetBit(t.regs, reg(regCTRL), bitTickInt)
	return nil
}

func (t *Timer) DisableNotification() error {
	ready, mode, _ := t.state()
	switch {
	case !ready:
		return t.report(SIDDisableNotification, EUninit)
	case mode == BusyWait:
		return t.report(SIDDisableNotification, EMode)
	}
	regfile.ClearBit(t.regs, reg(regCTRL), bitTickInt)
	return nil
}

// SetCallback replaces the interrupt callback.
func (t *Timer) SetCallback(fn func()) {
	t.mu.Lock()
	t.cb = fn
	t.mu.Unlock()
}

// HandleInterrupt services the SysTick exception: it runs the callback,
// stops the counter after a single interval, and clears COUNTFLAG.
func (t *Timer) HandleInterrupt() {
	_, _, cb := t.state()
	if cb != nil {
		cb()
	} else {
		_ = t.report(SIDStartTimer, EParamPointer)
	}

	t.mu.Lock()
	oneShot := t.oneShot
	t.oneShot = false
	t.mu.Unlock()
	if oneShot {
		regfile.ClearBit(t.regs, reg(regCTRL), bitTickInt)
		regfile.ClearBit(t.regs, reg(regCTRL), bitEnable)
	}
	regfile.ClearBit(t.regs, reg(regCTRL), bitCountFlag)
}

// GetVersionInfo copies the module version into vi.
func (t *Timer) GetVersionInfo(vi *types.VersionInfo) error {
	if vi == nil {
		return t.report(SIDGetVersionInfo, EParamPointer)
	}
	*vi = version
	return nil
}
