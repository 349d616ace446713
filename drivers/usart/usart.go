// Package usart drives the STM32F1 USART blocks. Transmission and polled
// reception are synchronous and bounded by a context; interrupt driven
// reception drains into a per-instance ring that Port handles read from.
package usart

import (
	"context"
	"sync"

	"mcal-go/det"
	"mcal-go/drivers/port"
	"mcal-go/errcode"
	"mcal-go/regfile"
	"mcal-go/types"
	"mcal-go/x/ring"
)

const ModuleID = 126

// Service ids.
const (
	SIDInit              = 0x01
	SIDReceiveByte       = 0x02
	SIDSendByte          = 0x03
	SIDTransmitString    = 0x04
	SIDReceiveString     = 0x05
	SIDSetCallback       = 0x06
	SIDHandleInterrupt   = 0x07
	SIDEnableRxInterrupt = 0x08
	SIDGetVersionInfo    = 0x09
	SIDSetBaudRate       = 0x0A
)

// Development error ids.
const (
	EUninit        = 0x0A
	EParamInstance = 0x0B
	EParamConfig   = 0x0C
	EParamPointer  = 0x0D
	ETimeout       = 0x0E
	EMode          = 0x0F
)

var errCodes = map[uint8]errcode.Code{
	EUninit:        errcode.NotInitialized,
	EParamInstance: errcode.InvalidInstance,
	EParamConfig:   errcode.InvalidConfig,
	EParamPointer:  errcode.NullPointer,
	ETimeout:       errcode.Timeout,
	EMode:          errcode.InvalidMode,
}

func init() { det.RegisterCodes(ModuleID, errCodes) }

var version = types.VersionInfo{ModuleID: ModuleID, SWMajor: 1}

const (
	regSR   = 0x00
	regDR   = 0x04
	regBRR  = 0x08
	regCR1  = 0x0C
	regCR2  = 0x10
	regCR3  = 0x14
	regGTPR = 0x18

	// SR
	bitRXNE = 5
	bitTC   = 6
	bitTXE  = 7

	// CR1
	bitRE     = 2
	bitRXNEIE = 5
	bitPS     = 9
	bitM      = 12
	bitUE     = 13

	// CR2
	shiftSTOP = 12
)

// MaxString bounds ReceiveString.
const MaxString = 100

// RingSize is the per-instance receive buffer.
const RingSize = 256

// PinMux routes the TX and RX pins. *port.Engine satisfies it.
type PinMux interface {
	SetDirection(id port.PinID, dir port.Direction) error
	SetMode(id port.PinID, m port.Mode) error
}

type instance struct {
	ready bool
	cfg   Config
	cb    func()
	rx    *ring.Ring
	irq   bool // RXNEIE set
	drops uint32
}

type Driver struct {
	regs regfile.File
	det  det.Reporter
	mux  PinMux

	mu   sync.Mutex // guards inst; never held across register access
	inst [len(Banks)]instance
}

// New binds a driver to a register file. mux may be nil when the pins are
// routed elsewhere.
func New(regs regfile.File, rep det.Reporter, mux PinMux) *Driver {
	if rep == nil {
		rep = det.Discard
	}
	d := &Driver{regs: regs, det: rep, mux: mux}
	for i := range d.inst {
		d.inst[i].rx = ring.New(RingSize)
	}
	return d
}

func (d *Driver) report(id ID, sid, code uint8) error {
	d.det.ReportError(ModuleID, uint8(id), sid, code)
	return errCodes[code]
}

func reg(id ID, off uint32) regfile.Addr { return Banks[id].Reg(off) }

func (d *Driver) snapshot(id ID) instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inst[id]
}

// check validates id and, when need is non-zero, that the instance is
// initialised with that direction enabled.
func (d *Driver) check(id ID, sid uint8, need Mode) (instance, error) {
	if !id.valid() {
		return instance{}, d.report(id, sid, EParamInstance)
	}
	in := d.snapshot(id)
	if !in.ready {
		return in, d.report(id, sid, EUninit)
	}
	if in.cfg.Mode&need != need {
		return in, d.report(id, sid, EMode)
	}
	return in, nil
}

func (d *Driver) validate(c *Config, seen map[ID]bool) uint8 {
	if !c.ID.valid() {
		return EParamInstance
	}
	if seen[c.ID] {
		return EParamConfig
	}
	seen[c.ID] = true
	switch {
	case BRR(c.clock(), c.Baud) == 0,
		c.WordLength != 8 && c.WordLength != 9,
		c.StopBits > Stop1_5,
		c.Mode == 0 || c.Mode > TXRX,
		c.Parity > Odd:
		return EParamConfig
	}
	return 0
}

// Init configures every enabled entry of cfgs. All entries are validated
// before the first write.
func (d *Driver) Init(cfgs []Config) error {
	if len(cfgs) == 0 {
		return d.report(0, SIDInit, EParamPointer)
	}
	seen := make(map[ID]bool, len(cfgs))
	for i := range cfgs {
		if !cfgs[i].Enabled {
			continue
		}
		if code := d.validate(&cfgs[i], seen); code != 0 {
			return d.report(cfgs[i].ID, SIDInit, code)
		}
	}
	for i := range cfgs {
		c := cfgs[i]
		if !c.Enabled {
			continue
		}
		if err := d.route(&c); err != nil {
			return &errcode.E{C: errcode.Of(err), Op: "usart.Init", Msg: c.ID.String() + " pin mux", Err: err}
		}
		d.program(&c)
		d.mu.Lock()
		d.inst[c.ID].cfg = c
		d.inst[c.ID].ready = true
		d.inst[c.ID].irq = false
		d.mu.Unlock()
	}
	return nil
}

func (d *Driver) route(c *Config) error {
	if d.mux == nil {
		return nil
	}
	if c.Mode&TX != 0 {
		if err := d.mux.SetDirection(c.TX, port.Out); err != nil {
			return err
		}
		if err := d.mux.SetMode(c.TX, c.PinMode); err != nil {
			return err
		}
	}
	if c.Mode&RX != 0 {
		if err := d.mux.SetDirection(c.RX, port.In); err != nil {
			return err
		}
		if err := d.mux.SetMode(c.RX, c.PinMode); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) program(c *Config) {
	id := c.ID
	cr1 := reg(id, regCR1)
	d.regs.Write(reg(id, regBRR), BRR(c.clock(), c.Baud))
	regfile.WriteBit(d.regs, cr1, bitM, c.WordLength == 9)
	regfile.WriteField(d.regs, reg(id, regCR2), shiftSTOP, 2, uint32(c.StopBits))
	regfile.WriteField(d.regs, cr1, bitRE, 2, uint32(c.Mode))
	regfile.WriteField(d.regs, cr1, bitPS, 2, c.Parity.encode())
	regfile.ClearBit(d.regs, cr1, bitRXNEIE)
	regfile.SetBit(d.regs, cr1, bitUE)
}

// Initialized reports whether id has been configured.
func (d *Driver) Initialized(id ID) bool {
	return id.valid() && d.snapshot(id).ready
}

// SetBaudRate reprograms BRR for an initialised instance.
func (d *Driver) SetBaudRate(id ID, baud uint32) error {
	in, err := d.check(id, SIDSetBaudRate, 0)
	if err != nil {
		return err
	}
	brr := BRR(in.cfg.clock(), baud)
	if brr == 0 {
		return d.report(id, SIDSetBaudRate, EParamConfig)
	}
	d.regs.Write(reg(id, regBRR), brr)
	d.mu.Lock()
	d.inst[id].cfg.Baud = baud
	d.mu.Unlock()
	return nil
}

func (d *Driver) waitFlag(ctx context.Context, id ID, bit uint) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sr := reg(id, regSR)
	for !regfile.TestBit(d.regs, sr, bit) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// SendByte clears TC, loads DR and waits for the transmission to complete.
func (d *Driver) SendByte(ctx context.Context, id ID, b byte) error {
	if _, err := d.check(id, SIDSendByte, TX); err != nil {
		return err
	}
	return d.send(ctx, id, b, SIDSendByte)
}

func (d *Driver) send(ctx context.Context, id ID, b byte, sid uint8) error {
	regfile.ClearBit(d.regs, reg(id, regSR), bitTC)
	d.regs.Write(reg(id, regDR), uint32(b))
	if err := d.waitFlag(ctx, id, bitTC); err != nil {
		d.det.ReportError(ModuleID, uint8(id), sid, ETimeout)
		return &errcode.E{C: errcode.Timeout, Op: "usart.SendByte", Err: err}
	}
	return nil
}

// Write transmits p byte by byte and returns how many bytes completed.
func (d *Driver) Write(ctx context.Context, id ID, p []byte) (int, error) {
	if _, err := d.check(id, SIDTransmitString, TX); err != nil {
		return 0, err
	}
	for i, b := range p {
		if err := d.send(ctx, id, b, SIDTransmitString); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// ReceiveByte returns the next received byte. Bytes already drained by
// the interrupt handler are returned first; otherwise RXNE is polled
// until ctx is done.
func (d *Driver) ReceiveByte(ctx context.Context, id ID) (byte, error) {
	in, err := d.check(id, SIDReceiveByte, RX)
	if err != nil {
		return 0, err
	}
	return d.receive(ctx, id, &in, SIDReceiveByte)
}

func (d *Driver) receive(ctx context.Context, id ID, in *instance, sid uint8) (byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var one [1]byte
	sr := reg(id, regSR)
	for {
		if in.rx.TryReadInto(one[:]) == 1 {
			return one[0], nil
		}
		// With RXNEIE set the handler owns DR.
		if !in.irq && regfile.TestBit(d.regs, sr, bitRXNE) {
			b := byte(d.regs.Read(reg(id, regDR)))
			regfile.ClearBit(d.regs, sr, bitRXNE)
			return b, nil
		}
		select {
		case <-ctx.Done():
			d.det.ReportError(ModuleID, uint8(id), sid, ETimeout)
			return 0, &errcode.E{C: errcode.Timeout, Op: "usart.ReceiveByte", Err: ctx.Err()}
		default:
		}
	}
}

// ReceiveString reads bytes until a carriage return, which is consumed but
// not returned, or until MaxString bytes have arrived.
func (d *Driver) ReceiveString(ctx context.Context, id ID) ([]byte, error) {
	in, err := d.check(id, SIDReceiveString, RX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 16)
	for len(out) < MaxString {
		b, err := d.receive(ctx, id, &in, SIDReceiveString)
		if err != nil {
			return out, err
		}
		if b == '\r' {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

// SetCallback installs the function HandleInterrupt runs for id.
func (d *Driver) SetCallback(id ID, fn func()) error {
	if !id.valid() {
		return d.report(id, SIDSetCallback, EParamInstance)
	}
	d.mu.Lock()
	d.inst[id].cb = fn
	d.mu.Unlock()
	return nil
}

// EnableRxInterrupt sets RXNEIE so received bytes raise the instance's
// interrupt line.
func (d *Driver) EnableRxInterrupt(id ID) error {
	if _, err := d.check(id, SIDEnableRxInterrupt, RX); err != nil {
		return err
	}
	regfile.SetBit(d.regs, reg(id, regCR1), bitRXNEIE)
	d.setIRQ(id, true)
	return nil
}

func (d *Driver) DisableRxInterrupt(id ID) error {
	if _, err := d.check(id, SIDEnableRxInterrupt, 0); err != nil {
		return err
	}
	regfile.ClearBit(d.regs, reg(id, regCR1), bitRXNEIE)
	d.setIRQ(id, false)
	return nil
}

func (d *Driver) setIRQ(id ID, on bool) {
	d.mu.Lock()
	d.inst[id].irq = on
	d.mu.Unlock()
}

// HandleInterrupt services the interrupt of id: it drains DR into the
// receive ring, clears the status flags and runs the callback of the same
// instance. Bytes that do not fit the ring are counted and dropped.
func (d *Driver) HandleInterrupt(id ID) {
	if !id.valid() {
		_ = d.report(id, SIDHandleInterrupt, EParamInstance)
		return
	}
	in := d.snapshot(id)
	sr := reg(id, regSR)
	var dropped uint32
	for regfile.TestBit(d.regs, sr, bitRXNE) {
		b := byte(d.regs.Read(reg(id, regDR)))
		if !in.rx.TryWriteByte(b) {
			dropped++
		}
	}
	d.regs.Write(sr, 0)

	if dropped > 0 {
		d.mu.Lock()
		d.inst[id].drops += dropped
		d.mu.Unlock()
	}
	if in.cb != nil {
		in.cb()
	}
}

// Dropped returns how many received bytes were lost to a full ring.
func (d *Driver) Dropped(id ID) uint32 {
	if !id.valid() {
		return 0
	}
	return d.snapshot(id).drops
}

func (d *Driver) GetVersionInfo(vi *types.VersionInfo) error {
	if vi == nil {
		return d.report(0, SIDGetVersionInfo, EParamPointer)
	}
	*vi = version
	return nil
}
