// Package softspi bit-bangs an SPI master over three digital lines. Bus
// satisfies tinygo.org/x/drivers.SPI so device drivers from that module
// can run on plain DIO channels.
package softspi

import (
	"time"

	"tinygo.org/x/drivers"

	"mcal-go/errcode"
)

// Line is one digital line. dio.Channel satisfies it.
type Line interface {
	Level() bool
	SetLevel(high bool) error
}

type Config struct {
	SCK, SDO, SDI Line
	Mode          uint8         // 0..3, CPOL in bit 1 and CPHA in bit 0
	LSBFirst      bool          // Sharp memory LCDs shift the low bit first
	HalfPeriod    time.Duration // 0 clocks as fast as the lines allow
}

type Bus struct {
	sck, sdo, sdi Line
	cpol, cpha    bool
	lsb           bool
	half          time.Duration
}

var _ drivers.SPI = (*Bus)(nil)

// New validates cfg and parks SCK at its idle level.
func New(cfg Config) (*Bus, error) {
	if cfg.SCK == nil || cfg.SDO == nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "softspi.New", "SCK and SDO required")
	}
	if cfg.Mode > 3 {
		return nil, errcode.Wrap(errcode.InvalidMode, "softspi.New", "mode")
	}
	b := &Bus{
		sck: cfg.SCK, sdo: cfg.SDO, sdi: cfg.SDI,
		cpol: cfg.Mode&2 != 0,
		cpha: cfg.Mode&1 != 0,
		lsb:  cfg.LSBFirst,
		half: cfg.HalfPeriod,
	}
	if err := b.sck.SetLevel(b.cpol); err != nil {
		return nil, err
	}
	if err := b.sdo.SetLevel(false); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) wait() {
	if b.half > 0 {
		time.Sleep(b.half)
	}
}

func (b *Bus) sample() bool {
	return b.sdi != nil && b.sdi.Level()
}

// Transfer shifts one byte out, MSB first unless LSBFirst was set, and
// returns the byte shifted in.
func (b *Bus) Transfer(w byte) (byte, error) {
	var r byte
	for i := 0; i < 8; i++ {
		bit := 7 - i
		if b.lsb {
			bit = i
		}
		out := w&(1<<bit) != 0
		if !b.cpha {
			if err := b.sdo.SetLevel(out); err != nil {
				return r, err
			}
			if b.sample() {
				r |= 1 << bit
			}
			if err := b.sck.SetLevel(!b.cpol); err != nil {
				return r, err
			}
			b.wait()
			if err := b.sck.SetLevel(b.cpol); err != nil {
				return r, err
			}
			b.wait()
			continue
		}
		if err := b.sck.SetLevel(!b.cpol); err != nil {
			return r, err
		}
		if err := b.sdo.SetLevel(out); err != nil {
			return r, err
		}
		b.wait()
		if b.sample() {
			r |= 1 << bit
		}
		if err := b.sck.SetLevel(b.cpol); err != nil {
			return r, err
		}
		b.wait()
	}
	return r, nil
}

// Tx follows the drivers.SPI contract: a nil w sends zeros, a nil r
// discards, and when both are set their lengths must match.
func (b *Bus) Tx(w, r []byte) error {
	n := len(w)
	switch {
	case w == nil:
		n = len(r)
	case r != nil && len(r) != len(w):
		return errcode.Wrap(errcode.InvalidPayload, "softspi.Tx", "length mismatch")
	}
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in, err := b.Transfer(out)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}
