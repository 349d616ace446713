// Package pinio exposes DIO channels as periph.io gpio.PinIO so code
// written against periph runs on the MCAL drivers.
package pinio

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"

	"mcal-go/drivers/dio"
	"mcal-go/errcode"
)

// PollInterval is how often WaitForEdge samples the input.
var PollInterval = time.Millisecond

type Pin struct {
	d  *dio.Driver
	ch dio.ChannelID

	mu   sync.Mutex
	out  bool
	pull gpio.Pull
	edge gpio.Edge
}

var (
	_ gpio.PinIO  = (*Pin)(nil)
	_ pin.PinFunc = (*Pin)(nil)
)

func New(d *dio.Driver, ch dio.ChannelID) *Pin {
	return &Pin{d: d, ch: ch, pull: gpio.Float}
}

func (p *Pin) String() string { return p.Name() }
func (p *Pin) Name() string   { return dio.Name(p.ch) }
func (p *Pin) Number() int    { return int(p.ch) }
func (p *Pin) Halt() error    { return nil }

// Function is the deprecated string form of Func.
func (p *Pin) Function() string { return string(p.Func()) }

func (p *Pin) Func() pin.Func {
	p.mu.Lock()
	out := p.out
	p.mu.Unlock()
	high := p.d.ReadChannel(p.ch) == dio.High
	switch {
	case out && high:
		return gpio.OUT_HIGH
	case out:
		return gpio.OUT_LOW
	case high:
		return gpio.IN_HIGH
	}
	return gpio.IN_LOW
}

func (p *Pin) SupportedFuncs() []pin.Func { return []pin.Func{gpio.IN, gpio.OUT} }

func (p *Pin) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN:
		return p.In(gpio.PullNoChange, gpio.NoEdge)
	case gpio.OUT_HIGH:
		return p.Out(gpio.High)
	case gpio.OUT, gpio.OUT_LOW:
		return p.Out(gpio.Low)
	}
	return errcode.Wrap(errcode.Unsupported, "pinio.SetFunc", string(f))
}

// In configures the channel as an input. Edges are detected by polling.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pull == gpio.PullNoChange {
		pull = p.pull
	}
	var err error
	switch pull {
	case gpio.PullUp:
		err = p.d.ConfigureInputPull(p.ch, true)
	case gpio.PullDown:
		err = p.d.ConfigureInputPull(p.ch, false)
	default:
		err = p.d.ConfigureInput(p.ch)
	}
	if err != nil {
		return err
	}
	p.out, p.pull, p.edge = false, pull, edge
	return nil
}

func (p *Pin) Read() gpio.Level {
	return gpio.Level(p.d.ReadChannel(p.ch) == dio.High)
}

// WaitForEdge polls until the configured edge occurs. A negative timeout
// waits forever.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	p.mu.Lock()
	edge := p.edge
	p.mu.Unlock()
	if edge == gpio.NoEdge {
		return false
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	last := p.Read()
	for {
		time.Sleep(PollInterval)
		now := p.Read()
		if now != last {
			if edge == gpio.BothEdges ||
				(edge == gpio.RisingEdge && now == gpio.High) ||
				(edge == gpio.FallingEdge && now == gpio.Low) {
				return true
			}
			last = now
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
	}
}

func (p *Pin) Pull() gpio.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

func (p *Pin) DefaultPull() gpio.Pull { return gpio.Float }

func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.out {
		if err := p.d.ConfigureOutput(p.ch); err != nil {
			return err
		}
		p.out = true
	}
	lvl := dio.Low
	if l {
		lvl = dio.High
	}
	return p.d.WriteChannel(p.ch, lvl)
}

func (p *Pin) PWM(gpio.Duty, physic.Frequency) error {
	return errcode.Wrap(errcode.Unsupported, "pinio.PWM", p.Name())
}
