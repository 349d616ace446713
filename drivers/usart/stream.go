package usart

import (
	"context"
	"runtime"

	"mcal-go/errcode"
	"mcal-go/regfile"
)

// Port is a byte stream over one instance. Readable edges only fire when
// the receive interrupt is enabled; without it the handle polls DR. A
// Port is the single consumer of the instance ring and must not be mixed
// with ReceiveByte or ReceiveString on the same instance.
type Port struct {
	d  *Driver
	id ID
}

// Port returns the stream handle for id.
func (d *Driver) Port(id ID) *Port { return &Port{d: d, id: id} }

func (p *Port) ID() ID { return p.id }

func (p *Port) WriteByte(b byte) error {
	return p.d.SendByte(context.Background(), p.id, b)
}

func (p *Port) Write(b []byte) (int, error) {
	return p.d.Write(context.Background(), p.id, b)
}

// poll moves a byte waiting in DR into the ring. With the receive
// interrupt enabled the handler is the only producer and poll does nothing.
func (p *Port) poll() {
	if !p.id.valid() {
		return
	}
	in := p.d.snapshot(p.id)
	if !in.ready || in.irq || in.cfg.Mode&RX == 0 {
		return
	}
	sr := reg(p.id, regSR)
	if regfile.TestBit(p.d.regs, sr, bitRXNE) {
		b := byte(p.d.regs.Read(reg(p.id, regDR)))
		regfile.ClearBit(p.d.regs, sr, bitRXNE)
		in.rx.TryWriteByte(b)
	}
}

func (p *Port) Buffered() int {
	p.poll()
	if !p.id.valid() {
		return 0
	}
	return p.d.snapshot(p.id).rx.Available()
}

// Read copies buffered bytes into b without blocking.
func (p *Port) Read(b []byte) (int, error) {
	if !p.id.valid() {
		return 0, errcode.InvalidInstance
	}
	p.poll()
	return p.d.snapshot(p.id).rx.TryReadInto(b), nil
}

func (p *Port) Readable() <-chan struct{} {
	if !p.id.valid() {
		return nil
	}
	return p.d.snapshot(p.id).rx.Readable()
}

// RecvSomeContext blocks until at least one byte is available or ctx is
// done. Expiry is not a development error here.
func (p *Port) RecvSomeContext(ctx context.Context, b []byte) (int, error) {
	if !p.id.valid() {
		return 0, errcode.InvalidInstance
	}
	if len(b) == 0 {
		return 0, nil
	}
	for {
		p.poll()
		in := p.d.snapshot(p.id)
		if n := in.rx.TryReadInto(b); n > 0 {
			return n, nil
		}
		if !in.irq {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
				runtime.Gosched()
				continue
			}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-in.rx.Readable():
		}
	}
}

// SetBaudRate reprograms the instance baud rate.
func (p *Port) SetBaudRate(br uint32) error { return p.d.SetBaudRate(p.id, br) }
