//go:build rp2040 || rp2350

package platform

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"mcal-go/errcode"
)

// rp2SerialPort adapts uartx to SerialPort.
type rp2SerialPort struct{ u *uartx.UART }

func (p *rp2SerialPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *rp2SerialPort) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	return p.u.RecvSomeContext(ctx, buf)
}
func (p *rp2SerialPort) SetBaudRate(br uint32) error { p.u.SetBaudRate(br); return nil }

// SetFormat applies frame settings; parity is "none", "even" or "odd".
func (p *rp2SerialPort) SetFormat(databits, stopbits uint8, parity string) error {
	var par uartx.UARTParity
	switch parity {
	case "even":
		par = uartx.ParityEven
	case "odd":
		par = uartx.ParityOdd
	default:
		par = uartx.ParityNone
	}
	return p.u.SetFormat(databits, stopbits, par)
}

// SerialPorts configures each listed UART and returns its handle keyed by
// id. Unknown ids are rejected before any hardware is touched.
func SerialPorts(cfgs []UARTConfig) (map[string]SerialPort, error) {
	hws := make([]*uartx.UART, len(cfgs))
	for i, c := range cfgs {
		switch c.ID {
		case "uart0":
			hws[i] = uartx.UART0
		case "uart1":
			hws[i] = uartx.UART1
		default:
			return nil, errcode.Wrap(errcode.InvalidInstance, "platform.SerialPorts", c.ID)
		}
	}
	out := make(map[string]SerialPort, len(cfgs))
	for i, c := range cfgs {
		hw := hws[i]
		// Defaults inside uartx apply to zero fields.
		if err := hw.Configure(uartx.UARTConfig{
			BaudRate: c.Baud,
			TX:       machine.Pin(c.TX),
			RX:       machine.Pin(c.RX),
		}); err != nil {
			return nil, &errcode.E{C: errcode.InvalidConfig, Op: "platform.SerialPorts", Msg: c.ID, Err: err}
		}
		p := &rp2SerialPort{u: hw}
		if c.DataBits != 0 {
			stop := c.StopBits
			if stop == 0 {
				stop = 1
			}
			if err := p.SetFormat(c.DataBits, stop, c.Parity); err != nil {
				return nil, &errcode.E{C: errcode.InvalidConfig, Op: "platform.SerialPorts", Msg: c.ID, Err: err}
			}
		}
		out[c.ID] = p
	}
	return out, nil
}
