package pinio

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"

	"mcal-go/drivers/port"
	"mcal-go/errcode"
)

// Alternate functions of the TM4C123 PCTL field, by mode number.
var modeFuncs = map[port.Mode]pin.Func{
	port.ModeUART:  "UART",
	port.ModeSSI:   "SSI",
	port.ModeI2C:   "I2C",
	port.ModeM0PWM: "M0PWM",
	port.ModeM1PWM: "M1PWM",
	port.ModeQEI:   "QEI",
	port.ModeCCP:   "CCP",
	port.ModeCAN:   "CAN",
	port.ModeADC:   "ADC",
}

// Mux exposes the multiplexer of a PORT pin as pin.PinFunc. GPIO mode is
// reported as gpio.IN or gpio.OUT.
type Mux struct {
	p port.Pin
}

var _ pin.PinFunc = (*Mux)(nil)

func NewMux(p port.Pin) *Mux { return &Mux{p: p} }

func (m *Mux) String() string   { return m.p.Name() }
func (m *Mux) Name() string     { return m.p.Name() }
func (m *Mux) Number() int      { return int(m.p.ID()) }
func (m *Mux) Halt() error      { return nil }
func (m *Mux) Function() string { return string(m.Func()) }

func (m *Mux) Func() pin.Func {
	st, err := m.p.State()
	if err != nil {
		return pin.FuncNone
	}
	if port.Mode(st.Mode) == port.ModeGPIO && !st.AltFunc {
		if st.Output {
			return gpio.OUT
		}
		return gpio.IN
	}
	if f, ok := modeFuncs[port.Mode(st.Mode)]; ok {
		return f
	}
	return pin.FuncNone
}

func (m *Mux) SupportedFuncs() []pin.Func {
	out := []pin.Func{gpio.IN, gpio.OUT}
	for md := port.ModeUART; md <= port.ModeADC; md++ {
		if f, ok := modeFuncs[md]; ok {
			out = append(out, f)
		}
	}
	return out
}

// SetFunc selects f through the PORT engine, so the pin's changeable
// flags apply.
func (m *Mux) SetFunc(f pin.Func) error {
	switch f {
	case gpio.IN, gpio.OUT:
		if err := m.p.SetMode(port.ModeGPIO); err != nil {
			return err
		}
		if f == gpio.IN {
			return m.p.SetInput()
		}
		return m.p.SetOutput()
	}
	for md, name := range modeFuncs {
		if name == f {
			return m.p.SetMode(md)
		}
	}
	return errcode.Wrap(errcode.Unsupported, "pinio.SetFunc", string(f))
}
