//go:build !rp2040 && !rp2350

package platform

import (
	"io"
	"sync/atomic"

	"mcal-go/bus"
	"mcal-go/det"
	"periph.io/x/conn/v3/gpio"

	"mcal-go/drivers/dio"
	"mcal-go/drivers/pinio"
	"mcal-go/drivers/port"
	"mcal-go/drivers/softspi"
	"mcal-go/drivers/systick"
	"mcal-go/drivers/usart"
	"mcal-go/errcode"
	"mcal-go/irq"
	"mcal-go/regfile"
	"mcal-go/services/config"
	"mcal-go/services/panel"
	"mcal-go/sim"
	"mcal-go/types"
)

var usartVectors = [len(usart.Banks)]irq.Vector{irq.USART1, irq.USART2, irq.USART3}

// The status panel sits on the SPI1 pins of port A, bit-banged through DIO.
const (
	PanelCS  = dio.ChannelID(4)
	PanelSCK = dio.ChannelID(5)
	PanelSDI = dio.ChannelID(6)
	PanelSDO = dio.ChannelID(7)
)

// Options tunes the host stack. The zero value is usable.
type Options struct {
	Conn     *bus.Connection // det events are published here when set
	Reporter det.Reporter    // extra sink, e.g. det.NewLogger(os.Stderr)

	// PortRegs replaces the simulated TM4C GPIO block, e.g. with an
	// regfile.MMIO over real hardware.
	PortRegs regfile.File

	TX       map[usart.ID]io.Writer // USART transmit sinks; unset ones discard
	TickStep uint32                 // SysTick ticks per CTRL read
	OnTick   func()                 // run from the SysTick handler
}

// Stack is a booted host simulation. The TM4C GPIO block and the STM32
// peripherals overlap in the address map, so each gets its own Sim.
type Stack struct {
	Board  *config.Board
	Layout *port.Layout

	PortSim *regfile.Sim // nil when Options.PortRegs was given
	Sim     *regfile.Sim
	IRQ     *irq.Table
	Det     *det.Recorder

	Port    *port.Engine
	DIO     *dio.Driver
	SysTick *systick.Timer
	USART   *usart.Driver

	SPI   *softspi.Bus // Panel* channels, mode 0, LSB first
	CS    *pinio.Pin
	Panel *panel.Panel

	GPIO     []*sim.TM4CBank
	DIOBanks []*sim.STM32Bank
	USARTs   [len(usart.Banks)]*sim.USARTModel
	Tick     *sim.SysTickModel

	ticks   atomic.Uint32
	cancels []func()
}

func stage(err error, what string) error {
	return &errcode.E{C: errcode.Of(err), Op: "platform.NewHost", Msg: what, Err: err}
}

// NewHost builds the simulated chip for b and runs PORT Init, USART Init
// and SysTick Init in that order. Any failure is returned with the stage
// that produced it; reports already made stay in Stack.Det.
func NewHost(b *config.Board, opts Options) (*Stack, error) {
	if b == nil {
		return nil, errcode.Wrap(errcode.NullPointer, "platform.NewHost", "board")
	}
	lay := port.TM4C123()
	table, err := b.PortTable(lay)
	if err != nil {
		return nil, stage(err, "pins")
	}
	ucfgs, err := b.USARTConfigs(lay)
	if err != nil {
		return nil, stage(err, "usart")
	}
	tcfg, err := b.SysTickConfig()
	if err != nil {
		return nil, stage(err, "systick")
	}

	st := &Stack{
		Board:  b,
		Layout: lay,
		Sim:    regfile.NewSim(),
		IRQ:    &irq.Table{},
		Det:    &det.Recorder{},
	}
	reps := []det.Reporter{st.Det, opts.Reporter}
	if opts.Conn != nil {
		reps = append(reps, det.NewBusReporter(opts.Conn))
	}
	rep := det.Multi(reps...)

	// ---- PORT ----
	pregs := opts.PortRegs
	if pregs == nil {
		st.PortSim = regfile.NewSim()
		for i, br := range lay.Banks {
			st.GPIO = append(st.GPIO, sim.TM4CGPIO(st.PortSim, br.Bank, lay.LockedMask(i), lay.UnlockKey))
		}
		pregs = st.PortSim
	}
	st.Port = port.New(pregs, rep, lay)
	if err := st.Port.Init(table); err != nil {
		return st, stage(err, "port init")
	}

	// ---- DIO ----
	for _, bank := range dio.Banks {
		st.DIOBanks = append(st.DIOBanks, sim.STM32GPIO(st.Sim, bank))
	}
	st.DIO = dio.New(st.Sim, rep)

	// ---- SPI panel ----
	if err := st.attachPanel(); err != nil {
		return st, stage(err, "panel")
	}

	// ---- USART ----
	st.USART = usart.New(st.Sim, rep, st.Port)
	for i := range usart.Banks {
		id := usart.ID(i)
		tx := opts.TX[id]
		if tx == nil {
			tx = io.Discard
		}
		st.USARTs[i] = sim.USART(st.Sim, usart.Banks[i], tx, st.IRQ, uint8(usartVectors[i]))
		st.cancels = append(st.cancels, st.IRQ.Register(usartVectors[i], func() { st.USART.HandleInterrupt(id) }))
	}
	if len(ucfgs) > 0 {
		if err := st.USART.Init(ucfgs); err != nil {
			return st, stage(err, "usart init")
		}
	}

	// ---- SysTick ----
	st.Tick = sim.SysTick(st.Sim, systick.Bank, st.IRQ, uint8(irq.SysTick))
	st.Tick.Step = opts.TickStep
	st.SysTick = systick.New(st.Sim, rep)
	st.cancels = append(st.cancels, st.IRQ.Register(irq.SysTick, st.SysTick.HandleInterrupt))
	if tcfg.Mode != systick.BusyWait {
		onTick := opts.OnTick
		tcfg.Callback = func() {
			st.ticks.Add(1)
			if onTick != nil {
				onTick()
			}
		}
	}
	if err := st.SysTick.Init(&tcfg); err != nil {
		return st, stage(err, "systick init")
	}
	return st, nil
}

func (s *Stack) attachPanel() error {
	for _, ch := range []dio.ChannelID{PanelSCK, PanelSDO} {
		if err := s.DIO.ConfigureOutput(ch); err != nil {
			return err
		}
	}
	if err := s.DIO.ConfigureInput(PanelSDI); err != nil {
		return err
	}
	s.CS = pinio.New(s.DIO, PanelCS)
	if err := s.CS.Out(gpio.Low); err != nil {
		return err
	}
	var err error
	s.SPI, err = softspi.New(softspi.Config{
		SCK:      s.DIO.Channel(PanelSCK),
		SDO:      s.DIO.Channel(PanelSDO),
		SDI:      s.DIO.Channel(PanelSDI),
		LSBFirst: true,
	})
	if err != nil {
		return err
	}
	s.Panel, err = panel.New(panel.Config{Bus: s.SPI, CS: s.CS})
	return err
}

// Line wraps a DIO channel as a periph pin.
func (s *Stack) Line(ch dio.ChannelID) *pinio.Pin { return pinio.New(s.DIO, ch) }

// Mux exposes the function selection of a PORT pin.
func (s *Stack) Mux(id port.PinID) *pinio.Mux { return pinio.NewMux(s.Port.Pin(id)) }

// RenderPanel draws the current PORT read-back on the status panel.
func (s *Stack) RenderPanel() error { return s.Panel.Render(s.DumpPort()) }

// DumpPort reads back every pin of the applied table.
func (s *Stack) DumpPort() []types.PinState { return s.Port.Dump() }

// Ticks counts SysTick callbacks delivered so far.
func (s *Stack) Ticks() uint32 { return s.ticks.Load() }

// Serial returns the stream handle of an initialised USART.
func (s *Stack) Serial(id usart.ID) (SerialPort, error) {
	if !s.USART.Initialized(id) {
		return nil, errcode.Wrap(errcode.NotInitialized, "platform.Serial", id.String())
	}
	return s.USART.Port(id), nil
}

// State summarises the boot outcome for the board topic.
func (s *Stack) State(err error) types.BoardState {
	bs := types.BoardState{Name: s.Board.Name, Pins: len(s.Board.Pins), USARTs: len(s.Board.USART), Level: "ready"}
	if err != nil {
		bs.Level, bs.Error = "error", err.Error()
	}
	return bs
}

// Close removes the interrupt handlers the stack installed.
func (s *Stack) Close() {
	for _, c := range s.cancels {
		c()
	}
	s.cancels = nil
}

// PortWindows lists the physical ranges the GPIO block of lay occupies,
// for regfile.OpenMMIO.
func PortWindows(lay *port.Layout) []regfile.Window {
	ws := make([]regfile.Window, 0, len(lay.Banks))
	for _, b := range lay.Banks {
		ws = append(ws, regfile.Window{Base: b.Base, Size: 0x1000})
	}
	return ws
}
