package config

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"mcal-go/drivers/port"
	"mcal-go/drivers/systick"
	"mcal-go/drivers/usart"
	"mcal-go/errcode"
	"mcal-go/x/conv"
)

// Board is the JSON description of one target: the PORT table, the
// USART instances and the SysTick setup.
type Board struct {
	Name    string        `json:"name"`
	Pins    []PinEntry    `json:"pins"`
	USART   []USARTEntry  `json:"usart"`
	SysTick *SysTickEntry `json:"systick,omitempty"`
}

type PinEntry struct {
	Pin                 string `json:"pin"`
	Mode                uint8  `json:"mode"`
	Direction           string `json:"direction,omitempty"`
	Resistor            string `json:"resistor,omitempty"`
	Initial             string `json:"initial,omitempty"`
	DirectionChangeable bool   `json:"direction_changeable,omitempty"`
	ModeChangeable      bool   `json:"mode_changeable,omitempty"`
	Enabled             bool   `json:"enabled"`
}

type USARTEntry struct {
	ID         string `json:"id"`
	Baud       uint32 `json:"baud"`
	WordLength uint8  `json:"word_length,omitempty"`
	StopBits   string `json:"stop_bits,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Parity     string `json:"parity,omitempty"`
	TX         string `json:"tx"`
	RX         string `json:"rx"`
	PinMode    uint8  `json:"pin_mode"`
	Enabled    bool   `json:"enabled"`
}

type SysTickEntry struct {
	Clock string `json:"clock,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// EmbeddedBoardLookup resolves built-in boards. Tests may override it.
var EmbeddedBoardLookup = func(name string) ([]byte, bool) {
	b, ok := embeddedBoards[name]
	return b, ok
}

// Boards lists the embedded board names in order.
func Boards() []string {
	out := make([]string, 0, len(embeddedBoards))
	for k := range embeddedBoards {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse decodes a board document. Unknown fields are rejected.
func Parse(raw []byte) (*Board, error) {
	var b Board
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "config.Parse", Err: err}
	}
	if b.Name == "" {
		return nil, errcode.Wrap(errcode.InvalidConfig, "config.Parse", "missing name")
	}
	return &b, nil
}

// Lookup parses an embedded board.
func Lookup(name string) (*Board, error) {
	raw, ok := EmbeddedBoardLookup(name)
	if !ok || len(raw) == 0 {
		return nil, errcode.Wrap(errcode.UnknownBoard, "config.Lookup", name)
	}
	return Parse(raw)
}

// Load resolves nameOrPath as an embedded board first and as a file
// otherwise.
func Load(nameOrPath string) (*Board, error) {
	if _, ok := EmbeddedBoardLookup(nameOrPath); ok {
		return Lookup(nameOrPath)
	}
	raw, err := os.ReadFile(nameOrPath)
	if err != nil {
		return nil, &errcode.E{C: errcode.UnknownBoard, Op: "config.Load", Msg: nameOrPath, Err: err}
	}
	return Parse(raw)
}

func fieldErr(c errcode.Code, op, field, val string) error {
	return errcode.Wrap(c, op, field+": "+strconv.Quote(val))
}

var (
	directions = map[string]port.Direction{"": port.In, "in": port.In, "out": port.Out}
	resistors  = map[string]port.Resistor{"": port.NoResistor, "none": port.NoResistor, "pullup": port.PullUp, "pulldown": port.PullDown}
	levels     = map[string]port.Level{"": port.NoLevel, "none": port.NoLevel, "low": port.Low, "high": port.High}
)

// PortTable converts the pin list into a descriptor table covering every
// pin of lay. Pins the board does not list are appended disabled.
func (b *Board) PortTable(lay *port.Layout) ([]port.PinDescriptor, error) {
	const op = "config.PortTable"
	table := make([]port.PinDescriptor, 0, len(lay.Valid()))
	listed := make(map[port.PinID]bool, len(b.Pins))
	for i, p := range b.Pins {
		field := string(append(conv.AppendInt([]byte("pins["), int64(i)), ']'))
		id, err := lay.Parse(p.Pin)
		if err != nil {
			return nil, fieldErr(errcode.InvalidPin, op, field+".pin", p.Pin)
		}
		if listed[id] {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".pin duplicate", p.Pin)
		}
		listed[id] = true
		dir, ok := directions[p.Direction]
		if !ok {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".direction", p.Direction)
		}
		res, ok := resistors[p.Resistor]
		if !ok {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".resistor", p.Resistor)
		}
		lvl, ok := levels[p.Initial]
		if !ok {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".initial", p.Initial)
		}
		table = append(table, port.PinDescriptor{
			ID:                  id,
			Mode:                port.Mode(p.Mode),
			Direction:           dir,
			Resistor:            res,
			Initial:             lvl,
			DirectionChangeable: p.DirectionChangeable,
			ModeChangeable:      p.ModeChangeable,
			Enabled:             p.Enabled,
		})
	}
	for _, id := range lay.Valid() {
		if !listed[id] {
			table = append(table, port.Disabled(id))
		}
	}
	return table, nil
}

var (
	usartIDs  = map[string]usart.ID{"usart1": usart.USART1, "usart2": usart.USART2, "usart3": usart.USART3}
	stopBits  = map[string]usart.StopBits{"": usart.Stop1, "1": usart.Stop1, "0.5": usart.Stop0_5, "2": usart.Stop2, "1.5": usart.Stop1_5}
	usartMode = map[string]usart.Mode{"": usart.TXRX, "rx": usart.RX, "tx": usart.TX, "txrx": usart.TXRX}
	parities  = map[string]usart.Parity{"": usart.NoParity, "none": usart.NoParity, "even": usart.Even, "odd": usart.Odd}
)

// USARTConfigs converts the usart list. Pin names resolve against lay.
func (b *Board) USARTConfigs(lay *port.Layout) ([]usart.Config, error) {
	const op = "config.USARTConfigs"
	out := make([]usart.Config, 0, len(b.USART))
	for i, u := range b.USART {
		field := string(append(conv.AppendInt([]byte("usart["), int64(i)), ']'))
		id, ok := usartIDs[u.ID]
		if !ok {
			return nil, fieldErr(errcode.InvalidInstance, op, field+".id", u.ID)
		}
		sb, ok := stopBits[u.StopBits]
		if !ok {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".stop_bits", u.StopBits)
		}
		md, ok := usartMode[u.Mode]
		if !ok {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".mode", u.Mode)
		}
		par, ok := parities[u.Parity]
		if !ok {
			return nil, fieldErr(errcode.InvalidConfig, op, field+".parity", u.Parity)
		}
		tx, err := lay.Parse(u.TX)
		if err != nil {
			return nil, fieldErr(errcode.InvalidPin, op, field+".tx", u.TX)
		}
		rx, err := lay.Parse(u.RX)
		if err != nil {
			return nil, fieldErr(errcode.InvalidPin, op, field+".rx", u.RX)
		}
		wl := u.WordLength
		if wl == 0 {
			wl = 8
		}
		out = append(out, usart.Config{
			ID: id, Baud: u.Baud, WordLength: wl, StopBits: sb, Mode: md, Parity: par,
			Enabled: u.Enabled, TX: tx, RX: rx, PinMode: port.Mode(u.PinMode),
		})
	}
	return out, nil
}

var (
	clocks       = map[string]systick.ClockSource{"": systick.AHBDiv8, "ahb_div8": systick.AHBDiv8, "ahb": systick.AHB}
	systickModes = map[string]systick.Mode{"": systick.BusyWait, "busy_wait": systick.BusyWait, "single": systick.SingleInterval, "periodic": systick.Periodic}
)

// SysTickConfig converts the systick section. A board without one gets
// busy-wait on AHB/8. The callback is left for the caller.
func (b *Board) SysTickConfig() (systick.Config, error) {
	const op = "config.SysTickConfig"
	var e SysTickEntry
	if b.SysTick != nil {
		e = *b.SysTick
	}
	clk, ok := clocks[e.Clock]
	if !ok {
		return systick.Config{}, fieldErr(errcode.InvalidConfig, op, "systick.clock", e.Clock)
	}
	md, ok := systickModes[e.Mode]
	if !ok {
		return systick.Config{}, fieldErr(errcode.InvalidConfig, op, "systick.mode", e.Mode)
	}
	return systick.Config{Clock: clk, Mode: md}, nil
}
