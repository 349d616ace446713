package usart

import (
	"mcal-go/drivers/port"
	"mcal-go/regfile"
)

// ID names a USART instance and is also its DET instance id.
type ID uint8

const (
	USART1 ID = iota
	USART2
	USART3
)

// Banks holds the STM32F103 USART register blocks, indexed by ID.
var Banks = [...]regfile.Bank{
	{Name: "USART1", Base: 0x40013800},
	{Name: "USART2", Base: 0x40004400},
	{Name: "USART3", Base: 0x40004800},
}

func (id ID) valid() bool { return int(id) < len(Banks) }

func (id ID) String() string {
	if !id.valid() {
		return "USART?"
	}
	return Banks[id].Name
}

// StopBits values are the CR2 STOP encodings.
type StopBits uint8

const (
	Stop1 StopBits = iota
	Stop0_5
	Stop2
	Stop1_5
)

// Mode values are the CR1 RE/TE pair.
type Mode uint8

const (
	RX Mode = 1 << iota
	TX
	TXRX = RX | TX
)

type Parity uint8

const (
	NoParity Parity = iota
	Even
	Odd
)

// encode returns the CR1 PS/PCE field.
func (p Parity) encode() uint32 {
	switch p {
	case Even:
		return 0b10
	case Odd:
		return 0b11
	}
	return 0
}

// DefaultClock is the peripheral clock after reset on the HSI.
const DefaultClock = 8_000_000

// Config describes one instance. Disabled entries are skipped by Init.
type Config struct {
	ID         ID
	Baud       uint32
	WordLength uint8 // 8 or 9
	StopBits   StopBits
	Mode       Mode
	Parity     Parity
	Enabled    bool

	// Clock is the peripheral clock in Hz; 0 selects DefaultClock.
	Clock uint32

	TX, RX  port.PinID
	PinMode port.Mode
}

func (c *Config) clock() uint32 {
	if c.Clock == 0 {
		return DefaultClock
	}
	return c.Clock
}

// BRR returns the baud rate register value for baud at clk. It is zero
// when the rate cannot be represented.
func BRR(clk, baud uint32) uint32 {
	if baud == 0 {
		return 0
	}
	v := clk / baud
	if v == 0 || v > 0xFFFF {
		return 0
	}
	return v
}
