// Package platform assembles register files, peripheral models and
// drivers into a running stack. The host build simulates every block;
// the RP2 build exposes the chip UARTs through the same serial contract.
package platform

import "context"

// SerialPort is the byte stream contract shared by simulated USARTs and
// MCU UARTs.
type SerialPort interface {
	Write(p []byte) (int, error)
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
	SetBaudRate(br uint32) error
}

// UARTConfig names one hardware UART and its pins.
type UARTConfig struct {
	ID       string // "uart0" | "uart1"
	Baud     uint32
	TX, RX   int
	DataBits uint8
	StopBits uint8
	Parity   string // "none" | "even" | "odd"
}
