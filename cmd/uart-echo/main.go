//go:build rp2040 || rp2350

// Command uart-echo frames lines arriving on uart1 and echoes each one,
// prefixed, on uart0.
package main

import (
	"context"
	"time"

	"mcal-go/services/platform"
	"mcal-go/services/uartio"
)

func main() {
	println("[uart] boot …")
	time.Sleep(1500 * time.Millisecond)

	ports, err := platform.SerialPorts([]platform.UARTConfig{
		{ID: "uart0", Baud: 115200, TX: 0, RX: 1},
		{ID: "uart1", Baud: 9600, TX: 4, RX: 5, DataBits: 8, StopBits: 1, Parity: "none"},
	})
	if err != nil {
		println("[uart] FAIL:", err.Error())
		return
	}
	out, in := ports["uart0"], ports["uart1"]

	ctx := context.Background()
	w := uartio.New(8)
	if _, err := w.Register(ctx, uartio.ReaderCfg{
		DevID: "uart1", Port: in, Mode: uartio.ModeLines, MaxFrame: 128, IdleFlush: 500 * time.Millisecond,
	}); err != nil {
		println("[uart] FAIL:", err.Error())
		return
	}
	println("[uart] echoing uart1 lines to uart0")

	for ev := range w.Events() {
		line := append(append([]byte("uart1> "), ev.Data...), '\r', '\n')
		if _, err := out.Write(line); err != nil {
			println("[uart] write:", err.Error())
		}
	}
}
