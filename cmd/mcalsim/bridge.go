package main

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/mattn/go-tty"
	"github.com/tarm/serial"

	"mcal-go/bus"
	"mcal-go/drivers/usart"
	"mcal-go/services/platform"
	"mcal-go/services/uartio"
)

// bridge joins one simulated USART to the outside: bytes read from the
// host side are injected on RX and the model's TX is written back out.
type bridge struct {
	out   io.Writer
	read  func(p []byte) (int, error)
	echo  bool // local echo for the terminal, which runs raw
	close func() error
}

func openBridge(dev string, baud int, console bool) (*bridge, error) {
	if dev != "" {
		if console {
			log.Printf("-serial given, ignoring -console")
		}
		p, err := serial.OpenPort(&serial.Config{Name: dev, Baud: baud, ReadTimeout: 100 * time.Millisecond})
		if err != nil {
			return nil, err
		}
		return &bridge{out: p, read: p.Read, close: p.Close}, nil
	}
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}
	read := func(p []byte) (int, error) {
		r, err := t.ReadRune()
		if err != nil {
			return 0, err
		}
		return copy(p, string(r)), nil
	}
	return &bridge{out: t.Output(), read: read, echo: true, close: t.Close}, nil
}

func (b *bridge) Write(p []byte) (int, error) { return b.out.Write(p) }

func (b *bridge) Close() error { return b.close() }

// pump copies host input into the USART receiver until read fails.
func (b *bridge) pump(m interface{ Inject([]byte) int }, errs chan<- error) {
	buf := make([]byte, 64)
	for {
		n, err := b.read(buf)
		if err != nil {
			errs <- err
			return
		}
		if n == 0 {
			continue
		}
		if b.echo {
			_, _ = b.out.Write(buf[:n])
		}
		if got := m.Inject(buf[:n]); got < n {
			log.Printf("rx: receiver dropped %d bytes", n-got)
		}
	}
}

// Run answers every received line with "> line" until ctx is done.
func (b *bridge) Run(ctx context.Context, st *platform.Stack, id usart.ID, conn *bus.Connection) error {
	if err := st.USART.EnableRxInterrupt(id); err != nil {
		return err
	}
	sp, err := st.Serial(id)
	if err != nil {
		return err
	}
	dev := id.String()
	w := uartio.New(32).WithBus(conn)
	cancel, err := w.Register(ctx, uartio.ReaderCfg{DevID: dev, Port: sp, Mode: uartio.ModeLines, MaxFrame: 128})
	if err != nil {
		return err
	}
	defer cancel()

	errs := make(chan error, 1)
	go b.pump(st.USARTs[id], errs)
	log.Printf("bridging %s, ctrl-c to stop", dev)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case ev := <-w.Events():
			if ev.Dir != "rx" {
				continue
			}
			log.Printf("%s rx %q", dev, ev.Data)
			reply := append(append([]byte("> "), ev.Data...), '\r', '\n')
			if _, err := sp.Write(reply); err != nil {
				log.Printf("%s tx: %v", dev, err)
				continue
			}
			w.EmitTX(dev, reply)
		}
	}
}
