// Package uartio frames bytes received on serial ports into events. Each
// registered port gets one bounded reader goroutine; events are delivered
// on Events() and, when a bus connection is attached, published on
// uart/<dev>/rx.
package uartio

import (
	"context"
	"errors"
	"time"

	"mcal-go/bus"
	"mcal-go/errcode"
	"mcal-go/types"
	"mcal-go/x/mathx"
	"mcal-go/x/timex"
)

// Port is the receive side of a serial stream.
type Port interface {
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

const (
	ModeBytes = "bytes"
	ModeLines = "lines"

	minFrame = 16
	maxFrame = 256
	maxIdle  = 2 * time.Second

	// recvSlice bounds each blocking read so cancellation is observed.
	recvSlice = 250 * time.Millisecond
)

type Event struct {
	types.UARTEvent
	Dir string // "rx" | "tx"
}

type ReaderCfg struct {
	DevID     string
	Port      Port
	Mode      string        // "bytes" | "lines"
	MaxFrame  int           // clamp 16..256
	IdleFlush time.Duration // clamp 0..2s (lines mode)
}

type Worker struct {
	outQ chan Event
	conn *bus.Connection
}

func New(outBuf int) *Worker {
	if outBuf <= 0 {
		outBuf = 64
	}
	return &Worker{outQ: make(chan Event, outBuf)}
}

// WithBus publishes every emitted event on uart/<dev>/<dir> as well.
func (w *Worker) WithBus(conn *bus.Connection) *Worker {
	w.conn = conn
	return w
}

func (w *Worker) Events() <-chan Event { return w.outQ }

// Topic returns the bus topic events for dev and dir are published on.
func Topic(dev, dir string) bus.Topic { return bus.T("uart", dev, dir) }

func (w *Worker) emit(dev, dir string, data []byte, ts int64) {
	ev := Event{UARTEvent: types.UARTEvent{DevID: dev, Data: data, TS: ts}, Dir: dir}
	if w.conn != nil {
		w.conn.Publish(w.conn.NewMessage(Topic(dev, dir), ev.UARTEvent, false))
	}
	select {
	case w.outQ <- ev:
	default:
		// drop if consumer is slow
	}
}

// Register starts a reader goroutine for cfg.Port. The returned func stops
// it; so does cancelling ctx.
func (w *Worker) Register(ctx context.Context, cfg ReaderCfg) (func(), error) {
	if cfg.Port == nil {
		return nil, &errcode.E{C: errcode.NullPointer, Op: "uartio.Register", Msg: cfg.DevID}
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeBytes
	case ModeBytes, ModeLines:
	default:
		return nil, &errcode.E{C: errcode.InvalidMode, Op: "uartio.Register", Msg: cfg.Mode}
	}
	max := mathx.Clamp(cfg.MaxFrame, minFrame, maxFrame)
	idle := mathx.Clamp(cfg.IdleFlush, 0, maxIdle)
	cctx, cancel := context.WithCancel(ctx)

	go w.run(cctx, cfg, max, idle)
	return cancel, nil
}

func (w *Worker) run(ctx context.Context, cfg ReaderCfg, max int, idle time.Duration) {
	buf := make([]byte, max)
	var line []byte

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		timex.DrainTimer(timer)
	}
	defer timer.Stop()

	flush := func() {
		if len(line) == 0 {
			return
		}
		payload := append([]byte(nil), line...)
		line = line[:0]
		w.emit(cfg.DevID, "rx", payload, timex.NowNs())
	}

	type result struct {
		n   int
		err error
	}
	res := make(chan result, 1)
	pending := false

	for {
		if !pending {
			go func() {
				// Bound the blocking wait to assist shutdown.
				rctx, rcancel := context.WithTimeout(ctx, recvSlice)
				n, err := cfg.Port.RecvSomeContext(rctx, buf)
				rcancel()
				res <- result{n, err}
			}()
			pending = true
		}
		// Arm idle flush only when needed.
		if cfg.Mode == ModeLines && len(line) > 0 && idle > 0 {
			timex.ResetTimer(timer, idle)
		} else {
			timex.ResetTimer(timer, time.Hour)
		}

		select {
		case <-ctx.Done():
			if pending {
				<-res
			}
			return
		case <-timer.C:
			flush()
		case r := <-res:
			pending = false
			if r.n <= 0 {
				if r.err != nil && !errors.Is(r.err, context.DeadlineExceeded) && !errors.Is(r.err, context.Canceled) {
					// A broken port would otherwise spin.
					select {
					case <-ctx.Done():
						return
					case <-time.After(recvSlice):
					}
				}
				continue
			}
			now := timex.NowNs()
			if cfg.Mode != ModeLines {
				// Emit raw chunk (binary-safe).
				w.emit(cfg.DevID, "rx", append([]byte(nil), buf[:r.n]...), now)
				continue
			}
			for _, b := range buf[:r.n] {
				switch b {
				case '\r', '\n':
					flush()
				default:
					if len(line) < max {
						line = append(line, b)
					}
				}
			}
		}
	}
}

// EmitTX records data written to devID as a tx event.
func (w *Worker) EmitTX(devID string, data []byte) {
	w.emit(devID, "tx", append([]byte(nil), data...), timex.NowNs())
}
